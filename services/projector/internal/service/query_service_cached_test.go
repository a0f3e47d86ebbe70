package service

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sakashimaa/fulfillment/pkg/testsuite"
	"github.com/sakashimaa/fulfillment/services/projector/internal/domain"
	"github.com/sakashimaa/fulfillment/services/projector/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type CachedQuerySuite struct {
	testsuite.BaseSuite

	rows    *repository.MemoryRowStore
	queries QueryService
}

func (s *CachedQuerySuite) SetupSuite() {
	s.RequireIntegration()
	s.SetupRedis()
}

func (s *CachedQuerySuite) TearDownSuite() {
	s.TearDownInfrastructure()
}

func (s *CachedQuerySuite) SetupTest() {
	s.Require().NoError(s.Redis.FlushAll(s.Ctx).Err())
	s.rows = repository.NewMemoryRowStore()
	s.queries = NewCachedQueryService(NewQueryService(s.rows), s.Redis, time.Minute)
}

func (s *CachedQuerySuite) putProduct(available int64) {
	data, err := json.Marshal(domain.CatalogItem{
		ProductID: "sock",
		Name:      "Wool sock",
		UnitPrice: decimal.NewFromInt(5),
		Available: available,
	})
	s.Require().NoError(err)

	s.Require().NoError(s.rows.Upsert(s.Ctx, domain.Row{View: domain.ViewCatalog, Key: "sock", Version: 1, Data: data}))
}

func (s *CachedQuerySuite) TestProductIsServedFromCache() {
	s.putProduct(10)

	item, err := s.queries.Product(s.Ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(10), item.Available)

	val, err := s.Redis.Get(s.Ctx, "catalog:sock").Result()
	s.Require().NoError(err)
	s.NotEmpty(val)

	s.putProduct(3)

	item, err = s.queries.Product(s.Ctx, "sock")
	s.Require().NoError(err)
	s.Equal(int64(10), item.Available)

	ttl, err := s.Redis.TTL(s.Ctx, "catalog:sock").Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
}

func (s *CachedQuerySuite) TestMissIsNotCached() {
	_, err := s.queries.Product(s.Ctx, "missing")
	s.ErrorIs(err, domain.ErrRowNotFound)

	n, err := s.Redis.Exists(s.Ctx, "catalog:missing").Result()
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *CachedQuerySuite) TestRatingSummaryIsCached() {
	summary, err := s.queries.RatingSummary(s.Ctx, "sock")
	s.Require().NoError(err)
	s.Zero(summary.Count)

	n, err := s.Redis.Exists(s.Ctx, "rating_summary:sock").Result()
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func TestCachedQuerySuite(t *testing.T) {
	suite.Run(t, new(CachedQuerySuite))
}
