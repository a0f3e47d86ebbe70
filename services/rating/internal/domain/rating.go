package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/fulfillment/pkg/aggregate"
	generalDomain "github.com/sakashimaa/fulfillment/pkg/domain"
)

const (
	MinScore = 1
	MaxScore = 5
)

var (
	ErrInvalidScore  = fmt.Errorf("%w: score must be between %d and %d", aggregate.ErrInvalidArgument, MinScore, MaxScore)
	ErrInvalidTarget = fmt.Errorf("%w: customer and target are required", aggregate.ErrInvalidArgument)
	ErrAlreadyRated  = fmt.Errorf("%w: target already rated by customer", aggregate.ErrInvalidStateTransition)
)

var ratingNamespace = uuid.MustParse("8f1c0c52-93a4-4bb8-9f3e-3c6b1d0e2a71")

// RatingID is stable per customer and target so a customer rates a target once.
func RatingID(customerID, targetID string) string {
	return uuid.NewSHA1(ratingNamespace, []byte(customerID+"/"+targetID)).String()
}

type Rating struct {
	aggregate.Root

	CustomerID  string    `json:"customerId"`
	TargetID    string    `json:"targetId"`
	Score       int       `json:"score"`
	Comment     string    `json:"comment,omitempty"`
	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func NewRating(id string) *Rating {
	return &Rating{Root: aggregate.Root{AggregateID: id}}
}

func (r *Rating) Submit(customerID, targetID string, score int, comment string) error {
	if r.Version() > 0 {
		return ErrAlreadyRated
	}

	if customerID == "" || targetID == "" {
		return ErrInvalidTarget
	}

	if err := checkScore(score); err != nil {
		return err
	}

	now := time.Now().UTC()
	r.CustomerID = customerID
	r.TargetID = targetID
	r.Score = score
	r.Comment = comment
	r.SubmittedAt = now
	r.UpdatedAt = now

	return r.Record(generalDomain.AggregateRating, generalDomain.RatingSubmitted, r.payload(0))
}

func (r *Rating) UpdateScore(score int, comment string) error {
	if err := checkScore(score); err != nil {
		return err
	}

	previous := r.Score
	r.Score = score
	if comment != "" {
		r.Comment = comment
	}
	r.UpdatedAt = time.Now().UTC()

	return r.Record(generalDomain.AggregateRating, generalDomain.RatingUpdated, r.payload(previous))
}

func (r *Rating) Payload() generalDomain.RatingPayload {
	return r.payload(0)
}

func (r *Rating) payload(previous int) generalDomain.RatingPayload {
	return generalDomain.RatingPayload{
		RatingID:      r.ID(),
		CustomerID:    r.CustomerID,
		TargetID:      r.TargetID,
		Score:         r.Score,
		PreviousScore: previous,
		Comment:       r.Comment,
	}
}

func checkScore(score int) error {
	if score < MinScore || score > MaxScore {
		return fmt.Errorf("%w: got %d", ErrInvalidScore, score)
	}

	return nil
}
