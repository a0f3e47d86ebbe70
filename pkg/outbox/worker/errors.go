package worker

import "errors"

var ErrBatchClosed = errors.New("outbox batch already closed")
