package expiry

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultBatchSize = 100

// Processor debits one user's expired credits. Implemented by the ledger
// service; the engine only decides who to process and when.
type Processor interface {
	ProcessExpired(ctx context.Context, userID string, now time.Time) (int64, error)
}

// UserSource pages the users that still have unswept expired credits.
type UserSource interface {
	UsersWithExpired(ctx context.Context, now time.Time, limit, offset int) ([]string, error)
}

// Engine drives the expiry sweep across all users in batches. Each user is
// processed in their own transaction so one failure never blocks the rest
// of the sweep.
type Engine struct {
	processor Processor
	users     UserSource
	batchSize int
	log       *logrus.Entry
	now       func() time.Time
}

func NewEngine(processor Processor, users UserSource, log *logrus.Logger) *Engine {
	return &Engine{
		processor: processor,
		users:     users,
		batchSize: defaultBatchSize,
		log:       log.WithField("component", "expiry"),
		now:       time.Now,
	}
}

type SweepResult struct {
	Users   int   `json:"users"`
	Debited int64 `json:"debited"`
	Failed  int   `json:"failed"`
}

// Sweep processes every user with expired credits as of the start of the
// call. Successfully swept users drop out of the source query, so paging
// advances by the count of failed users only. Safe to re-run at any time.
func (e *Engine) Sweep(ctx context.Context) (SweepResult, error) {
	now := e.now()
	var result SweepResult
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		users, err := e.users.UsersWithExpired(ctx, now, e.batchSize, offset)
		if err != nil {
			return result, err
		}
		if len(users) == 0 {
			break
		}
		for _, userID := range users {
			debited, err := e.processor.ProcessExpired(ctx, userID, now)
			if err != nil {
				e.log.WithError(err).WithField("user", userID).Warn("expiry sweep failed for user")
				result.Failed++
				continue
			}
			result.Users++
			result.Debited += debited
		}
		offset = result.Failed
	}
	e.log.WithFields(logrus.Fields{
		"users": result.Users, "debited": result.Debited, "failed": result.Failed,
	}).Info("expiry sweep finished")
	return result, nil
}
