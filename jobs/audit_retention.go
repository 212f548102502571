package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Purger is the slice of the audit repository the sweep needs.
type Purger interface {
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// AuditRetentionJob deletes audit entries older than the retention period.
// The delete-where-older-than query is naturally re-entrant: an overlapping
// sweep finds nothing left to remove.
type AuditRetentionJob struct {
	Purger        Purger
	Logger        *slog.Logger
	RetentionDays int
	clock         func() time.Time
}

// NewAuditRetentionJob initialises the retention sweep handler.
func NewAuditRetentionJob(purger Purger, logger *slog.Logger, retentionDays int) *AuditRetentionJob {
	return &AuditRetentionJob{
		Purger:        purger,
		Logger:        logger,
		RetentionDays: retentionDays,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one retention sweep.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Purger == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	days := payload.RetentionDays
	if days <= 0 {
		days = j.RetentionDays
	}
	if days <= 0 {
		days = 365
	}
	cutoff := j.clock().AddDate(0, 0, -days)
	removed, err := j.Purger.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		j.Logger.Error("audit retention sweep failed", slog.Any("error", err))
		return err
	}
	j.Logger.Info("audit retention sweep completed",
		slog.Time("cutoff", cutoff),
		slog.Int64("removed", removed))
	return nil
}
