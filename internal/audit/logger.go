package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fieldline-hq/fieldline/internal/permissions"
)

const (
	defaultQueueSize   = 1024
	defaultMaxAttempts = 3
	defaultTrailLimit  = 50
	maxTrailLimit      = 500
	insertTimeout      = 5 * time.Second
)

// WriteFailureMetrics counts audit writes that were dropped or retried.
type WriteFailureMetrics interface {
	ObserveAuditWrite(outcome string)
}

// Logger appends audit entries without ever blocking or failing the caller.
// Entries go through a bounded in-process queue drained by a background
// worker that retries failed inserts; an entry that exhausts its retries is
// dropped with an operator-visible error log. A lost entry never alters the
// already-computed decision it described.
type Logger struct {
	repo    Repository
	logger  *slog.Logger
	metrics WriteFailureMetrics
	clock   func() time.Time

	queue       chan Entry
	maxAttempts int
	backoff     time.Duration

	startOnce sync.Once
	wg        sync.WaitGroup
}

// LoggerOption adjusts logger construction.
type LoggerOption func(*Logger)

// WithQueueSize bounds the retry queue.
func WithQueueSize(n int) LoggerOption {
	return func(l *Logger) {
		if n > 0 {
			l.queue = make(chan Entry, n)
		}
	}
}

// WithClock injects a clock for tests.
func WithClock(clock func() time.Time) LoggerOption {
	return func(l *Logger) { l.clock = clock }
}

// WithWriteMetrics attaches write-outcome metrics.
func WithWriteMetrics(m WriteFailureMetrics) LoggerOption {
	return func(l *Logger) { l.metrics = m }
}

// NewLogger constructs a Logger.
func NewLogger(repo Repository, logger *slog.Logger, opts ...LoggerOption) *Logger {
	l := &Logger{
		repo:        repo,
		logger:      logger,
		clock:       func() time.Time { return time.Now().UTC() },
		queue:       make(chan Entry, defaultQueueSize),
		maxAttempts: defaultMaxAttempts,
		backoff:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Start launches the background writer. Safe to call once; Close stops it.
func (l *Logger) Start(ctx context.Context) {
	l.startOnce.Do(func() {
		l.wg.Add(1)
		go l.run(ctx)
	})
}

// Close stops accepting entries and waits for the queue to drain.
func (l *Logger) Close() {
	close(l.queue)
	l.wg.Wait()
}

// RecordEvent implements permissions.AuditSink. It stamps and enqueues the
// entry; when the queue is full the entry is dropped and reported on the
// operator side channel rather than blocking the decision path.
func (l *Logger) RecordEvent(_ context.Context, event permissions.AuditEvent) {
	entry := Entry{
		ID:            uuid.New(),
		OccurredAt:    l.clock(),
		EventType:     event.Type,
		EmployeeID:    event.EmployeeID,
		PermissionKey: event.PermissionKey,
		Allowed:       event.Allowed,
		RoleUsed:      event.RoleUsed,
		ResourceType:  event.ResourceType,
		ResourceID:    event.ResourceID,
		IPAddress:     event.IPAddress,
		UserAgent:     event.UserAgent,
	}
	select {
	case l.queue <- entry:
	default:
		l.observe("dropped_full")
		l.logger.Error("audit queue full, entry dropped",
			slog.String("event_type", entry.EventType),
			slog.Int64("employee_id", entry.EmployeeID),
			slog.String("permission", entry.PermissionKey))
	}
}

func (l *Logger) run(ctx context.Context) {
	defer l.wg.Done()
	for entry := range l.queue {
		l.write(ctx, entry)
	}
}

func (l *Logger) write(ctx context.Context, entry Entry) {
	var lastErr error
	for attempt := 1; attempt <= l.maxAttempts; attempt++ {
		insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), insertTimeout)
		lastErr = l.repo.Insert(insertCtx, entry)
		cancel()
		if lastErr == nil {
			if attempt > 1 {
				l.observe("retried")
			} else {
				l.observe("written")
			}
			return
		}
		if attempt < l.maxAttempts {
			time.Sleep(l.backoff * time.Duration(attempt))
		}
	}
	l.observe("dropped_error")
	l.logger.Error("audit write failed after retries, entry dropped",
		slog.String("event_type", entry.EventType),
		slog.Int64("employee_id", entry.EmployeeID),
		slog.Any("error", lastErr))
}

func (l *Logger) observe(outcome string) {
	if l.metrics != nil {
		l.metrics.ObserveAuditWrite(outcome)
	}
}

// Trail returns the most recent entries for one employee, newest first, with
// a bounded limit.
func (l *Logger) Trail(ctx context.Context, employeeID int64, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultTrailLimit
	}
	if limit > maxTrailLimit {
		limit = maxTrailLimit
	}
	return l.repo.Trail(ctx, employeeID, int32(limit))
}

// RecentSecurityEvents aggregates entries from the lookback window for the
// anomaly review view.
func (l *Logger) RecentSecurityEvents(ctx context.Context, lookback time.Duration) ([]SecurityEvent, error) {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return l.repo.RecentSecurityEvents(ctx, l.clock().Add(-lookback))
}
