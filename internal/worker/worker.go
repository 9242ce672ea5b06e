// Package worker consumes notification jobs from the Redis queue.
package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tablehost/backend/pkg/queue"
)

// Mailer delivers one notification email.
type Mailer interface {
	Send(ctx context.Context, job queue.EmailJob) error
}

// LogMailer records emails in the log instead of sending them.
type LogMailer struct {
	Logger *zap.Logger
}

// Send logs the email.
func (m LogMailer) Send(_ context.Context, job queue.EmailJob) error {
	logger := m.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("email",
		zap.String("kind", string(job.Kind)),
		zap.String("to", job.To),
		zap.String("organization_id", job.OrganizationID),
		zap.String("reservation_id", job.ReservationID))
	return nil
}

// JobSource is the queue the processor drains. *queue.Queue satisfies it.
type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job) (bool, error)
	Len(ctx context.Context, key string) (int64, error)
}

// NotificationProcessor processes email jobs: decode, hand to the mailer, retry on error.
type NotificationProcessor struct {
	source      JobSource
	mailer      Mailer
	logger      *zap.Logger
	pollTimeout time.Duration
	backoff     time.Duration
}

// NewNotificationProcessor creates a notification processor.
func NewNotificationProcessor(source JobSource, mailer Mailer, logger *zap.Logger) *NotificationProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationProcessor{
		source:      source,
		mailer:      mailer,
		logger:      logger,
		pollTimeout: 5 * time.Second,
		backoff:     queue.RetryBackoff,
	}
}

// Process executes one job.
func (p *NotificationProcessor) Process(ctx context.Context, job *queue.Job) error {
	email, err := queue.DecodeEmail(job)
	if err != nil {
		return err
	}
	if err := p.mailer.Send(ctx, email); err != nil {
		return fmt.Errorf("send %s email: %w", email.Kind, err)
	}
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error. It returns when ctx is cancelled.
func (p *NotificationProcessor) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			p.logger.Info("notification worker stopping")
			return
		}

		job, err := p.source.Dequeue(ctx, p.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			dead, reErr := p.source.Retry(ctx, job)
			if reErr != nil {
				p.logger.Error("retry enqueue failed", zap.String("job_id", job.ID), zap.Error(reErr))
			} else if dead {
				p.reportDeadLetters(ctx, job)
			}
			p.sleep(ctx)
		}
	}
}

func (p *NotificationProcessor) reportDeadLetters(ctx context.Context, job *queue.Job) {
	depth, err := p.source.Len(ctx, queue.QueueDLQ)
	if err != nil {
		p.logger.Warn("dead letter depth unavailable", zap.Error(err))
		return
	}
	p.logger.Warn("job dead-lettered", zap.String("job_id", job.ID), zap.Int64("dlq_depth", depth))
}

func (p *NotificationProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
