package logger

import (
	"context"
	"time"
)

// SetRequestID returns a context whose logger carries the request ID.
func SetRequestID(ctx context.Context, requestID string) context.Context {
	return WithField(ctx, FieldRequestID, requestID)
}

// SetJobID returns a context whose logger carries the job ID.
func SetJobID(ctx context.Context, jobID string) context.Context {
	return WithField(ctx, FieldJobID, jobID)
}

// SetCorrelationID returns a context whose logger carries the correlation ID.
func SetCorrelationID(ctx context.Context, correlationID string) context.Context {
	return WithField(ctx, FieldCorrelationID, correlationID)
}

// SetStage returns a context whose logger carries the workflow stage.
func SetStage(ctx context.Context, stage string) context.Context {
	return WithField(ctx, FieldStage, stage)
}

// SetComponent returns a context whose logger carries the component name.
func SetComponent(ctx context.Context, component string) context.Context {
	return WithField(ctx, FieldComponent, component)
}

// SetDeliveryID returns a context whose logger carries the webhook delivery ID.
func SetDeliveryID(ctx context.Context, deliveryID string) context.Context {
	return WithField(ctx, FieldDeliveryID, deliveryID)
}

// SetRepository returns a context whose logger carries the repository name.
func SetRepository(ctx context.Context, repository string) context.Context {
	return WithField(ctx, FieldRepository, repository)
}

// SetIssueNumber returns a context whose logger carries the issue number.
func SetIssueNumber(ctx context.Context, issueNumber int) context.Context {
	return WithField(ctx, FieldIssueNumber, issueNumber)
}

// WithDuration attaches a duration in milliseconds to the logger.
func (l *Logger) WithDuration(d time.Duration) *Logger {
	return l.WithField(FieldDurationMs, d.Milliseconds())
}

// WithCount attaches a count to the logger.
func (l *Logger) WithCount(count int) *Logger {
	return l.WithField(FieldCount, count)
}

// WithStatus attaches an operation status to the logger.
func (l *Logger) WithStatus(status string) *Logger {
	return l.WithField(FieldStatus, status)
}
