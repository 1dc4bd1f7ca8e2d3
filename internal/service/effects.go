package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fundacion-aprender/portal-api/internal/models"
	"github.com/fundacion-aprender/portal-api/pkg/jobs"
)

// Notifier delivers transactional email. Implementations must be safe for
// concurrent use; delivery failures are retried by the queue, never surfaced
// to the business operation that triggered them.
type Notifier interface {
	Enabled() bool
	Send(ctx context.Context, toName, toEmail, subject, body string) error
}

type auditSink interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

const (
	jobTypeAudit  = "audit"
	jobTypeNotify = "notify"
)

type auditPayload struct {
	Log models.AuditLog
}

type notifyPayload struct {
	ToName  string
	ToEmail string
	Subject string
	Body    string
}

// Effects dispatches best-effort side effects (audit records, notifications)
// through the background queue so they run outside any business transaction.
type Effects struct {
	queue    *jobs.Queue
	audit    auditSink
	notifier Notifier
	logger   *zap.Logger
}

// NewEffects wires the dispatcher and its queue.
func NewEffects(audit auditSink, notifier Notifier, logger *zap.Logger, cfg jobs.QueueConfig) *Effects {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Effects{audit: audit, notifier: notifier, logger: logger}
	if cfg.Logger == nil {
		cfg.Logger = logger
	}
	e.queue = jobs.NewQueue("effects", e.handle, cfg)
	return e
}

// Start begins queue consumption.
func (e *Effects) Start(ctx context.Context) {
	e.queue.Start(ctx)
}

// Stop drains the queue workers.
func (e *Effects) Stop() {
	e.queue.Stop()
}

func (e *Effects) handle(ctx context.Context, job jobs.Job) error {
	switch job.Type {
	case jobTypeAudit:
		payload, ok := job.Payload.(auditPayload)
		if !ok {
			return fmt.Errorf("unexpected audit payload %T", job.Payload)
		}
		if e.audit == nil {
			return nil
		}
		return e.audit.CreateAuditLog(ctx, &payload.Log)
	case jobTypeNotify:
		payload, ok := job.Payload.(notifyPayload)
		if !ok {
			return fmt.Errorf("unexpected notify payload %T", job.Payload)
		}
		if e.notifier == nil || !e.notifier.Enabled() {
			return nil
		}
		return e.notifier.Send(ctx, payload.ToName, payload.ToEmail, payload.Subject, payload.Body)
	default:
		return fmt.Errorf("unknown job type %s", job.Type)
	}
}

// Audit enqueues an audit record. Enqueue failures are logged, not propagated.
func (e *Effects) Audit(log models.AuditLog) {
	if e == nil {
		return
	}
	err := e.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeAudit,
		Payload: auditPayload{Log: log},
	})
	if err != nil {
		e.logger.Warn("failed to enqueue audit record", zap.String("action", log.Action), zap.Error(err))
	}
}

// Notify enqueues an email. Enqueue failures are logged, not propagated.
func (e *Effects) Notify(toName, toEmail, subject, body string) {
	if e == nil {
		return
	}
	err := e.queue.Enqueue(jobs.Job{
		ID:      uuid.NewString(),
		Type:    jobTypeNotify,
		Payload: notifyPayload{ToName: toName, ToEmail: toEmail, Subject: subject, Body: body},
	})
	if err != nil {
		e.logger.Warn("failed to enqueue notification", zap.String("to", toEmail), zap.Error(err))
	}
}
