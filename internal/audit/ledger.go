// Package audit records privileged admin actions in an append-only ledger.
//
// Recording is fail-closed: the entry is written through the repository of
// the caller's transaction, and if the write fails the caller must abort,
// which rolls back the action being recorded.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	auditmodels "profileclaim/internal/audit/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/requestcontext"
)

type Ledger struct {
	reader  store.AuditLog
	logger  *slog.Logger
	metrics *Metrics
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New builds a ledger that lists entries from reader, normally the store's
// non-transactional AuditLog.
func New(reader store.AuditLog, opts ...Option) *Ledger {
	l := &Ledger{reader: reader, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record stamps and validates entry, then appends it through w. w must be
// the AuditLog of the transaction performing the recorded action.
func (l *Ledger) Record(ctx context.Context, w store.AuditLog, entry auditmodels.Entry) error {
	start := time.Now()
	if entry.ID.IsNil() {
		entry.ID = id.NewAuditEntryID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if err := entry.Validate(); err != nil {
		return err
	}

	if err := w.Append(ctx, &entry); err != nil {
		if l.metrics != nil {
			l.metrics.PersistFailures.Inc()
		}
		l.logger.ErrorContext(ctx, "CRITICAL: admin audit entry not persisted",
			"action", entry.Action,
			"admin_id", entry.AdminID,
			"target_type", entry.TargetType,
			"target_id", entry.TargetID,
			"error", err,
		)
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if l.metrics != nil {
		l.metrics.Recorded.WithLabelValues(string(entry.Action)).Inc()
		l.metrics.PersistDuration.Observe(time.Since(start).Seconds())
	}
	l.logger.InfoContext(ctx, "admin action recorded",
		"action", entry.Action,
		"admin_id", entry.AdminID,
		"target_id", entry.TargetID,
	)
	return nil
}

// List returns one page of the ledger, newest first.
func (l *Ledger) List(ctx context.Context, page, limit int) (*auditmodels.Page, error) {
	page, limit = auditmodels.NormalizePaging(page, limit)
	entries, err := l.reader.List(ctx, auditmodels.Offset(page, limit), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit log")
	}
	total, err := l.reader.Count(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count audit log")
	}
	if entries == nil {
		entries = []*auditmodels.Entry{}
	}
	return &auditmodels.Page{Entries: entries, Total: total, Page: page, Limit: limit}, nil
}
