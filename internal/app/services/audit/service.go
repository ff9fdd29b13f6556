// Package audit records every admin mutation in an append-only log and
// prunes old entries on a schedule.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/app/system"
	"github.com/apex-authority/backoffice/internal/domain/audit"
	"github.com/apex-authority/backoffice/internal/logging"
)

// Service appends and lists audit entries.
type Service struct {
	store storage.AuditStore
	log   *logging.Logger
}

// New constructs an audit service.
func New(store storage.AuditStore, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("audit")
	}
	return &Service{store: store, log: log}
}

// Record appends one entry. oldValue and newValue are marshalled to JSON;
// nil values are stored as empty.
func (s *Service) Record(ctx context.Context, actor, action, table, recordID string, oldValue, newValue any) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return fmt.Errorf("actor is required")
	}
	if action == "" {
		return fmt.Errorf("action is required")
	}
	if table == "" {
		return fmt.Errorf("table is required")
	}

	entry := audit.Entry{
		Actor:    actor,
		Action:   action,
		Table:    table,
		RecordID: recordID,
	}

	var err error
	if entry.OldValue, err = marshalValue(oldValue); err != nil {
		return fmt.Errorf("encode old value: %w", err)
	}
	if entry.NewValue, err = marshalValue(newValue); err != nil {
		return fmt.Errorf("encode new value: %w", err)
	}

	if _, err := s.store.AppendAudit(ctx, entry); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// List returns recent entries, optionally filtered by table.
func (s *Service) List(ctx context.Context, table string, limit int) ([]audit.Entry, error) {
	return s.store.ListAudit(ctx, table, limit)
}

func marshalValue(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Retention prunes entries older than the configured window on a cron
// schedule.
type Retention struct {
	store    storage.AuditStore
	log      *logging.Logger
	days     int
	schedule string

	mu   sync.Mutex
	cron *cron.Cron
}

var _ system.Service = (*Retention)(nil)

// NewRetention creates the pruning job. days defaults to 90 and schedule to
// @daily.
func NewRetention(store storage.AuditStore, days int, schedule string, log *logging.Logger) *Retention {
	if log == nil {
		log = logging.NewDefault("audit-retention")
	}
	if days <= 0 {
		days = 90
	}
	if schedule == "" {
		schedule = "@daily"
	}
	return &Retention{store: store, log: log, days: days, schedule: schedule}
}

func (r *Retention) Name() string { return "audit-retention" }

func (r *Retention) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(r.schedule, r.prune); err != nil {
		return fmt.Errorf("schedule %q: %w", r.schedule, err)
	}
	c.Start()
	r.cron = c
	r.log.WithField("schedule", r.schedule).Info("audit retention started")
	return nil
}

func (r *Retention) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()

	if c == nil {
		return nil
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Retention) prune() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before := time.Now().UTC().AddDate(0, 0, -r.days)
	pruned, err := r.store.PruneAudit(ctx, before)
	if err != nil {
		r.log.WithError(err).Warn("audit prune failed")
		return
	}
	if pruned > 0 {
		r.log.WithField("pruned", pruned).Info("audit entries pruned")
	}
}
