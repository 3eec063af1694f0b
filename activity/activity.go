// ABOUTME: Deal activity log: validated appends, best-effort writes and field diffs
// ABOUTME: Wraps the append-only store with logging and failure counters
package activity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/metrics"
	"github.com/harperreed/closer/models"
)

var (
	ErrUnknownType    = errors.New("unknown activity type")
	ErrMissingTitle   = errors.New("activity title is required")
	ErrMissingAuthor  = errors.New("activity author is required")
	ErrStageUnchanged = errors.New("stage_change requires distinct old and new stages")
)

// Store is the append-only persistence the log writes through.
type Store interface {
	Append(ctx context.Context, ownerID string, act *models.Activity) error
	ListByDeal(ctx context.Context, ownerID string, dealID string) ([]models.Activity, error)
}

// Log records deal activities.
type Log struct {
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// Option configures a Log.
type Option func(*Log)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Log) { l.metrics = m }
}

// WithTimeout bounds each best-effort write.
func WithTimeout(d time.Duration) Option {
	return func(l *Log) { l.timeout = d }
}

// New creates a Log over store.
func New(store Store, opts ...Option) *Log {
	l := &Log{
		store:   store,
		logger:  slog.Default(),
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Validate checks that act is well formed.
func Validate(act *models.Activity) error {
	if act == nil {
		return ErrMissingTitle
	}
	if !models.ValidActivityType(string(act.Type)) {
		return fmt.Errorf("%w: %q", ErrUnknownType, act.Type)
	}
	if strings.TrimSpace(act.Title) == "" {
		return ErrMissingTitle
	}
	if strings.TrimSpace(act.AuthorID) == "" {
		return ErrMissingAuthor
	}
	if act.Type == models.ActivityStageChange {
		if act.OldStage == nil || act.NewStage == nil || *act.OldStage == *act.NewStage {
			return ErrStageUnchanged
		}
	}
	return nil
}

// Append validates and writes act. Errors are returned to the caller.
func (l *Log) Append(ctx context.Context, ownerID string, act *models.Activity) error {
	if err := Validate(act); err != nil {
		return err
	}
	return l.store.Append(ctx, ownerID, act)
}

// RecordBestEffort writes act within the configured timeout. A failure is
// logged and counted but never returned; it reports whether the write landed.
func (l *Log) RecordBestEffort(ctx context.Context, ownerID string, act *models.Activity) bool {
	if act == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.Append(ctx, ownerID, act); err != nil {
		l.metrics.AuditWriteFailed()
		l.logger.Warn("activity write failed",
			"deal_id", act.DealID,
			"activity_type", act.Type,
			"title", act.Title,
			"error", err,
		)
		return false
	}
	return true
}

// List returns the deal's trail oldest first.
func (l *Log) List(ctx context.Context, ownerID string, dealID uuid.UUID) ([]models.Activity, error) {
	acts, err := l.store.ListByDeal(ctx, ownerID, dealID.String())
	if err != nil {
		return nil, err
	}
	if acts == nil {
		acts = []models.Activity{}
	}
	return acts, nil
}

// StageChange builds the audit entry for a transition.
func StageChange(dealID uuid.UUID, authorID, oldStage, newStage, reason string, at time.Time) *models.Activity {
	act := &models.Activity{
		DealID:    dealID,
		Type:      models.ActivityStageChange,
		Title:     fmt.Sprintf("Stage changed: %s → %s", oldStage, newStage),
		OldStage:  &oldStage,
		NewStage:  &newStage,
		AuthorID:  authorID,
		CreatedAt: at,
	}
	if reason != "" {
		act.Description = "Reason: " + reason
	}
	return act
}

// MilestonesGenerated builds the summary entry for a template batch.
func MilestonesGenerated(dealID uuid.UUID, authorID, stage string, names []string, at time.Time) *models.Activity {
	return &models.Activity{
		DealID:      dealID,
		Type:        models.ActivityOther,
		Title:       fmt.Sprintf("%d milestones generated at %s", len(names), stage),
		Description: strings.Join(names, ", "),
		AuthorID:    authorID,
		CreatedAt:   at,
	}
}

// FieldUpdate builds a field_update entry from a diff, or nil if nothing changed.
func FieldUpdate(dealID uuid.UUID, authorID string, changes []Change, at time.Time) *models.Activity {
	if len(changes) == 0 {
		return nil
	}

	fields := make([]string, len(changes))
	lines := make([]string, len(changes))
	for i, c := range changes {
		fields[i] = c.Field
		lines[i] = c.String()
	}

	return &models.Activity{
		DealID:      dealID,
		Type:        models.ActivityFieldUpdate,
		Title:       "Updated " + strings.Join(fields, ", "),
		Description: strings.Join(lines, "\n"),
		AuthorID:    authorID,
		CreatedAt:   at,
	}
}
