// ABOUTME: Pipeline service wiring: stores, catalog, activity log and options
// ABOUTME: Holds the version-checked read-modify-write loop every deal mutation uses
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/closer/activity"
	"github.com/harperreed/closer/catalog"
	"github.com/harperreed/closer/db"
	"github.com/harperreed/closer/metrics"
	"github.com/harperreed/closer/models"
)

// DealStore persists deals. Every call is scoped to the owner.
type DealStore interface {
	Create(ctx context.Context, deal *models.Deal, activities ...*models.Activity) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Deal, error)
	Update(ctx context.Context, deal *models.Deal, expectedVersion int64, activities ...*models.Activity) error
	SoftDelete(ctx context.Context, ownerID string, id uuid.UUID, activities ...*models.Activity) error
	List(ctx context.Context, ownerID string, filter db.DealFilter, page db.Page) (*db.DealList, error)
}

// MilestoneStore persists milestones and generation markers.
type MilestoneStore interface {
	CreateBatch(ctx context.Context, ownerID string, dealID uuid.UUID, triggerStage string, milestones []*models.Milestone) error
	Create(ctx context.Context, ownerID string, m *models.Milestone, activities ...*models.Activity) error
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*models.Milestone, error)
	Update(ctx context.Context, ownerID string, m *models.Milestone, activities ...*models.Activity) error
	Delete(ctx context.Context, ownerID string, m *models.Milestone, activities ...*models.Activity) error
	ListByDeal(ctx context.Context, ownerID string, dealID uuid.UUID) ([]models.Milestone, error)
}

// Catalog resolves deal types.
type Catalog interface {
	Get(typeID string) (*models.DealType, error)
	List() []*models.DealType
}

// Service is the deal pipeline: deal CRUD, stage transitions, milestones
// and the activity trail.
type Service struct {
	deals      DealStore
	milestones MilestoneStore
	activities *activity.Log
	catalog    Catalog
	generator  *MilestoneGenerator

	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
	maxAttempts  int
	auditTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxAttempts sets how many times a deal mutation retries a version conflict.
func WithMaxAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithAuditTimeout bounds best-effort activity writes.
func WithAuditTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.auditTimeout = d
		}
	}
}

// NewService assembles a Service from its stores.
func NewService(deals DealStore, milestones MilestoneStore, activities activity.Store, cat Catalog, opts ...Option) *Service {
	s := &Service{
		deals:        deals,
		milestones:   milestones,
		catalog:      cat,
		logger:       slog.Default(),
		now:          time.Now,
		maxAttempts:  3,
		auditTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.activities = activity.New(activities,
		activity.WithLogger(s.logger),
		activity.WithMetrics(s.metrics),
		activity.WithTimeout(s.auditTimeout),
	)
	s.generator = NewMilestoneGenerator(milestones, s.activities, s.metrics, s.now)
	return s
}

// NewSQLiteService builds a Service over the SQLite repositories.
func NewSQLiteService(database *sql.DB, cat Catalog, opts ...Option) *Service {
	return NewService(
		db.NewDealRepository(database),
		db.NewMilestoneRepository(database),
		db.NewActivityRepository(database),
		cat,
		opts...,
	)
}

// DealTypes returns the active deal types.
func (s *Service) DealTypes() []*models.DealType {
	return s.catalog.List()
}

// DealType returns one active deal type.
func (s *Service) DealType(typeID string) (*models.DealType, error) {
	dt, err := s.catalog.Get(typeID)
	if err != nil {
		if errors.Is(err, catalog.ErrDealTypeNotFound) {
			return nil, invalid("deal_type_id", CodeUnknownDealType, "unknown deal type %q", typeID)
		}
		return nil, err
	}
	return dt, nil
}

// mutation changes a freshly read deal. It returns the activities to append
// with the update, or write=false to leave the deal untouched.
type mutation func(deal *models.Deal, dt *models.DealType) (acts []*models.Activity, write bool, err error)

// mutateDeal reads the deal, applies fn and saves it with a version check.
// A lost race is retried from a fresh read up to maxAttempts times.
func (s *Service) mutateDeal(ctx context.Context, op, ownerID string, dealID uuid.UUID, fn mutation) (*models.Deal, *models.DealType, bool, error) {
	for attempt := 1; ; attempt++ {
		deal, err := s.deals.Get(ctx, ownerID, dealID)
		if err != nil {
			return nil, nil, false, storeError(op, err)
		}

		dt, err := s.DealType(deal.DealTypeID)
		if err != nil {
			return nil, nil, false, err
		}

		version := deal.Version
		acts, write, err := fn(deal, dt)
		if err != nil {
			return nil, nil, false, err
		}
		if !write {
			return deal, dt, false, nil
		}

		err = s.deals.Update(ctx, deal, version, acts...)
		if err == nil {
			return deal, dt, true, nil
		}
		if !errors.Is(err, db.ErrStaleDeal) {
			return nil, nil, false, storeError(op, err)
		}

		if attempt >= s.maxAttempts {
			s.metrics.TransitionConflict()
			s.logger.Warn("deal update abandoned after version conflicts",
				"op", op,
				"deal_id", dealID,
				"attempts", attempt,
			)
			return nil, nil, false, &ConflictError{DealID: dealID, Attempts: attempt}
		}
		s.logger.Debug("deal version conflict, retrying", "op", op, "deal_id", dealID, "attempt", attempt)
	}
}
