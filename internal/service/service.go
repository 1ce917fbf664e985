package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pharmapos/m/domain"
	"pharmapos/m/internal/events"
	"pharmapos/m/internal/store"
)

// Service holds the point-of-sale operations: checkout, inventory upkeep and history.
type Service struct {
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

type Option func(*Service)

// WithClock replaces the wall clock used for timestamps and report windows.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces the uuid generator for new medicines and transactions.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// New wires a service. A nil publisher disables sale events.
func New(st store.Store, publisher events.Publisher, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &Service{
		store:     st,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// timestamp is UTC with microsecond precision so it survives every store unchanged.
func (s *Service) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// storeErr passes domain errors through and wraps anything else as a persistence failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		domain.ErrValidation,
		domain.ErrNotFound,
		domain.ErrUnknownMedicine,
		domain.ErrInsufficientStock,
		domain.ErrPersistence,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &domain.PersistenceError{Op: op, Err: err}
}
