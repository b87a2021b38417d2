// Package core implements the pharmacy reservation engine: identity
// registry, medicine inventory with hold accounting, prescription request
// workflow, and the expiry sweep. All state mutations go through the
// persistent store's transactional API so commit-time rules can veto
// inconsistent states before they become visible.
package core

import (
	"context"
	"time"

	blobcore "pharmacore/internal/blob/core"
	"pharmacore/pkg/domain"
)

// ReservationTTL is how long a reservation holds stock before the sweeper
// releases it.
const ReservationTTL = 24 * time.Hour

// Service is the single entry point for all business operations. It owns
// the persistent store and the prescription image store and layers
// validation, reference number generation, and observability on top.
type Service struct {
	store   PersistentStore
	images  blobcore.Store
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
	clock   Clock
}

// NewService wires a service around a store and a blob store for
// prescription images. The blob store may be nil when prescription image
// uploads are not used.
func NewService(store PersistentStore, images blobcore.Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		images:  images,
		logger:  NopLogger{},
		metrics: nopMetrics{},
		tracer:  nopTracer{},
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying persistent store for read helpers and
// export tooling.
func (s *Service) Store() PersistentStore { return s.store }

// Images exposes the prescription image store.
func (s *Service) Images() blobcore.Store { return s.images }

// Now returns the service clock's current time.
func (s *Service) Now() time.Time { return s.clock.Now() }

// run executes fn in a transaction with tracing, metrics, and failure
// logging. Every mutating operation funnels through here.
func (s *Service) run(ctx context.Context, op string, fn func(tx Transaction) error) (Result, error) {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	result, err := s.store.RunInTransaction(ctx, fn)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Error("operation failed", "op", op, "error", err)
	} else {
		s.logger.Debug("operation committed", "op", op, "violations", len(result.Violations))
	}
	return result, err
}

// read executes fn against a committed read-only view with tracing and
// metrics but no transaction.
func (s *Service) read(ctx context.Context, op string, fn func(v TransactionView) error) error {
	start := s.clock.Now()
	ctx, span := s.tracer.Start(ctx, op)
	err := s.store.View(ctx, fn)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	if err != nil {
		s.logger.Error("read failed", "op", op, "error", err)
	}
	return err
}

func findUser(v TransactionView, id int64) (User, error) {
	u, ok := v.FindUser(id)
	if !ok {
		return User{}, domain.NotFoundError{Entity: EntityUser, ID: id}
	}
	return u, nil
}

func findPharmacy(v TransactionView, id int64) (Pharmacy, error) {
	p, ok := v.FindPharmacy(id)
	if !ok {
		return Pharmacy{}, domain.NotFoundError{Entity: EntityPharmacy, ID: id}
	}
	return p, nil
}

func findMedicine(v TransactionView, id int64) (Medicine, error) {
	m, ok := v.FindMedicine(id)
	if !ok {
		return Medicine{}, domain.NotFoundError{Entity: EntityMedicine, ID: id}
	}
	return m, nil
}

func findReservation(v TransactionView, id int64) (Reservation, error) {
	r, ok := v.FindReservation(id)
	if !ok {
		return Reservation{}, domain.NotFoundError{Entity: EntityReservation, ID: id}
	}
	return r, nil
}

func findPrescription(v TransactionView, id int64) (PrescriptionRequest, error) {
	p, ok := v.FindPrescriptionRequest(id)
	if !ok {
		return PrescriptionRequest{}, domain.NotFoundError{Entity: EntityPrescriptionRequest, ID: id}
	}
	return p, nil
}
