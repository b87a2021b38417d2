// Package memory provides the in-memory implementation of the core
// persistence store. It is the single shared-state engine: every mutating
// operation runs as a clone-on-write transaction under the store mutex, so
// cross-entity operations (reservations against stock, registry cascades,
// the expiry sweep) are atomic with respect to each other by construction.
package memory

import (
	"context"
	"sync"
	"time"

	"pharmacore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// User aliases domain.User for in-memory persistence operations.
	User = domain.User
	// Pharmacy aliases domain.Pharmacy.
	Pharmacy = domain.Pharmacy
	// Medicine aliases domain.Medicine.
	Medicine = domain.Medicine
	// Reservation aliases domain.Reservation.
	Reservation = domain.Reservation
	// PrescriptionRequest aliases domain.PrescriptionRequest.
	PrescriptionRequest = domain.PrescriptionRequest
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	users         map[int64]User
	pharmacies    map[int64]Pharmacy
	medicines     map[int64]Medicine
	reservations  map[int64]Reservation
	prescriptions map[int64]PrescriptionRequest
	nextID        map[domain.EntityType]int64
}

func newMemoryState() memoryState {
	return memoryState{
		users:         make(map[int64]User),
		pharmacies:    make(map[int64]Pharmacy),
		medicines:     make(map[int64]Medicine),
		reservations:  make(map[int64]Reservation),
		prescriptions: make(map[int64]PrescriptionRequest),
		nextID: map[domain.EntityType]int64{
			domain.EntityUser:                1,
			domain.EntityPharmacy:            1,
			domain.EntityMedicine:            1,
			domain.EntityReservation:         1,
			domain.EntityPrescriptionRequest: 1,
		},
	}
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.users {
		cloned.users[k] = cloneUser(v)
	}
	for k, v := range s.pharmacies {
		cloned.pharmacies[k] = clonePharmacy(v)
	}
	for k, v := range s.medicines {
		cloned.medicines[k] = cloneMedicine(v)
	}
	for k, v := range s.reservations {
		cloned.reservations[k] = cloneReservation(v)
	}
	for k, v := range s.prescriptions {
		cloned.prescriptions[k] = clonePrescription(v)
	}
	for k, v := range s.nextID {
		cloned.nextID[k] = v
	}
	return cloned
}

func (s memoryState) take(entity domain.EntityType) int64 {
	id := s.nextID[entity]
	s.nextID[entity] = id + 1
	return id
}

// bump raises the next-id counter so explicitly supplied ids (snapshot loads,
// seeds) never collide with generated ones.
func (s memoryState) bump(entity domain.EntityType, id int64) {
	if id >= s.nextID[entity] {
		s.nextID[entity] = id + 1
	}
}

func cloneUser(u User) User             { return u }
func clonePharmacy(p Pharmacy) Pharmacy { return p }
func cloneMedicine(m Medicine) Medicine { return m }
func cloneReservation(r Reservation) Reservation {
	return r
}
func clonePrescription(p PrescriptionRequest) PrescriptionRequest {
	cp := p
	cp.DeclinedPharmacyIDs = append([]int64(nil), p.DeclinedPharmacyIDs...)
	cp.ConfirmedPharmacyIDs = append([]int64(nil), p.ConfirmedPharmacyIDs...)
	if p.PaidAt != nil {
		t := *p.PaidAt
		cp.PaidAt = &t
	}
	return cp
}

// Snapshot captures a point-in-time clone of the store state, keyed per
// entity bucket. It is the unit exchanged with durable backends.
type Snapshot struct {
	Users         map[int64]User                `json:"users"`
	Pharmacies    map[int64]Pharmacy            `json:"pharmacies"`
	Medicines     map[int64]Medicine            `json:"medicines"`
	Reservations  map[int64]Reservation         `json:"reservations"`
	Prescriptions map[int64]PrescriptionRequest `json:"prescription_requests"`
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Users:         make(map[int64]User, len(state.users)),
		Pharmacies:    make(map[int64]Pharmacy, len(state.pharmacies)),
		Medicines:     make(map[int64]Medicine, len(state.medicines)),
		Reservations:  make(map[int64]Reservation, len(state.reservations)),
		Prescriptions: make(map[int64]PrescriptionRequest, len(state.prescriptions)),
	}
	for k, v := range state.users {
		s.Users[k] = cloneUser(v)
	}
	for k, v := range state.pharmacies {
		s.Pharmacies[k] = clonePharmacy(v)
	}
	for k, v := range state.medicines {
		s.Medicines[k] = cloneMedicine(v)
	}
	for k, v := range state.reservations {
		s.Reservations[k] = cloneReservation(v)
	}
	for k, v := range state.prescriptions {
		s.Prescriptions[k] = clonePrescription(v)
	}
	return s
}

// memoryStateFromSnapshot rebuilds in-memory state and reconstructs the
// next-id counters as max(existing id)+1 per entity type.
func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Users {
		state.users[k] = cloneUser(v)
		state.bump(domain.EntityUser, k)
	}
	for k, v := range s.Pharmacies {
		state.pharmacies[k] = clonePharmacy(v)
		state.bump(domain.EntityPharmacy, k)
	}
	for k, v := range s.Medicines {
		state.medicines[k] = cloneMedicine(v)
		state.bump(domain.EntityMedicine, k)
	}
	for k, v := range s.Reservations {
		state.reservations[k] = cloneReservation(v)
		state.bump(domain.EntityReservation, k)
	}
	for k, v := range s.Prescriptions {
		state.prescriptions[k] = clonePrescription(v)
		state.bump(domain.EntityPrescriptionRequest, k)
	}
	return state
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the transaction timestamp source, used by tests and by
// the sweeper scenarios that replay time.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now != nil {
		s.nowFn = now
	}
}

// RunInTransaction executes fn within a transactional copy of the store
// state. Commit-time rules run against the candidate state; blocking
// violations abort the commit and surface as RuleViolationError.
func (s *Store) RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(ctx context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	view := newTransactionView(&snapshot)
	return fn(view)
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}
