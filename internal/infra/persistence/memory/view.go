package memory

import (
	"sort"

	"pharmacore/pkg/domain"
)

// view exposes a read-only snapshot of a memory state to rules and readers.
// List results are sorted by id so callers see deterministic order.
type view struct {
	state *memoryState
}

var _ domain.TransactionView = view{}

func newTransactionView(state *memoryState) view {
	return view{state: state}
}

// ListUsers returns all users within the snapshot.
func (v view) ListUsers() []User {
	out := make([]User, 0, len(v.state.users))
	for _, u := range v.state.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPharmacies returns all pharmacies.
func (v view) ListPharmacies() []Pharmacy {
	out := make([]Pharmacy, 0, len(v.state.pharmacies))
	for _, p := range v.state.pharmacies {
		out = append(out, clonePharmacy(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListMedicines returns all medicines.
func (v view) ListMedicines() []Medicine {
	out := make([]Medicine, 0, len(v.state.medicines))
	for _, m := range v.state.medicines {
		out = append(out, cloneMedicine(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListReservations returns all reservations.
func (v view) ListReservations() []Reservation {
	out := make([]Reservation, 0, len(v.state.reservations))
	for _, r := range v.state.reservations {
		out = append(out, cloneReservation(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListPrescriptionRequests returns all prescription requests.
func (v view) ListPrescriptionRequests() []PrescriptionRequest {
	out := make([]PrescriptionRequest, 0, len(v.state.prescriptions))
	for _, p := range v.state.prescriptions {
		out = append(out, clonePrescription(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindUser retrieves a user by id from the snapshot.
func (v view) FindUser(id int64) (User, bool) {
	u, ok := v.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// FindPharmacy retrieves a pharmacy by id from the snapshot.
func (v view) FindPharmacy(id int64) (Pharmacy, bool) {
	p, ok := v.state.pharmacies[id]
	if !ok {
		return Pharmacy{}, false
	}
	return clonePharmacy(p), true
}

// FindMedicine retrieves a medicine by id from the snapshot.
func (v view) FindMedicine(id int64) (Medicine, bool) {
	m, ok := v.state.medicines[id]
	if !ok {
		return Medicine{}, false
	}
	return cloneMedicine(m), true
}

// FindReservation retrieves a reservation by id from the snapshot.
func (v view) FindReservation(id int64) (Reservation, bool) {
	r, ok := v.state.reservations[id]
	if !ok {
		return Reservation{}, false
	}
	return cloneReservation(r), true
}

// FindPrescriptionRequest retrieves a prescription request by id from the snapshot.
func (v view) FindPrescriptionRequest(id int64) (PrescriptionRequest, bool) {
	p, ok := v.state.prescriptions[id]
	if !ok {
		return PrescriptionRequest{}, false
	}
	return clonePrescription(p), true
}

// Committed-state read helpers -----------------------------------------------

// GetUser retrieves a user by id from committed state.
func (s *Store) GetUser(id int64) (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// ListUsers returns all users from committed state.
func (s *Store) ListUsers() []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListUsers()
}

// GetPharmacy retrieves a pharmacy by id.
func (s *Store) GetPharmacy(id int64) (Pharmacy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.pharmacies[id]
	if !ok {
		return Pharmacy{}, false
	}
	return clonePharmacy(p), true
}

// ListPharmacies returns all pharmacies from committed state.
func (s *Store) ListPharmacies() []Pharmacy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPharmacies()
}

// GetMedicine retrieves a medicine by id.
func (s *Store) GetMedicine(id int64) (Medicine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.state.medicines[id]
	if !ok {
		return Medicine{}, false
	}
	return cloneMedicine(m), true
}

// ListMedicines returns all medicines from committed state.
func (s *Store) ListMedicines() []Medicine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListMedicines()
}

// GetReservation retrieves a reservation by id.
func (s *Store) GetReservation(id int64) (Reservation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.reservations[id]
	if !ok {
		return Reservation{}, false
	}
	return cloneReservation(r), true
}

// ListReservations returns all reservations from committed state.
func (s *Store) ListReservations() []Reservation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListReservations()
}

// GetPrescriptionRequest retrieves a prescription request by id.
func (s *Store) GetPrescriptionRequest(id int64) (PrescriptionRequest, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.state.prescriptions[id]
	if !ok {
		return PrescriptionRequest{}, false
	}
	return clonePrescription(p), true
}

// ListPrescriptionRequests returns all prescription requests from committed state.
func (s *Store) ListPrescriptionRequests() []PrescriptionRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListPrescriptionRequests()
}
