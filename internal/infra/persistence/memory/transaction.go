package memory

import (
	"time"

	"pharmacore/pkg/domain"
)

var _ domain.Transaction = (*transaction)(nil)

// transaction is a mutation set applied to a cloned store state. Entities are
// stored and returned by value; callers never hold references into the maps.
type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Changes returns the mutations recorded so far, in order.
func (tx *transaction) Changes() []Change {
	out := make([]Change, len(tx.changes))
	copy(out, tx.changes)
	return out
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateUser stores a new user within the transaction.
func (tx *transaction) CreateUser(u User) (User, error) {
	if u.ID == 0 {
		u.ID = tx.state.take(domain.EntityUser)
	} else {
		if _, exists := tx.state.users[u.ID]; exists {
			return User{}, domain.Conflictf("user %d already exists", u.ID)
		}
		tx.state.bump(domain.EntityUser, u.ID)
	}
	u.CreatedAt = tx.now
	u.UpdatedAt = tx.now
	tx.state.users[u.ID] = cloneUser(u)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionCreate, After: cloneUser(u)})
	return cloneUser(u), nil
}

// UpdateUser mutates a user using the provided mutator function.
func (tx *transaction) UpdateUser(id int64, mutator func(*User) error) (User, error) {
	current, ok := tx.state.users[id]
	if !ok {
		return User{}, domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	before := cloneUser(current)
	if err := mutator(&current); err != nil {
		return User{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.users[id] = cloneUser(current)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionUpdate, Before: before, After: cloneUser(current)})
	return cloneUser(current), nil
}

// DeleteUser removes a user from the transaction state.
func (tx *transaction) DeleteUser(id int64) error {
	current, ok := tx.state.users[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityUser, ID: id}
	}
	delete(tx.state.users, id)
	tx.recordChange(Change{Entity: domain.EntityUser, Action: domain.ActionDelete, Before: cloneUser(current)})
	return nil
}

// CreatePharmacy stores a new pharmacy.
func (tx *transaction) CreatePharmacy(p Pharmacy) (Pharmacy, error) {
	if p.ID == 0 {
		p.ID = tx.state.take(domain.EntityPharmacy)
	} else {
		if _, exists := tx.state.pharmacies[p.ID]; exists {
			return Pharmacy{}, domain.Conflictf("pharmacy %d already exists", p.ID)
		}
		tx.state.bump(domain.EntityPharmacy, p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.pharmacies[p.ID] = clonePharmacy(p)
	tx.recordChange(Change{Entity: domain.EntityPharmacy, Action: domain.ActionCreate, After: clonePharmacy(p)})
	return clonePharmacy(p), nil
}

// UpdatePharmacy mutates an existing pharmacy.
func (tx *transaction) UpdatePharmacy(id int64, mutator func(*Pharmacy) error) (Pharmacy, error) {
	current, ok := tx.state.pharmacies[id]
	if !ok {
		return Pharmacy{}, domain.NotFoundError{Entity: domain.EntityPharmacy, ID: id}
	}
	before := clonePharmacy(current)
	if err := mutator(&current); err != nil {
		return Pharmacy{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.pharmacies[id] = clonePharmacy(current)
	tx.recordChange(Change{Entity: domain.EntityPharmacy, Action: domain.ActionUpdate, Before: before, After: clonePharmacy(current)})
	return clonePharmacy(current), nil
}

// DeletePharmacy removes a pharmacy from state.
func (tx *transaction) DeletePharmacy(id int64) error {
	current, ok := tx.state.pharmacies[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPharmacy, ID: id}
	}
	delete(tx.state.pharmacies, id)
	tx.recordChange(Change{Entity: domain.EntityPharmacy, Action: domain.ActionDelete, Before: clonePharmacy(current)})
	return nil
}

// CreateMedicine stores a new medicine record.
func (tx *transaction) CreateMedicine(m Medicine) (Medicine, error) {
	if m.ID == 0 {
		m.ID = tx.state.take(domain.EntityMedicine)
	} else {
		if _, exists := tx.state.medicines[m.ID]; exists {
			return Medicine{}, domain.Conflictf("medicine %d already exists", m.ID)
		}
		tx.state.bump(domain.EntityMedicine, m.ID)
	}
	m.CreatedAt = tx.now
	m.UpdatedAt = tx.now
	tx.state.medicines[m.ID] = cloneMedicine(m)
	tx.recordChange(Change{Entity: domain.EntityMedicine, Action: domain.ActionCreate, After: cloneMedicine(m)})
	return cloneMedicine(m), nil
}

// UpdateMedicine mutates an existing medicine.
func (tx *transaction) UpdateMedicine(id int64, mutator func(*Medicine) error) (Medicine, error) {
	current, ok := tx.state.medicines[id]
	if !ok {
		return Medicine{}, domain.NotFoundError{Entity: domain.EntityMedicine, ID: id}
	}
	before := cloneMedicine(current)
	if err := mutator(&current); err != nil {
		return Medicine{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.medicines[id] = cloneMedicine(current)
	tx.recordChange(Change{Entity: domain.EntityMedicine, Action: domain.ActionUpdate, Before: before, After: cloneMedicine(current)})
	return cloneMedicine(current), nil
}

// DeleteMedicine removes a medicine from state.
func (tx *transaction) DeleteMedicine(id int64) error {
	current, ok := tx.state.medicines[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityMedicine, ID: id}
	}
	delete(tx.state.medicines, id)
	tx.recordChange(Change{Entity: domain.EntityMedicine, Action: domain.ActionDelete, Before: cloneMedicine(current)})
	return nil
}

// CreateReservation stores a new reservation.
func (tx *transaction) CreateReservation(r Reservation) (Reservation, error) {
	if r.ID == 0 {
		r.ID = tx.state.take(domain.EntityReservation)
	} else {
		if _, exists := tx.state.reservations[r.ID]; exists {
			return Reservation{}, domain.Conflictf("reservation %d already exists", r.ID)
		}
		tx.state.bump(domain.EntityReservation, r.ID)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.reservations[r.ID] = cloneReservation(r)
	tx.recordChange(Change{Entity: domain.EntityReservation, Action: domain.ActionCreate, After: cloneReservation(r)})
	return cloneReservation(r), nil
}

// UpdateReservation mutates an existing reservation.
func (tx *transaction) UpdateReservation(id int64, mutator func(*Reservation) error) (Reservation, error) {
	current, ok := tx.state.reservations[id]
	if !ok {
		return Reservation{}, domain.NotFoundError{Entity: domain.EntityReservation, ID: id}
	}
	before := cloneReservation(current)
	if err := mutator(&current); err != nil {
		return Reservation{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.reservations[id] = cloneReservation(current)
	tx.recordChange(Change{Entity: domain.EntityReservation, Action: domain.ActionUpdate, Before: before, After: cloneReservation(current)})
	return cloneReservation(current), nil
}

// DeleteReservation removes a reservation from state.
func (tx *transaction) DeleteReservation(id int64) error {
	current, ok := tx.state.reservations[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityReservation, ID: id}
	}
	delete(tx.state.reservations, id)
	tx.recordChange(Change{Entity: domain.EntityReservation, Action: domain.ActionDelete, Before: cloneReservation(current)})
	return nil
}

// CreatePrescriptionRequest stores a new prescription request.
func (tx *transaction) CreatePrescriptionRequest(p PrescriptionRequest) (PrescriptionRequest, error) {
	if p.ID == 0 {
		p.ID = tx.state.take(domain.EntityPrescriptionRequest)
	} else {
		if _, exists := tx.state.prescriptions[p.ID]; exists {
			return PrescriptionRequest{}, domain.Conflictf("prescription request %d already exists", p.ID)
		}
		tx.state.bump(domain.EntityPrescriptionRequest, p.ID)
	}
	p.CreatedAt = tx.now
	p.UpdatedAt = tx.now
	tx.state.prescriptions[p.ID] = clonePrescription(p)
	tx.recordChange(Change{Entity: domain.EntityPrescriptionRequest, Action: domain.ActionCreate, After: clonePrescription(p)})
	return clonePrescription(p), nil
}

// UpdatePrescriptionRequest mutates an existing prescription request.
func (tx *transaction) UpdatePrescriptionRequest(id int64, mutator func(*PrescriptionRequest) error) (PrescriptionRequest, error) {
	current, ok := tx.state.prescriptions[id]
	if !ok {
		return PrescriptionRequest{}, domain.NotFoundError{Entity: domain.EntityPrescriptionRequest, ID: id}
	}
	before := clonePrescription(current)
	if err := mutator(&current); err != nil {
		return PrescriptionRequest{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.prescriptions[id] = clonePrescription(current)
	tx.recordChange(Change{Entity: domain.EntityPrescriptionRequest, Action: domain.ActionUpdate, Before: before, After: clonePrescription(current)})
	return clonePrescription(current), nil
}

// DeletePrescriptionRequest removes a prescription request from state.
func (tx *transaction) DeletePrescriptionRequest(id int64) error {
	current, ok := tx.state.prescriptions[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityPrescriptionRequest, ID: id}
	}
	delete(tx.state.prescriptions, id)
	tx.recordChange(Change{Entity: domain.EntityPrescriptionRequest, Action: domain.ActionDelete, Before: clonePrescription(current)})
	return nil
}

// FindUser retrieves a user from the transactional state.
func (tx *transaction) FindUser(id int64) (User, bool) {
	u, ok := tx.state.users[id]
	if !ok {
		return User{}, false
	}
	return cloneUser(u), true
}

// FindPharmacy retrieves a pharmacy from the transactional state.
func (tx *transaction) FindPharmacy(id int64) (Pharmacy, bool) {
	p, ok := tx.state.pharmacies[id]
	if !ok {
		return Pharmacy{}, false
	}
	return clonePharmacy(p), true
}

// FindMedicine retrieves a medicine from the transactional state.
func (tx *transaction) FindMedicine(id int64) (Medicine, bool) {
	m, ok := tx.state.medicines[id]
	if !ok {
		return Medicine{}, false
	}
	return cloneMedicine(m), true
}

// FindReservation retrieves a reservation from the transactional state.
func (tx *transaction) FindReservation(id int64) (Reservation, bool) {
	r, ok := tx.state.reservations[id]
	if !ok {
		return Reservation{}, false
	}
	return cloneReservation(r), true
}

// FindPrescriptionRequest retrieves a prescription request from the transactional state.
func (tx *transaction) FindPrescriptionRequest(id int64) (PrescriptionRequest, bool) {
	p, ok := tx.state.prescriptions[id]
	if !ok {
		return PrescriptionRequest{}, false
	}
	return clonePrescription(p), true
}
