package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Changes() []Change

	CreateUser(User) (User, error)
	UpdateUser(id int64, mutator func(*User) error) (User, error)
	DeleteUser(id int64) error
	CreatePharmacy(Pharmacy) (Pharmacy, error)
	UpdatePharmacy(id int64, mutator func(*Pharmacy) error) (Pharmacy, error)
	DeletePharmacy(id int64) error
	CreateMedicine(Medicine) (Medicine, error)
	UpdateMedicine(id int64, mutator func(*Medicine) error) (Medicine, error)
	DeleteMedicine(id int64) error
	CreateReservation(Reservation) (Reservation, error)
	UpdateReservation(id int64, mutator func(*Reservation) error) (Reservation, error)
	DeleteReservation(id int64) error
	CreatePrescriptionRequest(PrescriptionRequest) (PrescriptionRequest, error)
	UpdatePrescriptionRequest(id int64, mutator func(*PrescriptionRequest) error) (PrescriptionRequest, error)
	DeletePrescriptionRequest(id int64) error

	FindUser(id int64) (User, bool)
	FindPharmacy(id int64) (Pharmacy, bool)
	FindMedicine(id int64) (Medicine, bool)
	FindReservation(id int64) (Reservation, bool)
	FindPrescriptionRequest(id int64) (PrescriptionRequest, bool)
}

// TransactionView provides read-only access to snapshot data for rules and
// read paths. It is also the RuleView handed to the engine at commit time.
type TransactionView = RuleView

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetUser(id int64) (User, bool)
	ListUsers() []User
	GetPharmacy(id int64) (Pharmacy, bool)
	ListPharmacies() []Pharmacy
	GetMedicine(id int64) (Medicine, bool)
	ListMedicines() []Medicine
	GetReservation(id int64) (Reservation, bool)
	ListReservations() []Reservation
	GetPrescriptionRequest(id int64) (PrescriptionRequest, bool)
	ListPrescriptionRequests() []PrescriptionRequest
}
