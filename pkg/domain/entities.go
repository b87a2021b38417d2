// Package domain defines the persistent entities, value types, and rule
// evaluation primitives shared by the pharmacore engines.
package domain

import (
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityUser identifies a user account record.
	EntityUser EntityType = "user"
	// EntityPharmacy identifies a pharmacy record.
	EntityPharmacy EntityType = "pharmacy"
	// EntityMedicine identifies a medicine stock record.
	EntityMedicine EntityType = "medicine"
	// EntityReservation identifies a reservation record.
	EntityReservation EntityType = "reservation"
	// EntityPrescriptionRequest identifies a photographed prescription request.
	EntityPrescriptionRequest EntityType = "prescription_request"
)

// Role enumerates the account roles recognised by the registry.
type Role string

// Canonical account roles.
const (
	RoleAdmin      Role = "ADMIN"
	RolePharmacist Role = "PHARMACIST"
	RoleResident   Role = "RESIDENT"
)

// Valid reports whether the role is one of the canonical values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePharmacist, RoleResident:
		return true
	}
	return false
}

// PharmacyStatus enumerates pharmacy approval states.
type PharmacyStatus string

// Pharmacy approval states; a pharmacy starts PENDING and is resolved by an admin.
const (
	PharmacyPending  PharmacyStatus = "PENDING"
	PharmacyApproved PharmacyStatus = "APPROVED"
	PharmacyRejected PharmacyStatus = "REJECTED"
)

// MedicineStatus is derived from the stock counters, never stored.
type MedicineStatus string

// Derived medicine stock states.
const (
	MedicineAvailable  MedicineStatus = "AVAILABLE"
	MedicineReserved   MedicineStatus = "RESERVED"
	MedicineOutOfStock MedicineStatus = "OUT_OF_STOCK"
)

// ReservationStatus enumerates the reservation lifecycle states.
type ReservationStatus string

// Reservation lifecycle states.
const (
	ReservationPending   ReservationStatus = "PENDING"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationCompleted ReservationStatus = "COMPLETED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Active reports whether the reservation still holds reserved stock.
func (s ReservationStatus) Active() bool {
	return s == ReservationPending || s == ReservationConfirmed
}

// PaymentMethod enumerates how a reservation is paid.
type PaymentMethod string

// Supported payment methods. Online methods settle immediately; PAY_AT_STORE
// settles at pickup.
const (
	PayOnlineBank PaymentMethod = "ONLINE_BANK"
	PayEPayment   PaymentMethod = "E_PAYMENT"
	PayAtStore    PaymentMethod = "PAY_AT_STORE"
)

// Valid reports whether the payment method is recognised.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PayOnlineBank, PayEPayment, PayAtStore:
		return true
	}
	return false
}

// Online reports whether the method settles at reservation time.
func (m PaymentMethod) Online() bool {
	return m == PayOnlineBank || m == PayEPayment
}

// PaymentStatus enumerates settlement states of a reservation.
type PaymentStatus string

// Settlement states.
const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// PrescriptionStatus enumerates the prescription request lifecycle states.
type PrescriptionStatus string

// Prescription request lifecycle states.
const (
	PrescriptionPending        PrescriptionStatus = "PENDING"
	PrescriptionAccepted       PrescriptionStatus = "ACCEPTED"
	PrescriptionReadyForPickup PrescriptionStatus = "READY_FOR_PICKUP"
	PrescriptionCompleted      PrescriptionStatus = "COMPLETED"
	PrescriptionCancelled      PrescriptionStatus = "CANCELLED"
	PrescriptionExpired        PrescriptionStatus = "EXPIRED"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// NoPharmacy is the pharmacy reference carried by non-pharmacist users and by
// prescription requests that have not yet chosen a fulfiller.
const NoPharmacy int64 = -1

// Base contains common fields for all domain records. IDs are monotonically
// increasing integers assigned per entity type by the store.
type Base struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User represents an account known to the registry. Passwords are stored as
// given by the caller; hashing is deliberately out of scope here and flagged
// as a known weakness of the persisted schema.
type User struct {
	Base
	Username      string `json:"username"`
	Password      string `json:"password"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	ContactNumber string `json:"contact_number"`
	Address       string `json:"address"`
	Role          Role   `json:"role"`
	PharmacyID    int64  `json:"pharmacy_id"`
	Active        bool   `json:"active"`
}

// Pharmacy represents a registered pharmacy awaiting or holding approval.
type Pharmacy struct {
	Base
	Name        string         `json:"name"`
	Address     string         `json:"address"`
	Contact     string         `json:"contact"`
	Email       string         `json:"email"`
	Description string         `json:"description"`
	Status      PharmacyStatus `json:"status"`
}

// Medicine represents one stocked item owned by a pharmacy.
// quantityReserved counts stock currently held by unfulfilled reservations;
// stock is physically consumed only at completion.
type Medicine struct {
	Base
	PharmacyID        int64   `json:"pharmacy_id"`
	BrandName         string  `json:"brand_name"`
	GenericName       string  `json:"generic_name"`
	Description       string  `json:"description"`
	Dosage            string  `json:"dosage"`
	DosageForm        string  `json:"dosage_form"`
	Price             float64 `json:"price"`
	QuantityAvailable int     `json:"quantity_available"`
	QuantityReserved  int     `json:"quantity_reserved"`
	Category          string  `json:"category"`
}

// EffectiveQuantity is what a buyer may currently purchase.
func (m Medicine) EffectiveQuantity() int {
	return m.QuantityAvailable - m.QuantityReserved
}

// RequiresPrescription reports whether the item may only be dispensed against
// a prescription.
func (m Medicine) RequiresPrescription() bool {
	return strings.EqualFold(m.Category, "Prescription")
}

// Status derives the stock state from the quantity counters.
func (m Medicine) Status() MedicineStatus {
	switch {
	case m.QuantityAvailable <= 0:
		return MedicineOutOfStock
	case m.EffectiveQuantity() <= 0:
		return MedicineReserved
	default:
		return MedicineAvailable
	}
}

// TripletKey returns the case-insensitive uniqueness key for a medicine
// within its pharmacy.
func (m Medicine) TripletKey() string {
	return strings.ToLower(m.BrandName) + "|" + strings.ToLower(m.GenericName) + "|" + strings.ToLower(m.Dosage)
}

// Reservation is a time-boxed hold on medicine stock. totalPrice is a price
// snapshot taken at creation, not live-priced.
type Reservation struct {
	Base
	ReferenceNumber string            `json:"reference_number"`
	UserID          int64             `json:"user_id"`
	MedicineID      int64             `json:"medicine_id"`
	PharmacyID      int64             `json:"pharmacy_id"`
	Quantity        int               `json:"quantity"`
	TotalPrice      float64           `json:"total_price"`
	ReservationTime time.Time         `json:"reservation_time"`
	ExpirationTime  time.Time         `json:"expiration_time"`
	Status          ReservationStatus `json:"status"`
	PaymentMethod   PaymentMethod     `json:"payment_method"`
	PaymentStatus   PaymentStatus     `json:"payment_status"`
	Notes           string            `json:"notes"`
}

// PrescriptionRequest is a photographed prescription broadcast to all
// pharmacies and fulfilled by exactly one of the confirmers, chosen by the
// submitting user.
type PrescriptionRequest struct {
	Base
	ReferenceNumber      string             `json:"reference_number"`
	UserID               int64              `json:"user_id"`
	ImagePath            string             `json:"image_path"`
	SubmittedAt          time.Time          `json:"submitted_at"`
	Status               PrescriptionStatus `json:"status"`
	DeclinedPharmacyIDs  []int64            `json:"declined_pharmacy_ids"`
	ConfirmedPharmacyIDs []int64            `json:"confirmed_pharmacy_ids"`
	ChosenPharmacyID     int64              `json:"chosen_pharmacy_id"`
	MedicineName         string             `json:"medicine_name,omitempty"`
	MedicineQuantity     int                `json:"medicine_quantity,omitempty"`
	MedicineAmount       float64            `json:"medicine_amount,omitempty"`
	PaidAt               *time.Time         `json:"paid_at,omitempty"`
}

// DeclinedBy reports whether the pharmacy already declined the request.
func (p PrescriptionRequest) DeclinedBy(pharmacyID int64) bool {
	return containsID(p.DeclinedPharmacyIDs, pharmacyID)
}

// ConfirmedBy reports whether the pharmacy already attested stock.
func (p PrescriptionRequest) ConfirmedBy(pharmacyID int64) bool {
	return containsID(p.ConfirmedPharmacyIDs, pharmacyID)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID int64
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
