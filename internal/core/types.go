package core

import "pharmacore/pkg/domain"

type (
	EntityType          = domain.EntityType
	Role                = domain.Role
	User                = domain.User
	Pharmacy            = domain.Pharmacy
	Medicine            = domain.Medicine
	Reservation         = domain.Reservation
	PrescriptionRequest = domain.PrescriptionRequest
	Change              = domain.Change
	Result              = domain.Result
	Violation           = domain.Violation
	RulesEngine         = domain.RulesEngine
	Transaction         = domain.Transaction
	TransactionView     = domain.TransactionView
	PersistentStore     = domain.PersistentStore
)

const (
	EntityUser                = domain.EntityUser
	EntityPharmacy            = domain.EntityPharmacy
	EntityMedicine            = domain.EntityMedicine
	EntityReservation         = domain.EntityReservation
	EntityPrescriptionRequest = domain.EntityPrescriptionRequest
)
