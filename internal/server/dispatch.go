package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"pharmacore/internal/core"
	"pharmacore/pkg/domain"
)

// Action names understood by the dispatcher.
const (
	ActionLogin           = "LOGIN"
	ActionRegister        = "REGISTER"
	ActionCreateUser      = "CREATE_USER"
	ActionUpdateUser      = "UPDATE_USER"
	ActionDeleteUser      = "DELETE_USER"
	ActionApproveUser     = "APPROVE_USER"
	ActionRejectUser      = "REJECT_USER"
	ActionCreatePharmacy  = "CREATE_PHARMACY"
	ActionUpdatePharmacy  = "UPDATE_PHARMACY"
	ActionDeletePharmacy  = "DELETE_PHARMACY"
	ActionApprovePharmacy = "APPROVE_PHARMACY"
	ActionRejectPharmacy  = "REJECT_PHARMACY"

	ActionCreateMedicine  = "CREATE_MEDICINE"
	ActionUpdateMedicine  = "UPDATE_MEDICINE"
	ActionDeleteMedicine  = "DELETE_MEDICINE"
	ActionSearchMedicines = "SEARCH_MEDICINES"

	ActionReserveMedicine     = "RESERVE_MEDICINE"
	ActionApproveReservation  = "APPROVE_RESERVATION"
	ActionRejectReservation   = "REJECT_RESERVATION"
	ActionCompleteReservation = "COMPLETE_RESERVATION"
	ActionMarkPendingPaid     = "MARK_PENDING_PAID"
	ActionCancelReservation   = "CANCEL_RESERVATION"

	ActionCreatePrescription   = "CREATE_PRESCRIPTION_REQUEST"
	ActionConfirmPrescription  = "CONFIRM_PRESCRIPTION"
	ActionDeclinePrescription  = "DECLINE_PRESCRIPTION"
	ActionChoosePharmacy       = "CHOOSE_PRESCRIPTION_PHARMACY"
	ActionMarkReadyForPickup   = "MARK_READY_FOR_PICKUP"
	ActionMarkPrescriptionPaid = "MARK_PRESCRIPTION_PAID"
	ActionCancelPrescription   = "CANCEL_PRESCRIPTION_REQUEST"
	ActionGetPrescriptionImage = "GET_PRESCRIPTION_IMAGE"

	ActionListUsers         = "LIST_USERS"
	ActionListPharmacies    = "LIST_PHARMACIES"
	ActionListMedicines     = "LIST_MEDICINES"
	ActionListReservations  = "LIST_RESERVATIONS"
	ActionListPrescriptions = "LIST_PRESCRIPTION_REQUESTS"
)

type handler func(ctx context.Context, req Request) (*Data, error)

// Dispatcher routes request envelopes to service operations.
type Dispatcher struct {
	svc      *core.Service
	handlers map[string]handler
}

// NewDispatcher builds the action table over a service.
func NewDispatcher(svc *core.Service) *Dispatcher {
	d := &Dispatcher{svc: svc}
	d.handlers = map[string]handler{
		ActionLogin:           d.login,
		ActionRegister:        d.register,
		ActionCreateUser:      d.createUser,
		ActionUpdateUser:      d.updateUser,
		ActionDeleteUser:      d.deleteUser,
		ActionApproveUser:     d.approveUser,
		ActionRejectUser:      d.rejectUser,
		ActionCreatePharmacy:  d.createPharmacy,
		ActionUpdatePharmacy:  d.updatePharmacy,
		ActionDeletePharmacy:  d.deletePharmacy,
		ActionApprovePharmacy: d.approvePharmacy,
		ActionRejectPharmacy:  d.rejectPharmacy,

		ActionCreateMedicine:  d.createMedicine,
		ActionUpdateMedicine:  d.updateMedicine,
		ActionDeleteMedicine:  d.deleteMedicine,
		ActionSearchMedicines: d.searchMedicines,

		ActionReserveMedicine:     d.reserveMedicine,
		ActionApproveReservation:  d.approveReservation,
		ActionRejectReservation:   d.rejectReservation,
		ActionCompleteReservation: d.completeReservation,
		ActionMarkPendingPaid:     d.markPendingPaid,
		ActionCancelReservation:   d.cancelReservation,

		ActionCreatePrescription:   d.createPrescription,
		ActionConfirmPrescription:  d.confirmPrescription,
		ActionDeclinePrescription:  d.declinePrescription,
		ActionChoosePharmacy:       d.choosePharmacy,
		ActionMarkReadyForPickup:   d.markReadyForPickup,
		ActionMarkPrescriptionPaid: d.markPrescriptionPaid,
		ActionCancelPrescription:   d.cancelPrescription,
		ActionGetPrescriptionImage: d.getPrescriptionImage,

		ActionListUsers:         d.listUsers,
		ActionListPharmacies:    d.listPharmacies,
		ActionListMedicines:     d.listMedicines,
		ActionListReservations:  d.listReservations,
		ActionListPrescriptions: d.listPrescriptions,
	}
	return d
}

// Dispatch runs one request and always produces a response envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Response {
	h, ok := d.handlers[strings.ToUpper(req.Action)]
	if !ok {
		return errorResponse(fmt.Sprintf("unknown action %q", req.Action))
	}
	data, err := h(ctx, req)
	if err != nil {
		return errorResponse(errorMessage(err))
	}
	return successResponse(data)
}

// errorMessage flattens service errors into one client-facing line.
func errorMessage(err error) string {
	var rve domain.RuleViolationError
	if errors.As(err, &rve) {
		for _, v := range rve.Result.Violations {
			if v.Severity == domain.SeverityBlock {
				return fmt.Sprintf("blocked by rule %s: %s", v.Rule, v.Message)
			}
		}
	}
	return err.Error()
}

func userFromParams(req Request) domain.User {
	return domain.User{
		Username:      req.Get("username"),
		Password:      req.Get("password"),
		FullName:      req.Get("full_name"),
		Email:         req.Get("email"),
		ContactNumber: req.Get("contact_number"),
		Address:       req.Get("address"),
	}
}

func pharmacyFromParams(req Request, prefix string) domain.Pharmacy {
	return domain.Pharmacy{
		Name:        req.Get(prefix + "name"),
		Address:     req.Get(prefix + "address"),
		Contact:     req.Get(prefix + "contact"),
		Email:       req.Get(prefix + "email"),
		Description: req.Get(prefix + "description"),
	}
}

func (d *Dispatcher) login(ctx context.Context, req Request) (*Data, error) {
	u, err := d.svc.Authenticate(ctx, req.Get("username"), req.Get("password"))
	if err != nil {
		return nil, err
	}
	dto := toUserDTO(u)
	return &Data{User: &dto}, nil
}

// register handles self-service sign-up for residents and pharmacies,
// selected by the type param.
func (d *Dispatcher) register(ctx context.Context, req Request) (*Data, error) {
	switch strings.ToLower(req.Get("type")) {
	case "", "resident":
		u, _, err := d.svc.RegisterResident(ctx, userFromParams(req))
		if err != nil {
			return nil, err
		}
		dto := toUserDTO(u)
		return &Data{User: &dto}, nil
	case "pharmacy":
		ph, u, _, err := d.svc.RegisterPharmacy(ctx, pharmacyFromParams(req, "pharmacy_"), userFromParams(req))
		if err != nil {
			return nil, err
		}
		userDTO := toUserDTO(u)
		pharmacyDTO := toPharmacyDTO(ph)
		return &Data{User: &userDTO, Pharmacy: &pharmacyDTO}, nil
	default:
		return nil, domain.Validationf("type", "must be resident or pharmacy")
	}
}

func (d *Dispatcher) createUser(ctx context.Context, req Request) (*Data, error) {
	u := userFromParams(req)
	u.Role = domain.Role(strings.ToUpper(req.Get("role")))
	if u.Role == domain.RolePharmacist {
		id, err := req.Int64("pharmacy_id")
		if err != nil {
			return nil, err
		}
		u.PharmacyID = id
	}
	created, _, err := d.svc.CreateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	dto := toUserDTO(created)
	return &Data{User: &dto}, nil
}

func (d *Dispatcher) updateUser(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	u := userFromParams(req)
	u.ID = id
	updated, _, err := d.svc.UpdateUser(ctx, u)
	if err != nil {
		return nil, err
	}
	dto := toUserDTO(updated)
	return &Data{User: &dto}, nil
}

func (d *Dispatcher) deleteUser(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	if _, err := d.svc.DeleteUser(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) approveUser(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	u, _, err := d.svc.ApproveUser(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toUserDTO(u)
	return &Data{User: &dto}, nil
}

func (d *Dispatcher) rejectUser(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	if _, err := d.svc.RejectUser(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) createPharmacy(ctx context.Context, req Request) (*Data, error) {
	ph, _, err := d.svc.CreatePharmacy(ctx, pharmacyFromParams(req, ""))
	if err != nil {
		return nil, err
	}
	dto := toPharmacyDTO(ph)
	return &Data{Pharmacy: &dto}, nil
}

func (d *Dispatcher) updatePharmacy(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	ph := pharmacyFromParams(req, "")
	ph.ID = id
	updated, _, err := d.svc.UpdatePharmacy(ctx, ph)
	if err != nil {
		return nil, err
	}
	dto := toPharmacyDTO(updated)
	return &Data{Pharmacy: &dto}, nil
}

func (d *Dispatcher) deletePharmacy(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	if _, err := d.svc.DeletePharmacy(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) approvePharmacy(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	ph, _, err := d.svc.ApprovePharmacy(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toPharmacyDTO(ph)
	return &Data{Pharmacy: &dto}, nil
}

func (d *Dispatcher) rejectPharmacy(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	if _, err := d.svc.RejectPharmacy(ctx, id); err != nil {
		return nil, err
	}
	return nil, nil
}

func medicineFromParams(req Request) (domain.Medicine, error) {
	price, err := req.Float("price")
	if err != nil {
		return domain.Medicine{}, err
	}
	qty, err := req.Int("quantity")
	if err != nil {
		return domain.Medicine{}, err
	}
	return domain.Medicine{
		BrandName:         req.Get("brand_name"),
		GenericName:       req.Get("generic_name"),
		Description:       req.Get("description"),
		Dosage:            req.Get("dosage"),
		DosageForm:        req.Get("dosage_form"),
		Price:             price,
		QuantityAvailable: qty,
		Category:          req.Get("category"),
	}, nil
}

func (d *Dispatcher) createMedicine(ctx context.Context, req Request) (*Data, error) {
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	m, err := medicineFromParams(req)
	if err != nil {
		return nil, err
	}
	m.PharmacyID = pharmacyID
	created, _, err := d.svc.CreateMedicine(ctx, m)
	if err != nil {
		return nil, err
	}
	dto := toMedicineDTO(created)
	return &Data{Medicine: &dto}, nil
}

func (d *Dispatcher) updateMedicine(ctx context.Context, req Request) (*Data, error) {
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	medicineID, err := req.Int64("medicine_id")
	if err != nil {
		return nil, err
	}
	m, err := medicineFromParams(req)
	if err != nil {
		return nil, err
	}
	m.ID = medicineID
	updated, _, err := d.svc.UpdateMedicine(ctx, pharmacyID, m)
	if err != nil {
		return nil, err
	}
	dto := toMedicineDTO(updated)
	return &Data{Medicine: &dto}, nil
}

func (d *Dispatcher) deleteMedicine(ctx context.Context, req Request) (*Data, error) {
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	medicineID, err := req.Int64("medicine_id")
	if err != nil {
		return nil, err
	}
	if _, err := d.svc.DeleteMedicine(ctx, pharmacyID, medicineID); err != nil {
		return nil, err
	}
	return nil, nil
}

func (d *Dispatcher) searchMedicines(ctx context.Context, req Request) (*Data, error) {
	results, err := d.svc.SearchMedicines(ctx, req.Get("query"))
	if err != nil {
		return nil, err
	}
	return &Data{Medicines: toMedicineDTOs(results)}, nil
}

func (d *Dispatcher) reserveMedicine(ctx context.Context, req Request) (*Data, error) {
	userID, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	medicineID, err := req.Int64("medicine_id")
	if err != nil {
		return nil, err
	}
	qty, err := req.Int("quantity")
	if err != nil {
		return nil, err
	}
	method := domain.PaymentMethod(strings.ToUpper(req.Get("payment_method")))
	r, _, err := d.svc.Reserve(ctx, userID, medicineID, qty, method)
	if err != nil {
		return nil, err
	}
	dto := toReservationDTO(r)
	return &Data{Reservation: &dto}, nil
}

func (d *Dispatcher) reservationAction(ctx context.Context, req Request, fn func(context.Context, int64) (domain.Reservation, core.Result, error)) (*Data, error) {
	id, err := req.Int64("reservation_id")
	if err != nil {
		return nil, err
	}
	r, _, err := fn(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toReservationDTO(r)
	return &Data{Reservation: &dto}, nil
}

func (d *Dispatcher) approveReservation(ctx context.Context, req Request) (*Data, error) {
	return d.reservationAction(ctx, req, d.svc.ApproveReservation)
}

func (d *Dispatcher) rejectReservation(ctx context.Context, req Request) (*Data, error) {
	return d.reservationAction(ctx, req, d.svc.RejectReservation)
}

func (d *Dispatcher) completeReservation(ctx context.Context, req Request) (*Data, error) {
	return d.reservationAction(ctx, req, d.svc.CompleteReservation)
}

func (d *Dispatcher) markPendingPaid(ctx context.Context, req Request) (*Data, error) {
	return d.reservationAction(ctx, req, d.svc.MarkPendingPaid)
}

func (d *Dispatcher) cancelReservation(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("reservation_id")
	if err != nil {
		return nil, err
	}
	userID, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	r, _, err := d.svc.CancelReservation(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	dto := toReservationDTO(r)
	return &Data{Reservation: &dto}, nil
}

func (d *Dispatcher) createPrescription(ctx context.Context, req Request) (*Data, error) {
	userID, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	image, err := req.Bytes("image")
	if err != nil {
		return nil, err
	}
	created, _, err := d.svc.CreatePrescriptionRequest(ctx, userID, image, req.Get("content_type"))
	if err != nil {
		return nil, err
	}
	dto := toPrescriptionDTO(created)
	return &Data{Prescription: &dto}, nil
}

func (d *Dispatcher) confirmPrescription(ctx context.Context, req Request) (*Data, error) {
	return d.prescriptionStep(ctx, req, d.svc.ConfirmPrescriptionStock)
}

func (d *Dispatcher) declinePrescription(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("request_id")
	if err != nil {
		return nil, err
	}
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	updated, _, err := d.svc.DeclinePrescription(ctx, id, pharmacyID)
	if err != nil {
		return nil, err
	}
	dto := toPrescriptionDTO(updated)
	return &Data{Prescription: &dto}, nil
}

func (d *Dispatcher) choosePharmacy(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("request_id")
	if err != nil {
		return nil, err
	}
	userID, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	updated, _, err := d.svc.ChoosePharmacy(ctx, id, userID, pharmacyID)
	if err != nil {
		return nil, err
	}
	dto := toPrescriptionDTO(updated)
	return &Data{Prescription: &dto}, nil
}

func (d *Dispatcher) prescriptionStep(ctx context.Context, req Request, fn func(context.Context, int64, int64) (domain.PrescriptionRequest, core.Result, error)) (*Data, error) {
	id, err := req.Int64("request_id")
	if err != nil {
		return nil, err
	}
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	updated, _, err := fn(ctx, id, pharmacyID)
	if err != nil {
		return nil, err
	}
	dto := toPrescriptionDTO(updated)
	return &Data{Prescription: &dto}, nil
}

func (d *Dispatcher) markReadyForPickup(ctx context.Context, req Request) (*Data, error) {
	return d.prescriptionStep(ctx, req, d.svc.MarkPrescriptionReady)
}

func (d *Dispatcher) markPrescriptionPaid(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("request_id")
	if err != nil {
		return nil, err
	}
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	qty, err := req.Int("quantity")
	if err != nil {
		return nil, err
	}
	amount, err := req.Float("amount")
	if err != nil {
		return nil, err
	}
	updated, _, err := d.svc.MarkPrescriptionPaid(ctx, id, pharmacyID, req.Get("medicine_name"), qty, amount)
	if err != nil {
		return nil, err
	}
	dto := toPrescriptionDTO(updated)
	return &Data{Prescription: &dto}, nil
}

func (d *Dispatcher) cancelPrescription(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("request_id")
	if err != nil {
		return nil, err
	}
	userID, err := req.Int64("user_id")
	if err != nil {
		return nil, err
	}
	updated, _, err := d.svc.CancelPrescription(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	dto := toPrescriptionDTO(updated)
	return &Data{Prescription: &dto}, nil
}

func (d *Dispatcher) getPrescriptionImage(ctx context.Context, req Request) (*Data, error) {
	id, err := req.Int64("request_id")
	if err != nil {
		return nil, err
	}
	info, data, err := d.svc.PrescriptionImage(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Data{Image: &ImageDTO{
		ContentType: info.ContentType,
		Base64:      base64.StdEncoding.EncodeToString(data),
	}}, nil
}

func (d *Dispatcher) listUsers(ctx context.Context, req Request) (*Data, error) {
	pendingOnly, err := req.Bool("pending_only")
	if err != nil {
		return nil, err
	}
	var users []domain.User
	if pendingOnly {
		users, err = d.svc.PendingUsers(ctx)
	} else {
		users, err = d.svc.Users(ctx)
	}
	if err != nil {
		return nil, err
	}
	return &Data{Users: toUserDTOs(users)}, nil
}

func (d *Dispatcher) listPharmacies(ctx context.Context, req Request) (*Data, error) {
	approvedOnly, err := req.Bool("approved_only")
	if err != nil {
		return nil, err
	}
	pharmacies, err := d.svc.Pharmacies(ctx, approvedOnly)
	if err != nil {
		return nil, err
	}
	return &Data{Pharmacies: toPharmacyDTOs(pharmacies)}, nil
}

func (d *Dispatcher) listMedicines(ctx context.Context, req Request) (*Data, error) {
	pharmacyID, err := req.Int64("pharmacy_id")
	if err != nil {
		return nil, err
	}
	medicines, err := d.svc.MedicinesForPharmacy(ctx, pharmacyID)
	if err != nil {
		return nil, err
	}
	return &Data{Medicines: toMedicineDTOs(medicines)}, nil
}

func (d *Dispatcher) listReservations(ctx context.Context, req Request) (*Data, error) {
	var reservations []domain.Reservation
	var err error
	switch {
	case req.Get("user_id") != "":
		var userID int64
		if userID, err = req.Int64("user_id"); err == nil {
			reservations, err = d.svc.ReservationsForUser(ctx, userID)
		}
	case req.Get("pharmacy_id") != "":
		var pharmacyID int64
		if pharmacyID, err = req.Int64("pharmacy_id"); err == nil {
			reservations, err = d.svc.ReservationsForPharmacy(ctx, pharmacyID)
		}
	default:
		return nil, domain.Validationf("user_id", "user_id or pharmacy_id required")
	}
	if err != nil {
		return nil, err
	}
	return &Data{Reservations: toReservationDTOs(reservations)}, nil
}

func (d *Dispatcher) listPrescriptions(ctx context.Context, req Request) (*Data, error) {
	var requests []domain.PrescriptionRequest
	var err error
	switch {
	case req.Get("pending_for") != "":
		var pharmacyID int64
		if pharmacyID, err = req.Int64("pending_for"); err == nil {
			requests, err = d.svc.PendingPrescriptionRequests(ctx, pharmacyID)
		}
	case req.Get("user_id") != "":
		var userID int64
		if userID, err = req.Int64("user_id"); err == nil {
			requests, err = d.svc.PrescriptionRequestsForUser(ctx, userID)
		}
	case req.Get("pharmacy_id") != "":
		var pharmacyID int64
		if pharmacyID, err = req.Int64("pharmacy_id"); err == nil {
			requests, err = d.svc.PrescriptionRequestsForPharmacy(ctx, pharmacyID)
		}
	default:
		return nil, domain.Validationf("user_id", "user_id, pharmacy_id, or pending_for required")
	}
	if err != nil {
		return nil, err
	}
	return &Data{Prescriptions: toPrescriptionDTOs(requests)}, nil
}
