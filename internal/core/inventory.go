package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"pharmacore/pkg/domain"
)

func validateMedicineInput(m Medicine) error {
	if strings.TrimSpace(m.BrandName) == "" {
		return domain.Validationf("brand_name", "must not be empty")
	}
	if strings.TrimSpace(m.GenericName) == "" {
		return domain.Validationf("generic_name", "must not be empty")
	}
	if strings.TrimSpace(m.Dosage) == "" {
		return domain.Validationf("dosage", "must not be empty")
	}
	if m.Price < 0 {
		return domain.Validationf("price", "must not be negative")
	}
	if m.QuantityAvailable < 0 {
		return domain.Validationf("quantity_available", "must not be negative")
	}
	return nil
}

func checkTripletFree(v TransactionView, m Medicine) error {
	key := m.TripletKey()
	for _, existing := range v.ListMedicines() {
		if existing.ID != m.ID && existing.PharmacyID == m.PharmacyID && existing.TripletKey() == key {
			return domain.Conflictf("medicine %s %s %s already listed", m.BrandName, m.GenericName, m.Dosage)
		}
	}
	return nil
}

// CreateMedicine lists a new item under a pharmacy. The brand, generic
// name, and dosage triplet must be unique within the pharmacy, compared
// case-insensitively.
func (s *Service) CreateMedicine(ctx context.Context, m Medicine) (Medicine, Result, error) {
	if err := validateMedicineInput(m); err != nil {
		return Medicine{}, Result{}, err
	}
	m.QuantityReserved = 0
	var created Medicine
	result, err := s.run(ctx, "create_medicine", func(tx Transaction) error {
		view := tx.Snapshot()
		if _, err := findPharmacy(view, m.PharmacyID); err != nil {
			return err
		}
		if err := checkTripletFree(view, m); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateMedicine(m)
		return err
	})
	return created, result, err
}

// UpdateMedicine overwrites the descriptive fields, price, and available
// quantity of a medicine owned by the given pharmacy. The available
// quantity may not drop below the currently reserved amount.
func (s *Service) UpdateMedicine(ctx context.Context, pharmacyID int64, m Medicine) (Medicine, Result, error) {
	if err := validateMedicineInput(m); err != nil {
		return Medicine{}, Result{}, err
	}
	var updated Medicine
	result, err := s.run(ctx, "update_medicine", func(tx Transaction) error {
		view := tx.Snapshot()
		cur, err := findMedicine(view, m.ID)
		if err != nil {
			return err
		}
		if cur.PharmacyID != pharmacyID {
			return domain.Conflictf("medicine %d is not owned by pharmacy %d", m.ID, pharmacyID)
		}
		if m.QuantityAvailable < cur.QuantityReserved {
			return domain.Conflictf("quantity %d below reserved holds %d", m.QuantityAvailable, cur.QuantityReserved)
		}
		probe := m
		probe.PharmacyID = cur.PharmacyID
		if err := checkTripletFree(view, probe); err != nil {
			return err
		}
		updated, err = tx.UpdateMedicine(m.ID, func(med *Medicine) error {
			med.BrandName = m.BrandName
			med.GenericName = m.GenericName
			med.Description = m.Description
			med.Dosage = m.Dosage
			med.DosageForm = m.DosageForm
			med.Price = m.Price
			med.QuantityAvailable = m.QuantityAvailable
			med.Category = m.Category
			return nil
		})
		return err
	})
	return updated, result, err
}

// DeleteMedicine removes an item from a pharmacy's stock. Active
// reservations against it are cancelled first, with refunds where payment
// was already taken.
func (s *Service) DeleteMedicine(ctx context.Context, pharmacyID, medicineID int64) (Result, error) {
	return s.run(ctx, "delete_medicine", func(tx Transaction) error {
		m, err := findMedicine(tx.Snapshot(), medicineID)
		if err != nil {
			return err
		}
		if m.PharmacyID != pharmacyID {
			return domain.Conflictf("medicine %d is not owned by pharmacy %d", medicineID, pharmacyID)
		}
		return removeMedicine(tx, medicineID)
	})
}

// removeMedicine cancels every active reservation on the medicine and then
// deletes it. The stock release is irrelevant once the record is gone, but
// the reservations keep a consistent audit trail.
func removeMedicine(tx Transaction, medicineID int64) error {
	for _, r := range tx.Snapshot().ListReservations() {
		if r.MedicineID != medicineID || !r.Status.Active() {
			continue
		}
		if _, err := tx.UpdateReservation(r.ID, func(res *Reservation) error {
			res.Status = domain.ReservationCancelled
			if res.PaymentStatus == domain.PaymentPaid {
				res.PaymentStatus = domain.PaymentRefunded
			}
			res.Notes = "Cancelled: medicine removed from stock"
			return nil
		}); err != nil {
			return err
		}
	}
	return tx.DeleteMedicine(medicineID)
}

// SearchMedicines returns stock whose brand or generic name contains the
// query, case-insensitively, restricted to approved pharmacies. An empty
// query returns everything reservable.
func (s *Service) SearchMedicines(ctx context.Context, query string) ([]Medicine, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []Medicine
	err := s.read(ctx, "search_medicines", func(v TransactionView) error {
		approved := make(map[int64]bool)
		for _, ph := range v.ListPharmacies() {
			if ph.Status == domain.PharmacyApproved {
				approved[ph.ID] = true
			}
		}
		for _, m := range v.ListMedicines() {
			if !approved[m.PharmacyID] {
				continue
			}
			if needle != "" &&
				!strings.Contains(strings.ToLower(m.BrandName), needle) &&
				!strings.Contains(strings.ToLower(m.GenericName), needle) {
				continue
			}
			out = append(out, m)
		}
		return nil
	})
	return out, err
}

// MedicinesForPharmacy lists a pharmacy's stock.
func (s *Service) MedicinesForPharmacy(ctx context.Context, pharmacyID int64) ([]Medicine, error) {
	var out []Medicine
	err := s.read(ctx, "list_medicines", func(v TransactionView) error {
		if _, err := findPharmacy(v, pharmacyID); err != nil {
			return err
		}
		for _, m := range v.ListMedicines() {
			if m.PharmacyID == pharmacyID {
				out = append(out, m)
			}
		}
		return nil
	})
	return out, err
}

// Reserve places a hold on stock. The hold lasts ReservationTTL; online
// payment methods settle immediately while PAY_AT_STORE settles at pickup.
func (s *Service) Reserve(ctx context.Context, userID, medicineID int64, quantity int, method domain.PaymentMethod) (Reservation, Result, error) {
	if quantity <= 0 {
		return Reservation{}, Result{}, domain.Validationf("quantity", "must be positive")
	}
	if !method.Valid() {
		return Reservation{}, Result{}, domain.Validationf("payment_method", "unknown method %q", method)
	}
	now := s.clock.Now()
	var created Reservation
	result, err := s.run(ctx, "reserve", func(tx Transaction) error {
		view := tx.Snapshot()
		user, err := findUser(view, userID)
		if err != nil {
			return err
		}
		if !user.Active {
			return domain.Conflictf("account %d is not active", userID)
		}
		m, err := findMedicine(view, medicineID)
		if err != nil {
			return err
		}
		ph, err := findPharmacy(view, m.PharmacyID)
		if err != nil {
			return err
		}
		if ph.Status != domain.PharmacyApproved {
			return domain.Conflictf("pharmacy %d is not approved", ph.ID)
		}
		if m.EffectiveQuantity() < quantity {
			return domain.Conflictf("insufficient stock: %d requested, %d available", quantity, m.EffectiveQuantity())
		}
		if _, err := tx.UpdateMedicine(medicineID, func(med *Medicine) error {
			med.QuantityReserved += quantity
			return nil
		}); err != nil {
			return err
		}
		ref, err := nextReference(view)
		if err != nil {
			return err
		}
		res := Reservation{
			ReferenceNumber: ref,
			UserID:          userID,
			MedicineID:      medicineID,
			PharmacyID:      m.PharmacyID,
			Quantity:        quantity,
			TotalPrice:      m.Price * float64(quantity),
			ReservationTime: now,
			ExpirationTime:  now.Add(ReservationTTL),
			Status:          domain.ReservationPending,
			PaymentMethod:   method,
			PaymentStatus:   domain.PaymentUnpaid,
			Notes:           fmt.Sprintf("Reserved %d x %s (%s)", quantity, m.BrandName, method),
		}
		if method.Online() {
			// Online payment settles the hold on the spot, so there is
			// nothing left for the pharmacy to approve.
			res.Status = domain.ReservationConfirmed
			res.PaymentStatus = domain.PaymentPaid
		}
		created, err = tx.CreateReservation(res)
		return err
	})
	return created, result, err
}

// ApproveReservation confirms a pending hold. The stock stays held until
// pickup or expiry.
func (s *Service) ApproveReservation(ctx context.Context, id int64) (Reservation, Result, error) {
	var updated Reservation
	result, err := s.run(ctx, "approve_reservation", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateReservation(id, func(res *Reservation) error {
			if res.Status != domain.ReservationPending {
				return domain.Conflictf("reservation %d is %s, not PENDING", id, res.Status)
			}
			res.Status = domain.ReservationConfirmed
			res.Notes = "Approved by pharmacy"
			return nil
		})
		return err
	})
	return updated, result, err
}

// RejectReservation cancels a hold from the pharmacy side, releasing stock
// and refunding online payments.
func (s *Service) RejectReservation(ctx context.Context, id int64) (Reservation, Result, error) {
	return s.releaseReservation(ctx, "reject_reservation", id, domain.ReservationCancelled, "Rejected by pharmacy", 0)
}

// CancelReservation cancels a hold from the user side. The requesting user
// must own the reservation.
func (s *Service) CancelReservation(ctx context.Context, id, requestingUserID int64) (Reservation, Result, error) {
	return s.releaseReservation(ctx, "cancel_reservation", id, domain.ReservationCancelled, "Cancelled by user", requestingUserID)
}

// releaseReservation moves an active reservation to a terminal released
// state, returning its hold and refunding any captured payment.
func (s *Service) releaseReservation(ctx context.Context, op string, id int64, terminal domain.ReservationStatus, note string, requireOwner int64) (Reservation, Result, error) {
	var updated Reservation
	result, err := s.run(ctx, op, func(tx Transaction) error {
		cur, err := findReservation(tx.Snapshot(), id)
		if err != nil {
			return err
		}
		if requireOwner != 0 && cur.UserID != requireOwner {
			return domain.Conflictf("reservation %d is not owned by user %d", id, requireOwner)
		}
		if !cur.Status.Active() {
			return domain.Conflictf("reservation %d is %s, not active", id, cur.Status)
		}
		if _, ok := tx.FindMedicine(cur.MedicineID); ok {
			if _, err := tx.UpdateMedicine(cur.MedicineID, func(med *Medicine) error {
				med.QuantityReserved -= cur.Quantity
				return nil
			}); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateReservation(id, func(res *Reservation) error {
			res.Status = terminal
			if res.PaymentStatus == domain.PaymentPaid {
				res.PaymentStatus = domain.PaymentRefunded
			}
			res.Notes = note
			return nil
		})
		return err
	})
	return updated, result, err
}

// CompleteReservation finishes a confirmed pickup. Stock is physically
// consumed here: both available and reserved drop by the held quantity.
// PAY_AT_STORE settles at this point.
func (s *Service) CompleteReservation(ctx context.Context, id int64) (Reservation, Result, error) {
	return s.fulfillReservation(ctx, "complete_reservation", id, domain.ReservationConfirmed, false)
}

// MarkPendingPaid settles a pending PAY_AT_STORE reservation directly at
// the counter, skipping the approval step. The pickup completes in the
// same transaction.
func (s *Service) MarkPendingPaid(ctx context.Context, id int64) (Reservation, Result, error) {
	return s.fulfillReservation(ctx, "mark_pending_paid", id, domain.ReservationPending, true)
}

func (s *Service) fulfillReservation(ctx context.Context, op string, id int64, from domain.ReservationStatus, requireUnpaid bool) (Reservation, Result, error) {
	var updated Reservation
	result, err := s.run(ctx, op, func(tx Transaction) error {
		cur, err := findReservation(tx.Snapshot(), id)
		if err != nil {
			return err
		}
		if cur.Status != from {
			return domain.Conflictf("reservation %d is %s, not %s", id, cur.Status, from)
		}
		if requireUnpaid && cur.PaymentStatus != domain.PaymentUnpaid {
			return domain.Conflictf("reservation %d is already %s", id, cur.PaymentStatus)
		}
		if _, err := tx.UpdateMedicine(cur.MedicineID, func(med *Medicine) error {
			med.QuantityAvailable -= cur.Quantity
			med.QuantityReserved -= cur.Quantity
			return nil
		}); err != nil {
			return err
		}
		updated, err = tx.UpdateReservation(id, func(res *Reservation) error {
			res.Status = domain.ReservationCompleted
			res.PaymentStatus = domain.PaymentPaid
			res.Notes = "Picked up and paid"
			return nil
		})
		return err
	})
	return updated, result, err
}

// SweepExpired releases every active reservation whose hold window has
// passed. It is idempotent: reservations already released are skipped, so
// overlapping sweeps converge on the same state.
func (s *Service) SweepExpired(ctx context.Context, now time.Time) (int, Result, error) {
	expired := 0
	result, err := s.run(ctx, "sweep_expired", func(tx Transaction) error {
		expired = 0
		for _, r := range tx.Snapshot().ListReservations() {
			if !r.Status.Active() || !now.After(r.ExpirationTime) {
				continue
			}
			if _, ok := tx.FindMedicine(r.MedicineID); ok {
				if _, err := tx.UpdateMedicine(r.MedicineID, func(med *Medicine) error {
					med.QuantityReserved -= r.Quantity
					return nil
				}); err != nil {
					return err
				}
			}
			if _, err := tx.UpdateReservation(r.ID, func(res *Reservation) error {
				res.Status = domain.ReservationExpired
				if res.PaymentStatus == domain.PaymentPaid {
					res.PaymentStatus = domain.PaymentRefunded
				}
				res.Notes = "Expired: hold window elapsed"
				return nil
			}); err != nil {
				return err
			}
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, result, err
	}
	if expired > 0 {
		s.logger.Info("expired reservations swept", "count", expired)
	}
	return expired, result, err
}

// ReservationsForUser lists a user's reservations, newest first.
func (s *Service) ReservationsForUser(ctx context.Context, userID int64) ([]Reservation, error) {
	return s.listReservations(ctx, "reservations_for_user", func(r Reservation) bool { return r.UserID == userID })
}

// ReservationsForPharmacy lists reservations against a pharmacy's stock.
func (s *Service) ReservationsForPharmacy(ctx context.Context, pharmacyID int64) ([]Reservation, error) {
	return s.listReservations(ctx, "reservations_for_pharmacy", func(r Reservation) bool { return r.PharmacyID == pharmacyID })
}

func (s *Service) listReservations(ctx context.Context, op string, keep func(Reservation) bool) ([]Reservation, error) {
	var out []Reservation
	err := s.read(ctx, op, func(v TransactionView) error {
		for _, r := range v.ListReservations() {
			if keep(r) {
				out = append(out, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// GetReservation fetches one reservation by id.
func (s *Service) GetReservation(ctx context.Context, id int64) (Reservation, error) {
	var r Reservation
	err := s.read(ctx, "get_reservation", func(v TransactionView) error {
		var err error
		r, err = findReservation(v, id)
		return err
	})
	return r, err
}

// GetMedicine fetches one medicine by id.
func (s *Service) GetMedicine(ctx context.Context, id int64) (Medicine, error) {
	var m Medicine
	err := s.read(ctx, "get_medicine", func(v TransactionView) error {
		var err error
		m, err = findMedicine(v, id)
		return err
	})
	return m, err
}
