package core

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	blobcore "pharmacore/internal/blob/core"
	"pharmacore/pkg/domain"
)

// imageKey builds the blob key for an uploaded prescription photo.
func imageKey(submitted string, contentType string) string {
	ext := ".jpg"
	switch strings.ToLower(contentType) {
	case "image/png":
		ext = ".png"
	case "image/gif":
		ext = ".gif"
	case "image/webp":
		ext = ".webp"
	}
	return fmt.Sprintf("prescriptions/%s-%s%s", submitted, uuid.NewString()[:8], ext)
}

// CreatePrescriptionRequest stores the photographed prescription and
// broadcasts a new request to every pharmacy. The image goes to the blob
// store first; if the transaction then fails the orphaned blob is removed
// on a best-effort basis.
func (s *Service) CreatePrescriptionRequest(ctx context.Context, userID int64, image []byte, contentType string) (PrescriptionRequest, Result, error) {
	if len(image) == 0 {
		return PrescriptionRequest{}, Result{}, domain.Validationf("image", "must not be empty")
	}
	if s.images == nil {
		return PrescriptionRequest{}, Result{}, domain.Conflictf("prescription image storage is not configured")
	}
	now := s.clock.Now()
	key := imageKey(now.UTC().Format("20060102T150405"), contentType)
	if _, err := s.images.Put(ctx, key, bytes.NewReader(image), blobcore.PutOptions{ContentType: contentType}); err != nil {
		return PrescriptionRequest{}, Result{}, fmt.Errorf("store prescription image: %w", err)
	}
	var created PrescriptionRequest
	result, err := s.run(ctx, "create_prescription_request", func(tx Transaction) error {
		view := tx.Snapshot()
		user, err := findUser(view, userID)
		if err != nil {
			return err
		}
		if !user.Active {
			return domain.Conflictf("account %d is not active", userID)
		}
		ref, err := nextReference(view)
		if err != nil {
			return err
		}
		created, err = tx.CreatePrescriptionRequest(PrescriptionRequest{
			ReferenceNumber:  ref,
			UserID:           userID,
			ImagePath:        key,
			SubmittedAt:      now,
			Status:           domain.PrescriptionPending,
			ChosenPharmacyID: domain.NoPharmacy,
		})
		return err
	})
	if err != nil {
		if _, delErr := s.images.Delete(ctx, key); delErr != nil {
			s.logger.Error("orphaned prescription image not removed", "key", key, "error", delErr)
		}
		return PrescriptionRequest{}, result, err
	}
	return created, result, err
}

// PrescriptionImage streams the stored photo for a request.
func (s *Service) PrescriptionImage(ctx context.Context, id int64) (blobcore.Info, []byte, error) {
	if s.images == nil {
		return blobcore.Info{}, nil, domain.Conflictf("prescription image storage is not configured")
	}
	req, err := s.GetPrescriptionRequest(ctx, id)
	if err != nil {
		return blobcore.Info{}, nil, err
	}
	info, rc, err := s.images.Get(ctx, req.ImagePath)
	if err != nil {
		return blobcore.Info{}, nil, err
	}
	defer func() { _ = rc.Close() }()
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return blobcore.Info{}, nil, err
	}
	return info, buf.Bytes(), nil
}

// DeclinePrescription records one pharmacy's refusal. Declining is
// idempotent per pharmacy and only possible while the user has not yet
// chosen a fulfiller.
func (s *Service) DeclinePrescription(ctx context.Context, id, pharmacyID int64) (PrescriptionRequest, Result, error) {
	var updated PrescriptionRequest
	result, err := s.run(ctx, "decline_prescription", func(tx Transaction) error {
		if _, err := findPharmacy(tx.Snapshot(), pharmacyID); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdatePrescriptionRequest(id, func(req *PrescriptionRequest) error {
			if req.Status != domain.PrescriptionPending {
				return domain.Conflictf("prescription request %d is %s, not PENDING", id, req.Status)
			}
			if req.DeclinedBy(pharmacyID) {
				return nil
			}
			req.DeclinedPharmacyIDs = append(req.DeclinedPharmacyIDs, pharmacyID)
			for i, conf := range req.ConfirmedPharmacyIDs {
				if conf == pharmacyID {
					req.ConfirmedPharmacyIDs = append(req.ConfirmedPharmacyIDs[:i], req.ConfirmedPharmacyIDs[i+1:]...)
					break
				}
			}
			return nil
		})
		return err
	})
	return updated, result, err
}

// ConfirmPrescriptionStock records one pharmacy's attestation that it can
// fill the prescription. The request stays PENDING so other pharmacies may
// still confirm; the medicine quote is stamped later by whichever pharmacy
// the user chooses, at fulfillment.
func (s *Service) ConfirmPrescriptionStock(ctx context.Context, id, pharmacyID int64) (PrescriptionRequest, Result, error) {
	var updated PrescriptionRequest
	result, err := s.run(ctx, "confirm_prescription_stock", func(tx Transaction) error {
		ph, err := findPharmacy(tx.Snapshot(), pharmacyID)
		if err != nil {
			return err
		}
		if ph.Status != domain.PharmacyApproved {
			return domain.Conflictf("pharmacy %d is not approved", pharmacyID)
		}
		updated, err = tx.UpdatePrescriptionRequest(id, func(req *PrescriptionRequest) error {
			if req.Status != domain.PrescriptionPending {
				return domain.Conflictf("prescription request %d is %s, not PENDING", id, req.Status)
			}
			if req.DeclinedBy(pharmacyID) {
				return domain.Conflictf("pharmacy %d already declined request %d", pharmacyID, id)
			}
			if !req.ConfirmedBy(pharmacyID) {
				req.ConfirmedPharmacyIDs = append(req.ConfirmedPharmacyIDs, pharmacyID)
			}
			return nil
		})
		return err
	})
	return updated, result, err
}

// ChoosePharmacy lets the submitting user pick exactly one of the
// confirmed pharmacies to fill the prescription. The request moves to
// ACCEPTED and no other pharmacy can act on it afterwards.
func (s *Service) ChoosePharmacy(ctx context.Context, id, userID, pharmacyID int64) (PrescriptionRequest, Result, error) {
	var updated PrescriptionRequest
	result, err := s.run(ctx, "choose_pharmacy", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePrescriptionRequest(id, func(req *PrescriptionRequest) error {
			if req.UserID != userID {
				return domain.Conflictf("prescription request %d is not owned by user %d", id, userID)
			}
			if req.Status != domain.PrescriptionPending {
				return domain.Conflictf("prescription request %d is %s, not PENDING", id, req.Status)
			}
			if !req.ConfirmedBy(pharmacyID) {
				return domain.Conflictf("pharmacy %d has not confirmed stock for request %d", pharmacyID, id)
			}
			req.Status = domain.PrescriptionAccepted
			req.ChosenPharmacyID = pharmacyID
			return nil
		})
		return err
	})
	return updated, result, err
}

// fulfillerGate admits only the chosen pharmacy, and only from the
// expected step of the pickup sequence.
func fulfillerGate(req *PrescriptionRequest, pharmacyID int64, from domain.PrescriptionStatus) error {
	if req.ChosenPharmacyID != pharmacyID {
		return domain.Conflictf("pharmacy %d is not the chosen fulfiller of request %d", pharmacyID, req.ID)
	}
	if req.Status != from {
		return domain.Conflictf("prescription request %d is %s, not %s", req.ID, req.Status, from)
	}
	return nil
}

// MarkPrescriptionReady signals that the chosen pharmacy has prepared the
// order for pickup.
func (s *Service) MarkPrescriptionReady(ctx context.Context, id, pharmacyID int64) (PrescriptionRequest, Result, error) {
	var updated PrescriptionRequest
	result, err := s.run(ctx, "mark_prescription_ready", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePrescriptionRequest(id, func(req *PrescriptionRequest) error {
			if err := fulfillerGate(req, pharmacyID, domain.PrescriptionAccepted); err != nil {
				return err
			}
			req.Status = domain.PrescriptionReadyForPickup
			return nil
		})
		return err
	})
	return updated, result, err
}

// MarkPrescriptionPaid completes the prescription pickup. The chosen
// pharmacy stamps what was dispensed and for how much, together with the
// payment moment.
func (s *Service) MarkPrescriptionPaid(ctx context.Context, id, pharmacyID int64, medicineName string, quantity int, amount float64) (PrescriptionRequest, Result, error) {
	if strings.TrimSpace(medicineName) == "" {
		return PrescriptionRequest{}, Result{}, domain.Validationf("medicine_name", "must not be empty")
	}
	if quantity <= 0 {
		return PrescriptionRequest{}, Result{}, domain.Validationf("medicine_quantity", "must be positive")
	}
	if amount < 0 {
		return PrescriptionRequest{}, Result{}, domain.Validationf("medicine_amount", "must not be negative")
	}
	now := s.clock.Now()
	var updated PrescriptionRequest
	result, err := s.run(ctx, "mark_prescription_paid", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePrescriptionRequest(id, func(req *PrescriptionRequest) error {
			if err := fulfillerGate(req, pharmacyID, domain.PrescriptionReadyForPickup); err != nil {
				return err
			}
			req.Status = domain.PrescriptionCompleted
			req.MedicineName = medicineName
			req.MedicineQuantity = quantity
			req.MedicineAmount = amount
			req.PaidAt = &now
			return nil
		})
		return err
	})
	return updated, result, err
}

// CancelPrescription withdraws a request. The owner may cancel only while
// it is still PENDING with no pharmacy chosen; once a fulfiller is
// committed the request runs to completion.
func (s *Service) CancelPrescription(ctx context.Context, id, userID int64) (PrescriptionRequest, Result, error) {
	var updated PrescriptionRequest
	result, err := s.run(ctx, "cancel_prescription", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePrescriptionRequest(id, func(req *PrescriptionRequest) error {
			if req.UserID != userID {
				return domain.Conflictf("prescription request %d is not owned by user %d", id, userID)
			}
			if req.Status != domain.PrescriptionPending || req.ChosenPharmacyID != domain.NoPharmacy {
				return domain.Conflictf("prescription request %d is %s and can no longer be cancelled", id, req.Status)
			}
			req.Status = domain.PrescriptionCancelled
			return nil
		})
		return err
	})
	return updated, result, err
}

// PendingPrescriptionRequests lists the open broadcast queue as seen by
// one pharmacy: pending requests it has not declined yet.
func (s *Service) PendingPrescriptionRequests(ctx context.Context, pharmacyID int64) ([]PrescriptionRequest, error) {
	var out []PrescriptionRequest
	err := s.read(ctx, "pending_prescription_requests", func(v TransactionView) error {
		if _, err := findPharmacy(v, pharmacyID); err != nil {
			return err
		}
		for _, req := range v.ListPrescriptionRequests() {
			if req.Status == domain.PrescriptionPending && !req.DeclinedBy(pharmacyID) {
				out = append(out, req)
			}
		}
		return nil
	})
	return out, err
}

// PrescriptionRequestsForUser lists a user's requests.
func (s *Service) PrescriptionRequestsForUser(ctx context.Context, userID int64) ([]PrescriptionRequest, error) {
	var out []PrescriptionRequest
	err := s.read(ctx, "prescription_requests_for_user", func(v TransactionView) error {
		for _, req := range v.ListPrescriptionRequests() {
			if req.UserID == userID {
				out = append(out, req)
			}
		}
		return nil
	})
	return out, err
}

// PrescriptionRequestsForPharmacy lists the requests a pharmacy was chosen
// to fulfill.
func (s *Service) PrescriptionRequestsForPharmacy(ctx context.Context, pharmacyID int64) ([]PrescriptionRequest, error) {
	var out []PrescriptionRequest
	err := s.read(ctx, "prescription_requests_for_pharmacy", func(v TransactionView) error {
		for _, req := range v.ListPrescriptionRequests() {
			if req.ChosenPharmacyID == pharmacyID {
				out = append(out, req)
			}
		}
		return nil
	})
	return out, err
}

// GetPrescriptionRequest fetches one request by id.
func (s *Service) GetPrescriptionRequest(ctx context.Context, id int64) (PrescriptionRequest, error) {
	var req PrescriptionRequest
	err := s.read(ctx, "get_prescription_request", func(v TransactionView) error {
		var err error
		req, err = findPrescription(v, id)
		return err
	})
	return req, err
}
