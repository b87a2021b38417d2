package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pharmacore/pkg/domain"
)

func submitPrescription(t *testing.T, svc *Service, userID int64) PrescriptionRequest {
	t.Helper()
	req, _, err := svc.CreatePrescriptionRequest(context.Background(), userID, []byte("fake-jpeg"), "image/jpeg")
	if err != nil {
		t.Fatalf("create prescription request: %v", err)
	}
	return req
}

func TestPrescriptionWorkflowChooseOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	phA := mustCreateApprovedPharmacy(t, svc, "Pharmacy A")
	phB := mustCreateApprovedPharmacy(t, svc, "Pharmacy B")

	req := submitPrescription(t, svc, user.ID)
	if req.Status != domain.PrescriptionPending || req.ChosenPharmacyID != domain.NoPharmacy {
		t.Fatalf("fresh request: %+v", req)
	}
	if len(req.ReferenceNumber) != 10 {
		t.Fatalf("reference %q has wrong length", req.ReferenceNumber)
	}

	if _, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, phA.ID); err != nil {
		t.Fatalf("confirm A: %v", err)
	}
	confirmed, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, phB.ID)
	if err != nil {
		t.Fatalf("confirm B: %v", err)
	}
	if !confirmed.ConfirmedBy(phA.ID) || !confirmed.ConfirmedBy(phB.ID) {
		t.Fatalf("confirmers: %+v", confirmed)
	}
	// Confirming only attests stock; the quote stays empty until the
	// chosen pharmacy fulfills.
	if confirmed.MedicineName != "" || confirmed.MedicineQuantity != 0 || confirmed.MedicineAmount != 0 {
		t.Fatalf("quote stamped before fulfillment: %+v", confirmed)
	}

	chosen, _, err := svc.ChoosePharmacy(ctx, req.ID, user.ID, phA.ID)
	if err != nil {
		t.Fatalf("choose: %v", err)
	}
	if chosen.Status != domain.PrescriptionAccepted || chosen.ChosenPharmacyID != phA.ID {
		t.Fatalf("chosen request: %+v", chosen)
	}

	// Once accepted, the other pharmacy can no longer act on it.
	if _, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, phB.ID); !domain.IsConflict(err) {
		t.Fatalf("late confirm error = %v", err)
	}
	if _, _, err := svc.MarkPrescriptionReady(ctx, req.ID, phB.ID); !domain.IsConflict(err) {
		t.Fatalf("non-chosen ready error = %v", err)
	}

	ready, _, err := svc.MarkPrescriptionReady(ctx, req.ID, phA.ID)
	if err != nil {
		t.Fatalf("ready: %v", err)
	}
	if ready.Status != domain.PrescriptionReadyForPickup {
		t.Fatalf("ready request: %+v", ready)
	}

	if _, _, err := svc.MarkPrescriptionPaid(ctx, req.ID, phA.ID, "", 21, 315.0); !domain.IsValidation(err) {
		t.Fatalf("empty medicine name error = %v", err)
	}
	if _, _, err := svc.MarkPrescriptionPaid(ctx, req.ID, phB.ID, "Amoxil 500mg", 21, 299.0); !domain.IsConflict(err) {
		t.Fatalf("non-chosen paid error = %v", err)
	}
	paid, _, err := svc.MarkPrescriptionPaid(ctx, req.ID, phA.ID, "Amoxil 500mg", 21, 315.0)
	if err != nil {
		t.Fatalf("paid: %v", err)
	}
	if paid.Status != domain.PrescriptionCompleted || paid.PaidAt == nil {
		t.Fatalf("completed request: %+v", paid)
	}
	// The completed request carries the chosen pharmacy's quote.
	if paid.MedicineName != "Amoxil 500mg" || paid.MedicineQuantity != 21 || paid.MedicineAmount != 315.0 {
		t.Fatalf("fulfillment quote: %+v", paid)
	}
}

func TestConcurrentChoosesAcceptExactlyOne(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	req := submitPrescription(t, svc, user.ID)

	const pharmacies = 8
	ids := make([]int64, 0, pharmacies)
	for i := 0; i < pharmacies; i++ {
		ph := mustCreateApprovedPharmacy(t, svc, fmt.Sprintf("Pharmacy %d", i+1))
		if _, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, ph.ID); err != nil {
			t.Fatalf("confirm %d: %v", ph.ID, err)
		}
		ids = append(ids, ph.ID)
	}

	var wg sync.WaitGroup
	results := make(chan error, pharmacies)
	for _, phID := range ids {
		wg.Add(1)
		go func(phID int64) {
			defer wg.Done()
			_, _, err := svc.ChoosePharmacy(ctx, req.ID, user.ID, phID)
			results <- err
		}(phID)
	}
	wg.Wait()
	close(results)

	accepted := 0
	for err := range results {
		if err == nil {
			accepted++
		} else if !domain.IsConflict(err) {
			t.Fatalf("unexpected choose error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("%d chooses accepted, want exactly 1", accepted)
	}
	got, err := svc.GetPrescriptionRequest(ctx, req.ID)
	if err != nil {
		t.Fatalf("get request: %v", err)
	}
	if got.Status != domain.PrescriptionAccepted || got.ChosenPharmacyID == domain.NoPharmacy {
		t.Fatalf("request after concurrent chooses: %+v", got)
	}
}

func TestPrescriptionImageStoredAndReadable(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	req := submitPrescription(t, svc, user.ID)

	if !strings.HasPrefix(req.ImagePath, "prescriptions/") || !strings.HasSuffix(req.ImagePath, ".jpg") {
		t.Fatalf("image key: %q", req.ImagePath)
	}
	info, data, err := svc.PrescriptionImage(ctx, req.ID)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if string(data) != "fake-jpeg" || info.ContentType != "image/jpeg" {
		t.Fatalf("image round trip: %q %+v", data, info)
	}
}

func TestCreatePrescriptionRequestValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")

	if _, _, err := svc.CreatePrescriptionRequest(ctx, user.ID, nil, "image/jpeg"); !domain.IsValidation(err) {
		t.Fatalf("empty image error = %v", err)
	}
	if _, _, err := svc.CreatePrescriptionRequest(ctx, 999, []byte("x"), "image/jpeg"); !domain.IsNotFound(err) {
		t.Fatalf("unknown user error = %v", err)
	}
	// A failed transaction must not leave the uploaded image behind.
	infos, err := svc.Images().List(ctx, "prescriptions/")
	if err != nil {
		t.Fatalf("list images: %v", err)
	}
	if len(infos) != 0 {
		t.Fatalf("orphaned images: %+v", infos)
	}
}

func TestDeclineRemovesRequestFromQueue(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	phA := mustCreateApprovedPharmacy(t, svc, "Pharmacy A")
	phB := mustCreateApprovedPharmacy(t, svc, "Pharmacy B")
	req := submitPrescription(t, svc, user.ID)

	if _, _, err := svc.DeclinePrescription(ctx, req.ID, phA.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}
	// Declining twice is a no-op, not an error.
	if _, _, err := svc.DeclinePrescription(ctx, req.ID, phA.ID); err != nil {
		t.Fatalf("second decline: %v", err)
	}

	queueA, err := svc.PendingPrescriptionRequests(ctx, phA.ID)
	if err != nil || len(queueA) != 0 {
		t.Fatalf("queue for decliner = %+v, %v", queueA, err)
	}
	queueB, err := svc.PendingPrescriptionRequests(ctx, phB.ID)
	if err != nil || len(queueB) != 1 {
		t.Fatalf("queue for other pharmacy = %+v, %v", queueB, err)
	}

	// A pharmacy that declined cannot then confirm.
	if _, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, phA.ID); !domain.IsConflict(err) {
		t.Fatalf("confirm after decline error = %v", err)
	}
}

func TestChoosePharmacyRequiresConfirmation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	other := mustRegisterResident(t, svc, "bob")
	ph := mustCreateApprovedPharmacy(t, svc, "Pharmacy A")
	req := submitPrescription(t, svc, user.ID)

	if _, _, err := svc.ChoosePharmacy(ctx, req.ID, user.ID, ph.ID); !domain.IsConflict(err) {
		t.Fatalf("choose unconfirmed error = %v", err)
	}
	if _, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, ph.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, _, err := svc.ChoosePharmacy(ctx, req.ID, other.ID, ph.ID); !domain.IsConflict(err) {
		t.Fatalf("foreign choose error = %v", err)
	}
	if _, _, err := svc.ChoosePharmacy(ctx, req.ID, user.ID, ph.ID); err != nil {
		t.Fatalf("choose: %v", err)
	}
	// Choosing is final.
	if _, _, err := svc.ChoosePharmacy(ctx, req.ID, user.ID, ph.ID); !domain.IsConflict(err) {
		t.Fatalf("second choose error = %v", err)
	}
}

func TestCancelPrescription(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	other := mustRegisterResident(t, svc, "bob")
	req := submitPrescription(t, svc, user.ID)

	if _, _, err := svc.CancelPrescription(ctx, req.ID, other.ID); !domain.IsConflict(err) {
		t.Fatalf("foreign cancel error = %v", err)
	}
	cancelled, _, err := svc.CancelPrescription(ctx, req.ID, user.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.PrescriptionCancelled {
		t.Fatalf("cancelled request: %+v", cancelled)
	}
	if _, _, err := svc.CancelPrescription(ctx, req.ID, user.ID); !domain.IsConflict(err) {
		t.Fatalf("double cancel error = %v", err)
	}
}

func TestCancelPrescriptionOnlyWhileUnchosen(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	ph := mustCreateApprovedPharmacy(t, svc, "Pharmacy A")
	req := submitPrescription(t, svc, user.ID)

	if _, _, err := svc.ConfirmPrescriptionStock(ctx, req.ID, ph.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, _, err := svc.ChoosePharmacy(ctx, req.ID, user.ID, ph.ID); err != nil {
		t.Fatalf("choose: %v", err)
	}
	// Once a fulfiller is committed the owner can no longer back out.
	if _, _, err := svc.CancelPrescription(ctx, req.ID, user.ID); !domain.IsConflict(err) {
		t.Fatalf("cancel after choose error = %v", err)
	}
	if _, _, err := svc.MarkPrescriptionReady(ctx, req.ID, ph.ID); err != nil {
		t.Fatalf("ready: %v", err)
	}
	if _, _, err := svc.CancelPrescription(ctx, req.ID, user.ID); !domain.IsConflict(err) {
		t.Fatalf("cancel while ready error = %v", err)
	}
}

func TestPrescriptionListings(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	alice := mustRegisterResident(t, svc, "alice")
	bob := mustRegisterResident(t, svc, "bob")
	ph := mustCreateApprovedPharmacy(t, svc, "Pharmacy A")

	mine := submitPrescription(t, svc, alice.ID)
	submitPrescription(t, svc, bob.ID)

	forAlice, err := svc.PrescriptionRequestsForUser(ctx, alice.ID)
	if err != nil || len(forAlice) != 1 || forAlice[0].ID != mine.ID {
		t.Fatalf("user listing = %+v, %v", forAlice, err)
	}

	if _, _, err := svc.ConfirmPrescriptionStock(ctx, mine.ID, ph.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, _, err := svc.ChoosePharmacy(ctx, mine.ID, alice.ID, ph.ID); err != nil {
		t.Fatalf("choose: %v", err)
	}
	forPharmacy, err := svc.PrescriptionRequestsForPharmacy(ctx, ph.ID)
	if err != nil || len(forPharmacy) != 1 || forPharmacy[0].ID != mine.ID {
		t.Fatalf("pharmacy listing = %+v, %v", forPharmacy, err)
	}
}
