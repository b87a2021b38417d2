package core

import (
	"context"
	"errors"
	"testing"

	"pharmacore/internal/infra/persistence/memory"
	"pharmacore/pkg/domain"
)

// These tests drive the store directly to prove the rules block raw writes
// that bypass the service-level checks.

func blockedBy(t *testing.T, err error, rule string) {
	t.Helper()
	var rve domain.RuleViolationError
	if !errors.As(err, &rve) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	for _, v := range rve.Result.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return
		}
	}
	t.Fatalf("no blocking violation from %s in %+v", rule, rve.Result.Violations)
}

func TestStockConservationBlocksDriftedCounter(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		ph, err := tx.CreatePharmacy(Pharmacy{Name: "P", Status: domain.PharmacyApproved})
		if err != nil {
			return err
		}
		_, err = tx.CreateMedicine(Medicine{
			PharmacyID:        ph.ID,
			BrandName:         "B",
			GenericName:       "G",
			Dosage:            "1mg",
			QuantityAvailable: 5,
			QuantityReserved:  2, // no reservation backs this hold
		})
		return err
	})
	blockedBy(t, err, "stock_conservation")
}

func TestStockConservationBlocksOverReservation(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		ph, err := tx.CreatePharmacy(Pharmacy{Name: "P", Status: domain.PharmacyApproved})
		if err != nil {
			return err
		}
		u, err := tx.CreateUser(User{Username: "u", Password: "p", FullName: "U", Role: domain.RoleResident, PharmacyID: domain.NoPharmacy, Active: true})
		if err != nil {
			return err
		}
		m, err := tx.CreateMedicine(Medicine{
			PharmacyID:        ph.ID,
			BrandName:         "B",
			GenericName:       "G",
			Dosage:            "1mg",
			QuantityAvailable: 5,
			QuantityReserved:  7,
		})
		if err != nil {
			return err
		}
		_, err = tx.CreateReservation(Reservation{
			ReferenceNumber: "REF0000001",
			UserID:          u.ID,
			MedicineID:      m.ID,
			PharmacyID:      ph.ID,
			Quantity:        7,
			Status:          domain.ReservationPending,
			PaymentMethod:   domain.PayAtStore,
			PaymentStatus:   domain.PaymentUnpaid,
		})
		return err
	})
	blockedBy(t, err, "stock_conservation")
}

func TestPrescriptionFulfillerBlocksUnconfirmedChoice(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		u, err := tx.CreateUser(User{Username: "u", Password: "p", FullName: "U", Role: domain.RoleResident, PharmacyID: domain.NoPharmacy, Active: true})
		if err != nil {
			return err
		}
		_, err = tx.CreatePrescriptionRequest(PrescriptionRequest{
			ReferenceNumber:  "REF0000002",
			UserID:           u.ID,
			ImagePath:        "prescriptions/x.jpg",
			Status:           domain.PrescriptionAccepted,
			ChosenPharmacyID: 42, // never confirmed
		})
		return err
	})
	blockedBy(t, err, "prescription_fulfiller")
}

func TestPrescriptionFulfillerBlocksPendingWithFulfiller(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		u, err := tx.CreateUser(User{Username: "u", Password: "p", FullName: "U", Role: domain.RoleResident, PharmacyID: domain.NoPharmacy, Active: true})
		if err != nil {
			return err
		}
		_, err = tx.CreatePrescriptionRequest(PrescriptionRequest{
			ReferenceNumber:  "REF0000003",
			UserID:           u.ID,
			ImagePath:        "prescriptions/x.jpg",
			Status:           domain.PrescriptionPending,
			ChosenPharmacyID: 1,
		})
		return err
	})
	blockedBy(t, err, "prescription_fulfiller")
}

func TestRegistryUniquenessBlocksDuplicateUsername(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		for i := 0; i < 2; i++ {
			if _, err := tx.CreateUser(User{Username: "dup", Password: "p", FullName: "U", Role: domain.RoleResident, PharmacyID: domain.NoPharmacy, Active: true}); err != nil {
				return err
			}
		}
		return nil
	})
	blockedBy(t, err, "registry_uniqueness")
}

func TestRegistryUniquenessBlocksDuplicateTriplet(t *testing.T) {
	store := memory.NewStore(DefaultRulesEngine())
	ctx := context.Background()

	_, err := store.RunInTransaction(ctx, func(tx Transaction) error {
		ph, err := tx.CreatePharmacy(Pharmacy{Name: "P", Status: domain.PharmacyApproved})
		if err != nil {
			return err
		}
		for _, brand := range []string{"Biogesic", "BIOGESIC"} {
			if _, err := tx.CreateMedicine(Medicine{
				PharmacyID:        ph.ID,
				BrandName:         brand,
				GenericName:       "Paracetamol",
				Dosage:            "500mg",
				QuantityAvailable: 1,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	blockedBy(t, err, "registry_uniqueness")
}
