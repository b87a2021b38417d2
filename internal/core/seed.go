package core

import (
	"context"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"

	"pharmacore/pkg/domain"
)

// SeedDemoData populates an empty store with a demo admin, a handful of
// residents, and approved pharmacies with stocked shelves. It refuses to
// run against a store that already holds users so restarts never duplicate
// the fixture.
func (s *Service) SeedDemoData(ctx context.Context, faker *gofakeit.Faker) error {
	if len(s.store.ListUsers()) > 0 {
		return domain.Conflictf("store already seeded")
	}
	if faker == nil {
		faker = gofakeit.New(0)
	}

	_, err := s.run(ctx, "seed_demo_data", func(tx Transaction) error {
		if _, err := tx.CreateUser(User{
			Username:   "admin",
			Password:   "admin123",
			FullName:   "System Administrator",
			Email:      "admin@pharmacore.local",
			Role:       domain.RoleAdmin,
			PharmacyID: domain.NoPharmacy,
			Active:     true,
		}); err != nil {
			return err
		}

		for i := 0; i < 5; i++ {
			if _, err := tx.CreateUser(User{
				Username:      fmt.Sprintf("resident%d", i+1),
				Password:      "password",
				FullName:      faker.Name(),
				Email:         faker.Email(),
				ContactNumber: faker.Phone(),
				Address:       faker.Address().Address,
				Role:          domain.RoleResident,
				PharmacyID:    domain.NoPharmacy,
				Active:        true,
			}); err != nil {
				return err
			}
		}

		catalog := []struct {
			brand, generic, dosage, form, category string
			price                                  float64
			qty                                    int
		}{
			{"Biogesic", "Paracetamol", "500mg", "Tablet", "Over-the-Counter", 4.50, 200},
			{"Neozep", "Phenylephrine", "10mg", "Tablet", "Over-the-Counter", 7.25, 150},
			{"Amoxil", "Amoxicillin", "500mg", "Capsule", "Prescription", 15.00, 80},
			{"Ventolin", "Salbutamol", "2mg", "Inhaler", "Prescription", 320.00, 25},
			{"Losartan", "Losartan Potassium", "50mg", "Tablet", "Prescription", 9.75, 120},
		}

		for i := 0; i < 3; i++ {
			ph, err := tx.CreatePharmacy(Pharmacy{
				Name:        fmt.Sprintf("%s Pharmacy", faker.LastName()),
				Address:     faker.Address().Address,
				Contact:     faker.Phone(),
				Email:       faker.Email(),
				Description: faker.Sentence(8),
				Status:      domain.PharmacyApproved,
			})
			if err != nil {
				return err
			}
			if _, err := tx.CreateUser(User{
				Username:      fmt.Sprintf("pharmacist%d", i+1),
				Password:      "password",
				FullName:      faker.Name(),
				Email:         faker.Email(),
				ContactNumber: faker.Phone(),
				Role:          domain.RolePharmacist,
				PharmacyID:    ph.ID,
				Active:        true,
			}); err != nil {
				return err
			}
			for _, item := range catalog {
				if _, err := tx.CreateMedicine(Medicine{
					PharmacyID:        ph.ID,
					BrandName:         item.brand,
					GenericName:       item.generic,
					Description:       faker.Sentence(6),
					Dosage:            item.dosage,
					DosageForm:        item.form,
					Price:             item.price,
					QuantityAvailable: item.qty + faker.Number(0, 50),
					Category:          item.category,
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("seed demo data: %w", err)
	}
	s.logger.Info("seeded demo data",
		"users", len(s.store.ListUsers()),
		"pharmacies", len(s.store.ListPharmacies()),
		"medicines", len(s.store.ListMedicines()))
	return nil
}
