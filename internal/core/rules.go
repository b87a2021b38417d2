package core

import (
	"context"
	"fmt"

	"pharmacore/pkg/domain"
)

// DefaultRulesEngine builds the engine with every invariant rule the
// engines rely on. A blocking violation aborts the commit.
func DefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(stockConservationRule{})
	engine.Register(prescriptionFulfillerRule{})
	engine.Register(registryUniquenessRule{})
	return engine
}

// stockConservationRule guards the hold accounting: reserved stock never
// goes negative, never exceeds available stock, and always equals the sum
// of quantities held by active reservations.
type stockConservationRule struct{}

func (stockConservationRule) Name() string { return "stock_conservation" }

func (stockConservationRule) Evaluate(_ context.Context, view domain.RuleView, _ []Change) (Result, error) {
	var result Result
	held := make(map[int64]int)
	for _, r := range view.ListReservations() {
		if r.Quantity <= 0 {
			result.Violations = append(result.Violations, Violation{
				Rule:     "stock_conservation",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("reservation holds non-positive quantity %d", r.Quantity),
				Entity:   EntityReservation,
				EntityID: r.ID,
			})
		}
		if r.Status.Active() {
			held[r.MedicineID] += r.Quantity
		}
	}
	for _, m := range view.ListMedicines() {
		switch {
		case m.QuantityReserved < 0:
			result.Violations = append(result.Violations, Violation{
				Rule:     "stock_conservation",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("reserved quantity %d is negative", m.QuantityReserved),
				Entity:   EntityMedicine,
				EntityID: m.ID,
			})
		case m.QuantityReserved > m.QuantityAvailable:
			result.Violations = append(result.Violations, Violation{
				Rule:     "stock_conservation",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("reserved %d exceeds available %d", m.QuantityReserved, m.QuantityAvailable),
				Entity:   EntityMedicine,
				EntityID: m.ID,
			})
		case m.QuantityReserved != held[m.ID]:
			result.Violations = append(result.Violations, Violation{
				Rule:     "stock_conservation",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("reserved counter %d does not match active holds %d", m.QuantityReserved, held[m.ID]),
				Entity:   EntityMedicine,
				EntityID: m.ID,
			})
		}
	}
	return result, nil
}

// prescriptionFulfillerRule enforces the choose-one contract: a request
// past PENDING names exactly one chosen pharmacy, and that pharmacy must
// be among the confirmers.
type prescriptionFulfillerRule struct{}

func (prescriptionFulfillerRule) Name() string { return "prescription_fulfiller" }

func (prescriptionFulfillerRule) Evaluate(_ context.Context, view domain.RuleView, _ []Change) (Result, error) {
	var result Result
	for _, req := range view.ListPrescriptionRequests() {
		switch req.Status {
		case domain.PrescriptionPending:
			if req.ChosenPharmacyID != domain.NoPharmacy {
				result.Violations = append(result.Violations, Violation{
					Rule:     "prescription_fulfiller",
					Severity: domain.SeverityBlock,
					Message:  "pending request must not name a fulfiller",
					Entity:   EntityPrescriptionRequest,
					EntityID: req.ID,
				})
			}
		case domain.PrescriptionAccepted, domain.PrescriptionReadyForPickup, domain.PrescriptionCompleted:
			if req.ChosenPharmacyID == domain.NoPharmacy {
				result.Violations = append(result.Violations, Violation{
					Rule:     "prescription_fulfiller",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s request must name a fulfiller", req.Status),
					Entity:   EntityPrescriptionRequest,
					EntityID: req.ID,
				})
			} else if !req.ConfirmedBy(req.ChosenPharmacyID) {
				result.Violations = append(result.Violations, Violation{
					Rule:     "prescription_fulfiller",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("chosen pharmacy %d never confirmed stock", req.ChosenPharmacyID),
					Entity:   EntityPrescriptionRequest,
					EntityID: req.ID,
				})
			}
		}
	}
	return result, nil
}

// registryUniquenessRule is the safety net behind the in-transaction
// uniqueness checks: usernames are globally unique and no pharmacy lists
// the same brand, generic name, and dosage twice.
type registryUniquenessRule struct{}

func (registryUniquenessRule) Name() string { return "registry_uniqueness" }

func (registryUniquenessRule) Evaluate(_ context.Context, view domain.RuleView, _ []Change) (Result, error) {
	var result Result
	usernames := make(map[string]int64)
	for _, u := range view.ListUsers() {
		if prev, dup := usernames[u.Username]; dup {
			result.Violations = append(result.Violations, Violation{
				Rule:     "registry_uniqueness",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("username %q already held by user %d", u.Username, prev),
				Entity:   EntityUser,
				EntityID: u.ID,
			})
			continue
		}
		usernames[u.Username] = u.ID
	}
	triplets := make(map[string]int64)
	for _, m := range view.ListMedicines() {
		key := fmt.Sprintf("%d|%s", m.PharmacyID, m.TripletKey())
		if prev, dup := triplets[key]; dup {
			result.Violations = append(result.Violations, Violation{
				Rule:     "registry_uniqueness",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("duplicate listing of medicine %d", prev),
				Entity:   EntityMedicine,
				EntityID: m.ID,
			})
			continue
		}
		triplets[key] = m.ID
	}
	return result, nil
}
