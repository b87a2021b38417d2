package domain

import "testing"

func TestMedicineStatusDerivation(t *testing.T) {
	cases := []struct {
		name      string
		available int
		reserved  int
		want      MedicineStatus
	}{
		{"available", 10, 0, MedicineAvailable},
		{"partially reserved", 10, 3, MedicineAvailable},
		{"fully reserved", 10, 10, MedicineReserved},
		{"out of stock", 0, 0, MedicineOutOfStock},
	}
	for _, tc := range cases {
		m := Medicine{QuantityAvailable: tc.available, QuantityReserved: tc.reserved}
		if got := m.Status(); got != tc.want {
			t.Fatalf("%s: status = %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestMedicineEffectiveQuantity(t *testing.T) {
	m := Medicine{QuantityAvailable: 10, QuantityReserved: 7}
	if got := m.EffectiveQuantity(); got != 3 {
		t.Fatalf("effective quantity = %d, want 3", got)
	}
}

func TestMedicineRequiresPrescription(t *testing.T) {
	if !(Medicine{Category: "Prescription"}).RequiresPrescription() {
		t.Fatal("Prescription category should require a prescription")
	}
	if !(Medicine{Category: "prescription"}).RequiresPrescription() {
		t.Fatal("category comparison should be case-insensitive")
	}
	if (Medicine{Category: "OTC"}).RequiresPrescription() {
		t.Fatal("OTC category should not require a prescription")
	}
}

func TestMedicineTripletKeyCaseInsensitive(t *testing.T) {
	a := Medicine{BrandName: "Biogesic", GenericName: "Paracetamol", Dosage: "500mg"}
	b := Medicine{BrandName: "BIOGESIC", GenericName: "paracetamol", Dosage: "500MG"}
	if a.TripletKey() != b.TripletKey() {
		t.Fatalf("triplet keys differ: %q vs %q", a.TripletKey(), b.TripletKey())
	}
}

func TestPaymentMethodClassification(t *testing.T) {
	if !PayOnlineBank.Online() || !PayEPayment.Online() {
		t.Fatal("online bank and e-payment must settle immediately")
	}
	if PayAtStore.Online() {
		t.Fatal("pay-at-store must not settle immediately")
	}
	if PaymentMethod("GOLD").Valid() {
		t.Fatal("unknown payment method reported valid")
	}
}

func TestReservationStatusActive(t *testing.T) {
	for _, s := range []ReservationStatus{ReservationPending, ReservationConfirmed} {
		if !s.Active() {
			t.Fatalf("%s should hold reserved stock", s)
		}
	}
	for _, s := range []ReservationStatus{ReservationCancelled, ReservationCompleted, ReservationExpired} {
		if s.Active() {
			t.Fatalf("%s should not hold reserved stock", s)
		}
	}
}

func TestPrescriptionRequestMembership(t *testing.T) {
	req := PrescriptionRequest{
		DeclinedPharmacyIDs:  []int64{2},
		ConfirmedPharmacyIDs: []int64{3, 4},
	}
	if !req.DeclinedBy(2) || req.DeclinedBy(3) {
		t.Fatal("declined membership wrong")
	}
	if !req.ConfirmedBy(4) || req.ConfirmedBy(2) {
		t.Fatal("confirmed membership wrong")
	}
}

func TestResultMergeAndBlocking(t *testing.T) {
	var combined Result
	combined.Merge(Result{})
	if len(combined.Violations) != 0 {
		t.Fatalf("merge of empty result added violations")
	}
	combined.Merge(Result{Violations: []Violation{{Rule: "stock", Severity: SeverityWarn}}})
	if combined.HasBlocking() {
		t.Fatal("warn severity must not block")
	}
	combined.Merge(Result{Violations: []Violation{{Rule: "stock", Severity: SeverityBlock}}})
	if !combined.HasBlocking() {
		t.Fatal("block severity must block")
	}
}
