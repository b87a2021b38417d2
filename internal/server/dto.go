package server

import (
	"time"

	"pharmacore/pkg/domain"
)

// Wire DTOs. The domain types carry json tags for persistence snapshots;
// the envelope carries these xml-tagged mirrors instead so the two formats
// can evolve independently.

// UserDTO mirrors domain.User minus the password.
type UserDTO struct {
	ID            int64  `xml:"id"`
	Username      string `xml:"username"`
	FullName      string `xml:"fullName"`
	Email         string `xml:"email"`
	ContactNumber string `xml:"contactNumber"`
	Address       string `xml:"address"`
	Role          string `xml:"role"`
	PharmacyID    int64  `xml:"pharmacyId"`
	Active        bool   `xml:"active"`
}

// PharmacyDTO mirrors domain.Pharmacy.
type PharmacyDTO struct {
	ID          int64  `xml:"id"`
	Name        string `xml:"name"`
	Address     string `xml:"address"`
	Contact     string `xml:"contact"`
	Email       string `xml:"email"`
	Description string `xml:"description"`
	Status      string `xml:"status"`
}

// MedicineDTO mirrors domain.Medicine plus the derived status.
type MedicineDTO struct {
	ID                int64   `xml:"id"`
	PharmacyID        int64   `xml:"pharmacyId"`
	BrandName         string  `xml:"brandName"`
	GenericName       string  `xml:"genericName"`
	Description       string  `xml:"description"`
	Dosage            string  `xml:"dosage"`
	DosageForm        string  `xml:"dosageForm"`
	Price             float64 `xml:"price"`
	QuantityAvailable int     `xml:"quantityAvailable"`
	QuantityReserved  int     `xml:"quantityReserved"`
	EffectiveQuantity int     `xml:"effectiveQuantity"`
	Category          string  `xml:"category"`
	Status            string  `xml:"status"`
}

// ReservationDTO mirrors domain.Reservation.
type ReservationDTO struct {
	ID              int64   `xml:"id"`
	ReferenceNumber string  `xml:"referenceNumber"`
	UserID          int64   `xml:"userId"`
	MedicineID      int64   `xml:"medicineId"`
	PharmacyID      int64   `xml:"pharmacyId"`
	Quantity        int     `xml:"quantity"`
	TotalPrice      float64 `xml:"totalPrice"`
	ReservationTime string  `xml:"reservationTime"`
	ExpirationTime  string  `xml:"expirationTime"`
	Status          string  `xml:"status"`
	PaymentMethod   string  `xml:"paymentMethod"`
	PaymentStatus   string  `xml:"paymentStatus"`
	Notes           string  `xml:"notes"`
}

// PrescriptionRequestDTO mirrors domain.PrescriptionRequest.
type PrescriptionRequestDTO struct {
	ID                   int64   `xml:"id"`
	ReferenceNumber      string  `xml:"referenceNumber"`
	UserID               int64   `xml:"userId"`
	ImagePath            string  `xml:"imagePath"`
	SubmittedAt          string  `xml:"submittedAt"`
	Status               string  `xml:"status"`
	DeclinedPharmacyIDs  []int64 `xml:"declinedPharmacyIds>id"`
	ConfirmedPharmacyIDs []int64 `xml:"confirmedPharmacyIds>id"`
	ChosenPharmacyID     int64   `xml:"chosenPharmacyId"`
	MedicineName         string  `xml:"medicineName,omitempty"`
	MedicineQuantity     int     `xml:"medicineQuantity,omitempty"`
	MedicineAmount       float64 `xml:"medicineAmount,omitempty"`
	PaidAt               string  `xml:"paidAt,omitempty"`
}

// ImageDTO carries a prescription photo back to the client.
type ImageDTO struct {
	ContentType string `xml:"contentType"`
	Base64      string `xml:"base64"`
}

// Data is the typed payload slot of a response envelope.
type Data struct {
	User          *UserDTO                 `xml:"user,omitempty"`
	Users         []UserDTO                `xml:"users>user,omitempty"`
	Pharmacy      *PharmacyDTO             `xml:"pharmacy,omitempty"`
	Pharmacies    []PharmacyDTO            `xml:"pharmacies>pharmacy,omitempty"`
	Medicine      *MedicineDTO             `xml:"medicine,omitempty"`
	Medicines     []MedicineDTO            `xml:"medicines>medicine,omitempty"`
	Reservation   *ReservationDTO          `xml:"reservation,omitempty"`
	Reservations  []ReservationDTO         `xml:"reservations>reservation,omitempty"`
	Prescription  *PrescriptionRequestDTO  `xml:"prescriptionRequest,omitempty"`
	Prescriptions []PrescriptionRequestDTO `xml:"prescriptionRequests>prescriptionRequest,omitempty"`
	Image         *ImageDTO                `xml:"image,omitempty"`
}

func wireTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func toUserDTO(u domain.User) UserDTO {
	return UserDTO{
		ID:            u.ID,
		Username:      u.Username,
		FullName:      u.FullName,
		Email:         u.Email,
		ContactNumber: u.ContactNumber,
		Address:       u.Address,
		Role:          string(u.Role),
		PharmacyID:    u.PharmacyID,
		Active:        u.Active,
	}
}

func toPharmacyDTO(p domain.Pharmacy) PharmacyDTO {
	return PharmacyDTO{
		ID:          p.ID,
		Name:        p.Name,
		Address:     p.Address,
		Contact:     p.Contact,
		Email:       p.Email,
		Description: p.Description,
		Status:      string(p.Status),
	}
}

func toMedicineDTO(m domain.Medicine) MedicineDTO {
	return MedicineDTO{
		ID:                m.ID,
		PharmacyID:        m.PharmacyID,
		BrandName:         m.BrandName,
		GenericName:       m.GenericName,
		Description:       m.Description,
		Dosage:            m.Dosage,
		DosageForm:        m.DosageForm,
		Price:             m.Price,
		QuantityAvailable: m.QuantityAvailable,
		QuantityReserved:  m.QuantityReserved,
		EffectiveQuantity: m.EffectiveQuantity(),
		Category:          m.Category,
		Status:            string(m.Status()),
	}
}

func toReservationDTO(r domain.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:              r.ID,
		ReferenceNumber: r.ReferenceNumber,
		UserID:          r.UserID,
		MedicineID:      r.MedicineID,
		PharmacyID:      r.PharmacyID,
		Quantity:        r.Quantity,
		TotalPrice:      r.TotalPrice,
		ReservationTime: wireTime(r.ReservationTime),
		ExpirationTime:  wireTime(r.ExpirationTime),
		Status:          string(r.Status),
		PaymentMethod:   string(r.PaymentMethod),
		PaymentStatus:   string(r.PaymentStatus),
		Notes:           r.Notes,
	}
}

func toPrescriptionDTO(p domain.PrescriptionRequest) PrescriptionRequestDTO {
	dto := PrescriptionRequestDTO{
		ID:                   p.ID,
		ReferenceNumber:      p.ReferenceNumber,
		UserID:               p.UserID,
		ImagePath:            p.ImagePath,
		SubmittedAt:          wireTime(p.SubmittedAt),
		Status:               string(p.Status),
		DeclinedPharmacyIDs:  p.DeclinedPharmacyIDs,
		ConfirmedPharmacyIDs: p.ConfirmedPharmacyIDs,
		ChosenPharmacyID:     p.ChosenPharmacyID,
		MedicineName:         p.MedicineName,
		MedicineQuantity:     p.MedicineQuantity,
		MedicineAmount:       p.MedicineAmount,
	}
	if p.PaidAt != nil {
		dto.PaidAt = wireTime(*p.PaidAt)
	}
	return dto
}

func toUserDTOs(in []domain.User) []UserDTO {
	out := make([]UserDTO, 0, len(in))
	for _, u := range in {
		out = append(out, toUserDTO(u))
	}
	return out
}

func toPharmacyDTOs(in []domain.Pharmacy) []PharmacyDTO {
	out := make([]PharmacyDTO, 0, len(in))
	for _, p := range in {
		out = append(out, toPharmacyDTO(p))
	}
	return out
}

func toMedicineDTOs(in []domain.Medicine) []MedicineDTO {
	out := make([]MedicineDTO, 0, len(in))
	for _, m := range in {
		out = append(out, toMedicineDTO(m))
	}
	return out
}

func toReservationDTOs(in []domain.Reservation) []ReservationDTO {
	out := make([]ReservationDTO, 0, len(in))
	for _, r := range in {
		out = append(out, toReservationDTO(r))
	}
	return out
}

func toPrescriptionDTOs(in []domain.PrescriptionRequest) []PrescriptionRequestDTO {
	out := make([]PrescriptionRequestDTO, 0, len(in))
	for _, p := range in {
		out = append(out, toPrescriptionDTO(p))
	}
	return out
}
