package core

import (
	"context"
	"strings"

	"pharmacore/pkg/domain"
)

// Authenticate checks credentials against active accounts. Username and
// password comparisons are exact.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	var match User
	err := s.read(ctx, "authenticate", func(v TransactionView) error {
		for _, u := range v.ListUsers() {
			if u.Username == username && u.Password == password && u.Active {
				match = u
				return nil
			}
		}
		return domain.Conflictf("invalid username or password")
	})
	return match, err
}

func validateUserInput(u User) error {
	if strings.TrimSpace(u.Username) == "" {
		return domain.Validationf("username", "must not be empty")
	}
	if u.Password == "" {
		return domain.Validationf("password", "must not be empty")
	}
	if strings.TrimSpace(u.FullName) == "" {
		return domain.Validationf("full_name", "must not be empty")
	}
	if !u.Role.Valid() {
		return domain.Validationf("role", "unknown role %q", u.Role)
	}
	return nil
}

func checkUsernameFree(v TransactionView, username string, excludeID int64) error {
	for _, existing := range v.ListUsers() {
		if existing.ID != excludeID && existing.Username == username {
			return domain.Conflictf("username %q already taken", username)
		}
	}
	return nil
}

// RegisterResident self-registers a resident account. Residents are active
// immediately; no approval step applies.
func (s *Service) RegisterResident(ctx context.Context, u User) (User, Result, error) {
	u.Role = domain.RoleResident
	u.PharmacyID = domain.NoPharmacy
	u.Active = true
	if err := validateUserInput(u); err != nil {
		return User{}, Result{}, err
	}
	var created User
	result, err := s.run(ctx, "register_resident", func(tx Transaction) error {
		if err := checkUsernameFree(tx.Snapshot(), u.Username, 0); err != nil {
			return err
		}
		var err error
		created, err = tx.CreateUser(u)
		return err
	})
	return created, result, err
}

// RegisterPharmacy self-registers a pharmacy with its first pharmacist in
// one transaction. The pharmacy starts PENDING and the pharmacist inactive;
// both are unlocked when an admin approves either side.
func (s *Service) RegisterPharmacy(ctx context.Context, ph Pharmacy, pharmacist User) (Pharmacy, User, Result, error) {
	if strings.TrimSpace(ph.Name) == "" {
		return Pharmacy{}, User{}, Result{}, domain.Validationf("name", "must not be empty")
	}
	pharmacist.Role = domain.RolePharmacist
	pharmacist.Active = false
	if err := validateUserInput(pharmacist); err != nil {
		return Pharmacy{}, User{}, Result{}, err
	}
	ph.Status = domain.PharmacyPending
	var createdPh Pharmacy
	var createdUser User
	result, err := s.run(ctx, "register_pharmacy", func(tx Transaction) error {
		if err := checkUsernameFree(tx.Snapshot(), pharmacist.Username, 0); err != nil {
			return err
		}
		var err error
		createdPh, err = tx.CreatePharmacy(ph)
		if err != nil {
			return err
		}
		pharmacist.PharmacyID = createdPh.ID
		createdUser, err = tx.CreateUser(pharmacist)
		return err
	})
	return createdPh, createdUser, result, err
}

// CreateUser is the admin path for provisioning accounts. Accounts created
// here are active immediately; pharmacists must reference an existing
// pharmacy.
func (s *Service) CreateUser(ctx context.Context, u User) (User, Result, error) {
	if err := validateUserInput(u); err != nil {
		return User{}, Result{}, err
	}
	if u.Role != domain.RolePharmacist {
		u.PharmacyID = domain.NoPharmacy
	}
	u.Active = true
	var created User
	result, err := s.run(ctx, "create_user", func(tx Transaction) error {
		view := tx.Snapshot()
		if err := checkUsernameFree(view, u.Username, 0); err != nil {
			return err
		}
		if u.Role == domain.RolePharmacist {
			if _, err := findPharmacy(view, u.PharmacyID); err != nil {
				return err
			}
		}
		var err error
		created, err = tx.CreateUser(u)
		return err
	})
	return created, result, err
}

// UpdateUser overwrites the mutable profile fields of an account. Role and
// pharmacy linkage are preserved.
func (s *Service) UpdateUser(ctx context.Context, u User) (User, Result, error) {
	if strings.TrimSpace(u.Username) == "" {
		return User{}, Result{}, domain.Validationf("username", "must not be empty")
	}
	var updated User
	result, err := s.run(ctx, "update_user", func(tx Transaction) error {
		if err := checkUsernameFree(tx.Snapshot(), u.Username, u.ID); err != nil {
			return err
		}
		var err error
		updated, err = tx.UpdateUser(u.ID, func(cur *User) error {
			cur.Username = u.Username
			if u.Password != "" {
				cur.Password = u.Password
			}
			cur.FullName = u.FullName
			cur.Email = u.Email
			cur.ContactNumber = u.ContactNumber
			cur.Address = u.Address
			return nil
		})
		return err
	})
	return updated, result, err
}

// DeleteUser deactivates an account. The record stays addressable so
// reservation and prescription history keeps a valid owner. Admin accounts
// are never deleted.
func (s *Service) DeleteUser(ctx context.Context, id int64) (Result, error) {
	return s.run(ctx, "delete_user", func(tx Transaction) error {
		u, err := findUser(tx.Snapshot(), id)
		if err != nil {
			return err
		}
		if u.Role == domain.RoleAdmin {
			return domain.Conflictf("admin accounts cannot be deleted")
		}
		_, err = tx.UpdateUser(id, func(cur *User) error {
			cur.Active = false
			return nil
		})
		return err
	})
}

// ApproveUser activates a pending account. Approving a pharmacist also
// approves the linked pharmacy so both sides of the registration unlock
// together.
func (s *Service) ApproveUser(ctx context.Context, id int64) (User, Result, error) {
	var approved User
	result, err := s.run(ctx, "approve_user", func(tx Transaction) error {
		u, err := findUser(tx.Snapshot(), id)
		if err != nil {
			return err
		}
		approved, err = tx.UpdateUser(id, func(cur *User) error {
			cur.Active = true
			return nil
		})
		if err != nil {
			return err
		}
		if u.Role == domain.RolePharmacist && u.PharmacyID != domain.NoPharmacy {
			if _, ok := tx.FindPharmacy(u.PharmacyID); ok {
				_, err = tx.UpdatePharmacy(u.PharmacyID, func(ph *Pharmacy) error {
					ph.Status = domain.PharmacyApproved
					return nil
				})
			}
		}
		return err
	})
	return approved, result, err
}

// RejectUser removes a pending account. Rejecting a pharmacist also removes
// the pharmacy that was registered with it, including any stock it listed.
func (s *Service) RejectUser(ctx context.Context, id int64) (Result, error) {
	return s.run(ctx, "reject_user", func(tx Transaction) error {
		u, err := findUser(tx.Snapshot(), id)
		if err != nil {
			return err
		}
		if u.Role == domain.RoleAdmin {
			return domain.Conflictf("admin accounts cannot be rejected")
		}
		if err := tx.DeleteUser(id); err != nil {
			return err
		}
		if u.Role == domain.RolePharmacist && u.PharmacyID != domain.NoPharmacy {
			if _, ok := tx.FindPharmacy(u.PharmacyID); ok {
				return removePharmacy(tx, u.PharmacyID)
			}
		}
		return nil
	})
}

// CreatePharmacy provisions a pharmacy record directly. It starts PENDING
// like self-registered ones.
func (s *Service) CreatePharmacy(ctx context.Context, ph Pharmacy) (Pharmacy, Result, error) {
	if strings.TrimSpace(ph.Name) == "" {
		return Pharmacy{}, Result{}, domain.Validationf("name", "must not be empty")
	}
	ph.Status = domain.PharmacyPending
	var created Pharmacy
	result, err := s.run(ctx, "create_pharmacy", func(tx Transaction) error {
		var err error
		created, err = tx.CreatePharmacy(ph)
		return err
	})
	return created, result, err
}

// UpdatePharmacy overwrites the descriptive fields of a pharmacy. Approval
// status is managed only through the approve and reject operations.
func (s *Service) UpdatePharmacy(ctx context.Context, ph Pharmacy) (Pharmacy, Result, error) {
	if strings.TrimSpace(ph.Name) == "" {
		return Pharmacy{}, Result{}, domain.Validationf("name", "must not be empty")
	}
	var updated Pharmacy
	result, err := s.run(ctx, "update_pharmacy", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdatePharmacy(ph.ID, func(cur *Pharmacy) error {
			cur.Name = ph.Name
			cur.Address = ph.Address
			cur.Contact = ph.Contact
			cur.Email = ph.Email
			cur.Description = ph.Description
			return nil
		})
		return err
	})
	return updated, result, err
}

// ApprovePharmacy marks the pharmacy APPROVED and activates every
// pharmacist account linked to it.
func (s *Service) ApprovePharmacy(ctx context.Context, id int64) (Pharmacy, Result, error) {
	var approved Pharmacy
	result, err := s.run(ctx, "approve_pharmacy", func(tx Transaction) error {
		var err error
		approved, err = tx.UpdatePharmacy(id, func(ph *Pharmacy) error {
			ph.Status = domain.PharmacyApproved
			return nil
		})
		if err != nil {
			return err
		}
		for _, u := range tx.Snapshot().ListUsers() {
			if u.Role == domain.RolePharmacist && u.PharmacyID == id && !u.Active {
				if _, err := tx.UpdateUser(u.ID, func(cur *User) error {
					cur.Active = true
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return nil
	})
	return approved, result, err
}

// RejectPharmacy removes the pharmacy along with its stock and its linked
// pharmacist accounts. Active reservations against its stock are cancelled
// and refunded where payment was taken.
func (s *Service) RejectPharmacy(ctx context.Context, id int64) (Result, error) {
	return s.run(ctx, "reject_pharmacy", func(tx Transaction) error {
		if _, err := findPharmacy(tx.Snapshot(), id); err != nil {
			return err
		}
		for _, u := range tx.Snapshot().ListUsers() {
			if u.Role == domain.RolePharmacist && u.PharmacyID == id {
				if err := tx.DeleteUser(u.ID); err != nil {
					return err
				}
			}
		}
		return removePharmacy(tx, id)
	})
}

// DeletePharmacy removes an established pharmacy. Its medicines are removed
// with reservation cancellation, and linked pharmacist accounts are
// deactivated rather than deleted so their history stays addressable.
func (s *Service) DeletePharmacy(ctx context.Context, id int64) (Result, error) {
	return s.run(ctx, "delete_pharmacy", func(tx Transaction) error {
		if _, err := findPharmacy(tx.Snapshot(), id); err != nil {
			return err
		}
		for _, u := range tx.Snapshot().ListUsers() {
			if u.Role == domain.RolePharmacist && u.PharmacyID == id {
				if _, err := tx.UpdateUser(u.ID, func(cur *User) error {
					cur.Active = false
					return nil
				}); err != nil {
					return err
				}
			}
		}
		return removePharmacy(tx, id)
	})
}

// removePharmacy deletes a pharmacy and all of its medicines, cancelling
// any still-active reservations against them.
func removePharmacy(tx Transaction, pharmacyID int64) error {
	for _, m := range tx.Snapshot().ListMedicines() {
		if m.PharmacyID == pharmacyID {
			if err := removeMedicine(tx, m.ID); err != nil {
				return err
			}
		}
	}
	return tx.DeletePharmacy(pharmacyID)
}

// PendingUsers lists accounts awaiting approval.
func (s *Service) PendingUsers(ctx context.Context) ([]User, error) {
	var pending []User
	err := s.read(ctx, "pending_users", func(v TransactionView) error {
		for _, u := range v.ListUsers() {
			if !u.Active {
				pending = append(pending, u)
			}
		}
		return nil
	})
	return pending, err
}

// Users lists all accounts.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	var users []User
	err := s.read(ctx, "list_users", func(v TransactionView) error {
		users = v.ListUsers()
		return nil
	})
	return users, err
}

// Pharmacies lists pharmacies, optionally restricted to approved ones.
func (s *Service) Pharmacies(ctx context.Context, approvedOnly bool) ([]Pharmacy, error) {
	var out []Pharmacy
	err := s.read(ctx, "list_pharmacies", func(v TransactionView) error {
		for _, ph := range v.ListPharmacies() {
			if approvedOnly && ph.Status != domain.PharmacyApproved {
				continue
			}
			out = append(out, ph)
		}
		return nil
	})
	return out, err
}

// GetUser fetches one account by id.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	var u User
	err := s.read(ctx, "get_user", func(v TransactionView) error {
		var err error
		u, err = findUser(v, id)
		return err
	})
	return u, err
}

// GetPharmacy fetches one pharmacy by id.
func (s *Service) GetPharmacy(ctx context.Context, id int64) (Pharmacy, error) {
	var ph Pharmacy
	err := s.read(ctx, "get_pharmacy", func(v TransactionView) error {
		var err error
		ph, err = findPharmacy(v, id)
		return err
	})
	return ph, err
}
