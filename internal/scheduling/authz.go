package scheduling

import "github.com/google/uuid"

// Guard decides whether a principal may act on a doctor's appointments.
// Admins and secretaries act on any doctor; a doctor only on their own.
type Guard struct{}

// Authorize returns nil when allowed and ErrForbidden otherwise. It is a
// pure decision over the already-resolved principal; it never touches
// storage, so a denial leaks nothing about what exists.
func (Guard) Authorize(p Principal, targetDoctorID uuid.UUID) error {
	if p.HasRole(RoleAdmin) || p.HasRole(RoleSecretary) {
		return nil
	}
	if p.HasRole(RoleDoctor) && p.DoctorID != uuid.Nil && p.DoctorID == targetDoctorID {
		return nil
	}
	return ErrForbidden
}
