package models

// Capability is a permission checked by protected operations.
type Capability string

const (
	CapView           Capability = "view"
	CapRegisterWalkIn Capability = "register_walk_in"
	CapRecordPayment  Capability = "record_payment"
	CapCheckIn        Capability = "check_in"
	CapEditAttendee   Capability = "edit_attendee"
	CapDeleteAttendee Capability = "delete_attendee"
	CapViewDashboard  Capability = "view_dashboard"
	CapExportReports  Capability = "export_reports"
	CapManageStaff    Capability = "manage_staff"
)

var roleCapabilities = map[UserRole][]Capability{
	RoleCashier:   {CapView, CapRegisterWalkIn, CapRecordPayment},
	RoleCommittee: {CapView, CapCheckIn, CapRegisterWalkIn},
}

// Session is the authenticated caller of a service operation.
type Session struct {
	UserID string
	Role   UserRole
}

// Can reports whether the session's role grants c. Admins hold every capability.
func (s Session) Can(c Capability) bool {
	if s.UserID == "" {
		return false
	}
	if s.Role == RoleSuperAdmin || s.Role == RoleAdmin {
		return true
	}
	for _, granted := range roleCapabilities[s.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// SessionFromClaims builds a session from verified token claims.
func SessionFromClaims(claims *JWTClaims) Session {
	if claims == nil {
		return Session{}
	}
	return Session{UserID: claims.UserID, Role: claims.Role}
}
