package model

// Principal is the authenticated identity attached to a request. The zero
// value is an anonymous caller.
type Principal struct {
	UserID       string
	IsAdmin      bool
	IsInstructor bool
}

func (p Principal) Authenticated() bool {
	return p.UserID != ""
}

// Role returns the richest role the principal holds.
func (p Principal) Role() string {
	switch {
	case p.IsAdmin:
		return RoleAdmin
	case p.IsInstructor:
		return RoleInstructor
	default:
		return RoleStudent
	}
}

// PrincipalFor builds the principal a session for u would carry.
func PrincipalFor(u *User) Principal {
	return Principal{UserID: u.ID, IsAdmin: u.IsAdmin, IsInstructor: u.IsInstructor}
}
