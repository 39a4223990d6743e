// internal/models/principal.go
package models

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	// RoleSystem is used for transitions made by periodic jobs.
	RoleSystem Role = "system"
)

// Principal is an authenticated account as seen by the order and
// notification services. It doubles as the notification recipient.
type Principal struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"fullName,omitempty"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	SMSEnabled   bool   `json:"smsEnabled"`
	EmailEnabled bool   `json:"emailEnabled"`
	Role         Role   `json:"role"`
	IsActive     bool   `json:"isActive"`
}

func (p *Principal) IsStaff() bool {
	return p != nil && (p.Role == RoleStaff || p.Role == RoleSystem)
}

// DisplayName is the full name when set, otherwise the username.
func (p *Principal) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

// SystemPrincipal acts for scheduled transitions. ID 0 is stored as a NULL actor.
var SystemPrincipal = &Principal{Username: "system", Role: RoleSystem, IsActive: true}
