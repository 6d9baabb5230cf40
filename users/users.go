package users

import "time"

// RoleType represents the platform role a resolved identity carries.
type RoleType string

const (
	RoleTenantAdmin     RoleType = "tenant_admin"     // Employer-side administrator
	RoleTenantRecruiter RoleType = "tenant_recruiter" // Employer-side recruiter
	RolePartnerAdmin    RoleType = "partner_admin"    // Staffing-partner administrator
	RolePartnerUser     RoleType = "partner_user"     // Staffing-partner member
	RoleCandidate       RoleType = "candidate"        // Assessment candidate
)

// StatusType represents the lifecycle state of a platform account.
type StatusType string

const (
	StatusActive    StatusType = "active"
	StatusInvited   StatusType = "invited"
	StatusSuspended StatusType = "suspended"
)

// Tenant is the employer organization a tenant-realm profile belongs to.
type Tenant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Domain string `json:"domain,omitempty"`
	Plan   string `json:"plan,omitempty"` // Subscription plan identifier
}

// Profile is the resolved identity behind a credential. The platform returns
// a different projection per realm, but all three share this shape; Tenant is
// only populated for tenant-realm and partner-realm profiles.
type Profile struct {
	UserID    string     `json:"userId"`
	Email     string     `json:"email,omitempty"`
	FirstName string     `json:"firstName,omitempty"`
	LastName  string     `json:"lastName,omitempty"`
	Role      RoleType   `json:"role,omitempty"`
	Status    StatusType `json:"status,omitempty"`
	Tenant    *Tenant    `json:"tenant,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	LastLogin time.Time  `json:"lastLogin,omitempty"`
}

// FullName returns the display name for the profile.
func (p Profile) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
