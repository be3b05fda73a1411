package model

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleStudent, RoleFaculty:
		return Role(value), true
	default:
		return "", false
	}
}

type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

type AuthProvider string

const (
	ProviderGoogle AuthProvider = "google"
	ProviderEmail  AuthProvider = "email"
)

// PendingRegistration is a submitted enrollment awaiting an admin
// decision. At most one row exists per email; resubmission after a
// rejection overwrites the row instead of creating a second one.
type PendingRegistration struct {
	ID              string
	Email           string
	Name            string
	Phone           *string
	Department      string
	Year            *string
	Role            Role
	FaceURL         *string
	Status          RegistrationStatus
	RejectionReason *string
	ReviewedBy      *string
	ReviewedAt      *time.Time
	SubmittedAt     time.Time
	AuthProvider    AuthProvider
}

// Profile is an approved account row. Students and faculty share the
// shape and are partitioned into separate tables by role.
type Profile struct {
	ID           string
	Email        string
	FullName     string
	Department   string
	Year         *string
	Phone        *string
	FaceURL      *string
	Status       string
	FaceVerified bool
	AuthProvider AuthProvider
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Admin struct {
	ID           string
	Email        string
	PasswordHash string
	FullName     string
	CreatedAt    time.Time
}
