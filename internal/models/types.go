// internal/models/types.go
package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

type VerificationStatus string

const (
	StatusPending   VerificationStatus = "pending"
	StatusApproved  VerificationStatus = "approved"
	StatusRejected  VerificationStatus = "rejected"
	StatusSuspended VerificationStatus = "suspended"
)

// PlatformRole is the role a user holds on the platform itself,
// as opposed to their role inside a business.
type PlatformRole string

const (
	RoleAdmin    PlatformRole = "admin"
	RoleProvider PlatformRole = "provider"
	RoleCustomer PlatformRole = "customer"
)

type MemberRole string

const (
	MemberRoleOwner      MemberRole = "owner"
	MemberRoleDispatcher MemberRole = "dispatcher"
	MemberRoleProvider   MemberRole = "provider"
)

type ApplicationStatus string

const (
	ApplicationSubmitted ApplicationStatus = "submitted"
	ApplicationApproved  ApplicationStatus = "approved"
	ApplicationRejected  ApplicationStatus = "rejected"
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrBusinessNotFound = errors.New("business not found")
	ErrOwnerNotFound    = errors.New("owner not found")
	ErrStateConflict    = errors.New("business is not in an approvable state")
)

type User struct {
	ID    uuid.UUID
	Email string
	Name  string
	Role  PlatformRole
}

type Business struct {
	ID                 uuid.UUID
	Name               string
	ContactEmail       string
	Phone              string
	VerificationStatus VerificationStatus
	ActivatedAt        time.Time
	ActivatedBy        uuid.UUID
	Notes              string
}

// Member is a user's membership in a business, with the contact details
// the business keeps on file for them.
type Member struct {
	BusinessID uuid.UUID
	UserID     uuid.UUID
	Role       MemberRole
	Email      string
	FirstName  string
	LastName   string
}

func (m Member) FullName() string {
	switch {
	case m.FirstName != "" && m.LastName != "":
		return m.FirstName + " " + m.LastName
	case m.FirstName != "":
		return m.FirstName
	default:
		return m.LastName
	}
}

type Application struct {
	ID         uuid.UUID
	BusinessID uuid.UUID
	Status     ApplicationStatus
	ApprovedAt time.Time
	ApprovedBy uuid.UUID
	Notes      string
}

// Activation is what approve_and_activate reports back once it has committed.
type Activation struct {
	Committed      bool               `json:"committed"`
	BusinessID     uuid.UUID          `json:"business_id"`
	PreviousStatus VerificationStatus `json:"previous_status,omitempty"`
	Status         VerificationStatus `json:"status"`
	ActivatedAt    time.Time          `json:"activated_at"`
	ActivatedBy    uuid.UUID          `json:"activated_by"`
	Result         json.RawMessage    `json:"result,omitempty"`
}

type ApprovalRecord struct {
	ID             uuid.UUID
	ApplicationID  uuid.UUID
	BusinessID     uuid.UUID
	ApprovedBy     uuid.UUID
	ApprovedAt     time.Time
	Token          string
	TokenExpiresAt time.Time
	Notes          string
}

// Phase 2 entry step recorded in setup progress once approval lands.
const Phase2EntryStep = "welcome"

type SetupProgress struct {
	BusinessID        uuid.UUID
	CurrentStep       string
	Phase1Completed   bool
	Phase1CompletedAt time.Time
	UpdatedAt         time.Time
}
