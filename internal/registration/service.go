package registration

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"eduvision/registry/internal/model"
)

// Store is the persistence surface the state machine needs. Lookups
// report absence with pgx.ErrNoRows; decision mutations are conditioned
// on the row still being pending and report whether they won.
type Store interface {
	GetStudentByEmail(ctx context.Context, email string) (model.Profile, error)
	GetFacultyByEmail(ctx context.Context, email string) (model.Profile, error)
	GetPendingByEmail(ctx context.Context, email string) (model.PendingRegistration, error)
	GetPendingByID(ctx context.Context, id string) (model.PendingRegistration, error)
	CreatePending(ctx context.Context, reg model.PendingRegistration) error
	ReplacePending(ctx context.Context, reg model.PendingRegistration) error
	ClaimPending(ctx context.Context, id, reviewedBy string, at time.Time) (bool, error)
	RejectPending(ctx context.Context, id, reason, reviewedBy string, at time.Time) (bool, error)
	SetPendingStatus(ctx context.Context, id string, status model.RegistrationStatus) error
	SetPendingFaceURL(ctx context.Context, email, faceURL string) (bool, error)
	DeletePending(ctx context.Context, id string) error
	CreateProfile(ctx context.Context, role model.Role, profile model.Profile) error
	ListPending(ctx context.Context, limit int) ([]model.PendingRegistration, error)
	CountProfiles(ctx context.Context, role model.Role) (int64, error)
	GetAdminByEmail(ctx context.Context, email string) (model.Admin, error)
}

// Service implements the registration approval state machine: state
// lookup, submission, and admin decisions.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// LookupState resolves the lifecycle state for an email. Active tables
// are checked before the pending table on purpose: after a partial
// approval (profile written, pending delete failed) the stale pending
// row must not shadow the active account.
func (s *Service) LookupState(ctx context.Context, email string) (State, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return State{}, invalid("missing_email")
	}

	if _, err := s.store.GetStudentByEmail(ctx, email); err == nil {
		return State{Kind: StateActive, Role: model.RoleStudent}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return State{}, storeErr("lookup student", err)
	}

	if _, err := s.store.GetFacultyByEmail(ctx, email); err == nil {
		return State{Kind: StateActive, Role: model.RoleFaculty}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return State{}, storeErr("lookup faculty", err)
	}

	pending, err := s.store.GetPendingByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return State{Kind: StateUnregistered}, nil
		}
		return State{}, storeErr("lookup pending", err)
	}

	state := State{Kind: StatePending, SubStatus: model.StatusPending}
	if pending.Status == model.StatusRejected {
		state.SubStatus = model.StatusRejected
		state.RejectionReason = pending.RejectionReason
	}
	return state, nil
}

// Submission is the registration form payload.
type Submission struct {
	Email        string
	Name         string
	Phone        string
	Department   string
	Year         string
	Role         string
	FaceURL      string
	AuthProvider string
}

type SubmitOutcome string

const (
	OutcomePending         SubmitOutcome = "pending"
	OutcomeAlreadyPending  SubmitOutcome = "already_pending"
	OutcomeAlreadyApproved SubmitOutcome = "already_approved"
)

type SubmitResult struct {
	Outcome SubmitOutcome
	ID      string
}

// Submit validates and records a registration request. The operation is
// idempotent per email: repeated submissions never create a second row,
// and a rejected registration is overwritten back to pending.
func (s *Service) Submit(ctx context.Context, sub Submission) (SubmitResult, error) {
	email := NormalizeEmail(sub.Email)
	if email == "" || !strings.Contains(email, "@") {
		return SubmitResult{}, invalid("invalid_email")
	}
	name := strings.TrimSpace(sub.Name)
	if name == "" {
		return SubmitResult{}, invalid("name_required")
	}
	department := strings.TrimSpace(sub.Department)
	if department == "" {
		return SubmitResult{}, invalid("department_required")
	}
	role, ok := model.ParseRole(strings.TrimSpace(sub.Role))
	if !ok {
		return SubmitResult{}, invalid("invalid_role")
	}
	year := strings.TrimSpace(sub.Year)
	if role == model.RoleStudent && year == "" {
		return SubmitResult{}, invalid("year_required")
	}

	if _, err := s.store.GetStudentByEmail(ctx, email); err == nil {
		return SubmitResult{Outcome: OutcomeAlreadyApproved}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return SubmitResult{}, storeErr("lookup student", err)
	}
	if _, err := s.store.GetFacultyByEmail(ctx, email); err == nil {
		return SubmitResult{Outcome: OutcomeAlreadyApproved}, nil
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return SubmitResult{}, storeErr("lookup faculty", err)
	}

	reg := model.PendingRegistration{
		Email:        email,
		Name:         name,
		Department:   NormalizeDepartment(department),
		Role:         role,
		Status:       model.StatusPending,
		SubmittedAt:  s.now().UTC(),
		AuthProvider: parseProvider(sub.AuthProvider),
	}
	if role == model.RoleStudent {
		label := NormalizeYear(year)
		reg.Year = &label
	}
	if phone := strings.TrimSpace(sub.Phone); phone != "" {
		reg.Phone = &phone
	}
	if faceURL := strings.TrimSpace(sub.FaceURL); faceURL != "" {
		reg.FaceURL = &faceURL
	}

	existing, err := s.store.GetPendingByEmail(ctx, email)
	if err == nil {
		switch existing.Status {
		case model.StatusPending:
			return SubmitResult{Outcome: OutcomeAlreadyPending, ID: existing.ID}, nil
		case model.StatusApproved:
			return SubmitResult{Outcome: OutcomeAlreadyApproved, ID: existing.ID}, nil
		default:
			reg.ID = existing.ID
			if err := s.store.ReplacePending(ctx, reg); err != nil {
				return SubmitResult{}, storeErr("replace pending", err)
			}
			return SubmitResult{Outcome: OutcomePending, ID: existing.ID}, nil
		}
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return SubmitResult{}, storeErr("lookup pending", err)
	}

	reg.ID = uuid.NewString()
	if err := s.store.CreatePending(ctx, reg); err != nil {
		return SubmitResult{}, storeErr("create pending", err)
	}
	return SubmitResult{Outcome: OutcomePending, ID: reg.ID}, nil
}

const (
	ActionApprove = "approve"
	ActionReject  = "reject"
)

// Decision is an admin's resolution of a pending registration.
type Decision struct {
	Action          string
	RejectionReason string
	ReviewedBy      string
}

// Decide resolves a pending registration. Approval writes the active
// profile before the pending row is touched for deletion; a failed
// profile insert leaves the user pending, while a failed delete after a
// successful insert is logged and absorbed (the active tables win every
// lookup, so the stale row is harmless until the reconciler sweeps it).
func (s *Service) Decide(ctx context.Context, id string, decision Decision) (model.PendingRegistration, error) {
	if decision.Action != ActionApprove && decision.Action != ActionReject {
		return model.PendingRegistration{}, invalid("invalid_action")
	}

	reg, err := s.store.GetPendingByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.PendingRegistration{}, ErrNotFound
		}
		return model.PendingRegistration{}, storeErr("lookup pending", err)
	}
	if reg.Status != model.StatusPending {
		return model.PendingRegistration{}, ErrAlreadyDecided
	}

	now := s.now().UTC()

	if decision.Action == ActionReject {
		won, err := s.store.RejectPending(ctx, id, decision.RejectionReason, decision.ReviewedBy, now)
		if err != nil {
			return model.PendingRegistration{}, storeErr("reject pending", err)
		}
		if !won {
			return model.PendingRegistration{}, ErrAlreadyDecided
		}
		reg.Status = model.StatusRejected
		if decision.RejectionReason != "" {
			reason := decision.RejectionReason
			reg.RejectionReason = &reason
		}
		return reg, nil
	}

	won, err := s.store.ClaimPending(ctx, id, decision.ReviewedBy, now)
	if err != nil {
		return model.PendingRegistration{}, storeErr("claim pending", err)
	}
	if !won {
		return model.PendingRegistration{}, ErrAlreadyDecided
	}

	profile := model.Profile{
		ID:           uuid.NewString(),
		Email:        reg.Email,
		FullName:     reg.Name,
		Department:   reg.Department,
		Year:         reg.Year,
		Phone:        reg.Phone,
		FaceURL:      reg.FaceURL,
		Status:       "active",
		FaceVerified: true,
		AuthProvider: reg.AuthProvider,
		CreatedAt:    reg.SubmittedAt,
		UpdatedAt:    now,
	}
	if err := s.store.CreateProfile(ctx, reg.Role, profile); err != nil {
		if revertErr := s.store.SetPendingStatus(ctx, id, model.StatusPending); revertErr != nil {
			log.Printf("approval revert failed for %s: %v", reg.Email, revertErr)
		}
		return model.PendingRegistration{}, storeErr("create profile", err)
	}
	if err := s.store.DeletePending(ctx, id); err != nil {
		log.Printf("partial approval for %s: pending row not deleted: %v", reg.Email, err)
	}

	reg.Status = model.StatusApproved
	return reg, nil
}

// AttachFace stores a captured face image URL on the pending row.
func (s *Service) AttachFace(ctx context.Context, email, faceURL string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return invalid("missing_email")
	}
	if strings.TrimSpace(faceURL) == "" {
		return invalid("missing_face_url")
	}
	updated, err := s.store.SetPendingFaceURL(ctx, email, faceURL)
	if err != nil {
		return storeErr("set face url", err)
	}
	if !updated {
		return ErrNotFound
	}
	return nil
}

func parseProvider(value string) model.AuthProvider {
	if model.AuthProvider(strings.TrimSpace(value)) == model.ProviderGoogle {
		return model.ProviderGoogle
	}
	return model.ProviderEmail
}
