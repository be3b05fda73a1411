package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"eduvision/registry/internal/model"
)

// MemoryStore is an in-process Store for local development
// (DATABASE_URL=memory) and tests. Absence is reported with
// pgx.ErrNoRows to match the Postgres store.
type MemoryStore struct {
	mu       sync.Mutex
	pending  map[string]model.PendingRegistration // by id
	students map[string]model.Profile             // by email
	faculty  map[string]model.Profile             // by email
	admins   map[string]model.Admin               // by email
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		pending:  make(map[string]model.PendingRegistration),
		students: make(map[string]model.Profile),
		faculty:  make(map[string]model.Profile),
		admins:   make(map[string]model.Admin),
	}
}

func (s *MemoryStore) GetStudentByEmail(_ context.Context, email string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile, ok := s.students[email]; ok {
		return profile, nil
	}
	return model.Profile{}, pgx.ErrNoRows
}

func (s *MemoryStore) GetFacultyByEmail(_ context.Context, email string) (model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile, ok := s.faculty[email]; ok {
		return profile, nil
	}
	return model.Profile{}, pgx.ErrNoRows
}

func (s *MemoryStore) GetPendingByEmail(_ context.Context, email string) (model.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reg := range s.pending {
		if reg.Email == email {
			return reg, nil
		}
	}
	return model.PendingRegistration{}, pgx.ErrNoRows
}

func (s *MemoryStore) GetPendingByID(_ context.Context, id string) (model.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if reg, ok := s.pending[id]; ok {
		return reg, nil
	}
	return model.PendingRegistration{}, pgx.ErrNoRows
}

func (s *MemoryStore) CreatePending(_ context.Context, reg model.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[reg.ID] = reg
	return nil
}

func (s *MemoryStore) ReplacePending(_ context.Context, reg model.PendingRegistration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, existing := range s.pending {
		if existing.Email == reg.Email {
			reg.ID = id
			reg.RejectionReason = nil
			reg.ReviewedBy = nil
			reg.ReviewedAt = nil
			s.pending[id] = reg
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (s *MemoryStore) ClaimPending(_ context.Context, id, reviewedBy string, at time.Time) (bool, error) {
	return s.transition(id, model.StatusApproved, "", reviewedBy, at)
}

func (s *MemoryStore) RejectPending(_ context.Context, id, reason, reviewedBy string, at time.Time) (bool, error) {
	return s.transition(id, model.StatusRejected, reason, reviewedBy, at)
}

func (s *MemoryStore) transition(id string, to model.RegistrationStatus, reason, reviewedBy string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.pending[id]
	if !ok || reg.Status != model.StatusPending {
		return false, nil
	}
	reg.Status = to
	if reason != "" {
		reg.RejectionReason = &reason
	}
	reg.ReviewedBy = &reviewedBy
	reg.ReviewedAt = &at
	s.pending[id] = reg
	return true, nil
}

func (s *MemoryStore) SetPendingStatus(_ context.Context, id string, status model.RegistrationStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.pending[id]
	if !ok {
		return pgx.ErrNoRows
	}
	reg.Status = status
	s.pending[id] = reg
	return nil
}

func (s *MemoryStore) SetPendingFaceURL(_ context.Context, email, faceURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, reg := range s.pending {
		if reg.Email == email {
			reg.FaceURL = &faceURL
			s.pending[id] = reg
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) DeletePending(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}

func (s *MemoryStore) CreateProfile(_ context.Context, role model.Role, profile model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == model.RoleFaculty {
		s.faculty[profile.Email] = profile
	} else {
		s.students[profile.Email] = profile
	}
	return nil
}

func (s *MemoryStore) ListPending(_ context.Context, limit int) ([]model.PendingRegistration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	regs := make([]model.PendingRegistration, 0, len(s.pending))
	for _, reg := range s.pending {
		regs = append(regs, reg)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i].SubmittedAt.After(regs[j].SubmittedAt)
	})
	if limit > 0 && len(regs) > limit {
		regs = regs[:limit]
	}
	return regs, nil
}

func (s *MemoryStore) CountProfiles(_ context.Context, role model.Role) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if role == model.RoleFaculty {
		return int64(len(s.faculty)), nil
	}
	return int64(len(s.students)), nil
}

func (s *MemoryStore) GetAdminByEmail(_ context.Context, email string) (model.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if admin, ok := s.admins[email]; ok {
		return admin, nil
	}
	return model.Admin{}, pgx.ErrNoRows
}

// PutAdmin seeds an admin account; admins are provisioned out of band.
func (s *MemoryStore) PutAdmin(admin model.Admin) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.admins[admin.Email] = admin
}

func (s *MemoryStore) DeleteShadowedPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, reg := range s.pending {
		if _, ok := s.students[reg.Email]; !ok {
			if _, ok := s.faculty[reg.Email]; !ok {
				continue
			}
		}
		delete(s.pending, id)
		removed++
	}
	return removed, nil
}
