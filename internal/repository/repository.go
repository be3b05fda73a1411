package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"eduvision/registry/internal/model"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetStudentByEmail(ctx context.Context, email string) (model.Profile, error) {
	return s.getProfile(ctx, `
		SELECT id, email, full_name, department, year, phone, face_url, status, face_verified, auth_provider, created_at, updated_at
		FROM students
		WHERE email = $1
	`, email)
}

func (s *Store) GetFacultyByEmail(ctx context.Context, email string) (model.Profile, error) {
	return s.getProfile(ctx, `
		SELECT id, email, full_name, department, year, phone, face_url, status, face_verified, auth_provider, created_at, updated_at
		FROM faculty
		WHERE email = $1
	`, email)
}

func (s *Store) getProfile(ctx context.Context, query, email string) (model.Profile, error) {
	var profile model.Profile
	row := s.pool.QueryRow(ctx, query, email)
	err := row.Scan(
		&profile.ID,
		&profile.Email,
		&profile.FullName,
		&profile.Department,
		&profile.Year,
		&profile.Phone,
		&profile.FaceURL,
		&profile.Status,
		&profile.FaceVerified,
		&profile.AuthProvider,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	return profile, err
}

func (s *Store) GetPendingByEmail(ctx context.Context, email string) (model.PendingRegistration, error) {
	return s.getPending(ctx, `WHERE email = $1`, email)
}

func (s *Store) GetPendingByID(ctx context.Context, id string) (model.PendingRegistration, error) {
	return s.getPending(ctx, `WHERE id = $1`, id)
}

func (s *Store) getPending(ctx context.Context, where, arg string) (model.PendingRegistration, error) {
	var reg model.PendingRegistration
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, name, phone, department, year, role, face_url, status, rejection_reason, reviewed_by, reviewed_at, submitted_at, auth_provider
		FROM pending_registrations
	`+where, arg)
	err := row.Scan(
		&reg.ID,
		&reg.Email,
		&reg.Name,
		&reg.Phone,
		&reg.Department,
		&reg.Year,
		&reg.Role,
		&reg.FaceURL,
		&reg.Status,
		&reg.RejectionReason,
		&reg.ReviewedBy,
		&reg.ReviewedAt,
		&reg.SubmittedAt,
		&reg.AuthProvider,
	)
	return reg, err
}

func (s *Store) CreatePending(ctx context.Context, reg model.PendingRegistration) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pending_registrations (id, email, name, phone, department, year, role, face_url, status, submitted_at, auth_provider)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, reg.ID, reg.Email, reg.Name, reg.Phone, reg.Department, reg.Year, reg.Role, reg.FaceURL, reg.Status, reg.SubmittedAt, reg.AuthProvider)
	return err
}

// ReplacePending overwrites a decided row back to a fresh pending
// submission, clearing the previous review fields.
func (s *Store) ReplacePending(ctx context.Context, reg model.PendingRegistration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pending_registrations
		SET name = $2, phone = $3, department = $4, year = $5, role = $6, face_url = $7,
		    status = $8, rejection_reason = NULL, reviewed_by = NULL, reviewed_at = NULL,
		    submitted_at = $9, auth_provider = $10
		WHERE email = $1
	`, reg.Email, reg.Name, reg.Phone, reg.Department, reg.Year, reg.Role, reg.FaceURL, reg.Status, reg.SubmittedAt, reg.AuthProvider)
	return err
}

// ClaimPending conditionally moves a row from pending to approved.
// Zero rows affected means another decision already won.
func (s *Store) ClaimPending(ctx context.Context, id, reviewedBy string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_registrations
		SET status = $2, reviewed_by = $3, reviewed_at = $4
		WHERE id = $1 AND status = 'pending'
	`, id, model.StatusApproved, reviewedBy, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) RejectPending(ctx context.Context, id, reason, reviewedBy string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_registrations
		SET status = $2, rejection_reason = NULLIF($3, ''), reviewed_by = $4, reviewed_at = $5
		WHERE id = $1 AND status = 'pending'
	`, id, model.StatusRejected, reason, reviewedBy, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SetPendingStatus(ctx context.Context, id string, status model.RegistrationStatus) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pending_registrations SET status = $2 WHERE id = $1
	`, id, status)
	return err
}

func (s *Store) SetPendingFaceURL(ctx context.Context, email, faceURL string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE pending_registrations SET face_url = $2 WHERE email = $1
	`, email, faceURL)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) DeletePending(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM pending_registrations WHERE id = $1`, id)
	return err
}

func (s *Store) CreateProfile(ctx context.Context, role model.Role, profile model.Profile) error {
	table := "students"
	if role == model.RoleFaculty {
		table = "faculty"
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+table+` (id, email, full_name, department, year, phone, face_url, status, face_verified, auth_provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, profile.ID, profile.Email, profile.FullName, profile.Department, profile.Year, profile.Phone, profile.FaceURL, profile.Status, profile.FaceVerified, profile.AuthProvider, profile.CreatedAt, profile.UpdatedAt)
	return err
}

func (s *Store) ListPending(ctx context.Context, limit int) ([]model.PendingRegistration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, email, name, phone, department, year, role, face_url, status, rejection_reason, reviewed_by, reviewed_at, submitted_at, auth_provider
		FROM pending_registrations
		ORDER BY submitted_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []model.PendingRegistration
	for rows.Next() {
		var reg model.PendingRegistration
		if err := rows.Scan(
			&reg.ID,
			&reg.Email,
			&reg.Name,
			&reg.Phone,
			&reg.Department,
			&reg.Year,
			&reg.Role,
			&reg.FaceURL,
			&reg.Status,
			&reg.RejectionReason,
			&reg.ReviewedBy,
			&reg.ReviewedAt,
			&reg.SubmittedAt,
			&reg.AuthProvider,
		); err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

func (s *Store) CountProfiles(ctx context.Context, role model.Role) (int64, error) {
	table := "students"
	if role == model.RoleFaculty {
		table = "faculty"
	}
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+table).Scan(&count)
	return count, err
}

func (s *Store) GetAdminByEmail(ctx context.Context, email string) (model.Admin, error) {
	var admin model.Admin
	row := s.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, full_name, created_at
		FROM admins
		WHERE email = $1
	`, email)
	err := row.Scan(&admin.ID, &admin.Email, &admin.PasswordHash, &admin.FullName, &admin.CreatedAt)
	return admin, err
}

// DeleteShadowedPending removes pending rows whose email already has an
// active profile, the leftovers of approvals where the final delete
// failed.
func (s *Store) DeleteShadowedPending(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pending_registrations p
		WHERE EXISTS (SELECT 1 FROM students s WHERE s.email = p.email)
		   OR EXISTS (SELECT 1 FROM faculty f WHERE f.email = p.email)
	`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
