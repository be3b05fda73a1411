package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eduvision/registry/internal/auth"
	"eduvision/registry/internal/clients"
	"eduvision/registry/internal/config"
	"eduvision/registry/internal/crypto"
	"eduvision/registry/internal/events"
	"eduvision/registry/internal/model"
	"eduvision/registry/internal/registration"
)

type Server struct {
	cfg       config.Config
	store     registration.Store
	svc       *registration.Service
	publisher *events.Publisher
	faces     *clients.FaceGateway
}

func NewServer(cfg config.Config, store registration.Store, publisher *events.Publisher, faces *clients.FaceGateway) *Server {
	return &Server{
		cfg:       cfg,
		store:     store,
		svc:       registration.NewService(store),
		publisher: publisher,
		faces:     faces,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/registrations", s.handleSubmitRegistration)
	r.Get("/registrations/status", s.handleRegistrationStatus)
	r.Post("/registrations/face", s.handleAttachFace)

	r.Post("/admin/login", s.handleAdminLogin)
	r.With(s.authMiddleware, s.requireAdmin).Get("/admin/registrations", s.handleListRegistrations)
	r.With(s.authMiddleware, s.requireAdmin).Post("/admin/registrations/{registrationId}/decide", s.handleDecideRegistration)

	return r
}

type submitRequest struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Department   string `json:"department"`
	Year         string `json:"year"`
	Role         string `json:"role"`
	FaceURL      string `json:"faceUrl"`
	AuthProvider string `json:"authProvider"`
}

type submitResponse struct {
	Status string `json:"status"`
	ID     string `json:"id,omitempty"`
}

func (s *Server) handleSubmitRegistration(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	result, err := s.svc.Submit(r.Context(), registration.Submission{
		Email:        req.Email,
		Name:         req.Name,
		Phone:        req.Phone,
		Department:   req.Department,
		Year:         req.Year,
		Role:         req.Role,
		FaceURL:      req.FaceURL,
		AuthProvider: req.AuthProvider,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, submitResponse{Status: string(result.Outcome), ID: result.ID})
}

type statusResponse struct {
	State           string  `json:"state"`
	SubStatus       string  `json:"subStatus,omitempty"`
	Role            string  `json:"role,omitempty"`
	RejectionReason *string `json:"rejectionReason,omitempty"`
	Redirect        string  `json:"redirect"`
}

func (s *Server) handleRegistrationStatus(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if strings.TrimSpace(email) == "" {
		writeError(w, http.StatusBadRequest, "missing_email")
		return
	}

	state, err := s.svc.LookupState(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	// wait=true long-polls until the state settles (approved or
	// rejected) or the client gives up; the last observed state is
	// returned either way.
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait && !state.Settled() {
		if settled, ok := <-s.svc.Watch(r.Context(), email, s.cfg.StatusPollInterval); ok {
			state = settled
		}
	}

	resp := statusResponse{
		State:    string(state.Kind),
		Redirect: registration.RedirectFor(state),
	}
	if state.Kind == registration.StatePending {
		resp.SubStatus = string(state.SubStatus)
		resp.RejectionReason = state.RejectionReason
	}
	if state.Kind == registration.StateActive {
		resp.Role = string(state.Role)
	}
	writeJSON(w, http.StatusOK, resp)
}

type attachFaceRequest struct {
	Email string `json:"email"`
	Photo string `json:"photo"`
}

func (s *Server) handleAttachFace(w http.ResponseWriter, r *http.Request) {
	if s.faces == nil {
		writeError(w, http.StatusServiceUnavailable, "face_gateway_not_configured")
		return
	}

	var req attachFaceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Photo) == "" {
		writeError(w, http.StatusBadRequest, "missing_fields")
		return
	}

	faceURL, err := s.faces.Enroll(r.Context(), req.Email, req.Photo)
	if err != nil {
		log.Printf("face enroll failed for %s: %v", req.Email, err)
		writeError(w, http.StatusBadGateway, "face_enroll_failed")
		return
	}

	if err := s.svc.AttachFace(r.Context(), req.Email, faceURL); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "faceUrl": faceURL})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string       `json:"accessToken"`
	Admin       adminSummary `json:"admin"`
}

type adminSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing_credentials")
		return
	}

	admin, err := s.store.GetAdminByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	if err := crypto.CheckPassword(admin.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid_credentials")
		return
	}

	token, err := auth.NewAccessToken(s.cfg.JWTSecret, s.cfg.JWTIssuer, s.cfg.AdminTokenTTL, auth.Claims{
		AdminID:  admin.ID,
		Email:    admin.Email,
		UserType: "admin",
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token_error")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		Admin: adminSummary{
			ID:       admin.ID,
			Email:    admin.Email,
			FullName: admin.FullName,
		},
	})
}

type registrationSummary struct {
	ID              string  `json:"id"`
	Email           string  `json:"email"`
	Name            string  `json:"name"`
	Phone           *string `json:"phone,omitempty"`
	Department      string  `json:"department"`
	Year            *string `json:"year,omitempty"`
	Role            string  `json:"role"`
	FaceURL         *string `json:"faceUrl,omitempty"`
	Status          string  `json:"status"`
	RejectionReason *string `json:"rejectionReason,omitempty"`
	ReviewedBy      *string `json:"reviewedBy,omitempty"`
	ReviewedAt      *string `json:"reviewedAt,omitempty"`
	SubmittedAt     string  `json:"submittedAt"`
}

type listRegistrationsResponse struct {
	Registrations []registrationSummary `json:"registrations"`
	Counts        profileCounts         `json:"counts"`
}

type profileCounts struct {
	Students int64 `json:"students"`
	Faculty  int64 `json:"faculty"`
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	regs, err := s.store.ListPending(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	students, err := s.store.CountProfiles(r.Context(), model.RoleStudent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}
	faculty, err := s.store.CountProfiles(r.Context(), model.RoleFaculty)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	summaries := make([]registrationSummary, 0, len(regs))
	for _, reg := range regs {
		summaries = append(summaries, mapRegistrationSummary(reg))
	}

	writeJSON(w, http.StatusOK, listRegistrationsResponse{
		Registrations: summaries,
		Counts:        profileCounts{Students: students, Faculty: faculty},
	})
}

type decideRequest struct {
	Action          string `json:"action"`
	RejectionReason string `json:"rejectionReason"`
}

func (s *Server) handleDecideRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID := chi.URLParam(r, "registrationId")
	if registrationID == "" {
		writeError(w, http.StatusBadRequest, "missing_registration_id")
		return
	}

	var req decideRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	claims := claimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "missing_token")
		return
	}

	reg, err := s.svc.Decide(r.Context(), registrationID, registration.Decision{
		Action:          strings.TrimSpace(req.Action),
		RejectionReason: strings.TrimSpace(req.RejectionReason),
		ReviewedBy:      claims.Email,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	decision := events.Decision{
		ID:     reg.ID,
		Email:  reg.Email,
		Status: string(reg.Status),
	}
	if reg.RejectionReason != nil {
		decision.RejectionReason = *reg.RejectionReason
	}
	if err := s.publisher.PublishDecision(r.Context(), decision); err != nil {
		log.Printf("decision publish failed for %s: %v", reg.Email, err)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"status":  string(reg.Status),
	})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *registration.ValidationError
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Code)
	case errors.Is(err, registration.ErrNotFound):
		writeError(w, http.StatusNotFound, "registration_not_found")
	case errors.Is(err, registration.ErrAlreadyDecided):
		writeError(w, http.StatusConflict, "already_decided")
	case errors.Is(err, registration.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "repository_unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "server_error")
	}
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}

		claims, err := auth.ParseToken(s.cfg.JWTSecret, token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFromContext(r.Context())
		if claims == nil || claims.UserType != "admin" {
			writeError(w, http.StatusForbidden, "admin_only")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type claimsKey struct{}

func claimsFromContext(ctx context.Context) *auth.Claims {
	value := ctx.Value(claimsKey{})
	claims, _ := value.(*auth.Claims)
	return claims
}

func mapRegistrationSummary(reg model.PendingRegistration) registrationSummary {
	summary := registrationSummary{
		ID:              reg.ID,
		Email:           reg.Email,
		Name:            reg.Name,
		Phone:           reg.Phone,
		Department:      reg.Department,
		Year:            reg.Year,
		Role:            string(reg.Role),
		FaceURL:         reg.FaceURL,
		Status:          string(reg.Status),
		RejectionReason: reg.RejectionReason,
		ReviewedBy:      reg.ReviewedBy,
		SubmittedAt:     reg.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if reg.ReviewedAt != nil {
		reviewedAt := reg.ReviewedAt.UTC().Format(time.RFC3339)
		summary.ReviewedAt = &reviewedAt
	}
	return summary
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
