package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"eduvision/registry/internal/auth"
	"eduvision/registry/internal/clients"
	"eduvision/registry/internal/config"
	"eduvision/registry/internal/crypto"
	"eduvision/registry/internal/model"
	"eduvision/registry/internal/registration"
	"eduvision/registry/internal/repository"
)

func testConfig() config.Config {
	return config.Config{
		JWTSecret:          "test-secret",
		JWTIssuer:          "eduvision-registry",
		AdminTokenTTL:      time.Hour,
		StatusPollInterval: 10 * time.Millisecond,
	}
}

func newTestServer(t *testing.T) (*Server, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()

	hash, err := crypto.HashPassword("letmein")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	store.PutAdmin(model.Admin{
		ID:           "admin-1",
		Email:        "admin@campus.edu",
		PasswordHash: hash,
		FullName:     "Registry Admin",
		CreatedAt:    time.Now().UTC(),
	})

	return NewServer(testConfig(), store, nil, nil), store
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var parsed map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return parsed
}

func submitBody(email string) map[string]string {
	return map[string]string{
		"email":      email,
		"name":       "Asha Verma",
		"phone":      "9876543210",
		"department": "Computer Science",
		"year":       "2",
		"role":       "student",
	}
}

func loginToken(t *testing.T, router http.Handler) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    "admin@campus.edu",
		"password": "letmein",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["accessToken"].(string)
	if token == "" {
		t.Fatalf("login returned no token")
	}
	return token
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSubmitRegistration(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["status"] != "pending" || body["id"] == "" {
		t.Fatalf("unexpected body %v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat status = %d", rec.Code)
	}
	if decodeBody(t, rec)["status"] != "already_pending" {
		t.Fatalf("unexpected repeat body %s", rec.Body.String())
	}
}

func TestSubmitRegistrationValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/registrations", "", map[string]string{"email": "nope"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "invalid_email" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRegistrationStatus(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/registrations/status", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing email status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/registrations/status?email=nobody@campus.edu", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["state"] != "unregistered" || body["redirect"] != registration.PathCompleteRegistration {
		t.Fatalf("unexpected body %v", body)
	}

	doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	rec = doJSON(t, router, http.MethodGet, "/registrations/status?email=Asha@Campus.edu", "", nil)
	body = decodeBody(t, rec)
	if body["state"] != "pending" || body["subStatus"] != "pending" || body["redirect"] != registration.PathPendingApproval {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRegistrationStatusWait(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	token := loginToken(t, router)

	rec := doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatalf("submit returned no id")
	}

	done := make(chan map[string]interface{}, 1)
	go func() {
		rec := doJSON(t, router, http.MethodGet, "/registrations/status?email=asha@campus.edu&wait=true", "", nil)
		done <- decodeBody(t, rec)
	}()

	time.Sleep(25 * time.Millisecond)
	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/"+id+"/decide", token, map[string]string{"action": "approve"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", rec.Code, rec.Body.String())
	}

	select {
	case body := <-done:
		if body["state"] != "active" || body["redirect"] != registration.PathStudentDashboard {
			t.Fatalf("unexpected body %v", body)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("long poll never returned")
	}
}

func TestAdminLoginRejectsBadCredentials(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    "admin@campus.edu",
		"password": "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/admin/login", "", map[string]string{
		"email":    "ghost@campus.edu",
		"password": "letmein",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown admin status = %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "invalid_credentials" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestAdminRoutesRequireAdminToken(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/admin/registrations", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodGet, "/admin/registrations", "garbage", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token status = %d", rec.Code)
	}

	studentToken, err := auth.NewAccessToken("test-secret", "eduvision-registry", time.Hour, auth.Claims{
		AdminID:  "user-1",
		Email:    "asha@campus.edu",
		UserType: "student",
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	rec = doJSON(t, router, http.MethodGet, "/admin/registrations", studentToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin token status = %d", rec.Code)
	}
}

func TestAdminListRegistrations(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	token := loginToken(t, router)

	doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	doJSON(t, router, http.MethodPost, "/registrations", "", map[string]string{
		"email":      "prof@campus.edu",
		"name":       "Prof Rao",
		"department": "CSE",
		"role":       "faculty",
	})

	rec := doJSON(t, router, http.MethodGet, "/admin/registrations", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	regs, ok := body["registrations"].([]interface{})
	if !ok || len(regs) != 2 {
		t.Fatalf("unexpected registrations %v", body["registrations"])
	}
	counts, ok := body["counts"].(map[string]interface{})
	if !ok || counts["students"] != float64(0) || counts["faculty"] != float64(0) {
		t.Fatalf("unexpected counts %v", body["counts"])
	}
}

func TestDecideFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	token := loginToken(t, router)

	rec := doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	id, _ := decodeBody(t, rec)["id"].(string)
	if id == "" {
		t.Fatalf("submit returned no id")
	}

	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/"+id+"/decide", token, map[string]string{"action": "approve"})
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true || body["status"] != "approved" {
		t.Fatalf("unexpected body %v", body)
	}

	rec = doJSON(t, router, http.MethodGet, "/registrations/status?email=asha@campus.edu", "", nil)
	statusBody := decodeBody(t, rec)
	if statusBody["state"] != "active" || statusBody["role"] != "student" || statusBody["redirect"] != registration.PathStudentDashboard {
		t.Fatalf("unexpected status body %v", statusBody)
	}

	// The pending row is gone, so deciding again reports not found.
	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/"+id+"/decide", token, map[string]string{"action": "reject"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second decide status = %d", rec.Code)
	}
}

func TestDecideConflictAndValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()
	token := loginToken(t, router)

	rec := doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	id, _ := decodeBody(t, rec)["id"].(string)

	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/"+id+"/decide", token, map[string]string{"action": "shelve"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad action status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/"+id+"/decide", token, map[string]string{
		"action":          "reject",
		"rejectionReason": "incomplete documents",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reject status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/"+id+"/decide", token, map[string]string{"action": "approve"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("repeat decide status = %d", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "already_decided" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/registrations/status?email=asha@campus.edu", "", nil)
	body := decodeBody(t, rec)
	if body["subStatus"] != "rejected" || body["rejectionReason"] != "incomplete documents" {
		t.Fatalf("unexpected status body %v", body)
	}

	rec = doJSON(t, router, http.MethodPost, "/admin/registrations/missing-id/decide", token, map[string]string{"action": "approve"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing id status = %d", rec.Code)
	}
}

func TestAttachFaceWithoutGateway(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doJSON(t, srv.Router(), http.MethodPost, "/registrations/face", "", map[string]string{
		"email": "asha@campus.edu",
		"photo": "ZmFrZQ==",
	})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestAttachFace(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/enroll" {
			http.NotFound(w, r)
			return
		}
		var req struct {
			Email string `json:"email"`
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Image == "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":"bad request"}`)
			return
		}
		fmt.Fprintf(w, `{"url":"https://faces.local/%s.jpg"}`, req.Email)
	}))
	defer gateway.Close()

	store := repository.NewMemoryStore()
	srv := NewServer(testConfig(), store, nil, clients.NewFaceGateway(gateway.URL, 2*time.Second))
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/registrations", "", submitBody("asha@campus.edu"))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d", rec.Code)
	}

	rec = doJSON(t, router, http.MethodPost, "/registrations/face", "", map[string]string{
		"email": "asha@campus.edu",
		"photo": "ZmFrZQ==",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["faceUrl"] != "https://faces.local/asha@campus.edu.jpg" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodPost, "/registrations/face", "", map[string]string{
		"email": "nobody@campus.edu",
		"photo": "ZmFrZQ==",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown email status = %d", rec.Code)
	}
}
