package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mnfit/studio-api/internal/domain"
	"mnfit/studio-api/internal/repository/memory"
	"mnfit/studio-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type testServer struct {
	router *gin.Engine
	store  *memory.Store
	clock  *service.ManualClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	clock := service.NewManualClock(time.Now().UTC().Truncate(time.Hour))
	locks := service.NewKeyedLocker()
	policy := service.Policy{WeeklyLimit: 3, Retention: 7 * 24 * time.Hour, Location: time.UTC}

	lifecycle := service.NewLifecycleService(store.Terms(), store.Bookings(), nil, clock, policy)
	router := gin.New()
	SetupRoutes(router, Services{
		// Tokens are checked against wall-clock time, so auth keeps the system clock.
		Auth:         service.NewAuthService(store.Users(), "test-secret", time.Hour, nil),
		Terms:        service.NewTermService(store.Terms(), store.Bookings(), store.Users(), lifecycle, locks, clock, policy),
		Reservations: service.NewReservationService(store.Terms(), store.Bookings(), store.Users(), lifecycle, locks, clock, policy),
		Admin:        service.NewAdminService(store.Users()),
	})
	return &testServer{router: router, store: store, clock: clock}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// account registers a user, assigns role and logs in.
func (s *testServer) account(t *testing.T, email string, role domain.Role) (token string, id string) {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"firstName": "Test", "lastName": string(role), "email": email, "password": "secret123", "password2": "secret123",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	var reg struct {
		User UserResponse `json:"user"`
	}
	decode(t, w, &reg)

	if role != domain.RoleMember {
		oid, _ := primitive.ObjectIDFromHex(reg.User.ID)
		if _, err := s.store.Users().UpdateRole(context.Background(), oid, role); err != nil {
			t.Fatalf("set role: %v", err)
		}
	}

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "secret123"})
	if w.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, w.Code, w.Body.String())
	}
	var login LoginResponse
	decode(t, w, &login)
	return login.Token, reg.User.ID
}

func (s *testServer) createTerm(t *testing.T, token string, start time.Time, capacity int) TermResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/terms", token, gin.H{
		"capacity": capacity, "startsAt": start, "endsAt": start.Add(2 * time.Hour), "workoutDescription": "circuit",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create term: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Term TermResponse `json:"term"`
	}
	decode(t, w, &resp)
	return resp.Term
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	decode(t, w, &body)
	if body.Error == "" {
		t.Errorf("error body without message: %s", w.Body.String())
	}
	return body.Code
}

func TestPingHealthAndRequestID(t *testing.T) {
	s := newTestServer(t)

	if w := s.do(t, http.MethodGet, "/ping", "", nil); w.Code != http.StatusOK {
		t.Fatalf("ping = %d", w.Code)
	}
	w := s.do(t, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
	if w.Header().Get(RequestIDHeader) == "" {
		t.Error("no request id on response")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request id = %q, want caller's id", got)
	}
}

func TestHealthReportsBackendFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", healthHandler(func(ctx context.Context) error { return context.DeadlineExceeded }))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health = %d, want 503", w.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	token, id := s.account(t, "Mia@Example.com ", domain.RoleMember)

	w := s.do(t, http.MethodGet, "/api/v1/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("me = %d %s", w.Code, w.Body.String())
	}
	var me struct {
		User UserResponse `json:"user"`
	}
	decode(t, w, &me)
	if me.User.ID != id || me.User.Email != "mia@example.com" || me.User.Role != domain.RoleMember {
		t.Errorf("me = %+v", me.User)
	}

	tests := []struct {
		name     string
		path     string
		body     gin.H
		wantCode int
		wantErr  string
	}{
		{"duplicate email", "/api/v1/auth/register", gin.H{"firstName": "A", "lastName": "B", "email": "mia@example.com", "password": "x"}, http.StatusConflict, "email_in_use"},
		{"missing fields", "/api/v1/auth/register", gin.H{"email": "new@example.com", "password": "x"}, http.StatusBadRequest, "invalid_input"},
		{"password mismatch", "/api/v1/auth/register", gin.H{"firstName": "A", "lastName": "B", "email": "n@example.com", "password": "x", "password2": "y"}, http.StatusBadRequest, ""},
		{"wrong password", "/api/v1/auth/login", gin.H{"email": "mia@example.com", "password": "nope"}, http.StatusUnauthorized, ""},
		{"unknown user", "/api/v1/auth/login", gin.H{"email": "ghost@example.com", "password": "secret123"}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantErr {
				t.Errorf("code = %q, want %q", code, tt.wantErr)
			}
		})
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	s := newTestServer(t)
	memberToken, _ := s.account(t, "m@example.com", domain.RoleMember)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"valid token", "Bearer " + memberToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/terms", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRoleRoutes(t *testing.T) {
	s := newTestServer(t)
	member, _ := s.account(t, "member@example.com", domain.RoleMember)
	trainer, _ := s.account(t, "trainer@example.com", domain.RoleTrainer)
	start := s.clock.Now().Add(48 * time.Hour)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   gin.H
		want   int
	}{
		{"member cannot create", http.MethodPost, "/api/v1/terms", member, gin.H{"capacity": 5, "startsAt": start, "endsAt": start.Add(time.Hour)}, http.StatusForbidden},
		{"trainer cannot generate", http.MethodPost, "/api/v1/terms/generate-week", trainer, gin.H{"daysOfWeek": []int{1}, "termsPerDay": 2}, http.StatusForbidden},
		{"trainer cannot list users", http.MethodGet, "/api/v1/admin/users", trainer, nil, http.StatusForbidden},
		{"member cannot see roster", http.MethodGet, "/api/v1/terms/" + primitive.NewObjectID().Hex() + "/bookings", member, nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := s.do(t, tt.method, tt.path, tt.token, tt.body); w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestRoleChangeAppliesToIssuedToken(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.account(t, "admin@example.com", domain.RoleAdmin)
	token, id := s.account(t, "promoted@example.com", domain.RoleMember)
	start := s.clock.Now().Add(48 * time.Hour)
	body := gin.H{"capacity": 5, "startsAt": start, "endsAt": start.Add(time.Hour)}

	if w := s.do(t, http.MethodPost, "/api/v1/terms", token, body); w.Code != http.StatusForbidden {
		t.Fatalf("before promotion: %d", w.Code)
	}
	w := s.do(t, http.MethodPatch, "/api/v1/admin/users/"+id+"/role", admin, gin.H{"role": "trainer"})
	if w.Code != http.StatusOK {
		t.Fatalf("change role: %d %s", w.Code, w.Body.String())
	}
	if w := s.do(t, http.MethodPost, "/api/v1/terms", token, body); w.Code != http.StatusCreated {
		t.Fatalf("after promotion: %d %s", w.Code, w.Body.String())
	}
}

func TestBookingLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	trainer, _ := s.account(t, "trainer@example.com", domain.RoleTrainer)
	member, memberID := s.account(t, "member@example.com", domain.RoleMember)
	term := s.createTerm(t, trainer, s.clock.Now().Add(48*time.Hour), 2)

	w := s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID})
	if w.Code != http.StatusCreated {
		t.Fatalf("join: %d %s", w.Code, w.Body.String())
	}
	var joined struct {
		Booking BookingResponse `json:"booking"`
	}
	decode(t, w, &joined)
	if joined.Booking.UserID != memberID || joined.Booking.Status != domain.BookingActive {
		t.Errorf("booking = %+v", joined.Booking)
	}

	w = s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID})
	if w.Code != http.StatusConflict || errorCode(t, w) != "already_booked" {
		t.Fatalf("second join: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/terms", member, nil)
	var list struct {
		Terms []TermResponse `json:"terms"`
	}
	decode(t, w, &list)
	if len(list.Terms) != 1 || list.Terms[0].BookedCount == nil || *list.Terms[0].BookedCount != 1 {
		t.Fatalf("terms = %s", w.Body.String())
	}
	if list.Terms[0].TrainerName != "Test trainer" {
		t.Errorf("trainer name = %q", list.Terms[0].TrainerName)
	}

	w = s.do(t, http.MethodPost, "/api/v1/bookings/cancel-by-term/"+term.ID, member, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	w = s.do(t, http.MethodPost, "/api/v1/bookings/cancel-by-term/"+term.ID, member, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("second cancel: %d", w.Code)
	}

	// Rejoining reactivates the same booking.
	w = s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("rejoin: %d %s", w.Code, w.Body.String())
	}
	var rejoined struct {
		Booking BookingResponse `json:"booking"`
	}
	decode(t, w, &rejoined)
	if rejoined.Booking.ID != joined.Booking.ID {
		t.Errorf("rejoin created booking %s, want %s", rejoined.Booking.ID, joined.Booking.ID)
	}

	w = s.do(t, http.MethodGet, "/api/v1/bookings/mine", member, nil)
	var mine struct {
		Bookings []MyBookingResponse `json:"bookings"`
	}
	decode(t, w, &mine)
	if len(mine.Bookings) != 1 || mine.Bookings[0].Term.ID != term.ID {
		t.Fatalf("mine = %s", w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/v1/terms/"+term.ID+"/cancel", trainer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("cancel term: %d %s", w.Code, w.Body.String())
	}
	var cancelled struct {
		Term              TermResponse `json:"term"`
		BookingsCancelled int64        `json:"bookingsCancelled"`
	}
	decode(t, w, &cancelled)
	if cancelled.Term.Status != domain.TermCancelled || cancelled.BookingsCancelled != 1 {
		t.Errorf("cancel term = %+v", cancelled)
	}

	w = s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID})
	if w.Code != http.StatusConflict || errorCode(t, w) != "term_not_joinable" {
		t.Fatalf("join cancelled term: %d %s", w.Code, w.Body.String())
	}
}

func TestRosterRemoveAndRestore(t *testing.T) {
	s := newTestServer(t)
	trainer, _ := s.account(t, "trainer@example.com", domain.RoleTrainer)
	member, memberID := s.account(t, "member@example.com", domain.RoleMember)
	term := s.createTerm(t, trainer, s.clock.Now().Add(48*time.Hour), 3)

	if w := s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID}); w.Code != http.StatusCreated {
		t.Fatalf("join: %d", w.Code)
	}

	w := s.do(t, http.MethodGet, "/api/v1/terms/"+term.ID+"/bookings", trainer, nil)
	var roster struct {
		Bookings []RosterEntryResponse `json:"bookings"`
	}
	decode(t, w, &roster)
	if len(roster.Bookings) != 1 || roster.Bookings[0].MemberEmail != "member@example.com" {
		t.Fatalf("roster = %s", w.Body.String())
	}

	base := "/api/v1/terms/" + term.ID + "/bookings/" + memberID
	if w := s.do(t, http.MethodPost, base+"/remove", trainer, nil); w.Code != http.StatusOK {
		t.Fatalf("remove: %d %s", w.Code, w.Body.String())
	}

	// A member cannot undo a removal by staff.
	w = s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID})
	if w.Code != http.StatusConflict || errorCode(t, w) != "term_cancelled" {
		t.Fatalf("member rejoin: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, base+"/restore", trainer, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("restore: %d %s", w.Code, w.Body.String())
	}
	var restored struct {
		Booking BookingResponse `json:"booking"`
	}
	decode(t, w, &restored)
	if restored.Booking.Status != domain.BookingActive || restored.Booking.CancelledAt != nil {
		t.Errorf("restored = %+v", restored.Booking)
	}

	if w := s.do(t, http.MethodPost, "/api/v1/terms/"+term.ID+"/bookings/not-an-id/remove", trainer, nil); w.Code != http.StatusBadRequest {
		t.Errorf("bad user id = %d", w.Code)
	}
}

func TestTermEndpoints(t *testing.T) {
	s := newTestServer(t)
	trainer, _ := s.account(t, "trainer@example.com", domain.RoleTrainer)
	other, _ := s.account(t, "other@example.com", domain.RoleTrainer)
	start := s.clock.Now().Add(72 * time.Hour)
	term := s.createTerm(t, trainer, start, 4)

	w := s.do(t, http.MethodGet, "/api/v1/terms/"+term.ID, other, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get: %d", w.Code)
	}

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     gin.H
		wantCode int
		wantErr  string
	}{
		{"malformed id", http.MethodGet, "/api/v1/terms/xyz", trainer, nil, http.StatusBadRequest, ""},
		{"unknown id", http.MethodGet, "/api/v1/terms/" + primitive.NewObjectID().Hex(), trainer, nil, http.StatusNotFound, "term_not_found"},
		{"overlap", http.MethodPost, "/api/v1/terms", other, gin.H{"capacity": 3, "startsAt": start.Add(time.Hour), "endsAt": start.Add(3 * time.Hour)}, http.StatusConflict, "term_overlap"},
		{"bad range", http.MethodPost, "/api/v1/terms", trainer, gin.H{"capacity": 3, "startsAt": start.Add(9 * time.Hour), "endsAt": start.Add(8 * time.Hour)}, http.StatusBadRequest, "invalid_input"},
		{"missing times", http.MethodPost, "/api/v1/terms", trainer, gin.H{"capacity": 3}, http.StatusBadRequest, ""},
		{"foreign trainer edits", http.MethodPatch, "/api/v1/terms/" + term.ID, other, gin.H{"capacity": 9}, http.StatusForbidden, "forbidden"},
		{"trainer changes trainerId", http.MethodPatch, "/api/v1/terms/" + term.ID, trainer, gin.H{"trainerId": primitive.NewObjectID().Hex()}, http.StatusForbidden, "forbidden"},
		{"bad trainerId", http.MethodPatch, "/api/v1/terms/" + term.ID, trainer, gin.H{"trainerId": "nope"}, http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if code := errorCode(t, w); code != tt.wantErr {
				t.Errorf("code = %q, want %q", code, tt.wantErr)
			}
		})
	}

	w = s.do(t, http.MethodPatch, "/api/v1/terms/"+term.ID, trainer, gin.H{"capacity": 9, "workoutDescription": "  legs  "})
	if w.Code != http.StatusOK {
		t.Fatalf("patch: %d %s", w.Code, w.Body.String())
	}
	var patched struct {
		Term TermResponse `json:"term"`
	}
	decode(t, w, &patched)
	if patched.Term.Capacity != 9 || patched.Term.WorkoutDescription != "legs" || !patched.Term.StartsAt.Equal(start) {
		t.Errorf("patched = %+v", patched.Term)
	}

	if w := s.do(t, http.MethodDelete, "/api/v1/terms/"+term.ID, trainer, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/v1/terms/"+term.ID, trainer, nil); w.Code != http.StatusNotFound {
		t.Fatalf("get after delete: %d", w.Code)
	}
}

func TestGenerateWeekOverHTTP(t *testing.T) {
	s := newTestServer(t)
	admin, _ := s.account(t, "admin@example.com", domain.RoleAdmin)

	w := s.do(t, http.MethodPost, "/api/v1/terms/generate-week", admin, gin.H{
		"daysOfWeek": []int{1, 3, 9}, "termsPerDay": 2, "workoutDescription": "HIIT",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("generate: %d %s", w.Code, w.Body.String())
	}
	var resp GenerateWeekResponse
	decode(t, w, &resp)
	if resp.InsertedCount != 4 || resp.SkippedCount != 1 || resp.Skipped[0].Reason != service.SkipInvalidDay {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.WeekStart.Weekday() != time.Monday || !resp.WeekStart.After(s.clock.Now()) {
		t.Errorf("week start = %s", resp.WeekStart)
	}
	for _, term := range resp.Terms {
		if term.Capacity != service.DefaultGenerateCapacity || term.Status != domain.TermScheduled {
			t.Errorf("term = %+v", term)
		}
	}

	// Running the same batch again collides with every slot.
	w = s.do(t, http.MethodPost, "/api/v1/terms/generate-week", admin, gin.H{"daysOfWeek": []int{1, 3}, "termsPerDay": 2})
	decode(t, w, &resp)
	if resp.InsertedCount != 0 || resp.SkippedCount != 4 {
		t.Fatalf("second run = %+v", resp)
	}

	w = s.do(t, http.MethodPost, "/api/v1/terms/generate-week", admin, gin.H{"daysOfWeek": []int{1}, "termsPerDay": 5})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad template: %d", w.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	s := newTestServer(t)
	admin, adminID := s.account(t, "admin@example.com", domain.RoleAdmin)
	_, memberID := s.account(t, "member@example.com", domain.RoleMember)

	w := s.do(t, http.MethodGet, "/api/v1/admin/users", admin, nil)
	var users struct {
		Users []UserResponse `json:"users"`
	}
	decode(t, w, &users)
	if len(users.Users) != 2 {
		t.Fatalf("users = %s", w.Body.String())
	}

	tests := []struct {
		name     string
		id       string
		role     string
		wantCode int
		wantErr  string
	}{
		{"promote", memberID, "subscriber", http.StatusOK, ""},
		{"invalid role", memberID, "owner", http.StatusBadRequest, "invalid_input"},
		{"own demotion", adminID, "trainer", http.StatusConflict, "own_admin_role"},
		{"unknown user", primitive.NewObjectID().Hex(), "trainer", http.StatusNotFound, "user_not_found"},
		{"malformed id", "123", "trainer", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPatch, "/api/v1/admin/users/"+tt.id+"/role", admin, gin.H{"role": tt.role})
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.wantCode, w.Body.String())
			}
			if tt.wantCode == http.StatusOK {
				return
			}
			if code := errorCode(t, w); code != tt.wantErr {
				t.Errorf("code = %q, want %q", code, tt.wantErr)
			}
		})
	}
}

func TestMoveTermOverMembersWeeklyLimit(t *testing.T) {
	s := newTestServer(t)
	// Wednesday 14 October 2026.
	wednesday := time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)
	s.clock.Set(wednesday)
	trainer, _ := s.account(t, "trainer@example.com", domain.RoleTrainer)
	member, _ := s.account(t, "member@example.com", domain.RoleMember)

	// Thursday to Saturday, then Monday of the next week.
	var monday TermResponse
	for _, days := range []int{1, 2, 3, 5} {
		term := s.createTerm(t, trainer, wednesday.AddDate(0, 0, days), 5)
		if w := s.do(t, http.MethodPost, "/api/v1/bookings", member, gin.H{"termId": term.ID}); w.Code != http.StatusCreated {
			t.Fatalf("join: %d %s", w.Code, w.Body.String())
		}
		monday = term
	}

	saturday := wednesday.AddDate(0, 0, 3).Add(5 * time.Hour)
	w := s.do(t, http.MethodPatch, "/api/v1/terms/"+monday.ID, trainer, gin.H{
		"startsAt": saturday, "endsAt": saturday.Add(2 * time.Hour),
	})
	if w.Code != http.StatusConflict || errorCode(t, w) != "weekly_limit_on_move" {
		t.Fatalf("move: %d %s", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/api/v1/terms/"+monday.ID, member, nil)
	var got struct {
		Term TermResponse `json:"term"`
	}
	decode(t, w, &got)
	if !got.Term.StartsAt.Equal(monday.StartsAt) {
		t.Fatalf("startsAt = %s, want unchanged %s", got.Term.StartsAt, monday.StartsAt)
	}
}
