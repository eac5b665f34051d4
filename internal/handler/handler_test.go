package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LazarusTes/auth-portal-express/internal/cqrs"
	"github.com/LazarusTes/auth-portal-express/internal/directory"
	"github.com/LazarusTes/auth-portal-express/internal/ledger"
	"github.com/LazarusTes/auth-portal-express/internal/limits"
	"github.com/LazarusTes/auth-portal-express/internal/metrics"
	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// ---- mock implementations ----

var errNotConfigured = fmt.Errorf("not configured")

type mockCommander struct {
	signUpFn         func(cqrs.SignUpCommand) (*models.ProfileView, error)
	adminCreateFn    func(cqrs.AdminCreateUserCommand) (*models.ProfileView, error)
	decideFn         func(cqrs.DecideCommand) (*models.ProfileView, error)
	adjustBalanceFn  func(cqrs.AdjustBalanceCommand) (*ledger.Result, error)
	setLimitsFn      func(cqrs.SetLimitsCommand) (*models.ProfileView, error)
	assignRoleFn     func(cqrs.AssignRoleCommand) (*models.ProfileView, error)
	updateProfileFn  func(cqrs.UpdateProfileCommand) (*models.ProfileView, error)
	uploadDocumentFn func(cqrs.UploadDocumentCommand) (*models.ProfileView, error)
}

func (m *mockCommander) SignUp(_ context.Context, cmd cqrs.SignUpCommand) (*models.ProfileView, error) {
	if m.signUpFn != nil {
		return m.signUpFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) AdminCreateUser(_ context.Context, cmd cqrs.AdminCreateUserCommand) (*models.ProfileView, error) {
	if m.adminCreateFn != nil {
		return m.adminCreateFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) Decide(_ context.Context, cmd cqrs.DecideCommand) (*models.ProfileView, error) {
	if m.decideFn != nil {
		return m.decideFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) AdjustBalance(_ context.Context, cmd cqrs.AdjustBalanceCommand) (*ledger.Result, error) {
	if m.adjustBalanceFn != nil {
		return m.adjustBalanceFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) SetLimits(_ context.Context, cmd cqrs.SetLimitsCommand) (*models.ProfileView, error) {
	if m.setLimitsFn != nil {
		return m.setLimitsFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) AssignRole(_ context.Context, cmd cqrs.AssignRoleCommand) (*models.ProfileView, error) {
	if m.assignRoleFn != nil {
		return m.assignRoleFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) UpdateProfile(_ context.Context, cmd cqrs.UpdateProfileCommand) (*models.ProfileView, error) {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockCommander) UploadDocument(_ context.Context, cmd cqrs.UploadDocumentCommand) (*models.ProfileView, error) {
	if m.uploadDocumentFn != nil {
		return m.uploadDocumentFn(cmd)
	}
	return nil, errNotConfigured
}

type mockQuerier struct {
	listProfilesFn  func(cqrs.ListProfilesQuery) ([]models.ProfileView, error)
	getProfileFn    func(cqrs.GetProfileQuery) (*models.ProfileView, error)
	listLedgerFn    func(cqrs.ListLedgerEntriesQuery) ([]models.LedgerEntry, error)
	getLimitUsageFn func(cqrs.GetLimitUsageQuery) (*models.LimitUsageView, error)
}

func (m *mockQuerier) ListProfiles(_ context.Context, q cqrs.ListProfilesQuery) ([]models.ProfileView, error) {
	if m.listProfilesFn != nil {
		return m.listProfilesFn(q)
	}
	return nil, errNotConfigured
}
func (m *mockQuerier) GetProfile(_ context.Context, q cqrs.GetProfileQuery) (*models.ProfileView, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(q)
	}
	return nil, errNotConfigured
}
func (m *mockQuerier) ListLedgerEntries(_ context.Context, q cqrs.ListLedgerEntriesQuery) ([]models.LedgerEntry, error) {
	if m.listLedgerFn != nil {
		return m.listLedgerFn(q)
	}
	return nil, errNotConfigured
}
func (m *mockQuerier) GetLimitUsage(_ context.Context, q cqrs.GetLimitUsageQuery) (*models.LimitUsageView, error) {
	if m.getLimitUsageFn != nil {
		return m.getLimitUsageFn(q)
	}
	return nil, errNotConfigured
}

type mockAuthQuerier struct {
	loginFn  func(cqrs.LoginCommand) (*models.SessionView, error)
	logoutFn func(cqrs.LogoutCommand) error
}

func (m *mockAuthQuerier) Login(_ context.Context, cmd cqrs.LoginCommand) (*models.SessionView, error) {
	if m.loginFn != nil {
		return m.loginFn(cmd)
	}
	return nil, errNotConfigured
}
func (m *mockAuthQuerier) Logout(_ context.Context, cmd cqrs.LogoutCommand) error {
	if m.logoutFn != nil {
		return m.logoutFn(cmd)
	}
	return errNotConfigured
}

// ---- helpers ----

const testUserID = "acc-user"

func fakeAuth(c *gin.Context) {
	c.Set("userId", testUserID)
	c.Set("token", "session-token")
	c.Next()
}

func newTestRouter(cmds *mockCommander, qrys *mockQuerier, auth *mockAuthQuerier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	authH := NewAuthHandler(cmds, auth, 1024)
	accountH := NewAccountHandler(cmds, qrys, 1024)
	adminH := NewAdminHandler(cmds, qrys, 1024)

	v1 := r.Group("/v1")
	v1.POST("/auth/signup", authH.SignUp)
	v1.POST("/auth/login", authH.Login)
	v1.POST("/auth/logout", fakeAuth, authH.Logout)

	me := v1.Group("/me", fakeAuth)
	me.GET("", accountH.GetProfile)
	me.PATCH("", accountH.UpdateProfile)
	me.POST("/transfers", accountH.Transfer)
	me.PUT("/document", accountH.UploadDocument)
	me.GET("/ledger", accountH.ListLedgerEntries)
	me.GET("/limits", accountH.GetLimitUsage)

	admin := v1.Group("/admin", fakeAuth)
	admin.POST("/users", adminH.CreateUser)
	admin.GET("/profiles", adminH.ListProfiles)
	admin.GET("/profiles/:id", accountH.GetProfile)
	admin.POST("/profiles/:id/decision", adminH.Decide)
	admin.POST("/profiles/:id/balance", adminH.AdjustBalance)
	admin.PUT("/profiles/:id/limits", adminH.SetLimits)
	admin.PUT("/profiles/:id/role", adminH.AssignRole)
	return r
}

func doRequest(router *gin.Engine, method, url string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doMultipart(router *gin.Engine, method, url string, fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	if fileName != "" {
		fw, _ := mw.CreateFormFile("document", fileName)
		_, _ = fw.Write(content)
	}
	_ = mw.Close()

	req, _ := http.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func signUpBody() map[string]string {
	return map[string]string{
		"firstName":   "Ada",
		"lastName":    "Lovelace",
		"username":    "ada",
		"dateOfBirth": "1990-12-10",
		"email":       "ada@example.com",
		"password":    "correct-horse",
	}
}

func without(m map[string]string, key string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

func view(id string, status models.Status) *models.ProfileView {
	return &models.ProfileView{Profile: models.Profile{ID: id, Status: status}, Role: models.RoleUser}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

// ---- tests ----

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.ErrMissingField, http.StatusBadRequest},
		{models.ErrInvalidCredentials, http.StatusUnauthorized},
		{models.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("%w: profile x", models.ErrNotFound), http.StatusNotFound},
		{models.ErrInvalidTransition, http.StatusConflict},
		{models.ErrAccountPending, http.StatusConflict},
		{models.ErrDuplicateEmail, http.StatusConflict},
		{&models.InsufficientBalanceError{}, http.StatusUnprocessableEntity},
		{&limits.LimitExceededError{Window: limits.Daily}, http.StatusUnprocessableEntity},
		{models.StoreError("op", errors.New("down")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestSignUp(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		signUpFn       func(cqrs.SignUpCommand) (*models.ProfileView, error)
		expectedStatus int
	}{
		{
			name: "success - pending profile created",
			body: signUpBody(),
			signUpFn: func(cmd cqrs.SignUpCommand) (*models.ProfileView, error) {
				if cmd.Details.Username != "ada" || cmd.Details.DateOfBirth.Year() != 1990 || cmd.Document != nil {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				return view("acc-1", models.StatusPending), nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "bad request - missing username",
			body:           without(signUpBody(), "username"),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - malformed birth date",
			body:           func() map[string]string { b := signUpBody(); b["dateOfBirth"] = "10/12/1990"; return b }(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - short password",
			body:           func() map[string]string { b := signUpBody(); b["password"] = "abc"; return b }(),
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "conflict - username taken",
			body: signUpBody(),
			signUpFn: func(cqrs.SignUpCommand) (*models.ProfileView, error) {
				return nil, models.ErrDuplicateUsername
			},
			expectedStatus: http.StatusConflict,
		},
		{
			name: "unavailable - store down",
			body: signUpBody(),
			signUpFn: func(cqrs.SignUpCommand) (*models.ProfileView, error) {
				return nil, models.StoreError("create profile", errors.New("timeout"))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockCommander{signUpFn: tt.signUpFn}, &mockQuerier{}, &mockAuthQuerier{})
			w := doRequest(router, http.MethodPost, "/v1/auth/signup", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if w.Code == http.StatusServiceUnavailable {
				if w.Header().Get("Retry-After") == "" {
					t.Error("missing Retry-After")
				}
				if strings.Contains(w.Body.String(), "timeout") {
					t.Errorf("store error leaked: %s", w.Body.String())
				}
			}
		})
	}
}

func TestSignUp_Multipart(t *testing.T) {
	var got cqrs.SignUpCommand
	cmds := &mockCommander{signUpFn: func(cmd cqrs.SignUpCommand) (*models.ProfileView, error) {
		got = cmd
		return view("acc-1", models.StatusPending), nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	w := doMultipart(router, http.MethodPost, "/v1/auth/signup", signUpBody(), "passport.pdf", []byte("%PDF-1.4"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d; body: %s", w.Code, w.Body.String())
	}
	if got.Document == nil || got.Document.FileName != "passport.pdf" || string(got.Document.Content) != "%PDF-1.4" {
		t.Errorf("document = %+v", got.Document)
	}
	if got.Email != "ada@example.com" || got.Details.FirstName != "Ada" {
		t.Errorf("command = %+v", got)
	}

	tooBig := doMultipart(router, http.MethodPost, "/v1/auth/signup", signUpBody(), "huge.pdf", bytes.Repeat([]byte("x"), 2048))
	if tooBig.Code != http.StatusBadRequest {
		t.Errorf("oversize document: expected 400 got %d", tooBig.Code)
	}
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		loginFn        func(cqrs.LoginCommand) (*models.SessionView, error)
		expectedStatus int
	}{
		{
			name: "success - approved account gets token and role",
			body: map[string]string{"email": "ada@example.com", "password": "correct-horse"},
			loginFn: func(cqrs.LoginCommand) (*models.SessionView, error) {
				return &models.SessionView{Token: "jwt", AccountID: "acc-1", Role: models.RoleAdmin}, nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "unauthorised - invalid credentials",
			body:           map[string]string{"email": "ada@example.com", "password": "nope"},
			loginFn:        func(cqrs.LoginCommand) (*models.SessionView, error) { return nil, models.ErrInvalidCredentials },
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "conflict - pending account",
			body:           map[string]string{"email": "ada@example.com", "password": "correct-horse"},
			loginFn:        func(cqrs.LoginCommand) (*models.SessionView, error) { return nil, models.ErrAccountPending },
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "bad request - invalid email format",
			body:           map[string]string{"email": "not-an-email", "password": "x"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockCommander{}, &mockQuerier{}, &mockAuthQuerier{loginFn: tt.loginFn})
			w := doRequest(router, http.MethodPost, "/v1/auth/login", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestLogout(t *testing.T) {
	var token string
	auth := &mockAuthQuerier{logoutFn: func(cmd cqrs.LogoutCommand) error {
		token = cmd.Token
		return nil
	}}
	router := newTestRouter(&mockCommander{}, &mockQuerier{}, auth)
	w := doRequest(router, http.MethodPost, "/v1/auth/logout", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", w.Code)
	}
	if token != "session-token" {
		t.Errorf("revoked token = %q", token)
	}
}

func TestTransfer(t *testing.T) {
	entry := &models.LedgerEntry{ID: "led-1", AccountID: testUserID, Amount: decimal.NewFromInt(60), Direction: models.DirectionDebit}

	tests := []struct {
		name           string
		body           any
		adjustFn       func(cqrs.AdjustBalanceCommand) (*ledger.Result, error)
		expectedStatus int
		expectedDetail string
	}{
		{
			name: "success - debit committed",
			body: map[string]string{"amount": "60.00"},
			adjustFn: func(cmd cqrs.AdjustBalanceCommand) (*ledger.Result, error) {
				if cmd.Actor != models.ActorSelf || cmd.Direction != models.DirectionDebit || cmd.AccountID != testUserID || cmd.ActorID != testUserID {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				if cmd.IdempotencyKey != "key-1" || !cmd.Amount.Equal(decimal.NewFromInt(60)) {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				return &ledger.Result{Entry: entry}, nil
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "replay - original entry returned",
			body:           map[string]string{"amount": "60"},
			adjustFn:       func(cqrs.AdjustBalanceCommand) (*ledger.Result, error) { return &ledger.Result{Entry: entry, Replayed: true}, nil },
			expectedStatus: http.StatusOK,
		},
		{
			name: "unprocessable - daily limit",
			body: map[string]string{"amount": "60"},
			adjustFn: func(cqrs.AdjustBalanceCommand) (*ledger.Result, error) {
				return nil, &limits.LimitExceededError{Window: limits.Daily, Limit: decimal.NewFromInt(100), Used: decimal.NewFromInt(60), Requested: decimal.NewFromInt(60)}
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedDetail: "daily",
		},
		{
			name: "unprocessable - insufficient balance",
			body: map[string]string{"amount": "60"},
			adjustFn: func(cqrs.AdjustBalanceCommand) (*ledger.Result, error) {
				return nil, &models.InsufficientBalanceError{Balance: decimal.NewFromInt(10), Requested: decimal.NewFromInt(60)}
			},
			expectedStatus: http.StatusUnprocessableEntity,
			expectedDetail: "10",
		},
		{
			name:           "conflict - account not active",
			body:           map[string]string{"amount": "1"},
			adjustFn:       func(cqrs.AdjustBalanceCommand) (*ledger.Result, error) { return nil, models.ErrAccountNotActive },
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "bad request - zero amount",
			body:           map[string]string{"amount": "0"},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "bad request - non-numeric amount",
			body:           map[string]string{"amount": "lots"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockCommander{adjustBalanceFn: tt.adjustFn}, &mockQuerier{}, &mockAuthQuerier{})
			w := doRequest(router, http.MethodPost, "/v1/me/transfers", tt.body, "Idempotency-Key", "key-1")
			if w.Code != tt.expectedStatus {
				t.Fatalf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if tt.expectedDetail != "" {
				body := decodeError(t, w)
				detail, ok := body["detail"].(map[string]any)
				if !ok {
					t.Fatalf("missing detail: %v", body)
				}
				found := false
				for _, v := range detail {
					if v == tt.expectedDetail {
						found = true
					}
				}
				if !found {
					t.Errorf("detail %v does not mention %q", detail, tt.expectedDetail)
				}
			}
		})
	}
}

func TestAdminDecide(t *testing.T) {
	tests := []struct {
		name           string
		body           any
		decideFn       func(cqrs.DecideCommand) (*models.ProfileView, error)
		expectedStatus int
	}{
		{
			name: "success - approved",
			body: map[string]string{"decision": "approve"},
			decideFn: func(cmd cqrs.DecideCommand) (*models.ProfileView, error) {
				if cmd.AccountID != "acc-9" || cmd.ActorID != testUserID || cmd.Decision != models.DecisionApprove {
					return nil, fmt.Errorf("unexpected command %+v", cmd)
				}
				return view("acc-9", models.StatusApproved), nil
			},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "forbidden - caller is not admin",
			body:           map[string]string{"decision": "reject"},
			decideFn:       func(cqrs.DecideCommand) (*models.ProfileView, error) { return nil, models.ErrForbidden },
			expectedStatus: http.StatusForbidden,
		},
		{
			name:           "conflict - already decided",
			body:           map[string]string{"decision": "approve"},
			decideFn:       func(cqrs.DecideCommand) (*models.ProfileView, error) { return nil, models.ErrInvalidTransition },
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "not found - unknown account",
			body:           map[string]string{"decision": "approve"},
			decideFn:       func(cqrs.DecideCommand) (*models.ProfileView, error) { return nil, models.ErrNotFound },
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "bad request - unknown decision",
			body:           map[string]string{"decision": "maybe"},
			expectedStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&mockCommander{decideFn: tt.decideFn}, &mockQuerier{}, &mockAuthQuerier{})
			w := doRequest(router, http.MethodPost, "/v1/admin/profiles/acc-9/decision", tt.body)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestAdminAdjustBalance(t *testing.T) {
	var got cqrs.AdjustBalanceCommand
	cmds := &mockCommander{adjustBalanceFn: func(cmd cqrs.AdjustBalanceCommand) (*ledger.Result, error) {
		got = cmd
		return &ledger.Result{Entry: &models.LedgerEntry{ID: "led-1"}}, nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	w := doRequest(router, http.MethodPost, "/v1/admin/profiles/acc-9/balance", map[string]string{"amount": "60", "direction": "credit"})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d; body: %s", w.Code, w.Body.String())
	}
	if got.Actor != models.ActorAdmin || got.Direction != models.DirectionCredit || got.AccountID != "acc-9" {
		t.Errorf("command = %+v", got)
	}

	w = doRequest(router, http.MethodPost, "/v1/admin/profiles/acc-9/balance", map[string]string{"amount": "60", "direction": "refund"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad direction: expected 400 got %d", w.Code)
	}
}

func TestAdminSetLimits(t *testing.T) {
	var got models.Limits
	cmds := &mockCommander{setLimitsFn: func(cmd cqrs.SetLimitsCommand) (*models.ProfileView, error) {
		got = cmd.Limits
		return view(cmd.AccountID, models.StatusApproved), nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	w := doRequest(router, http.MethodPut, "/v1/admin/profiles/acc-9/limits", map[string]any{"daily": "50", "weekly": nil})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d; body: %s", w.Code, w.Body.String())
	}
	if got.Daily == nil || !got.Daily.Equal(decimal.NewFromInt(50)) || got.Weekly != nil || got.Monthly != nil {
		t.Errorf("limits = %+v, want {daily: 50}", got)
	}

	w = doRequest(router, http.MethodPut, "/v1/admin/profiles/acc-9/limits", map[string]any{"monthly": "a lot"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric cap: expected 400 got %d", w.Code)
	}
}

func TestAdminAssignRole(t *testing.T) {
	cmds := &mockCommander{assignRoleFn: func(cmd cqrs.AssignRoleCommand) (*models.ProfileView, error) {
		v := view(cmd.AccountID, models.StatusApproved)
		v.Role = cmd.Role
		return v, nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	if w := doRequest(router, http.MethodPut, "/v1/admin/profiles/acc-9/role", map[string]string{"role": "admin"}); w.Code != http.StatusOK {
		t.Errorf("expected 200 got %d", w.Code)
	}
	if w := doRequest(router, http.MethodPut, "/v1/admin/profiles/acc-9/role", map[string]string{"role": "Admin"}); w.Code != http.StatusBadRequest {
		t.Errorf("case-variant role: expected 400 got %d", w.Code)
	}
}

func TestAdminCreateUser(t *testing.T) {
	var got cqrs.AdminCreateUserCommand
	cmds := &mockCommander{adminCreateFn: func(cmd cqrs.AdminCreateUserCommand) (*models.ProfileView, error) {
		got = cmd
		return &models.ProfileView{Profile: models.Profile{ID: "acc-2", Status: models.StatusApproved}, Role: cmd.Role}, nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	body := signUpBody()
	body["role"] = "admin"
	w := doRequest(router, http.MethodPost, "/v1/admin/users", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d; body: %s", w.Code, w.Body.String())
	}
	if got.Role != models.RoleAdmin || got.ActorID != testUserID {
		t.Errorf("command = %+v", got)
	}
	var created models.ProfileView
	_ = json.Unmarshal(w.Body.Bytes(), &created)
	if created.Status != models.StatusApproved || created.Role != models.RoleAdmin {
		t.Errorf("response = %+v", created)
	}
}

func TestProfileReads(t *testing.T) {
	var targets []string
	qrys := &mockQuerier{
		getProfileFn: func(q cqrs.GetProfileQuery) (*models.ProfileView, error) {
			targets = append(targets, q.AccountID)
			if q.AccountID == "missing" {
				return nil, models.ErrNotFound
			}
			return view(q.AccountID, models.StatusApproved), nil
		},
		listProfilesFn: func(cqrs.ListProfilesQuery) ([]models.ProfileView, error) {
			return []models.ProfileView{*view("a", models.StatusPending), *view("b", models.StatusApproved)}, nil
		},
		listLedgerFn: func(q cqrs.ListLedgerEntriesQuery) ([]models.LedgerEntry, error) {
			return []models.LedgerEntry{{ID: "led-2"}, {ID: "led-1"}}, nil
		},
		getLimitUsageFn: func(q cqrs.GetLimitUsageQuery) (*models.LimitUsageView, error) {
			return &models.LimitUsageView{AccountID: q.AccountID}, nil
		},
	}
	router := newTestRouter(&mockCommander{}, qrys, &mockAuthQuerier{})

	tests := []struct {
		name           string
		url            string
		expectedStatus int
		expectedBody   string
	}{
		{"own profile", "/v1/me", http.StatusOK, `"id":"acc-user"`},
		{"admin reads another profile", "/v1/admin/profiles/acc-9", http.StatusOK, `"id":"acc-9"`},
		{"unknown profile", "/v1/admin/profiles/missing", http.StatusNotFound, "not found"},
		{"list profiles", "/v1/admin/profiles", http.StatusOK, `"profiles":[`},
		{"own ledger", "/v1/me/ledger", http.StatusOK, `"entries":[{"id":"led-2"`},
		{"own limits", "/v1/me/limits", http.StatusOK, `"accountId":"acc-user"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodGet, tt.url, nil)
			if w.Code != tt.expectedStatus {
				t.Fatalf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.expectedBody) {
				t.Errorf("[%s] body %s does not contain %s", tt.name, w.Body.String(), tt.expectedBody)
			}
		})
	}
}

func TestUpdateProfile(t *testing.T) {
	var got cqrs.UpdateProfileCommand
	cmds := &mockCommander{updateProfileFn: func(cmd cqrs.UpdateProfileCommand) (*models.ProfileView, error) {
		got = cmd
		return view(cmd.AccountID, models.StatusApproved), nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	w := doRequest(router, http.MethodPatch, "/v1/me", map[string]string{"residence": "Paris", "dateOfBirth": "1991-01-02"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d; body: %s", w.Code, w.Body.String())
	}
	if got.AccountID != testUserID || got.Update.Residence == nil || *got.Update.Residence != "Paris" {
		t.Errorf("command = %+v", got)
	}
	if got.Update.DateOfBirth == nil || got.Update.DateOfBirth.Year() != 1991 || got.Update.FirstName != nil {
		t.Errorf("update = %+v", got.Update)
	}

	if w := doRequest(router, http.MethodPatch, "/v1/me", map[string]string{"dateOfBirth": "yesterday"}); w.Code != http.StatusBadRequest {
		t.Errorf("bad date: expected 400 got %d", w.Code)
	}
}

func TestUploadDocument(t *testing.T) {
	var got cqrs.UploadDocumentCommand
	cmds := &mockCommander{uploadDocumentFn: func(cmd cqrs.UploadDocumentCommand) (*models.ProfileView, error) {
		got = cmd
		v := view(cmd.AccountID, models.StatusApproved)
		v.DocumentRef = "/documents/x.png"
		return v, nil
	}}
	router := newTestRouter(cmds, &mockQuerier{}, &mockAuthQuerier{})

	w := doMultipart(router, http.MethodPut, "/v1/me/document", nil, "id.png", []byte("png"))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d; body: %s", w.Code, w.Body.String())
	}
	if got.AccountID != testUserID || got.Document.FileName != "id.png" {
		t.Errorf("command = %+v", got)
	}

	if w := doMultipart(router, http.MethodPut, "/v1/me/document", map[string]string{"note": "x"}, "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("no file: expected 400 got %d", w.Code)
	}
}

type stubVerifier struct{}

func (stubVerifier) CurrentIdentity(_ context.Context, token string) (*directory.Claims, error) {
	if token == "good" {
		return &directory.Claims{AccountID: testUserID}, nil
	}
	return nil, models.ErrInvalidToken
}

func TestNewRouter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	qrys := &mockQuerier{getProfileFn: func(q cqrs.GetProfileQuery) (*models.ProfileView, error) {
		return view(q.AccountID, models.StatusApproved), nil
	}}
	healthy := true
	router := NewRouter(RouterConfig{
		Logger:   slogDiscard(),
		Metrics:  metrics.NewCollector(),
		Verifier: stubVerifier{},
		SignUps:  &mockCommander{},
		Commands: &mockCommander{},
		Queries:  qrys,
		Auth:     &mockAuthQuerier{},
		Health: map[string]HealthChecker{
			"redis": func(context.Context) error {
				if healthy {
					return nil
				}
				return errors.New("connection refused")
			},
		},
	})

	tests := []struct {
		name           string
		url            string
		token          string
		expectedStatus int
	}{
		{"health", "/health", "", http.StatusOK},
		{"metrics", "/metrics", "", http.StatusOK},
		{"me without token", "/v1/me", "", http.StatusUnauthorized},
		{"me with bad token", "/v1/me", "bad", http.StatusUnauthorized},
		{"me with token", "/v1/me", "good", http.StatusOK},
		{"admin list requires token", "/v1/admin/profiles", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.token != "" {
				headers = []string{"Authorization", "Bearer " + tt.token}
			}
			w := doRequest(router, http.MethodGet, tt.url, nil, headers...)
			if w.Code != tt.expectedStatus {
				t.Errorf("[%s] expected %d got %d; body: %s", tt.name, tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}

	healthy = false
	if w := doRequest(router, http.MethodGet, "/health", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy: expected 503 got %d", w.Code)
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
