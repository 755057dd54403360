package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/contaluz/energia-system/internal/analytics"
	"github.com/contaluz/energia-system/internal/middleware"
	"github.com/contaluz/energia-system/internal/model"
	"github.com/contaluz/energia-system/internal/repository"
	"github.com/contaluz/energia-system/internal/service"
)

type stubService struct {
	registerUser *model.User
	registerErr  error

	authUser *model.User
	authErr  error

	profileUser *model.User
	profileErr  error

	updateUser *model.User
	updateErr  error

	uploadBill *model.Bill
	uploadErr  error

	bills    []model.Bill
	billsErr error

	summary    *analytics.Summary
	summaryErr error
}

func (s *stubService) RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error) {
	return s.registerUser, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, username, password string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetProfile(ctx context.Context, userID int64) (*model.User, error) {
	return s.profileUser, s.profileErr
}

func (s *stubService) UpdateProfile(ctx context.Context, userID int64, upd service.ProfileUpdate) (*model.User, error) {
	return s.updateUser, s.updateErr
}

func (s *stubService) CreateBillFromUpload(ctx context.Context, userID int64, filename string, content []byte) (*model.Bill, error) {
	return s.uploadBill, s.uploadErr
}

func (s *stubService) GetBillsByUser(ctx context.Context, userID int64) ([]model.Bill, error) {
	return s.bills, s.billsErr
}

func (s *stubService) GetAnalyticsSummary(ctx context.Context, userID int64) (*analytics.Summary, error) {
	return s.summary, s.summaryErr
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret", 15*time.Minute, 24*time.Hour)

	return NewHandler(svc, logger, auth)
}

func TestLogin_Success(t *testing.T) {
	svc := &stubService{
		authUser: &model.User{
			ID:       42,
			Username: "maria",
			UserType: model.UserTypeClient,
		},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Username: "maria",
		Password: "Senha123",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp loginResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Access == "" || resp.Refresh == "" {
		t.Fatalf("tokens missing in response: %+v", resp)
	}
	if resp.User == nil || resp.User.ID != 42 {
		t.Fatalf("unexpected user: %+v", resp.User)
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Username: "maria",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusUnauthorized)
	}

	var resp map[string]string
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] == "" {
		t.Fatal("error body without message field")
	}
}

func TestLogin_EmptyFields(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(credentialsRequest{Username: "maria"})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestRegister_Conflict(t *testing.T) {
	svc := &stubService{
		registerErr: repository.ErrUserExists,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Username: "maria",
		Email:    "maria@example.com",
		Password: "Senha123",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestRegister_ValidationMessagePassedThrough(t *testing.T) {
	svc := &stubService{
		registerErr: &service.ValidationError{Message: "Email inválido"},
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Username: "maria",
		Email:    "bad",
		Password: "Senha123",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register/", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}

	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["message"] != "Email inválido" {
		t.Fatalf("message = %q, want %q", resp["message"], "Email inválido")
	}
}

func TestProtectedEndpointsRequireAuth(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	targets := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/profile/"},
		{http.MethodPatch, "/api/auth/profile/"},
		{http.MethodGet, "/api/bills/"},
		{http.MethodPost, "/api/bills/upload/"},
		{http.MethodGet, "/api/analytics/summary/"},
	}

	for _, tt := range targets {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestGetBills_Pagination(t *testing.T) {
	bills := make([]model.Bill, 25)
	for i := range bills {
		bills[i] = model.Bill{ID: int64(25 - i), Status: model.BillStatusProcessed}
	}

	h := newTestHandler(t, &stubService{bills: bills})
	router := h.SetupRouter()

	pair, err := h.authMiddleware.IssueTokenPair(7)
	if err != nil {
		t.Fatalf("IssueTokenPair error: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/bills/?page=2&page_size=10", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var page model.BillPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if page.Count != 25 {
		t.Fatalf("count = %d, want 25", page.Count)
	}
	if len(page.Results) != 10 {
		t.Fatalf("len(results) = %d, want 10", len(page.Results))
	}
	if page.Results[0].ID != 15 {
		t.Fatalf("first id on page 2 = %d, want 15", page.Results[0].ID)
	}
	if page.Next == nil || page.Previous == nil {
		t.Fatalf("middle page must have next and previous: %+v", page)
	}
}

func TestGetBills_LastPage(t *testing.T) {
	bills := make([]model.Bill, 5)
	for i := range bills {
		bills[i] = model.Bill{ID: int64(5 - i)}
	}

	h := newTestHandler(t, &stubService{bills: bills})
	router := h.SetupRouter()

	pair, _ := h.authMiddleware.IssueTokenPair(7)

	req := httptest.NewRequest(http.MethodGet, "/api/bills/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.Access)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var page model.BillPage
	if err := json.NewDecoder(rec.Body).Decode(&page); err != nil {
		t.Fatalf("decode response: %v", err)
	}

	if page.Next != nil || page.Previous != nil {
		t.Fatalf("single page must not link next/previous: %+v", page)
	}
	if len(page.Results) != 5 {
		t.Fatalf("len(results) = %d, want 5", len(page.Results))
	}
}
