package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/contaluz/energia-system/internal/gateway"
	"github.com/contaluz/energia-system/internal/middleware"
	"github.com/contaluz/energia-system/internal/model"
	"github.com/contaluz/energia-system/internal/repository"
	"github.com/contaluz/energia-system/internal/service"
	"github.com/contaluz/energia-system/internal/session"
)

// startTestServer поднимает полный стек сервиса поверх памяти:
// репозиторий с демо-пользователями, бизнес-логика, маршруты.
func startTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	repo := repository.NewMemoryRepository()
	if err := repo.SeedDemoUsers(context.Background()); err != nil {
		t.Fatalf("seed demo users: %v", err)
	}

	svc := service.NewService(repo)
	auth := middleware.NewAuthMiddleware("e2e-secret", 15*time.Minute, 24*time.Hour)
	h := NewHandler(svc, zap.NewNop(), auth)

	srv := httptest.NewServer(h.SetupRouter())
	t.Cleanup(srv.Close)
	return srv
}

func TestFullFlow(t *testing.T) {
	srv := startTestServer(t)

	client := gateway.New(srv.URL + "/api")
	storage := session.NewMemoryStorage()
	store := session.New(storage, client, nil)

	ctx := context.Background()

	res, err := client.Login(ctx, "user", "user123")
	if err != nil {
		t.Fatalf("login error: %v", err)
	}
	if res.User.Username != "user" {
		t.Fatalf("username = %q, want %q", res.User.Username, "user")
	}

	if err := store.Login(res.Access, res.Refresh, res.User); err != nil {
		t.Fatalf("session login error: %v", err)
	}
	if !store.IsAuthenticated() {
		t.Fatal("session must be authenticated after login")
	}

	profile, err := client.GetProfile(ctx)
	if err != nil {
		t.Fatalf("get profile error: %v", err)
	}
	if profile.Email != "user@user.com" {
		t.Fatalf("email = %q, want %q", profile.Email, "user@user.com")
	}

	bill, err := client.UploadBill(ctx, gateway.Upload{
		FileName: "conta-julho.pdf",
		Content:  bytes.NewReader([]byte("%PDF-1.4 conta de luz")),
	})
	if err != nil {
		t.Fatalf("upload error: %v", err)
	}
	if bill.Status != model.BillStatusUploaded {
		t.Fatalf("status = %q, want %q", bill.Status, model.BillStatusUploaded)
	}

	_, err = client.UploadBill(ctx, gateway.Upload{
		FileName: "conta-julho.pdf",
		Content:  bytes.NewReader([]byte("%PDF-1.4 conta de luz")),
	})
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate upload error = %v, want 409", err)
	}

	page, err := client.GetBills(ctx)
	if err != nil {
		t.Fatalf("get bills error: %v", err)
	}
	if page.Count != 1 || len(page.Results) != 1 {
		t.Fatalf("unexpected page: count %d, results %d", page.Count, len(page.Results))
	}

	summary, err := client.GetAnalyticsSummary(ctx)
	if err != nil {
		t.Fatalf("analytics error: %v", err)
	}
	if summary.TotalBills != 1 {
		t.Fatalf("total_bills = %d, want 1", summary.TotalBills)
	}

	// рестарт клиента: новая сессия поверх того же хранилища
	client2 := gateway.New(srv.URL + "/api")
	store2 := session.New(storage, client2, nil)
	if err := store2.Load(); err != nil {
		t.Fatalf("session load error: %v", err)
	}
	if !store2.IsAuthenticated() {
		t.Fatal("session must restore after restart")
	}
	if _, err := client2.GetProfile(ctx); err != nil {
		t.Fatalf("get profile after restore error: %v", err)
	}

	if err := store2.Logout(); err != nil {
		t.Fatalf("logout error: %v", err)
	}
	_, err = client2.GetProfile(ctx)
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("profile after logout error = %v, want 401", err)
	}
}

func TestRegisterAndLoginFlow(t *testing.T) {
	srv := startTestServer(t)
	client := gateway.New(srv.URL + "/api")
	ctx := context.Background()

	user, err := client.Register(ctx, gateway.RegisterRequest{
		Username:  "joana",
		Email:     "joana@example.com",
		Password:  "Senha123",
		FirstName: "Joana",
		Phone:     "(11) 98765-4321",
		CEP:       "01310-100",
	})
	if err != nil {
		t.Fatalf("register error: %v", err)
	}
	if user.UserType != model.UserTypeClient {
		t.Fatalf("user_type = %q, want %q", user.UserType, model.UserTypeClient)
	}

	if _, err := client.Login(ctx, "joana", "Senha123"); err != nil {
		t.Fatalf("login after register error: %v", err)
	}

	_, err = client.Register(ctx, gateway.RegisterRequest{
		Username: "joana2",
		Email:    "joana@example.com",
		Password: "Senha123",
	})
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate email error = %v, want 409", err)
	}
}
