// Package handler содержит HTTP-обработчики API сервиса энергосчетов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/contaluz/energia-system/internal/analytics"
	"github.com/contaluz/energia-system/internal/middleware"
	"github.com/contaluz/energia-system/internal/model"
	"github.com/contaluz/energia-system/internal/repository"
	"github.com/contaluz/energia-system/internal/service"
)

// maxUploadSize ограничивает размер загружаемого файла счета.
const maxUploadSize = 10 << 20

// defaultPageSize - размер страницы списка счетов по умолчанию.
const defaultPageSize = 20

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, in service.RegisterInput) (*model.User, error)
	AuthenticateUser(ctx context.Context, username, password string) (*model.User, error)
	GetProfile(ctx context.Context, userID int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, upd service.ProfileUpdate) (*model.User, error)
	CreateBillFromUpload(ctx context.Context, userID int64, filename string, content []byte) (*model.Bill, error)
	GetBillsByUser(ctx context.Context, userID int64) ([]model.Bill, error)
	GetAnalyticsSummary(ctx context.Context, userID int64) (*analytics.Summary, error)
}

// Handler реализует HTTP-обработчики API сервиса энергосчетов.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создает новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    *model.User `json:"user"`
}

// Login выполняет вход по имени пользователя и паролю и возвращает
// пару токенов вместе с профилем.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}

	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Preencha usuário e senha")
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Usuário ou senha incorretos")
			return
		}
		h.logger.Error("login error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno")
		return
	}

	pair, err := h.authMiddleware.IssueTokenPair(user.ID)
	if err != nil {
		h.logger.Error("issue token pair error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno")
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{
		Access:  pair.Access,
		Refresh: pair.Refresh,
		User:    user,
	})
}

type registerRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	CEP       string `json:"cep"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}

	user, err := h.service.RegisterUser(r.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		CEP:       req.CEP,
	})
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Message)
		case errors.Is(err, repository.ErrUserExists):
			writeError(w, http.StatusConflict, "Email já cadastrado")
		default:
			h.logger.Error("register error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Erro interno")
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetProfile возвращает профиль текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	user, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "Usuário não encontrado")
			return
		}
		h.logger.Error("get profile error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type profileUpdateRequest struct {
	Email     *string `json:"email"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	CEP       *string `json:"cep"`
}

// UpdateProfile частично обновляет профиль: меняются только поля,
// присутствующие в теле запроса.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	var req profileUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Requisição inválida")
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), userID, service.ProfileUpdate{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		CEP:       req.CEP,
	})
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Message)
		case errors.Is(err, repository.ErrUserExists):
			writeError(w, http.StatusConflict, "Email já cadastrado")
		case errors.Is(err, repository.ErrUserNotFound):
			writeError(w, http.StatusNotFound, "Usuário não encontrado")
		default:
			h.logger.Error("update profile error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Erro interno")
		}
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// GetBills возвращает страницу списка счетов пользователя, от нового
// к старому, в формате {results, count, next, previous}.
func (h *Handler) GetBills(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	bills, err := h.service.GetBillsByUser(r.Context(), userID)
	if err != nil {
		h.logger.Error("get bills error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > len(bills) {
		start = len(bills)
	}
	if end > len(bills) {
		end = len(bills)
	}

	resp := model.BillPage{
		Results: bills[start:end],
		Count:   len(bills),
	}
	if resp.Results == nil {
		resp.Results = []model.Bill{}
	}
	if end < len(bills) {
		resp.Next = pageURL(r, page+1, pageSize)
	}
	if page > 1 {
		resp.Previous = pageURL(r, page-1, pageSize)
	}

	writeJSON(w, http.StatusOK, resp)
}

// UploadBill принимает multipart-файл счета и создает запись
// в статусе UPLOADED.
func (h *Handler) UploadBill(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Envie o arquivo no campo 'file'")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Não foi possível ler o arquivo")
		return
	}

	bill, err := h.service.CreateBillFromUpload(r.Context(), userID, header.Filename, content)
	if err != nil {
		var vErr *service.ValidationError
		switch {
		case errors.As(err, &vErr):
			writeError(w, http.StatusBadRequest, vErr.Message)
		case errors.Is(err, repository.ErrDuplicateBill):
			writeError(w, http.StatusConflict, "Esta conta já foi enviada")
		default:
			h.logger.Error("upload bill error", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Erro interno")
		}
		return
	}

	writeJSON(w, http.StatusCreated, bill)
}

// GetAnalyticsSummary возвращает сводку аналитики по счетам пользователя.
func (h *Handler) GetAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Credenciais inválidas")
		return
	}

	summary, err := h.service.GetAnalyticsSummary(r.Context(), userID)
	if err != nil {
		h.logger.Error("analytics summary error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Erro interno")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func pageURL(r *http.Request, page, pageSize int) *string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	u := fmt.Sprintf("%s://%s%s?page=%d&page_size=%d", scheme, r.Host, r.URL.Path, page, pageSize)
	return &u
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
