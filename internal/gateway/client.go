// Package gateway предоставляет клиент HTTP API сервиса энергосчетов.
//
// Клиент переводит логические операции (вход, регистрация, список счетов,
// загрузка счета, сводка аналитики, профиль) в авторизованные HTTP-запросы
// и приводит все отказы к единому виду *APIError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/contaluz/energia-system/internal/analytics"
	"github.com/contaluz/energia-system/internal/model"
)

// APIError описывает любой отказ операции шлюза: сетевой сбой,
// неуспешный HTTP-статус или некорректный ответ. Вызывающая сторона
// никогда не видит транспортную ошибку напрямую.
type APIError struct {
	// StatusCode - HTTP-статус ответа; 0, если ответа не было.
	StatusCode int
	Message    string

	cause error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.cause
}

// networkErrorMessage - сообщение для отказов без полученного ответа.
const networkErrorMessage = "Network error"

// RetryPolicy создает новую стратегию повторов для одного запроса.
// Стратегия go-retry хранит состояние, поэтому нужна фабрика.
type RetryPolicy func() retry.Backoff

// Client инкапсулирует HTTP-взаимодействие с API сервиса энергосчетов.
type Client struct {
	baseURL    string
	httpClient *http.Client
	policy     RetryPolicy
	token      string
}

// Option настраивает клиент при создании.
type Option func(*Client)

// WithHTTPClient задает транспорт вместо клиента по умолчанию.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetryPolicy включает повторы запросов по указанной стратегии.
// Повторяются только сетевые сбои и ответы 5xx. Без этой опции каждый
// запрос выполняется ровно один раз.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// New создает клиент API по указанному базовому адресу вида http://host/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// SetToken запоминает bearer-токен, который будет добавляться
// в заголовок Authorization всех последующих запросов.
func (c *Client) SetToken(token string) {
	c.token = token
}

// ClearToken убирает сохраненный токен; запросы снова станут анонимными.
func (c *Client) ClearToken() {
	c.token = ""
}

// LoginResult описывает ответ на успешный вход: пара токенов и пользователь.
type LoginResult struct {
	Access  string     `json:"access"`
	Refresh string     `json:"refresh"`
	User    model.User `json:"user"`
}

// Login выполняет вход по имени пользователя и паролю.
// Полученный токен клиент сам не запоминает: этим управляет сессия.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	req := map[string]string{
		"username": username,
		"password": password,
	}

	var res LoginResult
	if err := c.doJSON(ctx, http.MethodPost, "/auth/login/", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RegisterRequest содержит поля регистрации нового пользователя.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CEP       string `json:"cep,omitempty"`
}

// Register регистрирует нового пользователя и возвращает созданную запись.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodPost, "/auth/register/", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetProfile возвращает профиль текущего пользователя.
func (c *Client) GetProfile(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/profile/", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileUpdate содержит частичное обновление профиля:
// меняются только непустые (не nil) поля.
type ProfileUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	CEP       *string `json:"cep,omitempty"`
}

// UpdateProfile частично обновляет профиль текущего пользователя.
func (c *Client) UpdateProfile(ctx context.Context, upd ProfileUpdate) (*model.User, error) {
	var user model.User
	if err := c.doJSON(ctx, http.MethodPatch, "/auth/profile/", upd, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetBills возвращает страницу списка счетов текущего пользователя,
// упорядоченного от самого нового к самому старому.
func (c *Client) GetBills(ctx context.Context) (*model.BillPage, error) {
	var page model.BillPage
	if err := c.doJSON(ctx, http.MethodGet, "/bills/", nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Upload описывает загружаемый файл счета (PDF или изображение).
type Upload struct {
	FileName string
	Content  io.Reader
}

// UploadBill загружает файл счета и возвращает созданную запись.
// Разбор полей выполняет бэкенд по мере обработки.
func (c *Client) UploadBill(ctx context.Context, up Upload) (*model.Bill, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	part, err := mw.CreateFormFile("file", up.FileName)
	if err != nil {
		return nil, &APIError{Message: networkErrorMessage, cause: err}
	}
	if _, err := io.Copy(part, up.Content); err != nil {
		return nil, &APIError{Message: networkErrorMessage, cause: err}
	}
	if err := mw.Close(); err != nil {
		return nil, &APIError{Message: networkErrorMessage, cause: err}
	}

	var bill model.Bill
	if err := c.do(ctx, http.MethodPost, "/bills/upload/", body.Bytes(), mw.FormDataContentType(), &bill); err != nil {
		return nil, err
	}
	return &bill, nil
}

// GetAnalyticsSummary возвращает сводку аналитики, вычисленную бэкендом.
func (c *Client) GetAnalyticsSummary(ctx context.Context) (*analytics.Summary, error) {
	var summary analytics.Summary
	if err := c.doJSON(ctx, http.MethodGet, "/analytics/summary/", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// doJSON выполняет запрос с JSON-телом (или без тела) и разбирает JSON-ответ.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	contentType := ""

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &APIError{Message: networkErrorMessage, cause: err}
		}
		payload = data
		contentType = "application/json"
	}

	return c.do(ctx, method, path, payload, contentType, out)
}

// do выполняет один логический запрос, при настроенной стратегии - с
// повторами сетевых сбоев и ответов 5xx. Тело передается байтами, чтобы
// каждый повтор отправлял его заново.
func (c *Client) do(ctx context.Context, method, path string, payload []byte, contentType string, out any) error {
	attempt := func(ctx context.Context) error {
		return c.attempt(ctx, method, path, payload, contentType, out)
	}

	if c.policy == nil {
		return c.attempt(ctx, method, path, payload, contentType, out)
	}

	err := retry.Do(ctx, c.policy(), func(ctx context.Context) error {
		err := attempt(ctx)
		if err == nil {
			return nil
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.StatusCode == 0 || apiErr.StatusCode >= http.StatusInternalServerError) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return &APIError{Message: networkErrorMessage, cause: err}
	}
	return apiErr
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, contentType string, out any) error {
	base := c.baseURL
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, body)
	if err != nil {
		return &APIError{Message: networkErrorMessage, cause: err}
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &APIError{Message: networkErrorMessage, cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newStatusError(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
			cause:      err,
		}
	}

	return nil
}

// newStatusError строит ошибку по неуспешному ответу: берет человекочитаемое
// сообщение из JSON-тела, а если его нет - синтезирует "HTTP <status>".
func newStatusError(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d", resp.StatusCode),
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return apiErr
	}

	var body struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Err     string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return apiErr
	}

	switch {
	case body.Message != "":
		apiErr.Message = body.Message
	case body.Detail != "":
		apiErr.Message = body.Detail
	case body.Err != "":
		apiErr.Message = body.Err
	}

	return apiErr
}
