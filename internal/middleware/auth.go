// Package middleware содержит HTTP middleware сервиса энергосчетов.
package middleware

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/contaluz/energia-system/internal/model"
)

type contextKey string

const userIDKey contextKey = "userID"

// Типы токенов в claim "typ": авторизация запросов принимает только access.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AuthMiddleware выпускает JWT-токены и проверяет аутентификацию запросов
// по заголовку Authorization: Bearer <access-токен>.
type AuthMiddleware struct {
	secretKey  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewAuthMiddleware создает AuthMiddleware с указанным секретом и временем
// жизни access- и refresh-токенов. При пустом секрете генерируется
// случайный ключ: такие токены не переживут перезапуск процесса.
func NewAuthMiddleware(secret string, accessTTL, refreshTTL time.Duration) *AuthMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &AuthMiddleware{
		secretKey:  key,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// IssueTokenPair выпускает пару access/refresh токенов для пользователя.
func (a *AuthMiddleware) IssueTokenPair(userID int64) (model.TokenPair, error) {
	access, err := a.signToken(userID, tokenTypeAccess, a.accessTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := a.signToken(userID, tokenTypeRefresh, a.refreshTTL)
	if err != nil {
		return model.TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	return model.TokenPair{
		Access:  access,
		Refresh: refresh,
	}, nil
}

// Middleware проверяет bearer-токен запроса и добавляет идентификатор
// пользователя в контекст. Запросы без валидного access-токена
// отклоняются со статусом 401.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			unauthorized(w)
			return
		}

		userID, ok := a.parseToken(token)
		if !ok {
			unauthorized(w)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *AuthMiddleware) signToken(userID int64, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"typ": tokenType,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

func (a *AuthMiddleware) parseToken(raw string) (int64, bool) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secretKey, nil
	})
	if err != nil || !token.Valid {
		return 0, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, false
	}

	if typ, _ := claims["typ"].(string); typ != tokenTypeAccess {
		return 0, false
	}

	sub, err := claims.GetSubject()
	if err != nil {
		return 0, false
	}

	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"message":"Credenciais inválidas"}`))
}

// GetUserIDFromContext извлекает идентификатор пользователя из контекста запроса.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
