// Package session хранит состояние аутентификации пользователя: текущего
// пользователя, пару bearer-токенов и их персистентную копию в защищенном
// хранилище. Store - явный объект с жизненным циклом (гидратация при
// старте, сброс при выходе), а не глобальное состояние модуля.
package session

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/contaluz/energia-system/internal/model"
)

// Фиксированные ключи персистентного хранилища сессии.
const (
	keyAccessToken  = "access_token"
	keyRefreshToken = "refresh_token"
	keyUser         = "user"
)

// ErrStorage помечает отказ персистентного хранилища при сохранении или
// удалении сессии. Вызывающая сторона может отличить его от прочих ошибок
// через errors.Is.
var ErrStorage = errors.New("session storage failure")

// TokenSetter получает актуальный access-токен для авторизации запросов.
// Реализуется клиентом API-шлюза.
type TokenSetter interface {
	SetToken(token string)
	ClearToken()
}

// Store - единственный источник истины о том, выполнен ли вход,
// и о токенах для исходящих запросов.
type Store struct {
	storage Storage
	tokens  TokenSetter
	logger  *zap.Logger

	user    *model.User
	access  string
	refresh string
}

// New создает хранилище сессии поверх указанного Storage. tokens может быть
// nil, если распространять токен некому (например, в тестах).
func New(storage Storage, tokens TokenSetter, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Store{
		storage: storage,
		tokens:  tokens,
		logger:  logger,
	}
}

// Login сохраняет токены и пользователя в персистентное хранилище и
// переводит сессию в аутентифицированное состояние. При отказе хранилища
// возвращает ошибку вида ErrStorage, а состояние в памяти не меняет.
func (s *Store) Login(access, refresh string, user model.User) error {
	payload, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("%w: encode user: %w", ErrStorage, err)
	}

	if err := s.storage.Set(keyAccessToken, access); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := s.storage.Set(keyRefreshToken, refresh); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := s.storage.Set(keyUser, string(payload)); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.setAuthenticated(access, refresh, user)
	return nil
}

// Logout удаляет сессию из персистентного хранилища. Состояние в памяти
// сбрасывается независимо от результата удаления; ошибка удаления
// возвращается вызывающей стороне.
func (s *Store) Logout() error {
	var firstErr error
	for _, key := range []string{keyAccessToken, keyRefreshToken, keyUser} {
		if err := s.storage.Delete(key); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.user = nil
	s.access = ""
	s.refresh = ""
	if s.tokens != nil {
		s.tokens.ClearToken()
	}

	if firstErr != nil {
		return fmt.Errorf("%w: %w", ErrStorage, firstErr)
	}
	return nil
}

// Load выполняет гидратацию сессии из хранилища при старте процесса.
// Сессия восстанавливается, только если присутствуют все три значения и
// запись пользователя разбирается; частичное или поврежденное состояние
// равносильно отсутствию и не считается ошибкой.
func (s *Store) Load() error {
	access, err := s.storage.Get(keyAccessToken)
	if err != nil {
		s.logMissing(keyAccessToken, err)
		return nil
	}

	refresh, err := s.storage.Get(keyRefreshToken)
	if err != nil {
		s.logMissing(keyRefreshToken, err)
		return nil
	}

	payload, err := s.storage.Get(keyUser)
	if err != nil {
		s.logMissing(keyUser, err)
		return nil
	}

	var user model.User
	if err := json.Unmarshal([]byte(payload), &user); err != nil {
		s.logger.Warn("stored user record is corrupt, treating session as absent", zap.Error(err))
		return nil
	}

	if access == "" || refresh == "" {
		return nil
	}

	s.setAuthenticated(access, refresh, user)
	return nil
}

// IsAuthenticated сообщает, выполнен ли вход. Истинно тогда и только тогда,
// когда известны пользователь и оба токена.
func (s *Store) IsAuthenticated() bool {
	return s.user != nil && s.access != "" && s.refresh != ""
}

// User возвращает текущего пользователя или nil, если вход не выполнен.
func (s *Store) User() *model.User {
	return s.user
}

// AccessToken возвращает текущий access-токен или пустую строку.
func (s *Store) AccessToken() string {
	return s.access
}

// RefreshToken возвращает текущий refresh-токен или пустую строку.
func (s *Store) RefreshToken() string {
	return s.refresh
}

func (s *Store) setAuthenticated(access, refresh string, user model.User) {
	s.user = &user
	s.access = access
	s.refresh = refresh

	if s.tokens != nil {
		s.tokens.SetToken(access)
	}
}

func (s *Store) logMissing(key string, err error) {
	if errors.Is(err, ErrNotFound) {
		return
	}
	s.logger.Warn("stored session value unreadable, treating session as absent",
		zap.String("key", key), zap.Error(err))
}
