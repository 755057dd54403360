// Package repository содержит реализацию доступа к данным сервиса
// энергосчетов. Бэкенд по условию работает как mock-сервис, поэтому
// единственная реализация хранит все в памяти процесса; интерфейс
// репозитория объявлен на стороне сервиса.
package repository

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/contaluz/energia-system/internal/model"
)

// ErrUserExists возвращается при попытке создать пользователя с занятым
// именем или адресом почты.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrBillNotFound возвращается, если счет не найден.
	ErrBillNotFound = errors.New("bill not found")
	// ErrDuplicateBill возвращается при повторной загрузке того же файла.
	ErrDuplicateBill = errors.New("bill already uploaded")
)

// MemoryRepository хранит пользователей и счета в памяти процесса.
// Счета каждого пользователя упорядочены от самого нового к самому старому.
type MemoryRepository struct {
	mu sync.RWMutex

	usersByID   map[int64]model.User
	usersByName map[string]int64
	emails      map[string]int64

	bills      map[int64][]model.Bill
	billHashes map[int64]map[string]struct{}

	nextUserID int64
	nextBillID int64
}

// NewMemoryRepository создает пустой репозиторий.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		usersByID:   make(map[int64]model.User),
		usersByName: make(map[string]int64),
		emails:      make(map[string]int64),
		bills:       make(map[int64][]model.Bill),
		billHashes:  make(map[int64]map[string]struct{}),
		nextUserID:  1,
		nextBillID:  1,
	}
}

// Close закрывает репозиторий. Для хранилища в памяти это no-op,
// метод существует ради симметрии жизненного цикла.
func (r *MemoryRepository) Close() error {
	return nil
}

// CreateUser сохраняет нового пользователя и возвращает запись
// с присвоенным идентификатором.
func (r *MemoryRepository) CreateUser(ctx context.Context, user model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.usersByName[user.Username]; ok {
		return nil, ErrUserExists
	}
	if _, ok := r.emails[user.Email]; ok {
		return nil, ErrUserExists
	}

	user.ID = r.nextUserID
	r.nextUserID++

	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	r.usersByID[user.ID] = user
	r.usersByName[user.Username] = user.ID
	r.emails[user.Email] = user.ID

	created := user
	return &created, nil
}

// GetUserByUsername возвращает пользователя по имени.
func (r *MemoryRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usersByName[username]
	if !ok {
		return nil, ErrUserNotFound
	}

	user := r.usersByID[id]
	return &user, nil
}

// GetUserByID возвращает пользователя по идентификатору.
func (r *MemoryRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.usersByID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

// UpdateUser заменяет запись пользователя с тем же идентификатором.
func (r *MemoryRepository) UpdateUser(ctx context.Context, user model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.usersByID[user.ID]
	if !ok {
		return nil, ErrUserNotFound
	}

	if user.Email != old.Email {
		if _, taken := r.emails[user.Email]; taken {
			return nil, ErrUserExists
		}
		delete(r.emails, old.Email)
		r.emails[user.Email] = user.ID
	}

	user.Username = old.Username
	user.CreatedAt = old.CreatedAt
	user.UpdatedAt = time.Now().UTC()

	r.usersByID[user.ID] = user

	updated := user
	return &updated, nil
}

// AddBill сохраняет новый счет пользователя в начало списка (список
// упорядочен от нового к старому). Повторная загрузка файла с тем же
// хэшем дает ErrDuplicateBill.
func (r *MemoryRepository) AddBill(ctx context.Context, userID int64, bill model.Bill) (*model.Bill, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.usersByID[userID]; !ok {
		return nil, ErrUserNotFound
	}

	hashes, ok := r.billHashes[userID]
	if !ok {
		hashes = make(map[string]struct{})
		r.billHashes[userID] = hashes
	}
	if bill.FileHash != "" {
		if _, dup := hashes[bill.FileHash]; dup {
			return nil, ErrDuplicateBill
		}
	}

	bill.ID = r.nextBillID
	r.nextBillID++
	bill.CreatedAt = time.Now().UTC()

	r.bills[userID] = append([]model.Bill{bill}, r.bills[userID]...)
	if bill.FileHash != "" {
		hashes[bill.FileHash] = struct{}{}
	}

	created := bill
	return &created, nil
}

// GetBillsByUser возвращает копию списка счетов пользователя,
// от самого нового к самому старому.
func (r *MemoryRepository) GetBillsByUser(ctx context.Context, userID int64) ([]model.Bill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Clone(r.bills[userID]), nil
}

// PendingBill описывает счет, ожидающий обработки, вместе с владельцем.
type PendingBill struct {
	UserID int64
	Bill   model.Bill
}

// GetBillsForProcessing возвращает до limit счетов в статусах UPLOADED
// и PROCESSING для фонового процессора.
func (r *MemoryRepository) GetBillsForProcessing(ctx context.Context, limit int) ([]PendingBill, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []PendingBill
	for userID, bills := range r.bills {
		for _, b := range bills {
			if b.Status != model.BillStatusUploaded && b.Status != model.BillStatusProcessing {
				continue
			}
			pending = append(pending, PendingBill{UserID: userID, Bill: b})
			if len(pending) >= limit {
				return pending, nil
			}
		}
	}

	return pending, nil
}

// UpdateBill заменяет запись счета пользователя с тем же идентификатором.
func (r *MemoryRepository) UpdateBill(ctx context.Context, userID int64, bill model.Bill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bills := r.bills[userID]
	for i := range bills {
		if bills[i].ID == bill.ID {
			bill.CreatedAt = bills[i].CreatedAt
			bill.FileHash = bills[i].FileHash
			bills[i] = bill
			return nil
		}
	}

	return ErrBillNotFound
}

// SeedDemoUsers добавляет демонстрационные учетные записи mock-варианта.
// Возвращает ошибку только при сбое хэширования пароля; уже существующие
// записи молча пропускаются.
func (r *MemoryRepository) SeedDemoUsers(ctx context.Context) error {
	seeds := []struct {
		username  string
		email     string
		password  string
		firstName string
		lastName  string
		userType  model.UserType
	}{
		{"admin", "admin@admin.com", "admin123", "Admin", "Sistema", model.UserTypeAdmin},
		{"user", "user@user.com", "user123", "Usuário", "Comum", model.UserTypeClient},
		{"officer", "officer@officer.com", "officer123", "Officer", "Sistema", model.UserTypePartner},
	}

	for _, s := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(s.password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		_, err = r.CreateUser(ctx, model.User{
			Username:     s.username,
			Email:        s.email,
			FirstName:    s.firstName,
			LastName:     s.lastName,
			UserType:     s.userType,
			PasswordHash: hash,
		})
		if err != nil && !errors.Is(err, ErrUserExists) {
			return err
		}
	}

	return nil
}
