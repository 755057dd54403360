package session

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrNotFound возвращается хранилищем, если значение по ключу отсутствует.
var ErrNotFound = errors.New("value not found")

// Storage описывает защищенное key-value хранилище данных сессии.
type Storage interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// MemoryStorage хранит значения в памяти процесса без персистентности.
// Используется mock-вариантом приложения и тестами.
type MemoryStorage struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStorage создает пустое хранилище в памяти.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		values: make(map[string]string),
	}
}

// Set сохраняет значение по ключу.
func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

// Get возвращает значение по ключу или ErrNotFound.
func (m *MemoryStorage) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

// Delete удаляет значение по ключу; отсутствие значения не ошибка.
func (m *MemoryStorage) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

// FileStorage хранит значения в файлах каталога, шифруя каждое значение
// ключом chacha20poly1305. Переживает перезапуск процесса.
type FileStorage struct {
	dir  string
	aead cipher.AEAD
}

// NewFileStorage создает хранилище в указанном каталоге. Ключ должен иметь
// длину chacha20poly1305.KeySize (32 байта).
func NewFileStorage(dir string, key []byte) (*FileStorage, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &FileStorage{
		dir:  dir,
		aead: aead,
	}, nil
}

// Set шифрует значение и записывает его в файл с именем ключа.
func (f *FileStorage) Set(key, value string) error {
	nonce := make([]byte, f.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generate nonce: %w", err)
	}

	sealed := f.aead.Seal(nonce, nonce, []byte(value), nil)

	if err := os.WriteFile(f.path(key), sealed, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Get читает и расшифровывает значение. Отсутствующий файл дает ErrNotFound,
// поврежденное или нерасшифровываемое содержимое - ошибку расшифровки.
func (f *FileStorage) Get(key string) (string, error) {
	data, err := os.ReadFile(f.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}

	if len(data) < f.aead.NonceSize() {
		return "", fmt.Errorf("decrypt %s: sealed value too short", key)
	}

	nonce, sealed := data[:f.aead.NonceSize()], data[f.aead.NonceSize():]
	plain, err := f.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt %s: %w", key, err)
	}

	return string(plain), nil
}

// Delete удаляет файл значения; отсутствие файла не ошибка.
func (f *FileStorage) Delete(key string) error {
	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, key)
}
