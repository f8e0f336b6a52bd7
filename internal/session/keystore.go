package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/pbkdf2"
)

// Keystore is the persisted credential store the session reads and writes.
// Implementations must treat a missing key as ("", false), not an error.
type Keystore interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(keys ...string) error
}

const (
	keystoreFile = "credentials.json"
	saltFile     = ".salt"

	pbkdf2Iterations = 100_000
	keyLength        = 32
)

// FileKeystore keeps namespaced credential values in a single JSON file,
// each value sealed with AES-GCM under a PBKDF2-derived key. The salt lives
// next to the store; the passphrase comes from the caller (machine-scoped by
// default, see cmd wiring).
type FileKeystore struct {
	dir    string
	aead   cipher.AEAD
	logger *logrus.Logger
	mu     sync.RWMutex
	values map[string]string
}

func NewFileKeystore(dir, passphrase string, logger *logrus.Logger) (*FileKeystore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create keystore directory: %w", err)
	}

	salt, err := loadOrCreateSalt(filepath.Join(dir, saltFile))
	if err != nil {
		return nil, err
	}

	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, keyLength, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	ks := &FileKeystore{
		dir:    dir,
		aead:   aead,
		logger: logger,
		values: make(map[string]string),
	}
	if err := ks.load(); err != nil {
		return nil, err
	}
	return ks, nil
}

func loadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil && len(salt) == 16 {
		return salt, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read keystore salt: %w", err)
	}

	salt = make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate keystore salt: %w", err)
	}
	if err := os.WriteFile(path, salt, 0o600); err != nil {
		return nil, fmt.Errorf("write keystore salt: %w", err)
	}
	return salt, nil
}

func (ks *FileKeystore) load() error {
	data, err := os.ReadFile(filepath.Join(ks.dir, keystoreFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read keystore: %w", err)
	}

	var sealed map[string][]byte
	if err := json.Unmarshal(data, &sealed); err != nil {
		ks.logger.Warnf("Discarding unreadable keystore: %v", err)
		return nil
	}
	for k, v := range sealed {
		plain, err := ks.open(v)
		if err != nil {
			ks.logger.Warnf("Dropping undecryptable keystore entry %q: %v", k, err)
			continue
		}
		ks.values[k] = plain
	}
	return nil
}

func (ks *FileKeystore) Get(key string) (string, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	v, ok := ks.values[key]
	return v, ok
}

func (ks *FileKeystore) Set(key, value string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.values[key] = value
	return ks.flush()
}

func (ks *FileKeystore) Delete(keys ...string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	for _, k := range keys {
		delete(ks.values, k)
	}
	return ks.flush()
}

func (ks *FileKeystore) flush() error {
	sealed := make(map[string][]byte, len(ks.values))
	for k, v := range ks.values {
		ct, err := ks.seal(v)
		if err != nil {
			return fmt.Errorf("seal keystore entry %q: %w", k, err)
		}
		sealed[k] = ct
	}
	data, err := json.MarshalIndent(sealed, "", "  ")
	if err != nil {
		return fmt.Errorf("encode keystore: %w", err)
	}

	tmp, err := os.CreateTemp(ks.dir, ".credentials_*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write keystore: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close keystore: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("chmod keystore: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(ks.dir, keystoreFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

func (ks *FileKeystore) seal(plaintext string) ([]byte, error) {
	nonce := make([]byte, ks.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return ks.aead.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

func (ks *FileKeystore) open(ciphertext []byte) (string, error) {
	if len(ciphertext) < ks.aead.NonceSize() {
		return "", errors.New("ciphertext shorter than nonce")
	}
	nonce, ct := ciphertext[:ks.aead.NonceSize()], ciphertext[ks.aead.NonceSize():]
	plain, err := ks.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
