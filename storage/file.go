package storage

import (
	"crypto/rand"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// scrypt parameters for deriving the sealing key from the configured secret.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	saltLength   = 16
	keyLength    = 32
	nonceLength  = 24
	fileVersion  = 1
	filePermMode = 0o600
)

// envelope is the on-disk format when a sealing secret is configured.
type envelope struct {
	Version int    `json:"v"`
	Salt    []byte `json:"salt"`
	Nonce   []byte `json:"nonce"`
	Box     []byte `json:"box"`
}

// FileStore is a file-backed implementation of Store. The whole key set is
// serialized as a single JSON document and replaced atomically on every
// mutation. With a sealing secret configured, the document is encrypted at
// rest with a scrypt-derived secretbox key.
type FileStore struct {
	mu     sync.Mutex
	path   string
	secret string
	values map[string]string
}

// FileStoreOption configures a FileStore.
type FileStoreOption func(*FileStore)

// WithSealingSecret enables at-rest encryption using the given secret.
func WithSealingSecret(secret string) FileStoreOption {
	return func(fs *FileStore) {
		fs.secret = secret
	}
}

// NewFileStore opens or creates the store at path. A file that cannot be
// parsed (corrupt, or sealed with a different secret) is treated as empty
// rather than failing the open.
func NewFileStore(path string, options ...FileStoreOption) (*FileStore, error) {
	fs := &FileStore{
		path:   path,
		values: make(map[string]string),
	}
	for _, opt := range options {
		opt(fs)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] MkdirAll")
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return fs, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] ReadFile")
	}

	if values, err := fs.decode(data); err == nil {
		fs.values = values
	}
	return fs, nil
}

func (fs *FileStore) Get(key string) (string, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	value, ok := fs.values[key]
	if !ok {
		return "", NotFoundErr
	}
	return value, nil
}

func (fs *FileStore) Set(key, value string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	fs.values[key] = value
	return fs.save()
}

func (fs *FileStore) Delete(key string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.values[key]; !ok {
		return nil
	}
	delete(fs.values, key)
	return fs.save()
}

// save writes the current key set to a temp file and renames it over the
// store path, so readers never observe a partially written file.
func (fs *FileStore) save() error {
	data, err := fs.encode()
	if err != nil {
		return errors.Wrap(err, "[FileStore.save] encode")
	}

	tmp, err := os.CreateTemp(filepath.Dir(fs.path), ".store-*")
	if err != nil {
		return errors.Wrap(err, "[FileStore.save] CreateTemp")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.save] Write")
	}
	if err := tmp.Chmod(filePermMode); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.save] Chmod")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.save] Close")
	}

	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "[FileStore.save] Rename")
	}
	return nil
}

func (fs *FileStore) encode() ([]byte, error) {
	plain, err := json.Marshal(fs.values)
	if err != nil {
		return nil, err
	}
	if fs.secret == "" {
		return plain, nil
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key, err := deriveKey(fs.secret, salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}

	sealed := secretbox.Seal(nil, plain, &nonce, key)
	return json.Marshal(envelope{
		Version: fileVersion,
		Salt:    salt,
		Nonce:   nonce[:],
		Box:     sealed,
	})
}

func (fs *FileStore) decode(data []byte) (map[string]string, error) {
	if fs.secret == "" {
		values := make(map[string]string)
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, err
		}
		return values, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	if env.Version != fileVersion || len(env.Nonce) != nonceLength {
		return nil, errors.New("unrecognized store format")
	}

	key, err := deriveKey(fs.secret, env.Salt)
	if err != nil {
		return nil, err
	}

	var nonce [nonceLength]byte
	copy(nonce[:], env.Nonce)
	plain, ok := secretbox.Open(nil, env.Box, &nonce, key)
	if !ok {
		return nil, errors.New("store cannot be unsealed")
	}

	values := make(map[string]string)
	if err := json.Unmarshal(plain, &values); err != nil {
		return nil, err
	}
	return values, nil
}

func deriveKey(secret string, salt []byte) (*[keyLength]byte, error) {
	raw, err := scrypt.Key([]byte(secret), salt, scryptN, scryptR, scryptP, keyLength)
	if err != nil {
		return nil, err
	}
	var key [keyLength]byte
	copy(key[:], raw)
	return &key, nil
}
