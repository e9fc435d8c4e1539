package credentials

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/crypto/nacl/secretbox"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultPath is the location of the encrypted record inside the
	// repository metadata directory.
	DefaultPath = "modelsync/credentials"

	// DefaultKeyFile is the key location relative to the XDG data directory.
	DefaultKeyFile = "modelsync/credentials.key"

	keySize   = 32
	nonceSize = 24
)

var (
	// ErrNotFound is returned by Load when no credentials are stored.
	ErrNotFound = errors.New("no stored credentials")

	// ErrDecrypt is returned when the record cannot be opened with the key.
	ErrDecrypt = errors.New("credentials cannot be decrypted")
)

// Key supplies the secret key used to seal stored credentials.
type Key interface {
	Key() (*[keySize]byte, error)
}

// FileKey is a key kept in a file, generated on first use.
type FileKey struct {
	FS   billy.Filesystem
	Path string
}

// DefaultFileKey returns the key file in the user's XDG data directory.
func DefaultFileKey() (*FileKey, error) {
	p, err := xdg.DataFile(DefaultKeyFile)
	if err != nil {
		return nil, fmt.Errorf("resolving key location: %w", err)
	}
	return &FileKey{FS: osfs.New(filepath.Dir(p)), Path: filepath.Base(p)}, nil
}

// Key implements Key.
func (k *FileKey) Key() (*[keySize]byte, error) {
	data, err := util.ReadFile(k.FS, k.Path)
	switch {
	case err == nil:
		if len(data) != keySize {
			return nil, fmt.Errorf("key file %s has %d bytes, want %d", k.Path, len(data), keySize)
		}
		var key [keySize]byte
		copy(key[:], data)
		return &key, nil
	case errors.Is(err, os.ErrNotExist):
		return k.generate()
	default:
		return nil, fmt.Errorf("reading key file: %w", err)
	}
}

func (k *FileKey) generate() (*[keySize]byte, error) {
	var key [keySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("generating key: %w", err)
	}
	if dir := path.Dir(k.Path); dir != "." {
		if err := k.FS.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating key directory: %w", err)
		}
	}
	if err := util.WriteFile(k.FS, k.Path, key[:], 0o600); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return &key, nil
}

// Store persists credentials sealed with NaCl secretbox. The record lives in
// the repository metadata directory so it is never committed.
type Store struct {
	fs   billy.Filesystem
	path string
	key  Key
}

// NewStore creates a store on the metadata filesystem of a repository.
func NewStore(metadata billy.Filesystem, key Key) *Store {
	return &Store{fs: metadata, path: DefaultPath, key: key}
}

// Path returns the record location within the metadata filesystem.
func (s *Store) Path() string {
	return s.path
}

// Save encrypts and writes c, replacing any stored record.
func (s *Store) Save(c Credentials) error {
	key, err := s.key.Key()
	if err != nil {
		return err
	}
	plain, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}
	sealed := secretbox.Seal(nonce[:], plain, &nonce, key)
	clear(plain)

	if err := s.fs.MkdirAll(path.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}
	if err := util.WriteFile(s.fs, s.path, sealed, 0o600); err != nil {
		return fmt.Errorf("writing credentials: %w", err)
	}
	return nil
}

// Load reads and decrypts the stored credentials. It returns ErrNotFound
// when nothing is stored and ErrDecrypt when the record was sealed with
// another key or is damaged.
func (s *Store) Load() (Credentials, error) {
	sealed, err := util.ReadFile(s.fs, s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credentials{}, ErrNotFound
		}
		return Credentials{}, fmt.Errorf("reading credentials: %w", err)
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return Credentials{}, ErrDecrypt
	}

	key, err := s.key.Key()
	if err != nil {
		return Credentials{}, err
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	plain, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, key)
	if !ok {
		return Credentials{}, ErrDecrypt
	}
	defer clear(plain)

	var c Credentials
	if err := yaml.Unmarshal(plain, &c); err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return c, nil
}

// Clear removes the stored record. A missing record is not an error.
func (s *Store) Clear() error {
	if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credentials: %w", err)
	}
	return nil
}

// Session loads the stored credentials and opens a session with them. When
// nothing is stored the session is anonymous.
func (s *Store) Session() (*Session, error) {
	c, err := s.Load()
	if errors.Is(err, ErrNotFound) {
		return NewSession(Credentials{}), nil
	}
	if err != nil {
		return nil, err
	}
	return NewSession(c), nil
}
