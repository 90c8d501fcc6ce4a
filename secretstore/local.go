package secretstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

func init() {
	Register(Backend{
		Type:           "local-file",
		Description:    "Encrypted local file",
		Factory:        newLocalFile,
		RequiredFields: []string{"path", "encryption"},
	})
}

// localDocument is the decrypted content of a local store.
type localDocument struct {
	Secrets map[string]localRecord `json:"secrets"`
}

type localRecord struct {
	Value    string    `json:"value"`
	StoredAt time.Time `json:"stored_at"`
}

// localFile keeps migrated secrets in one AES-256-GCM encrypted document.
// The flock serialises migrate runs across processes, the mutex within one.
type localFile struct {
	key  []byte
	fs   billy.Filesystem
	name string
	lock *flock.Flock
	mu   sync.Mutex
	now  func() time.Time
}

func newLocalFile(cfg BackendConfig) (Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("local-file backend missing path")
	}
	if cfg.Encryption == nil {
		return nil, errors.New("local-file backend requires encryption configuration")
	}
	material, err := loadKeyMaterial(cfg.Encryption)
	if err != nil {
		return nil, err
	}
	key, err := deriveKey(material)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create local store dir: %w", err)
	}
	return &localFile{
		key:  key,
		fs:   osfs.New(dir),
		name: filepath.Base(cfg.Path),
		lock: flock.New(cfg.Path + ".lock"),
		now:  time.Now,
	}, nil
}

func (s *localFile) Get(_ context.Context, name string) (string, error) {
	var value string
	err := s.locked(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		rec, ok := doc.Secrets[name]
		if !ok {
			return fmt.Errorf("%s in %s: %w", name, s.name, ErrNotFound)
		}
		value = rec.Value
		return nil
	})
	return value, err
}

func (s *localFile) Put(_ context.Context, name, value string) error {
	return s.locked(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		doc.Secrets[name] = localRecord{Value: value, StoredAt: s.now().UTC()}
		return s.save(doc)
	})
}

func (s *localFile) load() (localDocument, error) {
	doc := localDocument{Secrets: map[string]localRecord{}}
	raw, err := util.ReadFile(s.fs, s.name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("read local store: %w", err)
	}
	if len(raw) == 0 {
		return doc, nil
	}
	plaintext, err := decrypt(raw, s.key)
	if err != nil {
		return doc, fmt.Errorf("decrypt local store: %w", err)
	}
	if err := json.Unmarshal(plaintext, &doc); err != nil {
		return doc, fmt.Errorf("parse local store: %w", err)
	}
	if doc.Secrets == nil {
		doc.Secrets = map[string]localRecord{}
	}
	return doc, nil
}

// save encrypts doc into a temp file next to the store and renames it into
// place. TempFile creates the file owner-only.
func (s *localFile) save(doc localDocument) error {
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode local store: %w", err)
	}
	ciphertext, err := encrypt(encoded, s.key)
	if err != nil {
		return fmt.Errorf("encrypt local store: %w", err)
	}

	tmp, err := s.fs.TempFile("", "."+s.name+"-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(ciphertext); err != nil {
		tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, s.name); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("replace local store: %w", err)
	}
	return nil
}

func (s *localFile) locked(fn func() error) error {
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock %s: %w", s.lock.Path(), err)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			zap.L().Warn("release local store lock", zap.String("lock", s.lock.Path()), zap.Error(err))
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	return fn()
}
