package store

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"weekplanner/internal/fileutil"
	appLog "weekplanner/internal/log"
	"weekplanner/internal/model"
)

//go:embed default_meals.json
var defaultSeed []byte

// Store loads and saves the meal document.
type Store interface {
	Load() (Document, error)
	Save(Document) error
}

// FileStore keeps the document as one JSON file. Saves go through a temp
// file and a rename, so a reader never sees a partial document.
type FileStore struct {
	path string
	seed []byte

	mu       sync.Mutex
	lastHash [sha256.Size]byte
}

// NewFileStore returns a store for path seeded from the bundled defaults.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, seed: defaultSeed}
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

// Load reads the document, writing the seed first when no file exists. A
// file that cannot be parsed is moved aside and an empty document returned.
func (s *FileStore) Load() (Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := fileutil.WriteFileAtomic(s.path, s.seed, 0o644); err != nil {
			return Empty(), &model.PersistenceError{Op: "seed", Err: err}
		}
		appLog.Info("seeded meal store", "path", s.path)
		data = s.seed
	} else if err != nil {
		appLog.Error("reading meal store failed; using empty document", err, "path", s.path)
		return Empty(), nil
	}

	doc, err := decode(data)
	if err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
		if rerr := os.Rename(s.path, aside); rerr != nil {
			appLog.Error("moving corrupt meal store aside failed", rerr, "path", s.path)
		}
		appLog.Error("meal store is corrupt; using empty document", err, "path", s.path, "moved_to", aside)
		return Empty(), nil
	}

	s.remember(data)
	return doc, nil
}

// Save writes doc atomically.
func (s *FileStore) Save(doc Document) error {
	data, err := encode(doc)
	if err != nil {
		return &model.PersistenceError{Op: "encode", Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return &model.PersistenceError{Op: "save", Err: err}
	}
	s.lastHash = sha256.Sum256(data)
	return nil
}

// Watch calls fn with the new document whenever the file is changed by
// something other than this store. Changes that do not parse are skipped.
// It blocks until ctx is done.
func (s *FileStore) Watch(ctx context.Context, fn func(Document)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	target, _ := filepath.Abs(s.path)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if name, _ := filepath.Abs(ev.Name); name != target {
				continue
			}
			if doc, changed := s.reload(); changed {
				appLog.Info("meal store changed on disk", "path", s.path)
				fn(doc)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			appLog.Warn("meal store watch error", "err", err)
		}
	}
}

func (s *FileStore) reload() (Document, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Document{}, false
	}
	sum := sha256.Sum256(data)

	s.mu.Lock()
	defer s.mu.Unlock()
	if sum == s.lastHash {
		return Document{}, false
	}
	doc, err := decode(data)
	if err != nil {
		appLog.Warn("ignoring unparseable meal store edit", "path", s.path, "err", err)
		return Document{}, false
	}
	s.lastHash = sum
	return doc, true
}

func (s *FileStore) remember(data []byte) {
	s.mu.Lock()
	s.lastHash = sha256.Sum256(data)
	s.mu.Unlock()
}

func decode(data []byte) (Document, error) {
	var doc Document
	if len(bytes.TrimSpace(data)) == 0 {
		return doc, errors.New("empty document")
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return doc, err
	}
	doc.normalize()
	return doc, nil
}

func encode(doc Document) ([]byte, error) {
	doc.normalize()
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
