package signal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/huddleup/authsync/internal/pkg/id"
)

// Store is a string key/value store. Implementations decide durability:
// FileStore survives process restarts and is shared across processes,
// MemStore lives and dies with the process.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// WatchStore is a Store that notifies subscribers when OTHER writers change a
// key. A writer never hears its own Set or Delete echoed back; the write site
// already knows and handles the change inline.
type WatchStore interface {
	Store
	// Watch registers fn for changes to key made by other writers. ok is
	// false when the key was deleted. The returned func unsubscribes.
	Watch(key string, fn func(value string, ok bool)) (unsubscribe func())
	Close() error
}

// entry is the on-disk record for one key. Writer and Seq let readers tell
// their own writes apart from everyone else's. Deletes are tombstones, not
// unlinks: an unlink event carries no writer attribution, so a deleter could
// not be excluded from its own notification.
type entry struct {
	Value   string `json:"value"`
	Writer  string `json:"writer"`
	Seq     uint64 `json:"seq"`
	Deleted bool   `json:"deleted,omitempty"`
}

// FileStore is a WatchStore backed by one JSON file per key in a shared
// directory, with fsnotify delivering cross-process change events.
type FileStore struct {
	dir      string
	writerID string

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	seq     uint64
	subs    map[string][]*subscription
	closed  bool
	done    chan struct{}
	stopped chan struct{}
}

type subscription struct {
	key string
	fn  func(value string, ok bool)
}

// NewFileStore opens (creating if needed) the shared directory and starts the
// watcher goroutine. Each FileStore instance gets a fresh writer ID, so two
// stores in one process still exclude only their own writes.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create signal dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch signal dir: %w", err)
	}
	s := &FileStore{
		dir:      dir,
		writerID: id.New(),
		watcher:  watcher,
		subs:     make(map[string][]*subscription),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go s.watchLoop()
	return s, nil
}

func (s *FileStore) path(key string) string {
	// Keys are dotted identifiers; keep them readable on disk.
	return filepath.Join(s.dir, strings.ReplaceAll(key, string(filepath.Separator), "_")+".json")
}

func (s *FileStore) keyFromPath(p string) (string, bool) {
	base := filepath.Base(p)
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	return strings.TrimSuffix(base, ".json"), true
}

func (s *FileStore) Get(key string) (string, bool, error) {
	e, err := readEntry(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	if e.Deleted {
		return "", false, nil
	}
	return e.Value, true, nil
}

// Set writes atomically: temp file in the same directory, then rename. A
// concurrent reader sees either the old record or the new one, never a
// partial write.
func (s *FileStore) Set(key, value string) error {
	return s.write(key, value, false)
}

func (s *FileStore) write(key, value string, deleted bool) error {
	s.mu.Lock()
	s.seq++
	e := entry{Value: value, Writer: s.writerID, Seq: s.seq, Deleted: deleted}
	s.mu.Unlock()

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.dir, ".tmp-"+key+"-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path(key))
}

func (s *FileStore) Delete(key string) error {
	return s.write(key, "", true)
}

func (s *FileStore) Watch(key string, fn func(value string, ok bool)) func() {
	sub := &subscription{key: key, fn: fn}
	s.mu.Lock()
	s.subs[key] = append(s.subs[key], sub)
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		list := s.subs[key]
		for i, v := range list {
			if v == sub {
				s.subs[key] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
}

func (s *FileStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
	err := s.watcher.Close()
	<-s.stopped
	return err
}

func (s *FileStore) watchLoop() {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			key, ok := s.keyFromPath(event.Name)
			if !ok {
				continue
			}
			s.dispatch(key)
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("signal watcher error", "err", err)
		}
	}
}

// dispatch reads the key's current record and notifies subscribers, unless
// the last write came from this store instance.
func (s *FileStore) dispatch(key string) {
	var (
		value string
		ok    bool
	)
	e, err := readEntry(s.path(key))
	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		slog.Warn("signal read failed", "key", key, "err", err)
		return
	case e.Writer == s.writerID:
		return
	case e.Deleted:
		ok = false
	default:
		value, ok = e.Value, true
	}
	s.mu.Lock()
	list := make([]*subscription, len(s.subs[key]))
	copy(list, s.subs[key])
	s.mu.Unlock()
	for _, sub := range list {
		sub.fn(value, ok)
	}
}

func readEntry(path string) (entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return entry{}, err
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return entry{}, fmt.Errorf("corrupt signal record %s: %w", filepath.Base(path), err)
	}
	return e, nil
}

// MemStore is the transient counterpart: an in-process map. It backs the
// per-client "waiting" marker, which must NOT leak to other clients the way
// the durable keys do.
type MemStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemStore() *MemStore {
	return &MemStore{m: make(map[string]string)}
}

func (s *MemStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *MemStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *MemStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
