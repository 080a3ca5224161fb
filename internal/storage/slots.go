// Package storage provides named persistence slots: small serialized blobs
// that are always read and rewritten as a whole.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"syscall"
)

// Slot names used by the planner.
const (
	SlotTasks       = "tasks"
	SlotTaskCounter = "task_counter"
	SlotSyncQueue   = "sync_queue"
	SlotDeadLetter  = "sync_dead_letter"
	SlotFamily      = "family_session"
	SlotChats       = "bot_chats"
)

// ErrEmptySlot is returned by Get when nothing has been stored under a key yet.
var ErrEmptySlot = errors.New("slot is empty")

var validKey = regexp.MustCompile(`^[a-z0-9_]+$`)

// Slots is a key-value persistence area.
type Slots interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// FileSlots keeps every slot in its own JSON file under a directory.
// No caching: each call reads or rewrites the file under an exclusive lock,
// and a rewrite lands atomically via rename.
type FileSlots struct {
	dir string
}

// NewFileSlots creates the directory if needed.
func NewFileSlots(dir string) (*FileSlots, error) {
	if dir == "" {
		return nil, fmt.Errorf("slots dir cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slots dir %q: %w", dir, err)
	}
	return &FileSlots{dir: dir}, nil
}

// Dir returns the directory holding the slot files.
func (s *FileSlots) Dir() string {
	return s.dir
}

func (s *FileSlots) path(key string) (string, error) {
	if !validKey.MatchString(key) {
		return "", fmt.Errorf("invalid slot key %q", key)
	}
	return filepath.Join(s.dir, key+".json"), nil
}

// Get returns the slot contents or ErrEmptySlot.
func (s *FileSlots) Get(key string) ([]byte, error) {
	var data []byte
	err := s.withFileLock(key, func(path string) error {
		var err error
		data, err = os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) || (err == nil && len(data) == 0) {
			return ErrEmptySlot
		}
		if err != nil {
			return fmt.Errorf("read slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put replaces the slot contents.
// Lock → write temp → fsync → rename → Unlock
func (s *FileSlots) Put(key string, data []byte) error {
	return s.withFileLock(key, func(path string) error {
		tmp, err := os.CreateTemp(s.dir, key+".*.tmp")
		if err != nil {
			return fmt.Errorf("create temp slot: %w", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := tmp.Write(data); err != nil {
			tmp.Close()
			return fmt.Errorf("write slot: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("sync slot: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close slot: %w", err)
		}
		if err := os.Rename(tmp.Name(), path); err != nil {
			return fmt.Errorf("replace slot: %w", err)
		}
		return nil
	})
}

// withFileLock holds an exclusive flock on <key>.lock while fn runs. The
// data file itself is replaced by rename, so it cannot carry the lock.
func (s *FileSlots) withFileLock(key string, fn func(path string) error) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	lock, err := os.OpenFile(filepath.Join(s.dir, key+".lock"), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open slot lock %s: %w", key, err)
	}
	defer lock.Close()

	if err := syscall.Flock(int(lock.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock slot %s: %w", key, err)
	}
	defer syscall.Flock(int(lock.Fd()), syscall.LOCK_UN)

	return fn(path)
}

// MemorySlots is an in-process Slots used by tests and ephemeral runs.
type MemorySlots struct {
	mu   sync.Mutex
	data map[string][]byte
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{data: make(map[string][]byte)}
}

func (m *MemorySlots) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	if !ok || len(data) == 0 {
		return nil, ErrEmptySlot
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemorySlots) Put(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.data[key] = stored
	return nil
}
