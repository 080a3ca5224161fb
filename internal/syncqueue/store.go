package syncqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"family-planner/internal/model"
	"family-planner/internal/storage"
)

// Store persists the active queue and the dead-letter list, each as one blob.
type Store struct {
	slots  storage.Slots
	logger *log.Logger
}

func NewStore(slots storage.Slots, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stdout, "[queue] ", log.LstdFlags)
	}
	return &Store{slots: slots, logger: logger}
}

// LoadQueue returns the persisted queue; unreadable data reads as empty.
func (s *Store) LoadQueue() []model.SyncQueueItem {
	var items []model.SyncQueueItem
	if !s.read(storage.SlotSyncQueue, &items) {
		return []model.SyncQueueItem{}
	}
	return items
}

func (s *Store) SaveQueue(items []model.SyncQueueItem) error {
	return s.write(storage.SlotSyncQueue, items)
}

// LoadDeadLetters returns the persisted dead-letter list; unreadable data reads as empty.
func (s *Store) LoadDeadLetters() []model.DeadLetterItem {
	var items []model.DeadLetterItem
	if !s.read(storage.SlotDeadLetter, &items) {
		return []model.DeadLetterItem{}
	}
	return items
}

func (s *Store) SaveDeadLetters(items []model.DeadLetterItem) error {
	return s.write(storage.SlotDeadLetter, items)
}

func (s *Store) read(key string, dst interface{}) bool {
	data, err := s.slots.Get(key)
	if err != nil {
		if !errors.Is(err, storage.ErrEmptySlot) {
			s.logger.Printf("read %s: %v (starting empty)", key, err)
		}
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		s.logger.Printf("decode %s: %v (starting empty)", key, err)
		return false
	}
	return true
}

func (s *Store) write(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.slots.Put(key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
