// Package localstore keeps the authoritative on-device copy of tasks.
//
// Every mutation rewrites the whole task slot; reads never fail; a missing or
// corrupt slot is logged and treated as an empty collection so the planner
// stays usable offline.
package localstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"family-planner/internal/model"
	"family-planner/internal/storage"
)

// Store is the Local Task Store.
type Store struct {
	slots  storage.Slots
	logger *log.Logger
	now    func() time.Time

	mu sync.Mutex
}

// New creates a Store on top of the given slots. A nil logger writes to stdout.
func New(slots storage.Slots, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stdout, "[store] ", log.LstdFlags)
	}
	return &Store{slots: slots, logger: logger, now: time.Now}
}

// List returns every task, or only those on date when date is not empty.
func (s *Store) List(date string) []model.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.load()
	if date == "" {
		return tasks
	}
	filtered := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Date == date {
			filtered = append(filtered, task)
		}
	}
	return filtered
}

// Get looks a task up by id.
func (s *Store) Get(id string) (model.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, task := range s.load() {
		if task.ID == id {
			return task, true
		}
	}
	return model.Task{}, false
}

// Insert appends the task, assigning a counter id when it has none.
func (s *Store) Insert(task model.Task) (model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.load()
	if task.ID == "" {
		id, err := s.nextID()
		if err != nil {
			return model.Task{}, err
		}
		task.ID = id
	}
	now := s.now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if task.UpdatedAt.IsZero() {
		task.UpdatedAt = task.CreatedAt
	}
	tasks = append(tasks, task)
	if err := s.save(tasks); err != nil {
		return model.Task{}, err
	}
	return task, nil
}

// Update merges patch into the task with the given id. The bool is false
// when no such task exists.
func (s *Store) Update(id string, patch model.TaskPatch) (model.Task, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.load()
	for i := range tasks {
		if tasks[i].ID != id {
			continue
		}
		updated := patch.Apply(tasks[i])
		updated.UpdatedAt = s.now()
		tasks[i] = updated
		if err := s.save(tasks); err != nil {
			return model.Task{}, true, err
		}
		return updated, true, nil
	}
	return model.Task{}, false, nil
}

// Remove deletes the task. Removing an unknown id still reports true.
func (s *Store) Remove(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.load()
	kept := tasks[:0]
	for _, task := range tasks {
		if task.ID != id {
			kept = append(kept, task)
		}
	}
	if err := s.save(kept); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) load() []model.Task {
	data, err := s.slots.Get(storage.SlotTasks)
	if err != nil {
		if !errors.Is(err, storage.ErrEmptySlot) {
			s.logger.Printf("read tasks: %v (using empty list)", err)
		}
		return []model.Task{}
	}
	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		s.logger.Printf("decode tasks: %v (using empty list)", err)
		return []model.Task{}
	}
	return tasks
}

func (s *Store) save(tasks []model.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	if err := s.slots.Put(storage.SlotTasks, data); err != nil {
		return fmt.Errorf("save tasks: %w", err)
	}
	return nil
}

// nextID advances the persisted local-only counter.
func (s *Store) nextID() (string, error) {
	var counter int
	data, err := s.slots.Get(storage.SlotTaskCounter)
	switch {
	case err == nil:
		if n, convErr := strconv.Atoi(string(data)); convErr == nil {
			counter = n
		} else {
			s.logger.Printf("decode task counter %q: %v (rebuilding)", data, convErr)
			counter = s.maxNumericID()
		}
	case errors.Is(err, storage.ErrEmptySlot):
	default:
		s.logger.Printf("read task counter: %v (rebuilding)", err)
		counter = s.maxNumericID()
	}
	counter++
	if err := s.slots.Put(storage.SlotTaskCounter, []byte(strconv.Itoa(counter))); err != nil {
		return "", fmt.Errorf("save task counter: %w", err)
	}
	return strconv.Itoa(counter), nil
}

func (s *Store) maxNumericID() int {
	highest := 0
	for _, task := range s.load() {
		if n, err := strconv.Atoi(task.ID); err == nil && n > highest {
			highest = n
		}
	}
	return highest
}
