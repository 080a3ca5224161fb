// Package family holds the device's current family membership.
package family

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"family-planner/internal/storage"
)

// Context is what the task coordinator needs to know about the session.
type Context interface {
	HasActiveFamily() bool
	CurrentFamilyID() string
	CurrentMemberID() string
}

// State is the persisted session.
type State struct {
	FamilyID   string    `json:"familyId"`
	FamilyName string    `json:"familyName"`
	InviteCode string    `json:"inviteCode"`
	MemberID   string    `json:"memberId"`
	MemberName string    `json:"memberName"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Session is a slot-backed Context.
type Session struct {
	slots  storage.Slots
	logger *log.Logger

	mu    sync.RWMutex
	state State
}

// Open restores the session from slots. A missing or unreadable slot means
// no family.
func Open(slots storage.Slots, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(os.Stdout, "[family] ", log.LstdFlags)
	}
	s := &Session{slots: slots, logger: logger}
	data, err := slots.Get(storage.SlotFamily)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.state); err != nil {
			logger.Printf("decode family session: %v (starting local-only)", err)
			s.state = State{}
		}
	case !errors.Is(err, storage.ErrEmptySlot):
		logger.Printf("read family session: %v (starting local-only)", err)
	}
	return s
}

func (s *Session) HasActiveFamily() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FamilyID != ""
}

func (s *Session) CurrentFamilyID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.FamilyID
}

func (s *Session) CurrentMemberID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.MemberID
}

// State returns the full session.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Set replaces the session and persists it.
func (s *Session) Set(state State) error {
	if state.FamilyID == "" {
		return fmt.Errorf("family id is required")
	}
	return s.store(state)
}

// Clear leaves the family; later tasks are local-only.
func (s *Session) Clear() error {
	return s.store(State{})
}

func (s *Session) store(state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode family session: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slots.Put(storage.SlotFamily, data); err != nil {
		return fmt.Errorf("save family session: %w", err)
	}
	s.state = state
	return nil
}
