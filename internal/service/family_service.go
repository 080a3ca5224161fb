package service

import (
	"context"
	"fmt"
	"strings"

	"family-planner/internal/family"
	"family-planner/internal/model"
	"family-planner/internal/repository"
)

const (
	RoleParent = "parent"
	RoleChild  = "child"
)

// FamilyService creates and joins families and keeps the local session in step.
type FamilyService struct {
	families *repository.FamilyRepository
	members  *repository.MemberRepository
	session  *family.Session
}

func NewFamilyService(families *repository.FamilyRepository, members *repository.MemberRepository, session *family.Session) *FamilyService {
	return &FamilyService{families: families, members: members, session: session}
}

// Current returns the active session; ok is false when the device is local-only.
func (s *FamilyService) Current() (family.State, bool) {
	state := s.session.State()
	return state, state.FamilyID != ""
}

// CreateFamily registers a new family with the caller as its first parent.
func (s *FamilyService) CreateFamily(ctx context.Context, name string, telegramID int64, displayName string) (family.State, error) {
	f, err := s.families.Create(ctx, name)
	if err != nil {
		return family.State{}, err
	}
	return s.enter(ctx, f, telegramID, displayName, RoleParent)
}

// JoinFamily attaches the caller to the family owning inviteCode.
func (s *FamilyService) JoinFamily(ctx context.Context, inviteCode string, telegramID int64, displayName, role string) (family.State, error) {
	if strings.TrimSpace(inviteCode) == "" {
		return family.State{}, fmt.Errorf("%w: invite code is required", model.ErrInvalidInput)
	}
	if role == "" {
		role = RoleChild
	}
	if role != RoleParent && role != RoleChild {
		return family.State{}, fmt.Errorf("%w: unknown role %q", model.ErrInvalidInput, role)
	}
	f, err := s.families.FindByInviteCode(ctx, inviteCode)
	if err != nil {
		return family.State{}, err
	}
	return s.enter(ctx, f, telegramID, displayName, role)
}

func (s *FamilyService) enter(ctx context.Context, f *model.Family, telegramID int64, displayName, role string) (family.State, error) {
	if strings.TrimSpace(displayName) == "" {
		displayName = fmt.Sprintf("member-%d", telegramID)
	}
	member, err := s.members.Upsert(ctx, f.ID, telegramID, displayName, role)
	if err != nil {
		return family.State{}, err
	}
	state := family.State{
		FamilyID:   f.ID,
		FamilyName: f.Name,
		InviteCode: f.InviteCode,
		MemberID:   member.ID,
		MemberName: member.DisplayName,
		JoinedAt:   member.CreatedAt,
	}
	if err := s.session.Set(state); err != nil {
		return family.State{}, err
	}
	return state, nil
}

// Leave drops the session. Tasks already stamped with the family keep syncing.
func (s *FamilyService) Leave() error {
	return s.session.Clear()
}

// Members lists the active family's members.
func (s *FamilyService) Members(ctx context.Context) ([]model.Member, error) {
	state, ok := s.Current()
	if !ok {
		return nil, model.ErrNoFamily
	}
	return s.members.ListByFamily(ctx, state.FamilyID)
}
