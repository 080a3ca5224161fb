package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"family-planner/internal/model"
)

// FamilyRepository manages families on the remote.
type FamilyRepository struct {
	db *gorm.DB
}

func NewFamilyRepository(db *gorm.DB) *FamilyRepository {
	return &FamilyRepository{db: db}
}

// Create stores a new family with a fresh invite code.
func (r *FamilyRepository) Create(ctx context.Context, name string) (*model.Family, error) {
	if r.db == nil {
		return nil, fmt.Errorf("create family: %w", model.ErrRemoteUnavailable)
	}
	family := model.Family{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		InviteCode: newInviteCode(),
	}
	if family.Name == "" {
		return nil, fmt.Errorf("%w: family name is required", model.ErrInvalidInput)
	}
	if err := r.db.WithContext(ctx).Create(&family).Error; err != nil {
		return nil, classify("create family", err)
	}
	return &family, nil
}

func (r *FamilyRepository) FindByInviteCode(ctx context.Context, code string) (*model.Family, error) {
	if r.db == nil {
		return nil, fmt.Errorf("find family: %w", model.ErrRemoteUnavailable)
	}
	var family model.Family
	err := r.db.WithContext(ctx).Where("invite_code = ?", strings.ToUpper(strings.TrimSpace(code))).First(&family).Error
	switch {
	case err == nil:
		return &family, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, fmt.Errorf("family with code %q: %w", code, model.ErrNotFound)
	default:
		return nil, classify("find family", err)
	}
}

func (r *FamilyRepository) GetByID(ctx context.Context, id string) (*model.Family, error) {
	if r.db == nil {
		return nil, fmt.Errorf("get family: %w", model.ErrRemoteUnavailable)
	}
	var family model.Family
	if err := r.db.WithContext(ctx).First(&family, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("family %s: %w", id, model.ErrNotFound)
		}
		return nil, classify("get family", err)
	}
	return &family, nil
}

// newInviteCode returns eight upper-case hex characters.
func newInviteCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:8])
}
