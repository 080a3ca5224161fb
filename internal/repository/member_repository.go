package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"family-planner/internal/model"
)

// MemberRepository handles family membership rows.
type MemberRepository struct {
	db *gorm.DB
}

func NewMemberRepository(db *gorm.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// Upsert finds the member of familyID with telegramID or creates one, refreshing the display name.
func (r *MemberRepository) Upsert(ctx context.Context, familyID string, telegramID int64, displayName, role string) (*model.Member, error) {
	if r.db == nil {
		return nil, fmt.Errorf("upsert member: %w", model.ErrRemoteUnavailable)
	}
	var member model.Member
	db := r.db.WithContext(ctx)
	err := db.Where("family_id = ? AND telegram_id = ?", familyID, telegramID).First(&member).Error
	switch {
	case err == nil:
		if err := db.Model(&member).Update("display_name", displayName).Error; err != nil {
			return nil, classify("update member", err)
		}
		return &member, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = model.Member{
			ID:          uuid.NewString(),
			FamilyID:    familyID,
			TelegramID:  telegramID,
			DisplayName: displayName,
			Role:        role,
		}
		if err := db.Create(&member).Error; err != nil {
			return nil, classify("create member", err)
		}
		return &member, nil
	default:
		return nil, classify("find member", err)
	}
}

func (r *MemberRepository) ListByFamily(ctx context.Context, familyID string) ([]model.Member, error) {
	if r.db == nil {
		return nil, fmt.Errorf("list members: %w", model.ErrRemoteUnavailable)
	}
	var members []model.Member
	if err := r.db.WithContext(ctx).Where("family_id = ?", familyID).Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, classify("list members", err)
	}
	return members, nil
}
