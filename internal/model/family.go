package model

import "time"

// Family groups members and the tasks they share.
type Family struct {
	ID         string `gorm:"primaryKey;size:64"`
	Name       string `gorm:"not null"`
	InviteCode string `gorm:"uniqueIndex;size:16"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
	Members    []Member `gorm:"foreignKey:FamilyID"`
}

// Member is a person inside a family, usually tied to a Telegram account.
type Member struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	FamilyID    string    `gorm:"index:idx_family_telegram,unique" json:"familyId"`
	TelegramID  int64     `gorm:"index:idx_family_telegram,unique" json:"telegramId"`
	DisplayName string    `json:"displayName"`
	Role        string    `json:"role"` // parent or child
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
