package model

import "time"

// RepeatType describes how a task request is expanded into occurrences.
type RepeatType string

const (
	RepeatOnce     RepeatType = "once"
	RepeatDaily    RepeatType = "daily"
	RepeatWeekly   RepeatType = "weekly"
	RepeatBiweekly RepeatType = "biweekly"
	RepeatMonthly  RepeatType = "monthly"
)

// Valid reports whether r is one of the known repeat types.
func (r RepeatType) Valid() bool {
	switch r {
	case RepeatOnce, RepeatDaily, RepeatWeekly, RepeatBiweekly, RepeatMonthly:
		return true
	}
	return false
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Task is a single scheduled piece of study work.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Subject     string     `json:"subject"`
	Description string     `json:"description,omitempty"`
	Date        string     `json:"date"`
	StartTime   string     `json:"startTime,omitempty"`
	EndTime     string     `json:"endTime,omitempty"`
	Duration    int        `json:"duration"`
	Completed   bool       `json:"completed"`
	Points      int        `json:"points"`
	RepeatType  RepeatType `json:"repeatType"`
	FamilyID    string     `json:"familyId,omitempty"`
	CreatedBy   string     `json:"createdBy,omitempty"`
	AssignedTo  string     `json:"assignedTo,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// FamilyScoped reports whether the task must be mirrored to the remote table.
func (t Task) FamilyScoped() bool {
	return t.FamilyID != ""
}

// PointsForDuration awards one point per started ten minutes, never less than one.
func PointsForDuration(minutes int) int {
	if minutes <= 0 {
		return 0
	}
	return (minutes + 9) / 10
}

// TaskPatch lists the fields an update may change. Nil means "leave as is".
type TaskPatch struct {
	Name        *string `json:"name,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	Description *string `json:"description,omitempty"`
	Date        *string `json:"date,omitempty"`
	StartTime   *string `json:"startTime,omitempty"`
	EndTime     *string `json:"endTime,omitempty"`
	Duration    *int    `json:"duration,omitempty"`
	Completed   *bool   `json:"completed,omitempty"`
	AssignedTo  *string `json:"assignedTo,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Name == nil && p.Subject == nil && p.Description == nil && p.Date == nil &&
		p.StartTime == nil && p.EndTime == nil && p.Duration == nil && p.Completed == nil &&
		p.AssignedTo == nil
}

// Apply merges the patch into t field by field. Points follow the duration.
func (p TaskPatch) Apply(t Task) Task {
	if p.Name != nil {
		t.Name = *p.Name
	}
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.StartTime != nil {
		t.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		t.EndTime = *p.EndTime
	}
	if p.Duration != nil {
		t.Duration = *p.Duration
		t.Points = PointsForDuration(t.Duration)
	}
	if p.Completed != nil {
		t.Completed = *p.Completed
	}
	if p.AssignedTo != nil {
		t.AssignedTo = *p.AssignedTo
	}
	return t
}

// TaskRow is the remote table shape of a Task.
type TaskRow struct {
	ID          string `gorm:"primaryKey;size:64"`
	Name        string `gorm:"not null"`
	Subject     string
	Date        string `gorm:"index"`
	StartTime   string
	EndTime     string
	Description string
	FamilyID    string `gorm:"index;not null"`
	CreatedBy   string
	AssignedTo  string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Completed   bool `gorm:"default:false"`
	Duration    int
	RepeatType  string
	Points      int
}

func (TaskRow) TableName() string {
	return "tasks"
}

// NewTaskRow converts a Task to its remote row.
func NewTaskRow(t Task) TaskRow {
	return TaskRow{
		ID:          t.ID,
		Name:        t.Name,
		Subject:     t.Subject,
		Date:        t.Date,
		StartTime:   t.StartTime,
		EndTime:     t.EndTime,
		Description: t.Description,
		FamilyID:    t.FamilyID,
		CreatedBy:   t.CreatedBy,
		AssignedTo:  t.AssignedTo,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		Completed:   t.Completed,
		Duration:    t.Duration,
		RepeatType:  string(t.RepeatType),
		Points:      t.Points,
	}
}

// Task converts the row back to the client shape.
func (r TaskRow) Task() Task {
	return Task{
		ID:          r.ID,
		Name:        r.Name,
		Subject:     r.Subject,
		Description: r.Description,
		Date:        r.Date,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Duration:    r.Duration,
		Completed:   r.Completed,
		Points:      r.Points,
		RepeatType:  RepeatType(r.RepeatType),
		FamilyID:    r.FamilyID,
		CreatedBy:   r.CreatedBy,
		AssignedTo:  r.AssignedTo,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
