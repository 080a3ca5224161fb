package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"family-planner/internal/model"
)

// TaskGateway performs task mutations against the remote table. Every
// statement is scoped by family id so one family can never touch another's rows.
type TaskGateway struct {
	db  *gorm.DB
	now func() time.Time
}

// NewTaskGateway wraps db. A nil db yields a gateway that is permanently
// unavailable, which is how local-only installs run.
func NewTaskGateway(db *gorm.DB) *TaskGateway {
	return &TaskGateway{db: db, now: time.Now}
}

func (g *TaskGateway) conn(ctx context.Context) (*gorm.DB, error) {
	if g.db == nil {
		return nil, fmt.Errorf("no remote configured: %w", model.ErrRemoteUnavailable)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrRemoteUnavailable, err)
	}
	return g.db.WithContext(ctx), nil
}

// Ping is the connection probe used to flip the sync queue online.
func (g *TaskGateway) Ping(ctx context.Context) error {
	db, err := g.conn(ctx)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("ping remote: %w: %v", model.ErrRemoteUnavailable, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping remote: %w: %v", model.ErrRemoteUnavailable, err)
	}
	return nil
}

func (g *TaskGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	if err := validateRow(task); err != nil {
		return model.Task{}, err
	}
	db, err := g.conn(ctx)
	if err != nil {
		return model.Task{}, err
	}
	row := model.NewTaskRow(task)
	if err := db.Create(&row).Error; err != nil {
		return model.Task{}, classify("create task", err)
	}
	return row.Task(), nil
}

// Update applies p.Patch. The row is stamped with p.UpdatedAt so the remote
// copy carries the local edit time; a zero value falls back to now.
func (g *TaskGateway) Update(ctx context.Context, p model.UpdatePayload) (model.Task, error) {
	id, familyID := p.ID, p.FamilyID
	if id == "" || familyID == "" {
		return model.Task{}, fmt.Errorf("update task: %w: id and family id are required", model.ErrRemoteRejected)
	}
	db, err := g.conn(ctx)
	if err != nil {
		return model.Task{}, err
	}

	updates := patchColumns(p.Patch)
	stamp := p.UpdatedAt
	if stamp.IsZero() {
		stamp = g.now()
	}
	updates["updated_at"] = stamp
	res := db.Model(&model.TaskRow{}).Where("id = ? AND family_id = ?", id, familyID).Updates(updates)
	if res.Error != nil {
		return model.Task{}, classify("update task", res.Error)
	}
	if res.RowsAffected == 0 {
		return model.Task{}, fmt.Errorf("update task %s: %w: no such row", id, model.ErrRemoteRejected)
	}
	return g.Get(ctx, id, familyID)
}

// Delete removes the row. The bool reports whether a row existed.
func (g *TaskGateway) Delete(ctx context.Context, id, familyID string) (bool, error) {
	if id == "" || familyID == "" {
		return false, fmt.Errorf("delete task: %w: id and family id are required", model.ErrRemoteRejected)
	}
	db, err := g.conn(ctx)
	if err != nil {
		return false, err
	}
	res := db.Where("id = ? AND family_id = ?", id, familyID).Delete(&model.TaskRow{})
	if res.Error != nil {
		return false, classify("delete task", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (g *TaskGateway) Get(ctx context.Context, id, familyID string) (model.Task, error) {
	db, err := g.conn(ctx)
	if err != nil {
		return model.Task{}, err
	}
	var row model.TaskRow
	if err := db.Where("id = ? AND family_id = ?", id, familyID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.Task{}, fmt.Errorf("get task %s: %w", id, model.ErrNotFound)
		}
		return model.Task{}, classify("get task", err)
	}
	return row.Task(), nil
}

func (g *TaskGateway) ListByFamily(ctx context.Context, familyID string) ([]model.Task, error) {
	db, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}
	var rows []model.TaskRow
	if err := db.Where("family_id = ?", familyID).Order("date ASC, start_time ASC, created_at ASC").Find(&rows).Error; err != nil {
		return nil, classify("list tasks", err)
	}
	tasks := make([]model.Task, 0, len(rows))
	for _, row := range rows {
		tasks = append(tasks, row.Task())
	}
	return tasks, nil
}

func validateRow(task model.Task) error {
	switch {
	case task.ID == "":
		return fmt.Errorf("create task: %w: id is required", model.ErrRemoteRejected)
	case task.FamilyID == "":
		return fmt.Errorf("create task: %w: family id is required", model.ErrRemoteRejected)
	case strings.TrimSpace(task.Name) == "":
		return fmt.Errorf("create task: %w: name is required", model.ErrRemoteRejected)
	}
	return nil
}

func patchColumns(p model.TaskPatch) map[string]interface{} {
	updates := make(map[string]interface{})
	if p.Name != nil {
		updates["name"] = *p.Name
	}
	if p.Subject != nil {
		updates["subject"] = *p.Subject
	}
	if p.Description != nil {
		updates["description"] = *p.Description
	}
	if p.Date != nil {
		updates["date"] = *p.Date
	}
	if p.StartTime != nil {
		updates["start_time"] = *p.StartTime
	}
	if p.EndTime != nil {
		updates["end_time"] = *p.EndTime
	}
	if p.Duration != nil {
		updates["duration"] = *p.Duration
		updates["points"] = model.PointsForDuration(*p.Duration)
	}
	if p.Completed != nil {
		updates["completed"] = *p.Completed
	}
	if p.AssignedTo != nil {
		updates["assigned_to"] = *p.AssignedTo
	}
	return updates
}
