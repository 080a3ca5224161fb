package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"family-planner/internal/family"
	"family-planner/internal/localstore"
	"family-planner/internal/model"
	"family-planner/internal/syncqueue"
)

const maxOccurrences = 60

// TaskInput represents data required to create a task.
type TaskInput struct {
	Name        string
	Subject     string
	Description string
	Date        string
	StartTime   string
	EndTime     string
	Duration    int
	RepeatType  model.RepeatType
	Occurrences int
	AssignedTo  string
}

// DeleteResult is what a delete reports to the UI.
type DeleteResult struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

// TaskService is the single entry point for task mutations. It writes the
// local store first and only then hands family-scoped changes to the sync
// queue; queue trouble is logged and never reaches the caller.
type TaskService struct {
	store   *localstore.Store
	queue   *syncqueue.Queue
	session family.Context
	logger  *log.Logger
	now     func() time.Time
	newID   func() string
}

func NewTaskService(store *localstore.Store, queue *syncqueue.Queue, session family.Context, logger *log.Logger) *TaskService {
	if logger == nil {
		logger = log.New(os.Stdout, "", log.LstdFlags)
	}
	return &TaskService{
		store:   store,
		queue:   queue,
		session: session,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// CreateTask stores exactly one task.
func (s *TaskService) CreateTask(ctx context.Context, input TaskInput) (model.Task, error) {
	if err := s.normalize(&input); err != nil {
		return model.Task{}, err
	}
	return s.createOne(ctx, input, input.Date)
}

// CreateSeries expands a repeating request into concrete tasks, one per
// occurrence, and stores each of them.
func (s *TaskService) CreateSeries(ctx context.Context, input TaskInput) ([]model.Task, error) {
	if err := s.normalize(&input); err != nil {
		return nil, err
	}
	dates, err := occurrenceDates(input.Date, input.RepeatType, input.Occurrences)
	if err != nil {
		return nil, err
	}
	tasks := make([]model.Task, 0, len(dates))
	for _, date := range dates {
		task, err := s.createOne(ctx, input, date)
		if err != nil {
			return tasks, err
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func (s *TaskService) createOne(ctx context.Context, input TaskInput, date string) (model.Task, error) {
	now := s.now()
	task := model.Task{
		Name:        input.Name,
		Subject:     input.Subject,
		Description: input.Description,
		Date:        date,
		StartTime:   input.StartTime,
		EndTime:     input.EndTime,
		Duration:    input.Duration,
		Points:      model.PointsForDuration(input.Duration),
		RepeatType:  input.RepeatType,
		AssignedTo:  input.AssignedTo,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	scoped := s.session != nil && s.session.HasActiveFamily()
	if scoped {
		task.ID = s.newID()
		task.FamilyID = s.session.CurrentFamilyID()
		task.CreatedBy = s.session.CurrentMemberID()
		if task.AssignedTo == "" {
			task.AssignedTo = task.CreatedBy
		}
	}

	stored, err := s.store.Insert(task)
	if err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.logger.Printf("[info] task created id=%s date=%s family=%t", stored.ID, stored.Date, scoped)

	if scoped {
		s.enqueue(ctx, model.OpCreate, stored.ID, stored)
	}
	return stored, nil
}

// UpdateTask merges patch into the task. The bool is false when no task has that id.
func (s *TaskService) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, bool, error) {
	if err := validatePatch(patch); err != nil {
		return model.Task{}, false, err
	}
	updated, ok, err := s.store.Update(id, patch)
	if err != nil {
		return model.Task{}, ok, fmt.Errorf("update task: %w", err)
	}
	if !ok {
		return model.Task{}, false, nil
	}
	if updated.FamilyScoped() {
		s.enqueue(ctx, model.OpUpdate, id, model.UpdatePayload{ID: id, FamilyID: updated.FamilyID, Patch: patch, UpdatedAt: updated.UpdatedAt})
	}
	return updated, true, nil
}

// ToggleComplete flips the completed flag.
func (s *TaskService) ToggleComplete(ctx context.Context, id string) (model.Task, bool, error) {
	task, ok := s.store.Get(id)
	if !ok {
		return model.Task{}, false, nil
	}
	completed := !task.Completed
	return s.UpdateTask(ctx, id, model.TaskPatch{Completed: &completed})
}

// DeleteTask removes the task locally and, for family tasks, queues the
// remote delete. Deleting an unknown id succeeds.
func (s *TaskService) DeleteTask(ctx context.Context, id string) (DeleteResult, error) {
	existing, found := s.store.Get(id)
	if _, err := s.store.Remove(id); err != nil {
		return DeleteResult{ID: id}, fmt.Errorf("delete task: %w", err)
	}
	if found && existing.FamilyScoped() {
		s.enqueue(ctx, model.OpDelete, id, model.DeletePayload{ID: id, FamilyID: existing.FamilyID})
	}
	if found {
		s.logger.Printf("[info] task deleted id=%s", id)
	}
	return DeleteResult{Success: true, ID: id}, nil
}

// ListTasks returns the day's tasks, or all tasks when date is empty.
func (s *TaskService) ListTasks(date string) []model.Task {
	return s.store.List(date)
}

func (s *TaskService) GetTask(id string) (model.Task, bool) {
	return s.store.Get(id)
}

func (s *TaskService) enqueue(ctx context.Context, op model.Operation, id string, payload interface{}) {
	if s.queue == nil {
		s.logger.Printf("[warn] sync %s %s skipped: no sync queue", op, id)
		return
	}
	if err := s.queue.WaitReady(ctx); err != nil {
		s.logger.Printf("[error] sync %s %s not queued: %v", op, id, err)
		return
	}
	if err := s.queue.Enqueue(op, model.TasksTable, payload); err != nil {
		level := "[error]"
		if errors.Is(err, model.ErrRateLimited) {
			level = "[warn]"
		}
		s.logger.Printf("%s sync %s %s not queued: %v", level, op, id, err)
	}
}

func (s *TaskService) normalize(input *TaskInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Subject = strings.TrimSpace(input.Subject)
	input.Description = strings.TrimSpace(input.Description)
	if input.Name == "" {
		return fmt.Errorf("%w: name is required", model.ErrInvalidInput)
	}
	if input.Date == "" {
		input.Date = s.now().Format(model.DateLayout)
	}
	if _, err := time.Parse(model.DateLayout, input.Date); err != nil {
		return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", model.ErrInvalidInput, input.Date)
	}
	start, err := parseClock(input.StartTime)
	if err != nil {
		return err
	}
	end, err := parseClock(input.EndTime)
	if err != nil {
		return err
	}
	if input.Duration == 0 && start != nil && end != nil {
		input.Duration = int(end.Sub(*start).Minutes())
	}
	if input.Duration <= 0 {
		return fmt.Errorf("%w: duration must be a positive number of minutes", model.ErrInvalidInput)
	}
	if input.RepeatType == "" {
		input.RepeatType = model.RepeatOnce
	}
	if !input.RepeatType.Valid() {
		return fmt.Errorf("%w: unknown repeat type %q", model.ErrInvalidInput, input.RepeatType)
	}
	if input.Occurrences < 0 || input.Occurrences > maxOccurrences {
		return fmt.Errorf("%w: occurrences must be between 1 and %d", model.ErrInvalidInput, maxOccurrences)
	}
	return nil
}

func validatePatch(p model.TaskPatch) error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", model.ErrInvalidInput)
	}
	if p.Date != nil {
		if _, err := time.Parse(model.DateLayout, *p.Date); err != nil {
			return fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", model.ErrInvalidInput, *p.Date)
		}
	}
	if p.StartTime != nil {
		if _, err := parseClock(*p.StartTime); err != nil {
			return err
		}
	}
	if p.EndTime != nil {
		if _, err := parseClock(*p.EndTime); err != nil {
			return err
		}
	}
	if p.Duration != nil && *p.Duration <= 0 {
		return fmt.Errorf("%w: duration must be a positive number of minutes", model.ErrInvalidInput)
	}
	return nil
}

func parseClock(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(model.TimeLayout, value)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid time %q, expected HH:MM", model.ErrInvalidInput, value)
	}
	return &t, nil
}

// occurrenceDates lists the concrete dates of a repeating request.
func occurrenceDates(first string, repeat model.RepeatType, count int) ([]string, error) {
	start, err := time.Parse(model.DateLayout, first)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q, expected YYYY-MM-DD", model.ErrInvalidInput, first)
	}
	if count == 0 {
		count = defaultOccurrences(repeat)
	}
	if repeat == model.RepeatOnce {
		count = 1
	}
	dates := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var d time.Time
		switch repeat {
		case model.RepeatDaily:
			d = start.AddDate(0, 0, i)
		case model.RepeatWeekly:
			d = start.AddDate(0, 0, 7*i)
		case model.RepeatBiweekly:
			d = start.AddDate(0, 0, 14*i)
		case model.RepeatMonthly:
			d = addMonthsClamped(start, i)
		default:
			d = start
		}
		dates = append(dates, d.Format(model.DateLayout))
	}
	return dates, nil
}

func defaultOccurrences(repeat model.RepeatType) int {
	switch repeat {
	case model.RepeatDaily:
		return 7
	case model.RepeatWeekly, model.RepeatBiweekly:
		return 4
	case model.RepeatMonthly:
		return 3
	default:
		return 1
	}
}

// addMonthsClamped keeps the day of month, falling back to the last day
// when the target month is shorter.
func addMonthsClamped(t time.Time, months int) time.Time {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location()).AddDate(0, months, 0)
	day := t.Day()
	if last := daysInMonth(first.Month(), first.Year()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, t.Location())
}
