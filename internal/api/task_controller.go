package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"family-planner/internal/model"
	"family-planner/internal/planparse"
	"family-planner/internal/service"
)

// TaskController handles HTTP requests for tasks.
type TaskController struct {
	Service *service.TaskService
	now     func() time.Time
}

// NewTaskController creates a new TaskController.
func NewTaskController(svc *service.TaskService) *TaskController {
	return &TaskController{Service: svc, now: time.Now}
}

type createTaskRequest struct {
	Name        string           `json:"name" validate:"notblank,max=200"`
	Subject     string           `json:"subject" validate:"max=64"`
	Description string           `json:"description" validate:"max=2000"`
	Date        string           `json:"date" validate:"omitempty,datetime=2006-01-02"`
	StartTime   string           `json:"startTime" validate:"omitempty,datetime=15:04"`
	EndTime     string           `json:"endTime" validate:"omitempty,datetime=15:04"`
	Duration    int              `json:"duration" validate:"gte=0,lte=1440"`
	RepeatType  model.RepeatType `json:"repeatType" validate:"omitempty,oneof=once daily weekly biweekly monthly"`
	Occurrences int              `json:"occurrences" validate:"gte=0,lte=60"`
	AssignedTo  string           `json:"assignedTo"`
}

func (r createTaskRequest) input() service.TaskInput {
	return service.TaskInput{
		Name:        r.Name,
		Subject:     r.Subject,
		Description: r.Description,
		Date:        r.Date,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		Duration:    r.Duration,
		RepeatType:  r.RepeatType,
		Occurrences: r.Occurrences,
		AssignedTo:  r.AssignedTo,
	}
}

// ListTasks handles GET /tasks?date=YYYY-MM-DD.
func (c *TaskController) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Service.ListTasks(r.URL.Query().Get("date")))
}

// CreateTask handles POST /tasks. Repeating requests answer with every occurrence.
func (c *TaskController) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	tasks, err := c.Service.CreateSeries(r.Context(), req.input())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tasks)
}

// GetTask handles GET /tasks/{taskID}.
func (c *TaskController) GetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]
	task, ok := c.Service.GetTask(id)
	if !ok {
		writeError(w, fmt.Errorf("task %s: %w", id, model.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// UpdateTask handles PATCH /tasks/{taskID}.
func (c *TaskController) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]
	var patch model.TaskPatch
	if err := decode(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	if patch.Empty() {
		writeError(w, fmt.Errorf("%w: nothing to update", model.ErrInvalidInput))
		return
	}
	task, ok, err := c.Service.UpdateTask(r.Context(), id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("task %s: %w", id, model.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// ToggleTask handles POST /tasks/{taskID}/toggle.
func (c *TaskController) ToggleTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["taskID"]
	task, ok, err := c.Service.ToggleComplete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("task %s: %w", id, model.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// DeleteTask handles DELETE /tasks/{taskID}.
func (c *TaskController) DeleteTask(w http.ResponseWriter, r *http.Request) {
	result, err := c.Service.DeleteTask(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type planRequest struct {
	Text string `json:"text" validate:"notblank"`
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

type skippedLine struct {
	Line   string `json:"line"`
	Reason string `json:"reason"`
}

type planResponse struct {
	Created []model.Task  `json:"created"`
	Skipped []skippedLine `json:"skipped"`
}

// ImportPlan handles POST /plan: each parsable line of text becomes a task.
func (c *TaskController) ImportPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	base := c.now()
	if req.Date != "" {
		d, err := time.ParseInLocation(model.DateLayout, req.Date, base.Location())
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid date %q", model.ErrInvalidInput, req.Date))
			return
		}
		base = d
	}

	resp := planResponse{Created: []model.Task{}, Skipped: []skippedLine{}}
	for _, res := range planparse.Parse(req.Text, base) {
		if !res.OK {
			resp.Skipped = append(resp.Skipped, skippedLine{Line: res.Line, Reason: res.Reason})
			continue
		}
		task, err := c.Service.CreateTask(r.Context(), res.Input)
		if err != nil {
			resp.Skipped = append(resp.Skipped, skippedLine{Line: res.Line, Reason: err.Error()})
			continue
		}
		resp.Created = append(resp.Created, task)
	}
	status := http.StatusCreated
	if len(resp.Created) == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}
