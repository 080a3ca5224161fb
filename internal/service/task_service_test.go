package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-planner/internal/localstore"
	"family-planner/internal/model"
	"family-planner/internal/repository"
	"family-planner/internal/storage"
	"family-planner/internal/syncqueue"
)

var quiet = log.New(io.Discard, "", 0)

type staticFamily struct {
	familyID string
	memberID string
}

func (f staticFamily) HasActiveFamily() bool   { return f.familyID != "" }
func (f staticFamily) CurrentFamilyID() string { return f.familyID }
func (f staticFamily) CurrentMemberID() string { return f.memberID }

var testFamily = staticFamily{familyID: "fam-1", memberID: "member-1"}

// flakyGateway fails the first createFailures creates, then defers to the real gateway.
type flakyGateway struct {
	*repository.TaskGateway
	mu             sync.Mutex
	createFailures int
}

func (g *flakyGateway) Create(ctx context.Context, task model.Task) (model.Task, error) {
	g.mu.Lock()
	if g.createFailures > 0 {
		g.createFailures--
		g.mu.Unlock()
		return model.Task{}, fmt.Errorf("%w: injected failure", model.ErrRemoteRejected)
	}
	g.mu.Unlock()
	return g.TaskGateway.Create(ctx, task)
}

func newRemote(t *testing.T) *repository.TaskGateway {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.NewDB(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repository.NewTaskGateway(db)
}

type harness struct {
	svc   *TaskService
	store *localstore.Store
	queue *syncqueue.Queue
}

func newHarness(t *testing.T, session staticFamily, gw syncqueue.Gateway, cfg syncqueue.Config) harness {
	t.Helper()
	slots := storage.NewMemorySlots()
	store := localstore.New(slots, quiet)
	queue := syncqueue.New(syncqueue.NewStore(slots, quiet), gw, cfg, quiet)
	require.NoError(t, queue.Load(context.Background()))
	return harness{
		svc:   NewTaskService(store, queue, session, quiet),
		store: store,
		queue: queue,
	}
}

func roomyConfig() syncqueue.Config {
	return syncqueue.Config{MaxSize: 1000, RateLimit: 1000}
}

func TestCreateTask_LocalOnlyNeverQueues(t *testing.T) {
	h := newHarness(t, staticFamily{}, newRemote(t), roomyConfig())

	task, err := h.svc.CreateTask(context.Background(), TaskInput{
		Name:     "Fractions worksheet",
		Subject:  "Math",
		Date:     "2024-05-01",
		Duration: 30,
	})
	require.NoError(t, err)

	assert.Equal(t, "1", task.ID)
	assert.Equal(t, 3, task.Points)
	assert.Empty(t, task.FamilyID)
	assert.Equal(t, model.RepeatOnce, task.RepeatType)
	assert.Empty(t, h.queue.Items())
	assert.Len(t, h.svc.ListTasks("2024-05-01"), 1)
}

func TestCreateTask_FamilyTaskRetriesUntilDelivered(t *testing.T) {
	remote := newRemote(t)
	gw := &flakyGateway{TaskGateway: remote, createFailures: 1}
	h := newHarness(t, testFamily, gw, roomyConfig())
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, TaskInput{Name: "Reading log", Subject: "English", Date: "2024-05-01", Duration: 20})
	require.NoError(t, err)
	assert.Equal(t, "fam-1", task.FamilyID)
	assert.Equal(t, "member-1", task.CreatedBy)
	assert.Equal(t, "member-1", task.AssignedTo)
	assert.Len(t, task.ID, 36)

	h.queue.SetOnline(true)
	h.queue.Drain(ctx)
	items := h.queue.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RetryCount)

	h.queue.Drain(ctx)
	assert.Empty(t, h.queue.Items())

	rows, err := remote.ListByFamily(ctx, "fam-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, withoutTimestamps(task), withoutTimestamps(rows[0]))
}

func TestCreateTask_Validation(t *testing.T) {
	h := newHarness(t, staticFamily{}, newRemote(t), roomyConfig())
	ctx := context.Background()

	cases := []struct {
		name  string
		input TaskInput
	}{
		{"empty name", TaskInput{Name: "  ", Duration: 10}},
		{"bad date", TaskInput{Name: "x", Date: "01.05.2024", Duration: 10}},
		{"bad time", TaskInput{Name: "x", StartTime: "25:00", EndTime: "26:00"}},
		{"no duration", TaskInput{Name: "x"}},
		{"end before start", TaskInput{Name: "x", StartTime: "17:00", EndTime: "16:00"}},
		{"unknown repeat", TaskInput{Name: "x", Duration: 10, RepeatType: "hourly"}},
		{"too many occurrences", TaskInput{Name: "x", Duration: 10, RepeatType: model.RepeatDaily, Occurrences: 61}},
	}
	for _, tc := range cases {
		_, err := h.svc.CreateTask(ctx, tc.input)
		assert.ErrorIs(t, err, model.ErrInvalidInput, tc.name)
	}
	assert.Empty(t, h.svc.ListTasks(""))
}

func TestCreateTask_DurationFromTimes(t *testing.T) {
	h := newHarness(t, staticFamily{}, newRemote(t), roomyConfig())
	h.svc.now = func() time.Time { return time.Date(2024, 5, 2, 8, 0, 0, 0, time.UTC) }

	task, err := h.svc.CreateTask(context.Background(), TaskInput{Name: "Piano", StartTime: "16:00", EndTime: "16:45"})
	require.NoError(t, err)
	assert.Equal(t, 45, task.Duration)
	assert.Equal(t, 5, task.Points)
	assert.Equal(t, "2024-05-02", task.Date)
}

func TestCreateSeries_ExpandsOccurrences(t *testing.T) {
	h := newHarness(t, testFamily, newRemote(t), roomyConfig())
	ctx := context.Background()

	weekly, err := h.svc.CreateSeries(ctx, TaskInput{Name: "Spelling", Date: "2024-05-01", Duration: 15, RepeatType: model.RepeatWeekly})
	require.NoError(t, err)
	require.Len(t, weekly, 4)
	var dates []string
	for _, task := range weekly {
		dates = append(dates, task.Date)
		assert.Equal(t, model.RepeatWeekly, task.RepeatType)
	}
	assert.Equal(t, []string{"2024-05-01", "2024-05-08", "2024-05-15", "2024-05-22"}, dates)
	assert.Len(t, h.queue.Items(), 4)

	monthly, err := h.svc.CreateSeries(ctx, TaskInput{Name: "Library", Date: "2024-01-31", Duration: 60, RepeatType: model.RepeatMonthly, Occurrences: 2})
	require.NoError(t, err)
	require.Len(t, monthly, 2)
	assert.Equal(t, "2024-02-29", monthly[1].Date)
}

func TestOccurrenceDates(t *testing.T) {
	dates, err := occurrenceDates("2024-05-01", model.RepeatDaily, 0)
	require.NoError(t, err)
	assert.Len(t, dates, 7)
	assert.Equal(t, "2024-05-07", dates[6])

	dates, err = occurrenceDates("2024-05-01", model.RepeatBiweekly, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01", "2024-05-15"}, dates)

	dates, err = occurrenceDates("2024-05-01", model.RepeatOnce, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-05-01"}, dates)
}

func TestUpdateTask_QueuedAfterCreate(t *testing.T) {
	remote := newRemote(t)
	h := newHarness(t, testFamily, remote, roomyConfig())
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, TaskInput{Name: "Essay", Date: "2024-05-01", Duration: 40})
	require.NoError(t, err)
	name := "Essay draft"
	duration := 55
	updated, ok, err := h.svc.UpdateTask(ctx, task.ID, model.TaskPatch{Name: &name, Duration: &duration})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 6, updated.Points)

	items := h.queue.Items()
	require.Len(t, items, 2)
	assert.Equal(t, model.OpCreate, items[0].Operation)
	assert.Equal(t, model.OpUpdate, items[1].Operation)
	var payload model.UpdatePayload
	require.NoError(t, json.Unmarshal(items[1].Payload, &payload))
	assert.True(t, updated.UpdatedAt.Equal(payload.UpdatedAt), "the remote row is stamped with the local edit time")

	h.queue.SetOnline(true)
	h.queue.Drain(ctx)
	assert.Empty(t, h.queue.Items())

	got, err := remote.Get(ctx, task.ID, "fam-1")
	require.NoError(t, err)
	assert.Equal(t, "Essay draft", got.Name)
	assert.Equal(t, 6, got.Points)
}

func TestUpdateTask_UnknownAndLocalOnly(t *testing.T) {
	h := newHarness(t, staticFamily{}, newRemote(t), roomyConfig())
	ctx := context.Background()

	name := "x"
	_, ok, err := h.svc.UpdateTask(ctx, "404", model.TaskPatch{Name: &name})
	require.NoError(t, err)
	assert.False(t, ok)

	task, err := h.svc.CreateTask(ctx, TaskInput{Name: "Local", Duration: 10})
	require.NoError(t, err)
	_, ok, err = h.svc.UpdateTask(ctx, task.ID, model.TaskPatch{Name: &name})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, h.queue.Items())

	empty := ""
	_, _, err = h.svc.UpdateTask(ctx, task.ID, model.TaskPatch{Name: &empty})
	assert.Error(t, err)
}

func TestToggleComplete(t *testing.T) {
	h := newHarness(t, staticFamily{}, newRemote(t), roomyConfig())
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, TaskInput{Name: "Flashcards", Duration: 10})
	require.NoError(t, err)

	toggled, ok, err := h.svc.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, toggled.Completed)

	toggled, _, err = h.svc.ToggleComplete(ctx, task.ID)
	require.NoError(t, err)
	assert.False(t, toggled.Completed)

	_, ok, err = h.svc.ToggleComplete(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteTask_Idempotent(t *testing.T) {
	remote := newRemote(t)
	h := newHarness(t, testFamily, remote, roomyConfig())
	ctx := context.Background()

	task, err := h.svc.CreateTask(ctx, TaskInput{Name: "Lab report", Duration: 30})
	require.NoError(t, err)

	first, err := h.svc.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	second, err := h.svc.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, DeleteResult{Success: true, ID: task.ID}, first)
	assert.Equal(t, first, second)

	items := h.queue.Items()
	require.Len(t, items, 2)
	assert.Equal(t, model.OpDelete, items[1].Operation)

	h.queue.SetOnline(true)
	h.queue.Drain(ctx)
	assert.Empty(t, h.queue.Items())
	rows, err := remote.ListByFamily(ctx, "fam-1")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEnqueueFailureKeepsLocalWrite(t *testing.T) {
	h := newHarness(t, testFamily, newRemote(t), syncqueue.Config{RateLimit: 1})
	ctx := context.Background()

	_, err := h.svc.CreateTask(ctx, TaskInput{Name: "One", Duration: 10})
	require.NoError(t, err)
	_, err = h.svc.CreateTask(ctx, TaskInput{Name: "Two", Duration: 10})
	require.NoError(t, err)

	assert.Len(t, h.svc.ListTasks(""), 2)
	assert.Len(t, h.queue.Items(), 1)
}

func TestCreateTask_WaitsForQueueLoad(t *testing.T) {
	slots := storage.NewMemorySlots()
	store := localstore.New(slots, quiet)
	queue := syncqueue.New(syncqueue.NewStore(slots, quiet), newRemote(t), roomyConfig(), quiet)
	svc := NewTaskService(store, queue, testFamily, quiet)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := svc.CreateTask(context.Background(), TaskInput{Name: "Early", Duration: 10})
		assert.NoError(t, err)
	}()

	select {
	case <-done:
		t.Fatal("create returned before the queue was loaded")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Len(t, store.List(""), 1)

	require.NoError(t, queue.Load(context.Background()))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("create did not finish after load")
	}
	assert.Len(t, queue.Items(), 1)
}

func TestOfflineEditsConvergeAfterDrain(t *testing.T) {
	remote := newRemote(t)
	h := newHarness(t, testFamily, remote, roomyConfig())
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	var ids []string
	for step := 0; step < 80; step++ {
		switch op := rng.Intn(4); {
		case op == 0 || len(ids) == 0:
			task, err := h.svc.CreateTask(ctx, TaskInput{
				Name:     fmt.Sprintf("task %d", step),
				Date:     "2024-05-01",
				Duration: 5 + rng.Intn(60),
			})
			require.NoError(t, err)
			ids = append(ids, task.ID)
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			duration := 5 + rng.Intn(90)
			_, _, err := h.svc.UpdateTask(ctx, id, model.TaskPatch{Duration: &duration})
			require.NoError(t, err)
		case op == 2:
			_, _, err := h.svc.ToggleComplete(ctx, ids[rng.Intn(len(ids))])
			require.NoError(t, err)
		default:
			i := rng.Intn(len(ids))
			_, err := h.svc.DeleteTask(ctx, ids[i])
			require.NoError(t, err)
			ids = append(ids[:i], ids[i+1:]...)
		}
	}

	h.queue.SetOnline(true)
	h.queue.Drain(ctx)
	require.Empty(t, h.queue.Items())
	require.Empty(t, h.queue.DeadLetters())

	remoteTasks, err := remote.ListByFamily(ctx, "fam-1")
	require.NoError(t, err)
	assert.Equal(t, normalized(h.svc.ListTasks("")), normalized(remoteTasks))
}

// withoutTimestamps drops timestamps, which the remote stamps on its own.
func withoutTimestamps(t model.Task) model.Task {
	t.CreatedAt = time.Time{}
	t.UpdatedAt = time.Time{}
	return t
}

func normalized(tasks []model.Task) []model.Task {
	out := make([]model.Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, withoutTimestamps(task))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
