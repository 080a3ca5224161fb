// Package syncqueue delivers locally-originated task mutations to the remote
// table in the order the user issued them.
//
// The queue is a durable FIFO. A drain processes items strictly from the
// head; the first failure stops the cycle so a later mutation of the same
// task can never overtake an earlier one. Items that fail MaxRetries times
// move to the dead-letter list so the rest of the queue can make progress.
package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"family-planner/internal/model"
)

// ErrNotReady is returned by Enqueue before Load has restored the backlog.
var ErrNotReady = errors.New("sync queue not loaded")

// Gateway is the remote side the queue drains into.
type Gateway interface {
	Create(ctx context.Context, task model.Task) (model.Task, error)
	Update(ctx context.Context, p model.UpdatePayload) (model.Task, error)
	Delete(ctx context.Context, id, familyID string) (bool, error)
}

// Prober is implemented by gateways that can test connectivity.
type Prober interface {
	Ping(ctx context.Context) error
}

// Config holds the queue's tuning values.
type Config struct {
	// MaxSize bounds the active queue; the oldest item is evicted first.
	MaxSize int

	// RateLimit is the number of enqueues admitted per RateWindow.
	RateLimit  int
	RateWindow time.Duration

	// MaxRetries is the failure count at which an item is dead-lettered.
	MaxRetries int

	// DrainInterval is how often the periodic trigger fires.
	DrainInterval time.Duration
}

// DefaultConfig returns the stock tuning values.
func DefaultConfig() Config {
	return Config{
		MaxSize:       100,
		RateLimit:     60,
		RateWindow:    time.Minute,
		MaxRetries:    3,
		DrainInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxSize <= 0 {
		c.MaxSize = def.MaxSize
	}
	if c.RateLimit <= 0 {
		c.RateLimit = def.RateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = def.MaxRetries
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = def.DrainInterval
	}
	return c
}

// Status is a snapshot of the queue for status indicators.
type Status struct {
	Online          bool      `json:"online"`
	Draining        bool      `json:"draining"`
	QueueLength     int       `json:"queueLength"`
	LastDrainTime   time.Time `json:"lastDrainTime"`
	LastSuccessTime time.Time `json:"lastSuccessTime"`
	DeadLetterCount int       `json:"deadLetterCount"`
	LastError       string    `json:"lastError,omitempty"`
}

// Queue is the Sync Queue.
type Queue struct {
	store   *Store
	gateway Gateway
	config  Config
	logger  *log.Logger
	now     func() time.Time

	mu          sync.Mutex
	items       []model.SyncQueueItem
	deadLetters []model.DeadLetterItem
	limiter     *slidingWindow
	online      bool
	draining    bool
	lastDrain   time.Time
	lastSuccess time.Time
	lastError   string

	ready     chan struct{}
	readyOnce sync.Once
	trigger   chan struct{}
}

// New creates a queue. Call Load before enqueuing.
func New(store *Store, gateway Gateway, config Config, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.New(os.Stdout, "[queue] ", log.LstdFlags)
	}
	config = config.withDefaults()
	return &Queue{
		store:   store,
		gateway: gateway,
		config:  config,
		logger:  logger,
		now:     time.Now,
		limiter: newSlidingWindow(config.RateLimit, config.RateWindow),
		ready:   make(chan struct{}),
		trigger: make(chan struct{}, 1),
	}
}

// Config returns the effective configuration.
func (q *Queue) Config() Config {
	return q.config
}

// Load restores the persisted backlog and opens the readiness barrier.
func (q *Queue) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	items := q.store.LoadQueue()
	dead := q.store.LoadDeadLetters()

	q.mu.Lock()
	q.items = items
	q.deadLetters = dead
	q.mu.Unlock()

	q.readyOnce.Do(func() { close(q.ready) })
	q.logger.Printf("loaded %d pending, %d dead-lettered", len(items), len(dead))
	return nil
}

// WaitReady blocks until Load has completed or ctx ends.
func (q *Queue) WaitReady(ctx context.Context) error {
	select {
	case <-q.ready:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for sync queue: %w", ctx.Err())
	}
}

func (q *Queue) isReady() bool {
	select {
	case <-q.ready:
		return true
	default:
		return false
	}
}

// Enqueue appends a mutation. It fails with model.ErrInvalidOperation on
// malformed arguments and model.ErrRateLimited when the window is full; in
// both cases the queue is unchanged.
func (q *Queue) Enqueue(op model.Operation, table string, payload interface{}) error {
	raw, err := encodePayload(op, table, payload)
	if err != nil {
		return err
	}
	if !q.isReady() {
		return ErrNotReady
	}

	q.mu.Lock()
	now := q.now()
	// Duplicates count against the window too.
	if !q.limiter.allow(now) {
		q.mu.Unlock()
		return fmt.Errorf("enqueue %s: %w (limit %d per %s)", op, model.ErrRateLimited, q.config.RateLimit, q.config.RateWindow)
	}
	if n := len(q.items); n > 0 {
		tail := q.items[n-1]
		if tail.Operation == op && tail.Table == table && tail.RetryCount == 0 && bytes.Equal(tail.Payload, raw) {
			q.mu.Unlock()
			q.logger.Printf("coalesced duplicate %s on %s", op, table)
			return nil
		}
	}
	for len(q.items) >= q.config.MaxSize {
		evicted := q.items[0]
		q.items = q.items[1:]
		q.logger.Printf("queue full (%d): evicted oldest %s %s enqueued %s",
			q.config.MaxSize, evicted.Operation, evicted.ID, evicted.EnqueuedAt.Format(time.RFC3339))
	}
	item := model.SyncQueueItem{
		ID:         uuid.NewString(),
		Operation:  op,
		Table:      table,
		Payload:    raw,
		EnqueuedAt: now,
		Status:     model.StatusPending,
	}
	q.items = append(q.items, item)
	q.persistQueueLocked()
	online := q.online
	q.mu.Unlock()

	if online {
		q.Trigger()
	}
	return nil
}

func encodePayload(op model.Operation, table string, payload interface{}) (json.RawMessage, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: unknown operation %q", model.ErrInvalidOperation, op)
	}
	if table == "" {
		return nil, fmt.Errorf("%w: table is required", model.ErrInvalidOperation)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is required", model.ErrInvalidOperation)
	}
	var raw json.RawMessage
	switch p := payload.(type) {
	case json.RawMessage:
		raw = p
	case []byte:
		raw = p
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: encode payload: %v", model.ErrInvalidOperation, err)
		}
		raw = data
	}
	var probe struct {
		ID string `json:"id"`
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || json.Unmarshal(raw, &probe) != nil {
		return nil, fmt.Errorf("%w: payload must be a JSON object", model.ErrInvalidOperation)
	}
	if probe.ID == "" {
		return nil, fmt.Errorf("%w: payload has no id", model.ErrInvalidOperation)
	}
	return raw, nil
}

// Trigger requests a drain from the Run loop. Triggers that arrive while one
// is already pending collapse into it.
func (q *Queue) Trigger() {
	select {
	case q.trigger <- struct{}{}:
	default:
	}
}

// Run services triggers until ctx ends.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.trigger:
			q.Drain(ctx)
		}
	}
}

// SetOnline records connectivity. Coming online triggers a drain.
func (q *Queue) SetOnline(online bool) {
	q.mu.Lock()
	was := q.online
	q.online = online
	q.mu.Unlock()

	if online && !was {
		q.logger.Println("remote online")
		q.Trigger()
	} else if !online && was {
		q.logger.Println("remote offline")
	}
}

// Probe pings the gateway when it can and records the result. Gateways
// without a probe leave the online flag untouched.
func (q *Queue) Probe(ctx context.Context) bool {
	if prober, ok := q.gateway.(Prober); ok {
		err := prober.Ping(ctx)
		if err != nil {
			q.logger.Printf("probe: %v", err)
		}
		q.SetOnline(err == nil)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.online
}

// ProbeAndDrain checks connectivity, then triggers a drain.
func (q *Queue) ProbeAndDrain(ctx context.Context) {
	q.Probe(ctx)
	q.Trigger()
}

// Drain delivers items from the head until the queue is empty or an item
// fails. It is a no-op while another drain runs, while offline, or when empty.
func (q *Queue) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining || !q.online || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	delivered := 0
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.lastDrain = q.now()
		remaining := len(q.items)
		q.mu.Unlock()
		if delivered > 0 {
			q.logger.Printf("drained %d item(s), %d remaining", delivered, remaining)
		}
	}()

	for ctx.Err() == nil {
		q.mu.Lock()
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		head := q.items[0]
		q.mu.Unlock()

		err := q.execute(ctx, head)

		q.mu.Lock()
		idx := q.indexLocked(head.ID)
		if err == nil {
			if idx >= 0 {
				q.items = append(q.items[:idx], q.items[idx+1:]...)
			}
			q.lastSuccess = q.now()
			q.lastError = ""
			q.persistQueueLocked()
			q.mu.Unlock()
			delivered++
			continue
		}

		q.lastError = err.Error()
		if errors.Is(err, model.ErrRemoteUnavailable) {
			q.online = false
		}
		if idx < 0 {
			// evicted while in flight
			q.mu.Unlock()
			return
		}
		item := &q.items[idx]
		item.RetryCount++
		item.Status = model.StatusFailed
		item.LastError = err.Error()
		if item.RetryCount >= q.config.MaxRetries {
			dead := model.DeadLetterItem{SyncQueueItem: *item, FailedAt: q.now()}
			q.deadLetters = append(q.deadLetters, dead)
			q.items = append(q.items[:idx], q.items[idx+1:]...)
			q.persistDeadLettersLocked()
			q.persistQueueLocked()
			q.mu.Unlock()
			q.logger.Printf("dead-lettered %s %s after %d attempts: %v", dead.Operation, dead.ID, dead.RetryCount, err)
			return
		}
		retries := item.RetryCount
		q.persistQueueLocked()
		q.mu.Unlock()
		q.logger.Printf("deliver %s %s failed (attempt %d/%d): %v", head.Operation, head.ID, retries, q.config.MaxRetries, err)
		return
	}
}

func (q *Queue) execute(ctx context.Context, item model.SyncQueueItem) error {
	if item.Table != model.TasksTable {
		return fmt.Errorf("%w: unknown table %q", model.ErrInvalidOperation, item.Table)
	}
	switch item.Operation {
	case model.OpCreate:
		var task model.Task
		if err := json.Unmarshal(item.Payload, &task); err != nil {
			return fmt.Errorf("decode create payload: %w", err)
		}
		_, err := q.gateway.Create(ctx, task)
		if errors.Is(err, model.ErrAlreadyExists) {
			// An earlier attempt landed but its response was lost.
			q.logger.Printf("create %s already applied remotely", task.ID)
			return nil
		}
		return err
	case model.OpUpdate:
		var p model.UpdatePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode update payload: %w", err)
		}
		_, err := q.gateway.Update(ctx, p)
		return err
	case model.OpDelete:
		var p model.DeletePayload
		if err := json.Unmarshal(item.Payload, &p); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		existed, err := q.gateway.Delete(ctx, p.ID, p.FamilyID)
		if err == nil && !existed {
			q.logger.Printf("delete %s: already gone remotely", p.ID)
		}
		return err
	default:
		return fmt.Errorf("%w: unknown operation %q", model.ErrInvalidOperation, item.Operation)
	}
}

func (q *Queue) indexLocked(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) persistQueueLocked() {
	if err := q.store.SaveQueue(q.items); err != nil {
		q.logger.Printf("persist queue: %v", err)
	}
}

func (q *Queue) persistDeadLettersLocked() {
	if err := q.store.SaveDeadLetters(q.deadLetters); err != nil {
		q.logger.Printf("persist dead letters: %v", err)
	}
}

// Status returns a snapshot without side effects.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Online:          q.online,
		Draining:        q.draining,
		QueueLength:     len(q.items),
		LastDrainTime:   q.lastDrain,
		LastSuccessTime: q.lastSuccess,
		DeadLetterCount: len(q.deadLetters),
		LastError:       q.lastError,
	}
}

// Items returns a copy of the active queue, head first.
func (q *Queue) Items() []model.SyncQueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.SyncQueueItem, len(q.items))
	copy(out, q.items)
	return out
}

// DeadLetters returns a copy of the dead-letter list.
func (q *Queue) DeadLetters() []model.DeadLetterItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.DeadLetterItem, len(q.deadLetters))
	copy(out, q.deadLetters)
	return out
}

// RetryDeadLetter moves a dead-lettered item back to the tail with a fresh retry count.
func (q *Queue) RetryDeadLetter(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, dead := range q.deadLetters {
		if dead.ID != id {
			continue
		}
		item := dead.SyncQueueItem
		item.RetryCount = 0
		item.Status = model.StatusPending
		item.LastError = ""
		q.deadLetters = append(q.deadLetters[:i], q.deadLetters[i+1:]...)
		for len(q.items) >= q.config.MaxSize {
			q.logger.Printf("queue full (%d): evicted oldest %s %s", q.config.MaxSize, q.items[0].Operation, q.items[0].ID)
			q.items = q.items[1:]
		}
		q.items = append(q.items, item)
		q.persistDeadLettersLocked()
		q.persistQueueLocked()
		return nil
	}
	return fmt.Errorf("dead letter %s: %w", id, model.ErrNotFound)
}

// PurgeDeadLetters drops the dead-letter list and returns how many were removed.
func (q *Queue) PurgeDeadLetters() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.deadLetters)
	q.deadLetters = []model.DeadLetterItem{}
	q.persistDeadLettersLocked()
	return n
}
