package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"

	"family-planner/internal/config"
	"family-planner/internal/family"
	"family-planner/internal/localstore"
	"family-planner/internal/repository"
	"family-planner/internal/service"
	"family-planner/internal/storage"
	"family-planner/internal/syncqueue"
)

// app holds everything the commands share.
type app struct {
	cfg     config.Config
	db      *gorm.DB
	slots   storage.Slots
	store   *localstore.Store
	session *family.Session
	queue   *syncqueue.Queue

	tasks     *service.TaskService
	families  *service.FamilyService
	reminders *service.ReminderService

	closers []io.Closer
}

// setupLogging points the std logger at stdout and, when LOG_FILE is set,
// a rotated log file.
func setupLogging(cfg config.Config) io.Closer {
	if cfg.LogFile == "" {
		return nil
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	return rotator
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	a := &app{cfg: cfg}
	if c := setupLogging(cfg); c != nil {
		a.closers = append(a.closers, c)
	}

	slots, err := storage.NewFileSlots(cfg.DataDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("data dir: %w", err)
	}
	a.slots = slots

	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Printf("[warn] remote database unavailable, running local-only: %v", err)
		} else {
			a.db = db
			if sqlDB, err := db.DB(); err == nil {
				a.closers = append(a.closers, sqlDB)
			}
		}
	} else {
		log.Println("[info] DATABASE_URL not set, family sync disabled")
	}

	logger := log.Default()
	a.store = localstore.New(slots, logger)
	a.session = family.Open(slots, logger)
	a.queue = syncqueue.New(
		syncqueue.NewStore(slots, logger),
		repository.NewTaskGateway(a.db),
		syncqueue.Config{
			MaxSize:       cfg.SyncMaxQueue,
			RateLimit:     cfg.SyncRateLimit,
			MaxRetries:    cfg.SyncMaxRetries,
			DrainInterval: cfg.SyncInterval,
		},
		logger,
	)
	if err := a.queue.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load sync queue: %w", err)
	}

	a.tasks = service.NewTaskService(a.store, a.queue, a.session, logger)
	a.families = service.NewFamilyService(repository.NewFamilyRepository(a.db), repository.NewMemberRepository(a.db), a.session)
	a.reminders = service.NewReminderService(a.store, a.queue)
	return a, nil
}

// probe checks the remote under the configured timeout.
func (a *app) probe(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, a.cfg.SyncProbeTimeout)
	defer cancel()
	return a.queue.Probe(probeCtx)
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}
	a.closers = nil
}
