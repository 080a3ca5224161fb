package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"family-planner/internal/api"
	"family-planner/internal/bot"
	"family-planner/internal/service"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Serve the HTTP API, the sync loop and the Telegram bot",
	RunE:  runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var telegramBot *bot.Bot
	if a.cfg.BotEnabled() {
		telegramBot, err = bot.New(a.cfg.TelegramToken, a.tasks, a.families, a.reminders, a.queue, a.slots, &a.cfg)
		if err != nil {
			return err
		}
	} else {
		log.Println("[info] TELEGRAM_TOKEN not set, bot disabled")
	}

	scheduler := service.NewSchedulerService(a.cfg.Location(), log.Default())
	if _, err := scheduler.ScheduleInterval("sync-probe", a.cfg.SyncInterval, func() {
		if a.probe(ctx) {
			a.queue.Trigger()
		}
	}); err != nil {
		return err
	}
	if telegramBot != nil && a.cfg.ReportTime != "" {
		if _, err := scheduler.ScheduleDaily("daily-report", a.cfg.ReportTime, func() {
			jobCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("report: %v", err)
			}
		}); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	go a.queue.Run(ctx)
	if a.probe(ctx) {
		a.queue.Trigger()
	}

	router := mux.NewRouter()
	router.Use(api.RequestLogger(log.New(log.Writer(), "[api] ", log.LstdFlags)))
	api.RegisterRoutes(router,
		api.NewTaskController(a.tasks),
		api.NewSyncController(a.queue, log.New(log.Writer(), "[api] ", log.LstdFlags)),
		api.NewFamilyController(a.families),
	)
	server := api.NewServer(a.cfg.HTTPAddr, router)

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[info] http listening on %s", a.cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	if telegramBot != nil {
		go func() {
			if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("bot stopped with error: %v", err)
			}
		}()
	}

	log.Println("Family planner started.")
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Printf("[error] http server: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	log.Println("Shutdown complete.")
	return nil
}
