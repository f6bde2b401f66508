package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ndenisov/calmind/config"
	"github.com/ndenisov/calmind/internal/alarm"
	"github.com/ndenisov/calmind/internal/bot"
	"github.com/ndenisov/calmind/internal/clients/caldav"
	"github.com/ndenisov/calmind/internal/clients/eventstore"
	"github.com/ndenisov/calmind/internal/clock"
	"github.com/ndenisov/calmind/internal/repository"
	"github.com/ndenisov/calmind/internal/scheduler"
	"github.com/ndenisov/calmind/internal/service"
	"github.com/ndenisov/calmind/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	var backend repository.Backend
	var checker service.SessionChecker
	switch cfg.Backend {
	case "caldav":
		client := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword, cfg.CalDAVPath, cfg.Timezone)
		backend = client
		checker = service.SessionCheckerFunc(func(ctx context.Context) error {
			_, err := client.DiscoverCalendars(ctx)
			return err
		})
	default:
		client := eventstore.NewClient(cfg.APIBaseURL, func() string { return cfg.APIToken }, cfg.Timezone)
		backend = client
		checker = client
	}

	capability := alarm.StaticCapability(cfg.ExactAlarms)
	facility := alarm.New(capability, store, clock.NewSystem(), nil)

	repo := repository.New(backend)
	notifySvc := service.NewNotifyService(facility, capability, cfg.Timezone)
	syncSvc := service.NewSyncService(repo, notifySvc, store, cfg.OwnerID, service.ReloadAlways)
	sessionSvc := service.NewSessionService(checker)

	tgBot, err := bot.New(cfg.TelegramToken, cfg.ChatID, syncSvc, cfg.Timezone)
	if err != nil {
		log.Fatalf("Failed to init bot: %v", err)
	}
	facility.SetFire(tgBot.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	startupCtx, startupCancel := context.WithTimeout(ctx, 30*time.Second)
	if !sessionSvc.IsSessionValid(startupCtx) {
		// Stale credentials: the engine must not trust anything derived from
		// the previous session, persisted reminders included.
		log.Println("Session invalid, discarding cached state; sign in and restart")
		syncSvc.Reset()
	} else {
		// The cache carries the previous run's local ids, so it must be in
		// place before the persisted reminders keyed by those ids come back.
		if err := syncSvc.LoadCached(); err != nil {
			log.Printf("Failed to load cached events: %v", err)
		}
		if err := facility.Restore(); err != nil {
			log.Printf("Failed to restore alarm registrations: %v", err)
		}
		if err := syncSvc.LoadEvents(startupCtx); err != nil {
			log.Printf("Initial load failed: %v", err)
		}
	}
	startupCancel()

	sched := scheduler.New(cfg.Timezone, facility, syncSvc, cfg.ResyncInterval)

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Printf("Bot error: %v", err)
		}
	}()

	log.Println("calmind started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	log.Println("calmind stopped")
}
