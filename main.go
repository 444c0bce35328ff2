package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soglom/pillbot/internal/bot"
	"github.com/soglom/pillbot/internal/config"
	"github.com/soglom/pillbot/internal/database"
	"github.com/soglom/pillbot/internal/intake"
	"github.com/soglom/pillbot/internal/notify"
	"github.com/soglom/pillbot/internal/scheduler"
	"github.com/soglom/pillbot/internal/store"
	"github.com/soglom/pillbot/internal/twilio"
)

func main() {
	logger := log.New(os.Stdout, "[pillbot] ", log.LstdFlags|log.Lshortfile)
	cfg := config.Load()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("database init failed: %v", err)
	}

	now := func() time.Time { return time.Now().In(cfg.LocalTimezone) }

	st := store.New(db)
	twilioClient := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, logger)
	machine := intake.New(st, logger, now)
	dispatcher := notify.New(st, twilioClient, logger, now)
	chatBot := bot.New(st, machine, dispatcher, logger, now)

	sched := scheduler.New(st, dispatcher, logger, cfg.LocalTimezone)
	if err := sched.Start(); err != nil {
		logger.Fatalf("scheduler start: %v", err)
	}

	http.Handle("/twilio/webhook", twilioClient.Handler(chatBot.HandleEvent))

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: nil,
	}

	go func() {
		logger.Printf("server starting on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(server, sched, logger)
}

func waitForShutdown(server *http.Server, sched *scheduler.Scheduler, logger *log.Logger) {
	stopCtx := make(chan os.Signal, 1)
	signal.Notify(stopCtx, syscall.SIGINT, syscall.SIGTERM)
	<-stopCtx
	logger.Println("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Printf("server shutdown error: %v", err)
	}
	sched.Stop()
}
