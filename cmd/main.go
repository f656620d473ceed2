package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sellerlab/wbcompare/internal/auth"
	"github.com/sellerlab/wbcompare/internal/bot"
	appconfig "github.com/sellerlab/wbcompare/internal/config"
	"github.com/sellerlab/wbcompare/internal/database"
	"github.com/sellerlab/wbcompare/internal/payment"
	"github.com/sellerlab/wbcompare/internal/queue"
	"github.com/sellerlab/wbcompare/internal/redis"
	"github.com/sellerlab/wbcompare/internal/repository"
	"github.com/sellerlab/wbcompare/internal/server"
	"github.com/sellerlab/wbcompare/internal/session"
	"github.com/sellerlab/wbcompare/internal/wb"
	"github.com/sellerlab/wbcompare/internal/worker"
)

func main() {
	cfg := appconfig.Load()
	slog.Info("starting wbcompare", "addr", cfg.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	redisService, err := redis.New(cfg.RedisURL)
	if err != nil {
		slog.Error("failed to connect to Redis", "err", err)
		os.Exit(1)
	}
	defer redisService.Close()

	repo := repository.New(db)
	q := queue.New(cfg.QueueBuf)
	pending := auth.NewPendingCode()

	tgBot, err := bot.New(cfg.BotToken, repo, q, pending, cfg.AdminTelegramID)
	if err != nil {
		slog.Error("failed to create telegram bot", "err", err)
		os.Exit(1)
	}

	ykClient := payment.NewYookassaClient(cfg.YookassaShopID, cfg.YookassaSecretKey, cfg.YookassaReturnURL, cfg.ReceiptEmail)
	payments := payment.NewService(repo, redisService, ykClient, tgBot)
	tgBot.SetPayments(payments)

	codes := auth.NewCodeSource(pending, tgBot, cfg.WBPhone, cfg.AuthCodeTimeout)
	store := session.NewStore(cfg.WBStateFile)
	wbClient := wb.NewClient(wb.Options{
		Phone:         cfg.WBPhone,
		Headless:      cfg.WBHeadless,
		StateFile:     cfg.WBStateFile,
		DownloadsPath: cfg.WBDownloadsPath,
	}, store, codes, repo)

	// The mock flag is re-read per job, but whether a browser exists at
	// all is a startup decision: mock-only deployments run without one.
	mockMode := repo.UseMockPipeline(ctx)
	if !mockMode {
		if err := wbClient.Connect(ctx); err != nil {
			slog.Error("failed to start browser", "err", err)
			os.Exit(1)
		}
		defer wbClient.Disconnect()
	} else {
		slog.Info("mock pipeline enabled, browser not started")
	}

	w := worker.New(q, wbClient, repo, cfg.MockReportFile, cfg.WorkerPollEvery)
	dispatcher := worker.NewDispatcher(q, tgBot, repo, repo, cfg.WorkerPollEvery)

	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		w.Run(ctx)
	}()
	go func() {
		defer loops.Done()
		dispatcher.Run(ctx)
	}()

	go tgBot.Run(ctx)

	if !mockMode {
		// The login flow relays one-time codes through the bot, so the
		// authorization check must not start before polling does.
		go func() {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
			slog.Info("checking seller portal authorization")
			if err := wbClient.EnsureAuthorized(ctx); err != nil {
				slog.Error("authorization check failed", "err", err)
				return
			}
			slog.Info("seller portal authorization check complete")
		}()

		go worker.RunStateSaver(ctx, wbClient, cfg.WBStateSaveInterval)
	}

	handlers := server.NewHandlers(repo, redisService, q, payments)
	r := server.NewRouter(handlers)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  90 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	slog.Info("shutting down")

	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	cancel()

	// A dequeued job always runs to completion and its result is always
	// delivered, so both loops are joined before the browser goes away.
	// No timeout here: a job mid-pipeline may legitimately take minutes.
	slog.Info("waiting for worker and dispatcher to finish")
	loops.Wait()

	// Re-read the flag: it may have flipped since startup.
	if !repo.UseMockPipeline(shCtx) {
		saveDone := make(chan error, 1)
		go func() { saveDone <- wbClient.SaveCurrentState() }()
		select {
		case err := <-saveDone:
			if err != nil {
				slog.Warn("final state save failed", "err", err)
			}
		case <-shCtx.Done():
			slog.Warn("final state save timed out")
		}
	}
}
