package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mjkeeling/ember/internal/backup"
	"github.com/mjkeeling/ember/internal/database"
	"github.com/mjkeeling/ember/internal/logging"
	"github.com/mjkeeling/ember/internal/server"
)

func main() {
	restoreID := flag.Int64("restore", 0, "restore the given backup id and exit instead of serving")
	restoreTo := flag.String("restore-to", "ember-restore.db", "destination path for a restored database")
	flag.Parse()

	logger := logging.Setup(os.Getenv("EMBER_LOG_LEVEL"))

	port := os.Getenv("EMBER_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("EMBER_DB_PATH")
	if dbPath == "" {
		dbPath = "ember.db"
	}

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("EMBER_S3_ENDPOINT"),
			Bucket:    os.Getenv("EMBER_S3_BUCKET"),
			Region:    os.Getenv("EMBER_S3_REGION"),
			AccessKey: os.Getenv("EMBER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("EMBER_S3_SECRET_KEY"),
		},
		Passphrase:    os.Getenv("EMBER_BACKUP_PASSPHRASE"),
		ScheduleHour:  envInt("EMBER_BACKUP_HOUR", 3),
		RetentionDays: envInt("EMBER_BACKUP_RETENTION_DAYS", 30),
	}

	srv := server.New(db, backupCfg, nil, logger)

	// Restore mode: decrypt a backup next to the live database and exit.
	// The operator swaps the files and restarts.
	if *restoreID > 0 {
		if err := srv.BackupManager().Restore(context.Background(), *restoreID, *restoreTo); err != nil {
			logger.Error("restore failed", "id", *restoreID, "error", err)
			os.Exit(1)
		}
		logger.Info("restore complete", "id", *restoreID, "dst", *restoreTo)
		return
	}

	seedInviteCodes(srv, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if srv.BackupManager().Enabled() {
		srv.BackupManager().Start(ctx)
		defer srv.BackupManager().Stop()
	}

	// Periodic housekeeping: expired sessions and stale rate limit entries.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					logger.Error("session cleanup", "error", err)
				} else if n > 0 {
					logger.Info("session cleanup", "deleted", n)
				}
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("ember running", "addr", "http://localhost:"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// seedInviteCodes mints EMBER_INVITE_SEED codes on first boot so the
// operator has something to hand out. Codes are only logged here; after
// that they live in the database.
func seedInviteCodes(srv *server.Server, logger *slog.Logger) {
	n := envInt("EMBER_INVITE_SEED", 0)
	if n <= 0 {
		return
	}

	count, err := srv.AccessCodeStore().Count()
	if err != nil {
		logger.Error("invite seed count", "error", err)
		return
	}
	if count > 0 {
		return
	}

	for i := 0; i < n; i++ {
		code, err := srv.AccessCodeStore().Create()
		if err != nil {
			logger.Error("invite seed", "error", err)
			return
		}
		logger.Info("invite code minted", "code", code.Code)
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
