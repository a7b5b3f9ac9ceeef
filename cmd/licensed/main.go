package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"licensing/internal/adminauth"
	"licensing/internal/config"
	"licensing/internal/domain"
	"licensing/internal/observability/logging"
	"licensing/internal/observability/metrics"
	"licensing/internal/service"
	"licensing/internal/store"
	httptransport "licensing/internal/transport/http"
	"licensing/pkg/db"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	env := os.Getenv("ENVIRONMENT")
	if env == "" {
		env = "dev"
	}

	logger := logging.NewLogger(logging.Config{
		ServiceName: "licensed",
		Environment: env,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	slog.SetDefault(logger)

	cfg := config.Load()
	cfg.Validate()

	metrics.MustRegister("licensed")

	gdb, err := db.OpenGorm(db.Config{DSN: cfg.DatabaseURL, LogSQL: cfg.LogSQL})
	if err != nil {
		logger.Error("gorm open", "error", err)
		os.Exit(1)
	}
	if err := gdb.AutoMigrate(&domain.ActivationKey{}, &domain.AuditLogEntry{}, &domain.Notification{}); err != nil {
		logger.Error("automigrate", "error", err)
		os.Exit(1)
	}

	st := store.New(gdb)

	activation := service.NewActivationService(st, service.ActivationOptions{
		SwitchPolicy:     service.DeviceSwitchPolicy(cfg.DeviceSwitchPolicy),
		MaxDeviceChanges: cfg.MaxDeviceChanges,
	})
	checker := adminauth.New(cfg.AdminUser, cfg.AdminPass, cfg.AdminPassHash)
	admin := service.NewAdminService(st, checker, cfg.MaxBatchSize)
	notifications := service.NewNotificationService(st)

	router := httptransport.NewRouter(activation, admin, notifications, checker, httptransport.RouterConfig{
		RatePerMinute:  cfg.RatePerMinute,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("license service listening",
		"addr", srv.Addr,
		"switch_policy", cfg.DeviceSwitchPolicy,
		"max_device_changes", cfg.MaxDeviceChanges,
	)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
