package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/eduforge/assess/internal/api/http"
	auth "github.com/eduforge/assess/internal/auth/middleware"
	"github.com/eduforge/assess/internal/cache"
	"github.com/eduforge/assess/internal/config"
	"github.com/eduforge/assess/internal/db"
	"github.com/eduforge/assess/internal/platform"
	"github.com/eduforge/assess/internal/quiz"
	syncx "github.com/eduforge/assess/internal/sync"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.FromEnv()

	sqlDB, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer sqlDB.Close()

	var c cache.Cache
	switch cfg.CacheDriver {
	case "redis":
		c = cache.NewRedis(config.NewRedisClient(cfg))
	default:
		c = cache.NewMemory()
	}

	svc := quiz.NewService(
		quiz.NewSQLStore(sqlDB),
		platform.NewBanks(sqlDB),
		platform.NewOrgs(sqlDB),
		platform.NewGradebook(sqlDB),
		syncx.NewEventRepo(sqlDB),
		c,
	)

	authSvc := auth.NewAuthService(cfg.AuthHMACSecret)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewServer(svc, authSvc).Router(cfg.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("assessd listening on %s (db=%s cache=%s)", cfg.HTTPAddr, cfg.DBDriver, cfg.CacheDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
