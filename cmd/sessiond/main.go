package main

import (
	"context"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/api"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/audio"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/combat"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/connection"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/inventory"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/session"
	"github.com/cannibal3004/ai-dungeon-master-sub001/internal/timeline"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/cache"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/config"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/health"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/jwt"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/router"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/secrets"
	"github.com/cannibal3004/ai-dungeon-master-sub001/shared/observability"
	"github.com/cannibal3004/ai-dungeon-master-sub001/shared/redis"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		stdlog.Println("No .env file found")
	}

	cfg := config.New()

	// Initialize structured logger
	logConfig := logger.DefaultConfig()
	logConfig.Level = cfg.Logging.Level
	logConfig.JSON = cfg.Logging.Format != "text"

	log := logger.New(logConfig)
	logger.SetGlobal(log)

	log.Info("starting session runtime",
		"campaign_id", cfg.Session.CampaignID,
		"character_id", cfg.Session.CharacterID,
	)

	if cfg.Session.CampaignID == "" || cfg.Session.CharacterID == "" {
		log.Error("CAMPAIGN_ID and CHARACTER_ID are required")
		os.Exit(1)
	}

	// Observability bootstrap: stdout traces plus the prometheus registry the
	// /metrics route serves.
	shutdownTracing := observability.SetupTracing("sessiond")
	defer shutdownTracing()
	observability.SetupPrometheusMetrics()

	// Resolve the narrator auth token: vault when enabled, env otherwise.
	resolveAuthToken(cfg, log)
	inspectAuthToken(cfg.Narrator.AuthToken, log)

	// Timeline cache: redis when reachable, in-process otherwise.
	timelineCache, cachePing := newTimelineCache(cfg, log)

	client := api.NewClient(cfg, log)

	conn := connection.NewManager(connection.Config{
		URL:        cfg.Narrator.WSURL,
		AuthToken:  cfg.Narrator.AuthToken,
		CampaignID: cfg.Session.CampaignID,
		UserID:     cfg.Session.UserID,
	}, log)

	key := cache.Key{
		CampaignID:  cfg.Session.CampaignID,
		CharacterID: cfg.Session.CharacterID,
	}
	store := timeline.NewStore(key, session.NewHistoryAdapter(client), timelineCache, cfg.Session.HistoryPage, log)

	reconciler := inventory.NewReconciler(client, log)
	replicator := combat.NewReplicator(conn, cfg.Session.CampaignID, log)

	orchestrator := audio.NewOrchestrator(
		audio.NewProbePlayer(cfg.Narrator.Timeout),
		audio.NewProbePlayer(cfg.Narrator.Timeout),
		audio.Options{
			ReadyWait:        cfg.Audio.ReadyWait,
			NarrationEnabled: cfg.Audio.NarrationOnBoot,
			AmbienceVolume:   cfg.Audio.AmbienceVolume,
		},
		log,
	)

	coord := session.NewCoordinator(
		session.Identity{
			CampaignID:  cfg.Session.CampaignID,
			CharacterID: cfg.Session.CharacterID,
			UserID:      cfg.Session.UserID,
		},
		conn, store, reconciler, replicator, orchestrator, client, log,
	)

	runCtx, cancelRun := context.WithCancel(context.Background())
	go coord.Run(runCtx)

	checker := health.NewChecker(log, 30*time.Second)
	checker.RegisterPushChannelCheck(func() string { return string(conn.Status()) })
	checker.RegisterNarratorCheck(cfg.Narrator.BaseURL+"/healthz", &http.Client{Timeout: 5 * time.Second})
	if cachePing != nil {
		checker.RegisterCacheCheck(cachePing)
	}
	checker.Start()

	// Control-surface API for the renderer
	r := router.New(coord, checker, cfg, log)
	r.SetupRoutes()

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r.Engine,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("control surface listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.LogError(err, "control surface failed to start")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down...")

	cancelRun()
	coord.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.LogError(err, "control surface forced to shutdown")
	}

	log.Info("session runtime exited gracefully")
}

// resolveAuthToken fills cfg.Narrator.AuthToken from the configured secret
// source. Vault faults fall back to the env-provided value.
func resolveAuthToken(cfg *config.Config, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var src secrets.Source = secrets.EnvSource{}
	if cfg.Vault.Enabled {
		vault, err := secrets.NewVaultSource(cfg, log)
		if err != nil {
			log.Warn("vault unavailable, using env secrets", "error", err.Error())
		} else {
			src = vault
		}
	}

	cfg.Narrator.AuthToken = secrets.GetWithDefault(ctx, src, "NARRATOR_AUTH_TOKEN", cfg.Narrator.AuthToken)
}

// inspectAuthToken logs when the token is near expiry so operators can rotate
// it before the push channel starts bouncing on auth errors.
func inspectAuthToken(token string, log *logger.Logger) {
	if token == "" {
		log.Warn("no narrator auth token configured")
		return
	}
	info, err := jwt.Inspect(token)
	if err != nil {
		// Opaque tokens are fine; only JWTs can be inspected.
		return
	}
	if info.ExpiresWithin(24 * time.Hour) {
		log.Warn("narrator auth token expires soon", "expires_at", info.ExpiresAt.Format(time.RFC3339))
	}
}

// newTimelineCache prefers redis and degrades to the in-process cache when
// redis is disabled or unreachable at boot. The second result is the health
// ping for the chosen backend, nil when no check applies.
func newTimelineCache(cfg *config.Config, log *logger.Logger) (cache.TimelineCache, func() error) {
	if !cfg.Redis.Enabled {
		log.Info("redis disabled, using in-process timeline cache")
		return cache.NewMemoryCache(), nil
	}

	client := redis.NewClient(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		log.Warn("redis unreachable, using in-process timeline cache", "error", err.Error())
		return cache.NewMemoryCache(), nil
	}

	log.Info("timeline cache backed by redis", "addr", cfg.Redis.URL)
	ping := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx)
	}
	return cache.NewRedisCache(client, cfg.Cache.TTL, log), ping
}
