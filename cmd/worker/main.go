package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"mailaudit/internal/config"
	"mailaudit/internal/logging"
	"mailaudit/internal/lookup"
	"mailaudit/internal/proxy"
	"mailaudit/internal/queue"
	"mailaudit/internal/store"
	"mailaudit/internal/validator"
	"mailaudit/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Invalid configuration")
	}
	logging.Setup(cfg.LogLevel)
	log.Info().Msg("🚀 Starting Mail Audit worker...")

	if cfg.DBURL == "" {
		log.Fatal().Msg("❌ DB_URL environment variable is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	q, err := queue.Open(ctx, cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to Redis")
	}
	defer q.Close()
	log.Info().Str("addr", cfg.RedisAddr).Msg("✅ Connected to Redis")

	db, err := store.Open(ctx, cfg.DBURL)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to connect to DB")
	}
	defer db.Close()
	log.Info().Msg("✅ Connected to PostgreSQL")

	proxies, err := proxy.New(cfg.ProxyList, cfg.ProxyConcurrency, cfg.SMTPProxyEnabled)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize proxy manager")
	}

	resolver := lookup.NewDNSResolver(cfg.DNSServers, cfg.DNSTimeout)
	prober := lookup.NewSMTPProber(proxies, cfg.SMTPTimeout, 0)
	v := validator.New(resolver, prober, validator.NewDisposableSet(cfg.Lists.DisposableDomains))

	if err := worker.New(q, db, v).Run(ctx); err != nil {
		log.Error().Err(err).Msg("❌ Worker stopped")
	}
}
