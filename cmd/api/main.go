package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mailaudit/internal/config"
	"mailaudit/internal/dmarc"
	"mailaudit/internal/dnscheck"
	"mailaudit/internal/logging"
	"mailaudit/internal/lookup"
	"mailaudit/internal/phishing"
	"mailaudit/internal/proxy"
	"mailaudit/internal/queue"
	"mailaudit/internal/sitemap"
	"mailaudit/internal/spf"
	"mailaudit/internal/store"
	"mailaudit/internal/txtrecords"
	"mailaudit/internal/validator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Invalid configuration")
	}
	logging.Setup(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	proxies, err := proxy.New(cfg.ProxyList, cfg.ProxyConcurrency, cfg.SMTPProxyEnabled)
	if err != nil {
		log.Fatal().Err(err).Msg("❌ Failed to initialize proxy manager")
	}
	if proxies.Enabled() {
		log.Info().Int("proxies", proxies.Len()).Int("max_concurrent", proxies.Capacity()).Msg("🛡️  Proxy rotation enabled")
		if proxies.SMTPEnabled() {
			log.Warn().Msg("⚠️  SMTP proxying is ENABLED (port 25 traffic routes through proxies)")
		}
	} else {
		log.Info().Msg("⚠️  No proxies configured. Running with direct connections.")
	}

	resolver := lookup.NewDNSResolver(cfg.DNSServers, cfg.DNSTimeout)
	log.Info().Strs("servers", resolver.Servers()).Dur("timeout", cfg.DNSTimeout).Msg("🔎 DNS resolver ready")

	fetcher := lookup.NewHTTPFetcher(proxies, cfg.HTTPTimeout)
	prober := lookup.NewSMTPProber(proxies, cfg.SMTPTimeout, 0)

	srv := &server{
		validator: validator.New(resolver, prober, validator.NewDisposableSet(cfg.Lists.DisposableDomains)),
		spf:       spf.NewChecker(resolver),
		dmarc:     dmarc.NewChecker(resolver),
		txt:       txtrecords.NewChecker(resolver),
		dns:       dnscheck.NewChecker(resolver, cfg.MaxFanout),
		blacklist: dnscheck.NewBlacklistChecker(resolver, blacklists(cfg.Lists.Blacklists), cfg.MaxFanout),
		phishing:  phishing.New(cfg.Lists.SuspiciousTLDs, cfg.Lists.SuspiciousKeywords, cfg.Lists.URLShorteners),
		sitemaps:  sitemap.NewService(fetcher, cfg.MaxFanout),
		apiKey:    cfg.APISecretKey,
	}

	if cfg.DBURL != "" {
		db, err := store.Open(ctx, cfg.DBURL)
		if err != nil {
			log.Fatal().Err(err).Msg("❌ Failed to connect to DB")
		}
		defer db.Close()
		srv.store = db
		log.Info().Msg("✅ Connected to PostgreSQL & migrations applied")
	} else {
		log.Warn().Msg("⚠️  DB_URL not set: history, stats and bulk jobs are disabled")
	}

	if q, err := queue.Open(ctx, cfg.RedisAddr); err != nil {
		log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("⚠️  Redis unavailable: bulk jobs are disabled")
	} else {
		defer q.Close()
		srv.queue = q
		log.Info().Str("addr", cfg.RedisAddr).Msg("✅ Connected to Redis queue")
	}

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("🚀 Mail Audit API running")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("❌ Server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("⏳ Shutdown signal received, draining in-flight requests...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("❌ Graceful shutdown failed")
		os.Exit(1)
	}
	log.Info().Msg("✅ Server shut down cleanly.")
}

func blacklists(entries []config.BlacklistEntry) []dnscheck.Blacklist {
	out := make([]dnscheck.Blacklist, 0, len(entries))
	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = e.Host
		}
		out = append(out, dnscheck.Blacklist{Name: name, Host: e.Host, Type: strings.ToLower(e.Type)})
	}
	return out
}
