package cmd

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/jmcleod/opweb/api"
	"github.com/jmcleod/opweb/auth"
	"github.com/jmcleod/opweb/cache"
	"github.com/jmcleod/opweb/challenge"
	"github.com/jmcleod/opweb/document"
	"github.com/jmcleod/opweb/forum"
	"github.com/jmcleod/opweb/internal/config"
	"github.com/jmcleod/opweb/ratelimit"
)

var (
	port           int
	dataFile       string
	backend        string
	databaseURL    string
	trustedProxies string
	tlsCert        string
	tlsKey         string
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the forum server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		cfg, err := serverConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		defaults := config.Defaults()
		if cfg.TokenSecret == defaults.TokenSecret || cfg.DataSecret == defaults.DataSecret {
			logger.Warn("using built-in development secrets; set OPWEB_JWT_SECRET and OPWEB_DATA_SECRET")
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		repo, closeRepo, err := openRepository(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeRepo()

		store, err := document.New(repo, []byte(cfg.DataSecret),
			document.WithPlaintextFallback(cfg.AllowPlaintext),
			document.WithLogger(logger))
		if err != nil {
			return err
		}
		defer store.Close()

		// Fail fast on an unreadable document and bootstrap a missing one.
		tree, err := store.Read()
		if err != nil {
			return fmt.Errorf("failed to open document store: %w", err)
		}
		logger.Info("document store ready", "backend", cfg.Backend, "collections", tree.Counts())

		svc := forum.NewService(store, cache.New(cfg.CacheTTL),
			auth.NewTokenCodec([]byte(cfg.TokenSecret), cfg.TokenTTL),
			forum.WithLogger(logger))
		if cfg.AdminPassword != "" {
			if _, err := svc.EnsureAdmin(cfg.AdminLogin, cfg.AdminPassword); err != nil {
				return err
			}
		} else {
			logger.Warn("OPWEB_ADMIN_PASSWORD not set; skipping admin seeding")
		}

		challenges := challenge.NewStore(cfg.ChallengeTTL, challenge.WithLogger(logger))
		challenges.StartSweeper(cfg.ChallengeSweep)
		defer challenges.Close()

		limiter := ratelimit.New(cfg.RateLimitMax, cfg.RateLimitWindow, ratelimit.WithLogger(logger))

		a := api.New(svc, challenges,
			api.WithLogger(logger),
			api.WithTrustedProxies(cfg.TrustedProxies),
			api.WithRateLimiter(limiter))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)
		r.Mount("/api", a.Router())

		server := &http.Server{
			Addr:              cfg.Addr(),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelError),
		}
		useTLS := tlsCert != "" && tlsKey != ""
		if useTLS {
			cert, err := tls.LoadX509KeyPair(tlsCert, tlsKey)
			if err != nil {
				return fmt.Errorf("failed to load TLS key pair: %w", err)
			}
			server.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
				MinVersion:   tls.VersionTLS12,
			}
		}

		done := make(chan error, 1)
		go func() {
			var err error
			if useTLS {
				err = server.ListenAndServeTLS("", "")
			} else {
				err = server.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		logger.Info("server listening", "addr", cfg.Addr(), "tls", useTLS, "backend", cfg.Backend)

		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

// serverConfig overlays explicitly set flags on the environment config.
func serverConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = port
	}
	if flags.Changed("data-file") {
		cfg.DataFile = dataFile
	}
	if flags.Changed("backend") {
		cfg.Backend = backend
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL = databaseURL
	}
	if flags.Changed("trusted-proxies") {
		prefixes, err := config.ParseTrustedProxies(trustedProxies)
		if err != nil {
			return cfg, err
		}
		cfg.TrustedProxies = prefixes
	}
	return cfg, nil
}

func init() {
	rootCmd.AddCommand(serverCmd)
	defaults := config.Defaults()
	serverCmd.Flags().IntVarP(&port, "port", "p", defaults.Port, "Port to listen on (OPWEB_PORT)")
	serverCmd.Flags().StringVar(&dataFile, "data-file", defaults.DataFile, "Path of the data file (OPWEB_DATA_FILE)")
	serverCmd.Flags().StringVar(&backend, "backend", defaults.Backend, "Storage backend: file, bbolt, memory or postgres (OPWEB_BACKEND)")
	serverCmd.Flags().StringVar(&databaseURL, "database-url", "", "PostgreSQL URL for the postgres backend (OPWEB_DATABASE_URL)")
	serverCmd.Flags().StringVar(&trustedProxies, "trusted-proxies", "", "Comma-separated CIDRs whose forwarding headers are trusted (OPWEB_TRUSTED_PROXIES)")
	serverCmd.Flags().StringVar(&tlsCert, "tls-cert", "", "Path to TLS certificate file")
	serverCmd.Flags().StringVar(&tlsKey, "tls-key", "", "Path to TLS key file")
}
