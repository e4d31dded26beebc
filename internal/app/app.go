// Package app is the composition root: it reads configuration, connects to
// infrastructure, wires every component spec.md names together, and runs
// the HTTP server plus the realtime listener until ctx is cancelled.
// Grounded on the teacher's internal/app.Run (same read-config /
// connect-infra / mode-dispatch shape), collapsed to this core's single
// "serve" mode since there is no worker/seed mode in scope.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/insforge/core/internal/authhttp"
	"github.com/insforge/core/internal/authstore"
	"github.com/insforge/core/internal/authsvc"
	"github.com/insforge/core/internal/config"
	"github.com/insforge/core/internal/csrf"
	"github.com/insforge/core/internal/httpserver"
	"github.com/insforge/core/internal/oauthproviders"
	"github.com/insforge/core/internal/pkcestore"
	"github.com/insforge/core/internal/platform"
	"github.com/insforge/core/internal/postgrest"
	"github.com/insforge/core/internal/postgresthttp"
	"github.com/insforge/core/internal/realtime/dispatcher"
	"github.com/insforge/core/internal/realtime/hub"
	"github.com/insforge/core/internal/realtime/webhook"
	"github.com/insforge/core/internal/telemetry"
	"github.com/insforge/core/internal/token"
)

// Run reads configuration, connects to infrastructure, and serves the HTTP
// and WebSocket surfaces until ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting insforge-core", "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "insforge-core", "dev")
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	return serve(ctx, cfg, logger, db, rdb, metricsReg)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	accessTTL, err := time.ParseDuration(cfg.AccessTokenTTL)
	if err != nil {
		return fmt.Errorf("parsing access token TTL %q: %w", cfg.AccessTokenTTL, err)
	}
	refreshTTL, err := time.ParseDuration(cfg.RefreshTokenTTL)
	if err != nil {
		return fmt.Errorf("parsing refresh token TTL %q: %w", cfg.RefreshTokenTTL, err)
	}

	tokens, err := token.New(cfg.JWTSecret, accessTTL, refreshTTL, cfg.CloudAPIHost, cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}

	csrfMgr := csrf.New(cfg.CSRFKey)
	pkce := pkcestore.New(pkcestore.DefaultTTL)
	go pkce.Run(ctx.Done())

	oauthSet := oauthproviders.NewSet(oauthproviders.Config{
		RedirectBaseURL: cfg.OAuthRedirectBaseURL,
		BrokerURL:       cfg.OAuthBrokerURL,
		Google:          oauthproviders.ProviderCredentials{ClientID: cfg.GoogleClientID, ClientSecret: cfg.GoogleClientSecret},
		GitHub:          oauthproviders.ProviderCredentials{ClientID: cfg.GitHubClientID, ClientSecret: cfg.GitHubClientSecret},
		Discord:         oauthproviders.ProviderCredentials{ClientID: cfg.DiscordClientID, ClientSecret: cfg.DiscordClientSecret},
		LinkedIn:        oauthproviders.ProviderCredentials{ClientID: cfg.LinkedInClientID, ClientSecret: cfg.LinkedInClientSecret},
		Facebook:        oauthproviders.ProviderCredentials{ClientID: cfg.FacebookClientID, ClientSecret: cfg.FacebookClientSecret},
		Microsoft:       oauthproviders.ProviderCredentials{ClientID: cfg.MicrosoftClientID, ClientSecret: cfg.MicrosoftClientSecret},
		X:               oauthproviders.ProviderCredentials{ClientID: cfg.XClientID, ClientSecret: cfg.XClientSecret},
		Apple: oauthproviders.AppleCredentials{
			ClientID: cfg.AppleClientID, TeamID: cfg.AppleTeamID, KeyID: cfg.AppleKeyID, PrivateKeyPEM: cfg.ApplePrivateKeyPEM,
		},
	})

	authStore := authstore.New(db)
	mailer := newLogMailer(logger)
	authService := authsvc.New(authStore, tokens, mailer, authsvc.Config{
		RequireEmailVerification: cfg.RequireEmailVerification,
		OTPDeliveryMethod:        cfg.OTPDeliveryMethod,
		AdminEmail:               cfg.AdminEmail,
		AdminPassword:            cfg.AdminPassword,
		PublicBaseURL:            cfg.OAuthRedirectBaseURL,
	}, logger)

	publicProviders := enabledProviders(cfg)

	authHandler := authhttp.New(authService, tokens, csrfMgr, pkce, oauthSet, logger,
		authhttp.CookieConfig{Secure: strings.HasPrefix(cfg.OAuthRedirectBaseURL, "https"), RefreshTTL: refreshTTL},
		publicProviders)

	proxy, err := postgrest.New(cfg.PostgRESTBaseURL, cfg.PostgRESTAPIKey, tokens)
	if err != nil {
		return fmt.Errorf("creating postgrest proxy: %w", err)
	}
	dataHandler := postgresthttp.New(proxy, db, logger)

	realtimeHub := hub.New(db, logger)
	webhookSender := webhook.New()
	realtimeDispatcher := dispatcher.New(cfg.DatabaseURL, realtimeHub, webhookSender, logger)

	dispatcherCtx, cancelDispatcher := context.WithCancel(ctx)
	defer cancelDispatcher()
	go realtimeDispatcher.Run(dispatcherCtx)

	srv := httpserver.NewServer(cfg, logger, db, rdb, metricsReg)
	srv.Router.Use(authhttp.Authenticate(tokens))

	srv.Router.Route("/auth", authHandler.Mount)
	srv.Router.Route("/database", dataHandler.Mount)
	srv.Router.Get("/realtime", hub.ServeWS(realtimeHub, tokens))

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// enabledProviders returns the provider names whose credentials are
// configured, for the public-config endpoint.
func enabledProviders(cfg *config.Config) []string {
	var names []string
	add := func(name string, configured bool) {
		if configured {
			names = append(names, name)
		}
	}
	add("google", cfg.GoogleClientID != "")
	add("github", cfg.GitHubClientID != "")
	add("discord", cfg.DiscordClientID != "")
	add("linkedin", cfg.LinkedInClientID != "")
	add("facebook", cfg.FacebookClientID != "")
	add("microsoft", cfg.MicrosoftClientID != "")
	add("x", cfg.XClientID != "")
	add("apple", cfg.AppleClientID != "")
	return names
}
