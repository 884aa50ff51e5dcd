// Command tenantauth-demo serves the organization scoped login flow over HTTP.
//
// Every browser gets its own session, keyed by an agent cookie. Sessions are
// kept in redis when REDIS_URL is set and in a local sqlite file otherwise.
package main

import (
	"context"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/joho/godotenv"

	tenantauth "github.com/goliatone/go-tenant-auth"
	"github.com/goliatone/go-tenant-auth/oidc"
)

type demoConfig struct {
	AppEnv        string        `env:"APP_ENV"            envDefault:"dev"`
	Addr          string        `env:"HTTP_ADDR"          envDefault:":3000"`
	RedisURL      string        `env:"REDIS_URL"`
	RedisHash     string        `env:"REDIS_HASH"         envDefault:"tenantauth"`
	DatabaseDSN   string        `env:"DATABASE_DSN"       envDefault:"file:tenantauth.db?cache=shared"`
	SecureCookies bool          `env:"SECURE_COOKIES"     envDefault:"false"`
	SweepEvery    time.Duration `env:"STATE_SWEEP_EVERY"  envDefault:"10m"`
	SigninMaxAge  time.Duration `env:"SIGNIN_STATE_MAX_AGE" envDefault:"1h"`
	AgentIdleTTL  time.Duration `env:"AGENT_IDLE_TTL"     envDefault:"30m"`
}

func main() {
	_ = godotenv.Load(".env.local", ".env")

	var cfg demoConfig
	if err := env.Parse(&cfg); err != nil {
		panic(err)
	}

	log := newZap(cfg.AppEnv)
	defer func() { _ = log.Sync() }()
	logger := zapLogger{log: log}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	authCfg := tenantauth.ResolveConfig(tenantauth.WithResolveLogger(logger))

	durable, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatalw("storage", "err", err)
	}
	defer durable.Close()

	factory := oidc.NewFactory(authCfg, durable, oidc.WithFactoryLogger(logger))
	defer factory.Close()

	agents := tenantauth.NewAgents(factory, durable,
		tenantauth.WithAgentsLogger(logger),
		tenantauth.WithAgentCookieSecure(cfg.SecureCookies),
		tenantauth.WithAgentIdleTTL(cfg.AgentIdleTTL),
		tenantauth.WithAgentStoreOptions(tenantauth.WithActivitySink(activityLogger(log))),
	)
	defer agents.Close()

	transient := func(c router.Context) tenantauth.Storage {
		return tenantauth.NewCookieStorage(c, tenantauth.WithCookieSecure(cfg.SecureCookies))
	}

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})

	controller := tenantauth.NewHTTPController(agents, tenantauth.HTTPConfig{
		Transient: transient,
		Logger:    logger,
		Debug:     authCfg.Debug,
	})
	controller.RegisterRoutes(srv.Router())

	requireAuth := tenantauth.RequireAuth(agents,
		tenantauth.WithProtectTransient(transient),
		tenantauth.WithProtectLogger(logger),
	)

	srv.Router().Get("/", func(c router.Context) error {
		return c.JSON(router.StatusOK, map[string]any{
			"login":     "/login",
			"dashboard": "/dashboard",
			"session":   "/auth/session",
		})
	})

	srv.Router().Get("/login", func(c router.Context) error {
		organization := c.Query("organization")
		if organization == "" {
			organization = "<organization>"
		}
		q := url.Values{}
		q.Set("organization", organization)
		if dest := c.Query("redirect"); dest != "" {
			q.Set("redirect", dest)
		}
		return c.JSON(router.StatusOK, map[string]any{
			"start": "/login/start?" + q.Encode(),
			"error": c.Query("message"),
		})
	})

	srv.Router().Get("/dashboard", func(c router.Context) error {
		session, ok := tenantauth.GetRouterSession(c)
		if !ok {
			return c.Redirect("/login")
		}
		return c.JSON(router.StatusOK, map[string]any{
			"organization": session.TenantScope,
			"name":         session.Profile.Name(),
			"email":        session.Profile.Email(),
			"expires_at":   session.ExpiresAt,
		})
	}, requireAuth)

	go runSweepers(ctx, cfg.SweepEvery, log,
		sweeper{name: "signin_state", run: func(ctx context.Context) (int, error) {
			return oidc.ClearStaleState(ctx, durable, cfg.SigninMaxAge, time.Now())
		}},
		sweeper{name: "idle_agents", run: func(context.Context) (int, error) {
			return agents.EvictIdle()
		}},
	)

	srv.Serve(cfg.Addr)
	log.Infow("listening", "addr", cfg.Addr, "authority", authCfg.Authority)

	WaitExitSignal()
	log.Info("shutting down")
}

func WaitExitSignal() os.Signal {
	ch := make(chan os.Signal, 3)
	signal.Notify(ch,
		syscall.SIGINT,
		syscall.SIGQUIT,
		syscall.SIGTERM,
	)
	return <-ch
}
