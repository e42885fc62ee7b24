package cli

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/calvinalkan/docbase/internal/config"
	"github.com/calvinalkan/docbase/internal/engine"
	"github.com/calvinalkan/docbase/internal/metrics"
	"github.com/calvinalkan/docbase/internal/web"

	flag "github.com/spf13/pflag"
)

// ServeCmd returns the serve command.
func ServeCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("serve", flag.ContinueOnError)
	listen := flagSet.String("listen", "", "Address to listen on (default from config)")

	return &Command{
		Flags: flagSet,
		Usage: "serve [--listen addr]",
		Short: "Serve the HTTP API",
		Long:  "Serve the HTTP API until interrupted. Mutations require the session's anti-forgery token.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			addr := a.cfg.Listen
			if flagSet.Changed("listen") {
				addr = *listen
			}

			sessions, closeSessions, err := a.sessionStore(ctx)
			if err != nil {
				return err
			}

			defer closeSessions()

			startup := a.bootstrap(ctx, o)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			metrics.RegisterCollectors(reg)

			srv := web.New(web.Options{
				Engine:         a.engine,
				Sessions:       sessions,
				SessionTTL:     a.cfg.SessionTTL,
				RateLimitRPS:   a.cfg.RateLimitRPS,
				RateLimitBurst: a.cfg.RateLimitBurst,
				Gatherer:       reg,
				StartupNotice:  startup,
				Logger:         a.logger,
			})

			o.Printf("serving %s on http://%s\n", a.cfg.DataFileAbs, addr)

			return srv.ListenAndServe(ctx, addr)
		},
	}
}

// bootstrap seeds a missing collection when enabled. A failure is logged and
// returned as a notice; the caller keeps running on an empty collection.
func (a *app) bootstrap(ctx context.Context, o *IO) *engine.Notice {
	if !a.cfg.Seed {
		return nil
	}

	_, err := a.engine.EnsureSeeded(ctx)
	if err == nil {
		return nil
	}

	a.logger.ErrorContext(ctx, "bootstrap failed, continuing with empty collection", "path", a.cfg.DataFileAbs, "error", err)
	o.Warn("could not create " + a.cfg.DataFileAbs + ": changes will fail until it is writable")

	notice := engine.NoticeFor(engine.ActionSeed, 0, err)

	return &notice
}

func (a *app) sessionStore(ctx context.Context) (web.SessionStore, func(), error) {
	if a.cfg.SessionBackend != config.SessionRedis {
		return web.NewMemoryStore(a.cfg.SessionTTL), func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
		DB:       a.cfg.RedisDB,
	})

	err := client.Ping(ctx).Err()
	if err != nil {
		_ = client.Close()

		return nil, nil, fmt.Errorf("connect to redis at %s: %w", a.cfg.RedisAddr, err)
	}

	closeFn := func() {
		closeErr := client.Close()
		if closeErr != nil {
			a.logger.Warn("closing redis client", "error", closeErr)
		}
	}

	return web.NewRedisStore(client, "", a.cfg.SessionTTL), closeFn, nil
}
