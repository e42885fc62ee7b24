package cli

import (
	"context"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"
)

// PrintConfigCmd returns the print-config command.
func PrintConfigCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print-config", flag.ContinueOnError),
		Usage: "print-config",
		Short: "Show resolved configuration",
		Long:  "Display the effective configuration and where it was loaded from.",
		Exec: func(_ context.Context, o *IO, _ []string) error {
			cfg := a.cfg

			o.Println("effective_cwd=" + cfg.EffectiveCwd)
			o.Println("data_file=" + cfg.DataFileAbs)
			o.Println("listen=" + cfg.Listen)
			o.Println("lock_timeout=" + cfg.LockTimeout.String())
			o.Println("log_level=" + cfg.LogLevel)
			o.Println("seed=" + strconv.FormatBool(cfg.Seed))
			o.Println("session_backend=" + cfg.SessionBackend)

			if cfg.SessionBackend == "redis" {
				o.Println("redis_addr=" + cfg.RedisAddr)
				o.Println("redis_db=" + strconv.Itoa(cfg.RedisDB))
			}

			o.Println("session_ttl=" + cfg.SessionTTL.String())
			o.Println("rate_limit_rps=" + strconv.FormatFloat(cfg.RateLimitRPS, 'g', -1, 64))
			o.Println("rate_limit_burst=" + strconv.Itoa(cfg.RateLimitBurst))

			o.Println("")
			o.Println("# sources")

			if cfg.Sources.Global == "" && cfg.Sources.Project == "" && len(cfg.Sources.Env) == 0 {
				o.Println("(defaults only)")

				return nil
			}

			if cfg.Sources.Global != "" {
				o.Println("global_config=" + cfg.Sources.Global)
			}

			if cfg.Sources.Project != "" {
				o.Println("project_config=" + cfg.Sources.Project)
			}

			if len(cfg.Sources.Env) > 0 {
				o.Println("env=" + strings.Join(cfg.Sources.Env, ","))
			}

			return nil
		},
	}
}
