// tokenguardctl administra un despliegue de tokenguard: migraciones, claves,
// auditoría, tokens y tareas periódicas. Los comandos locales abren el storage
// configurado; check y ping hablan con un servidor en marcha.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/tokenguard/internal/app"
	"github.com/dropDatabas3/tokenguard/internal/config"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
)

type cli struct {
	configPath string
	envFile    string
	out        string // "json" | "text"
}

func (c *cli) loadConfig() (*config.Config, error) {
	if c.envFile != "" {
		_ = godotenv.Load(c.envFile)
	}
	return config.Load(c.configPath)
}

// open arma el contenedor sobre el storage configurado. El caller debe cerrarlo.
func (c *cli) open(ctx context.Context) (*app.Container, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: "warn", Node: cfg.App.Node, Version: cfg.App.Version})
	return app.New(ctx, cfg)
}

// withContainer corre fn con un contenedor abierto y lo cierra al final.
func (c *cli) withContainer(cmd *cobra.Command, fn func(ctx context.Context, ct *app.Container) error) error {
	ctx := cmd.Context()
	ct, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer ct.Close()
	return fn(ctx, ct)
}

func (c *cli) print(v any, text func()) {
	if c.out == "json" || text == nil {
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
		return
	}
	text()
}

func newRoot() *cobra.Command {
	c := &cli{out: envOr("TOKENGUARD_OUT", "text")}

	root := &cobra.Command{
		Use:           "tokenguardctl",
		Short:         "CLI de administración de tokenguard",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.out != "json" && c.out != "text" {
				return fmt.Errorf("--out debe ser json|text, no %q", c.out)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", envOr("TOKENGUARD_CONFIG", ""), "ruta a config.yaml (env TOKENGUARD_CONFIG)")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "ruta a .env")
	root.PersistentFlags().StringVar(&c.out, "out", c.out, "formato de salida: json|text")

	root.AddCommand(
		migrateCmd(c),
		keysCmd(c),
		adminCmd(c),
		auditCmd(c),
		tokenCmd(c),
		taskCmd(c),
		checkCmd(c),
		pingCmd(c),
	)
	return root
}

func migrateCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Aplica las migraciones SQL pendientes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withContainer(cmd, func(ctx context.Context, ct *app.Container) error {
				res, err := ct.Migrate(ctx)
				if err != nil {
					return err
				}
				c.print(res, func() {
					fmt.Printf("applied=%v skipped=%d duration=%s\n", res.Applied, len(res.Skipped), res.Duration)
				})
				return nil
			})
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRoot().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
