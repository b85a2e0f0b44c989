// Package app arma el contenedor de dependencias compartido por el servidor y
// el CLI a partir de la config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strconv"

	rdb "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dropDatabas3/tokenguard/internal/audit"
	"github.com/dropDatabas3/tokenguard/internal/cache"
	"github.com/dropDatabas3/tokenguard/internal/challenge"
	"github.com/dropDatabas3/tokenguard/internal/config"
	"github.com/dropDatabas3/tokenguard/internal/email"
	"github.com/dropDatabas3/tokenguard/internal/event"
	"github.com/dropDatabas3/tokenguard/internal/http/api"
	"github.com/dropDatabas3/tokenguard/internal/jwt"
	"github.com/dropDatabas3/tokenguard/internal/observability/logger"
	"github.com/dropDatabas3/tokenguard/internal/rate"
	"github.com/dropDatabas3/tokenguard/internal/scheduler"
	"github.com/dropDatabas3/tokenguard/internal/security/secretbox"
	"github.com/dropDatabas3/tokenguard/internal/store"
	"github.com/dropDatabas3/tokenguard/internal/token"

	_ "github.com/dropDatabas3/tokenguard/internal/store/memory"
	_ "github.com/dropDatabas3/tokenguard/internal/store/pg"
)

// Container agrupa los componentes ya conectados.
type Container struct {
	Cfg   *config.Config
	Store store.Connection
	Cache cache.Client

	Signer     *audit.Signer
	Ledgers    *audit.Factory
	Challenges *challenge.Store
	Tokens     *token.Service

	Handlers *event.Registry
	Events   *event.Loader
	Manager  *event.Manager
	Pipeline *event.Pipeline

	Tasks     *scheduler.Modules
	Scheduler *scheduler.Scheduler
	Runner    *scheduler.Runner

	// Issuer es nil cuando no hay admin_jwt_secret.
	Issuer  *jwt.Issuer
	Limiter rate.Limiter
	// Trusted son los proxies de server.trusted_proxies.
	Trusted []netip.Prefix

	closers []func() error
}

// New conecta storage y cache y arma el resto de los componentes. Ante un
// error libera lo que ya se abrió.
func New(ctx context.Context, cfg *config.Config) (*Container, error) {
	c := &Container{Cfg: cfg}
	if err := c.build(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) (err error) {
	cfg := c.Cfg
	log := logger.L()

	c.Store, err = store.Open(ctx, store.AdapterConfig{
		Name:         cfg.Storage.Driver,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
	})
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	c.closers = append(c.closers, c.Store.Close)

	if cfg.Flags.Migrate {
		if _, err = c.Migrate(ctx); err != nil {
			return err
		}
	}

	cacheCfg := cache.Config{
		Driver:   cfg.Cache.Driver,
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
		Prefix:   cfg.Cache.Prefix,
	}
	c.Cache, err = cache.New(cacheCfg)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	c.closers = append(c.closers, c.Cache.Close)

	if cfg.Audit.PrivateKeyFile != "" || cfg.Audit.PublicKeyFile != "" {
		c.Signer, err = audit.LoadSigner(cfg.Audit.PrivateKeyFile, cfg.Audit.PublicKeyFile)
		if err != nil {
			return fmt.Errorf("audit signer: %w", err)
		}
	} else {
		log.Warn("audit signing disabled: no key files configured")
	}

	opts := audit.Options{
		Modules:         cfg.Audit.Modules,
		ReadModule:      cfg.Audit.ReadModule,
		ServerName:      cfg.Audit.ServerName,
		FailOnSignError: cfg.Audit.FailOnSignError,
		Repo:            c.Store.Audit(),
		Signer:          c.Signer,
		Logger:          log.Named("audit"),
	}
	if contains(cfg.Audit.Modules, "kafka") {
		w := audit.NewKafkaWriter(audit.KafkaConfig{Brokers: cfg.Audit.Kafka.Brokers, Topic: cfg.Audit.Kafka.Topic})
		opts.Kafka = w
		c.closers = append(c.closers, w.Close)
	}
	c.Ledgers, err = audit.NewFactory(opts)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	box, err := openBox(cfg, log)
	if err != nil {
		return err
	}

	c.Challenges = challenge.New(c.Store.Challenges(), challenge.WithDigits(cfg.Challenge.TransactionIDDigits))
	c.Tokens = token.NewService(c.Store.Tokens(), c.Challenges, box, token.Options{
		HOTPWindow:        cfg.Token.HOTPWindow,
		TOTPStep:          cfg.Token.TOTPStep,
		TOTPWindow:        cfg.Token.TOTPWindow,
		MaxFail:           cfg.Token.MaxFail,
		ChallengeValidity: config.Duration(cfg.Challenge.Validity),
		Issuer:            cfg.Security.AdminJWTIssuer,
	})

	var mailer email.Sender
	if cfg.SMTP.Host != "" {
		mailer = email.NewSMTPSender(email.Config{
			Host:               cfg.SMTP.Host,
			Port:               cfg.SMTP.Port,
			Username:           cfg.SMTP.Username,
			Password:           cfg.SMTP.Password,
			From:               cfg.SMTP.From,
			TLSMode:            cfg.SMTP.TLS,
			InsecureSkipVerify: cfg.SMTP.InsecureSkipVerify,
		})
	}
	c.Handlers = event.NewRegistry(event.Deps{
		Tokens:     c.Store.Tokens(),
		Cache:      c.Cache,
		Mailer:     mailer,
		ScriptDir:  cfg.Events.ScriptDir,
		HTTPClient: &http.Client{Timeout: config.Duration(cfg.Events.WebhookTimeout)},
		Logger:     log.Named("event"),
	})
	c.Events = event.NewLoader(c.Store.Events(), c.Cache, config.Duration(cfg.Events.ConfigCacheTTL))
	c.Manager = event.NewManager(c.Store.Events(), c.Handlers, c.Events)
	c.Pipeline = event.NewPipeline(c.Handlers, c.Ledgers)

	c.Tasks = scheduler.NewModules(scheduler.ModuleDeps{
		Challenges: c.Challenges,
		Audit:      c.Ledgers,
		Tokens:     c.Store.Tokens(),
		Cache:      c.Cache,
	})
	c.Scheduler = scheduler.New(c.Store.PeriodicTasks(), c.Tasks)
	c.Runner = scheduler.NewRunner(c.Scheduler, c.Tasks)

	if cfg.Security.AdminJWTSecret != "" {
		c.Issuer = jwt.NewIssuer(cfg.Security.AdminJWTIssuer, []byte(cfg.Security.AdminJWTSecret))
	} else {
		log.Warn("admin endpoints are not protected: admin_jwt_secret is empty")
	}

	if c.Trusted, err = cfg.TrustedProxyPrefixes(); err != nil {
		return err
	}

	if cfg.Rate.Enabled {
		window := config.Duration(cfg.Rate.Window)
		if cfg.Cache.Driver == "redis" {
			client := rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Host + ":" + strconv.Itoa(cfg.Cache.Port),
				Password: cfg.Cache.Password,
				DB:       cfg.Cache.DB,
			})
			c.closers = append(c.closers, client.Close)
			c.Limiter = rate.NewRedisLimiter(client, cfg.Cache.Prefix+":rl:", cfg.Rate.Limit, window)
		} else {
			c.Limiter = rate.NewMemoryLimiter(cfg.Rate.Limit, window)
		}
	}

	return nil
}

// Migrate aplica las migraciones si el storage las soporta.
func (c *Container) Migrate(ctx context.Context) (*store.MigrationResult, error) {
	m, ok := c.Store.(store.Migratable)
	if !ok {
		logger.L().Debug("storage has no migrations", zap.String("driver", c.Store.Name()))
		return &store.MigrationResult{}, nil
	}
	res, err := m.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return res, nil
}

// Handler arma el router HTTP.
func (c *Container) Handler() http.Handler {
	return api.NewRouter(api.Deps{
		Tokens:         c.Tokens,
		Ledgers:        c.Ledgers,
		Pipeline:       c.Pipeline,
		Events:         c.Events,
		Manager:        c.Manager,
		Handlers:       c.Handlers,
		Scheduler:      c.Scheduler,
		Runner:         c.Runner,
		Tasks:          c.Tasks,
		Node:           c.Cfg.App.Node,
		Issuer:         c.Issuer,
		EnforceAdmin:   c.Issuer != nil,
		Limiter:        c.Limiter,
		TrustedProxies: c.Trusted,
		Ping:           c.Store.Ping,
		Version:        c.Cfg.App.Version,
	})
}

// Close cierra en orden inverso todo lo abierto por New.
func (c *Container) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func openBox(cfg *config.Config, log *zap.Logger) (*secretbox.Box, error) {
	key := cfg.Security.SecretBoxKey
	if key == "" {
		if cfg.App.Env != "dev" {
			return nil, errors.New("security.secretbox_key is required outside dev")
		}
		var err error
		if key, err = secretbox.GenerateKey(); err != nil {
			return nil, err
		}
		log.Warn("using an ephemeral secretbox key; token secrets will not survive a restart")
	}
	box, err := secretbox.New(key)
	if err != nil {
		return nil, fmt.Errorf("secretbox: %w", err)
	}
	return box, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
