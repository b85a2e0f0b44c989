package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
		// Node identifica esta instancia para el scheduler (last_runs por nodo).
		Node    string `yaml:"node"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Log struct {
		Level string `yaml:"level"` // debug | info | warn | error
	} `yaml:"log"`

	Server struct {
		Addr         string `yaml:"addr"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
		// TrustedProxies: IPs o CIDRs cuyo X-Forwarded-For se respeta.
		// Vacío: la IP de cliente es siempre la del peer TCP.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // memory | postgres
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int `yaml:"max_open_conns"`
			MaxIdleConns int `yaml:"max_idle_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Driver   string `yaml:"driver"` // memory | redis
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cache"`

	Audit struct {
		// Modules: backends de escritura (sql | logger | kafka).
		Modules []string `yaml:"modules"`
		// ReadModule: backend del que se lee (debe estar en Modules).
		ReadModule      string `yaml:"read_module"`
		PrivateKeyFile  string `yaml:"private_key_file"`
		PublicKeyFile   string `yaml:"public_key_file"`
		FailOnSignError bool   `yaml:"fail_on_sign_error"`
		// ServerName se registra en la columna server de cada fila.
		ServerName string `yaml:"server_name"`
		Kafka      struct {
			Brokers []string `yaml:"brokers"`
			Topic   string   `yaml:"topic"`
		} `yaml:"kafka"`
	} `yaml:"audit"`

	Challenge struct {
		Validity            string `yaml:"validity"`
		TransactionIDDigits int    `yaml:"transaction_id_digits"`
	} `yaml:"challenge"`

	Token struct {
		HOTPWindow int `yaml:"hotp_window"`
		TOTPStep   int `yaml:"totp_step"`
		TOTPWindow int `yaml:"totp_window"`
		MaxFail    int `yaml:"max_fail"`
	} `yaml:"token"`

	// Rate limita /validate/* por IP de cliente.
	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Limit   int    `yaml:"limit"`
		Window  string `yaml:"window"`
	} `yaml:"rate"`

	Scheduler struct {
		Enabled bool   `yaml:"enabled"`
		Tick    string `yaml:"tick"`
	} `yaml:"scheduler"`

	Events struct {
		ConfigCacheTTL string `yaml:"config_cache_ttl"`
		ScriptDir      string `yaml:"script_dir"`
		WebhookTimeout string `yaml:"webhook_timeout"`
	} `yaml:"events"`

	SMTP struct {
		Host               string `yaml:"host"`
		Port               int    `yaml:"port"`
		Username           string `yaml:"username"`
		Password           string `yaml:"password"`
		From               string `yaml:"from"`
		TLS                string `yaml:"tls"`                  // auto | starttls | ssl | none
		InsecureSkipVerify bool   `yaml:"insecure_skip_verify"` // sólo dev
	} `yaml:"smtp"`

	Security struct {
		SecretBoxKey   string `yaml:"secretbox_key"` // base64(32 bytes) para cifrar secretos de tokens
		AdminJWTSecret string `yaml:"admin_jwt_secret"`
		AdminJWTIssuer string `yaml:"admin_jwt_issuer"`
	} `yaml:"security"`

	Flags struct {
		Migrate bool `yaml:"migrate"`
	} `yaml:"flags"`
}

// Load lee config.yaml (si path no es vacío), aplica env y defaults.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Node == "" {
		if h, err := os.Hostname(); err == nil {
			c.App.Node = h
		} else {
			c.App.Node = "localnode"
		}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "15s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "60s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "tokenguard"
	}
	if len(c.Audit.Modules) == 0 {
		c.Audit.Modules = []string{"sql"}
	}
	if c.Audit.ReadModule == "" {
		c.Audit.ReadModule = c.Audit.Modules[0]
	}
	if c.Audit.ServerName == "" {
		c.Audit.ServerName = c.App.Node
	}
	if c.Audit.Kafka.Topic == "" {
		c.Audit.Kafka.Topic = "tokenguard.audit"
	}
	if c.Challenge.Validity == "" {
		c.Challenge.Validity = "120s"
	}
	if c.Challenge.TransactionIDDigits == 0 {
		c.Challenge.TransactionIDDigits = 20
	}
	if c.Token.HOTPWindow == 0 {
		c.Token.HOTPWindow = 10
	}
	if c.Token.TOTPStep == 0 {
		c.Token.TOTPStep = 30
	}
	if c.Token.TOTPWindow == 0 {
		c.Token.TOTPWindow = 1
	}
	if c.Token.MaxFail == 0 {
		c.Token.MaxFail = 10
	}
	if c.Rate.Limit == 0 {
		c.Rate.Limit = 30
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Scheduler.Tick == "" {
		c.Scheduler.Tick = "30s"
	}
	if c.Events.ConfigCacheTTL == "" {
		c.Events.ConfigCacheTTL = "0s"
	}
	if c.Events.WebhookTimeout == "" {
		c.Events.WebhookTimeout = "10s"
	}
	if c.SMTP.TLS == "" {
		c.SMTP.TLS = "auto"
	}
	if c.Security.AdminJWTIssuer == "" {
		c.Security.AdminJWTIssuer = "tokenguard"
	}
}

// Validate reporta todos los errores de configuración juntos.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn requerido para postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver desconocido: %q", c.Storage.Driver))
	}

	switch c.Cache.Driver {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.driver desconocido: %q", c.Cache.Driver))
	}

	readFound := false
	for _, m := range c.Audit.Modules {
		switch m {
		case "sql", "logger":
		case "kafka":
			if len(c.Audit.Kafka.Brokers) == 0 {
				errs = append(errs, errors.New("audit.kafka.brokers requerido para el módulo kafka"))
			}
		default:
			errs = append(errs, fmt.Errorf("audit.modules: módulo desconocido %q", m))
		}
		if m == c.Audit.ReadModule {
			readFound = true
		}
	}
	if !readFound {
		errs = append(errs, fmt.Errorf("audit.read_module %q no está en audit.modules", c.Audit.ReadModule))
	}

	for name, v := range map[string]string{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"challenge.validity":      c.Challenge.Validity,
		"scheduler.tick":          c.Scheduler.Tick,
		"rate.window":             c.Rate.Window,
		"events.config_cache_ttl": c.Events.ConfigCacheTTL,
		"events.webhook_timeout":  c.Events.WebhookTimeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}

	if c.Challenge.TransactionIDDigits < 12 || c.Challenge.TransactionIDDigits > 64 {
		errs = append(errs, fmt.Errorf("challenge.transaction_id_digits fuera de rango: %d", c.Challenge.TransactionIDDigits))
	}
	if c.App.Env == "prod" && c.Security.AdminJWTSecret == "" {
		errs = append(errs, errors.New("security.admin_jwt_secret requerido en prod"))
	}
	return errors.Join(errs...)
}

// TrustedProxyPrefixes parsea server.trusted_proxies. Una IP suelta cuenta
// como prefijo de host (/32 o /128).
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.Server.TrustedProxies))
	for _, raw := range c.Server.TrustedProxies {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

// Duration parsea un valor ya validado; 0 si está vacío.
func Duration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}
func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}
func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}
func getEnvCSV(key string) ([]string, bool) {
	if s, ok := getEnvStr(key); ok {
		parts := strings.Split(s, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				out = append(out, p)
			}
		}
		return out, true
	}
	return nil, false
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("APP_NODE"); ok {
		c.App.Node = v
	}
	if v, ok := getEnvStr("LOG_LEVEL"); ok {
		c.Log.Level = v
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := getEnvCSV("TRUSTED_PROXIES"); ok {
		c.Server.TrustedProxies = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DRIVER"); ok {
		c.Storage.Driver = v
	}
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_DRIVER"); ok {
		c.Cache.Driver = v
	}
	if v, ok := getEnvStr("REDIS_HOST"); ok {
		c.Cache.Host = v
	}
	if v, ok := getEnvInt("REDIS_PORT"); ok {
		c.Cache.Port = v
	}
	if v, ok := getEnvStr("REDIS_PASSWORD"); ok {
		c.Cache.Password = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.DB = v
	}

	// AUDIT
	if v, ok := getEnvCSV("AUDIT_MODULES"); ok {
		c.Audit.Modules = v
	}
	if v, ok := getEnvStr("AUDIT_READ_MODULE"); ok {
		c.Audit.ReadModule = v
	}
	if v, ok := getEnvStr("AUDIT_PRIVATE_KEY_FILE"); ok {
		c.Audit.PrivateKeyFile = v
	}
	if v, ok := getEnvStr("AUDIT_PUBLIC_KEY_FILE"); ok {
		c.Audit.PublicKeyFile = v
	}
	if v, ok := getEnvBool("AUDIT_FAIL_ON_SIGN_ERROR"); ok {
		c.Audit.FailOnSignError = v
	}
	if v, ok := getEnvCSV("AUDIT_KAFKA_BROKERS"); ok {
		c.Audit.Kafka.Brokers = v
	}
	if v, ok := getEnvStr("AUDIT_KAFKA_TOPIC"); ok {
		c.Audit.Kafka.Topic = v
	}

	// RATE
	if v, ok := getEnvBool("RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvInt("RATE_LIMIT"); ok {
		c.Rate.Limit = v
	}

	// CHALLENGE / SCHEDULER
	if v, ok := getEnvStr("CHALLENGE_VALIDITY"); ok {
		c.Challenge.Validity = v
	}
	if v, ok := getEnvBool("SCHEDULER_ENABLED"); ok {
		c.Scheduler.Enabled = v
	}
	if v, ok := getEnvStr("SCHEDULER_TICK"); ok {
		c.Scheduler.Tick = v
	}

	// SMTP
	if v, ok := getEnvStr("SMTP_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := getEnvInt("SMTP_PORT"); ok {
		c.SMTP.Port = v
	}
	if v, ok := getEnvStr("SMTP_USERNAME"); ok {
		c.SMTP.Username = v
	}
	if v, ok := getEnvStr("SMTP_PASSWORD"); ok {
		c.SMTP.Password = v
	}
	if v, ok := getEnvStr("SMTP_FROM"); ok {
		c.SMTP.From = v
	}
	if v, ok := getEnvStr("SMTP_TLS"); ok {
		c.SMTP.TLS = strings.ToLower(v)
	}

	// SECURITY
	if v, ok := getEnvStr("TOKENGUARD_SECRETBOX_KEY"); ok {
		c.Security.SecretBoxKey = v
	}
	if v, ok := getEnvStr("ADMIN_JWT_SECRET"); ok {
		c.Security.AdminJWTSecret = v
	}

	// FLAGS
	if v, ok := getEnvBool("FLAGS_MIGRATE"); ok {
		c.Flags.Migrate = v
	}
}
