package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	yaml "github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"

	"github.com/secnex/crm-gateway/crm"
	"github.com/secnex/crm-gateway/handlers"
	"github.com/secnex/crm-gateway/models"
)

const (
	DefaultPort           = "3000"
	DefaultCRMBaseURL     = "https://mafapicrmtest.azurewebsites.net"
	DefaultTokenTTL       = crm.DefaultTokenTTL
	DefaultMaxUploadBytes = handlers.DefaultMaxUploadBytes
	DefaultLogLevel       = "info"

	fileName = "crm-gateway.yaml"
)

var (
	ErrMissingCredential = errors.New("CRM username and password are required")
	ErrInvalidTokenTTL   = errors.New("token TTL must be positive")
)

type Config struct {
	Port            string
	CRMBaseURL      string
	Credential      models.Credential
	TokenTTL        time.Duration
	UpstreamTimeout time.Duration
	MaxUploadBytes  int64
	LogLevel        string
	DatabaseURL     string
	// Source is the YAML file consulted for values not set by flag or
	// environment. It may not exist.
	Source string
}

// Path resolves the optional YAML config file: CRM_GATEWAY_CONFIG, then
// crm-gateway.yaml under XDG_CONFIG_HOME or HOME.
func Path() string {
	if p, ok := os.LookupEnv("CRM_GATEWAY_CONFIG"); ok && p != "" {
		return p
	}
	for _, dir := range []string{os.Getenv("XDG_CONFIG_HOME"), os.Getenv("HOME")} {
		if dir == "" {
			continue
		}
		file := filepath.Join(dir, fileName)
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			return file
		}
	}
	return ""
}

func sources(env, key, source string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(
		cli.EnvVar(env),
		yaml.YAML(key, altsrc.StringSourcer(source)),
	)
}

// Flags returns the server flags. Each flag reads its environment variable,
// then the YAML file at source.
func Flags(source string) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "port to listen on",
			Sources: sources("PORT", "server.port", source),
			Value:   DefaultPort,
		},
		&cli.StringFlag{
			Name:    "crm-url",
			Usage:   "base URL of the CRM API",
			Sources: sources("CRM_BASE_URL", "crm.url", source),
			Value:   DefaultCRMBaseURL,
		},
		&cli.StringFlag{
			Name:    "api-user",
			Usage:   "CRM API username",
			Sources: sources("API_USER", "crm.username", source),
		},
		&cli.StringFlag{
			Name:    "api-pass",
			Usage:   "CRM API password",
			Sources: sources("API_PASS", "crm.password", source),
		},
		&cli.DurationFlag{
			Name:    "token-ttl",
			Usage:   "how long a CRM token is reused before logging in again",
			Sources: sources("TOKEN_TTL", "crm.token_ttl", source),
			Value:   DefaultTokenTTL,
		},
		&cli.DurationFlag{
			Name:    "upstream-timeout",
			Usage:   "timeout for each CRM call, 0 for none",
			Sources: sources("UPSTREAM_TIMEOUT", "crm.timeout", source),
		},
		&cli.Int64Flag{
			Name:    "max-upload-bytes",
			Usage:   "largest accepted attachment request body",
			Sources: sources("MAX_UPLOAD_BYTES", "server.max_upload_bytes", source),
			Value:   DefaultMaxUploadBytes,
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "debug, info, warn or error",
			Sources: sources("CRM_GATEWAY_LOG", "log.level", source),
			Value:   DefaultLogLevel,
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Postgres URL for the attachment ledger, empty to disable",
			Sources: sources("DATABASE_URL", "database.url", source),
		},
	}
}

// FromCommand reads and validates the flags set up by Flags.
func FromCommand(cmd *cli.Command, source string) (*Config, error) {
	cfg := &Config{
		Port:       cmd.String("port"),
		CRMBaseURL: cmd.String("crm-url"),
		Credential: models.Credential{
			Username: cmd.String("api-user"),
			Password: cmd.String("api-pass"),
		},
		TokenTTL:        cmd.Duration("token-ttl"),
		UpstreamTimeout: cmd.Duration("upstream-timeout"),
		MaxUploadBytes:  cmd.Int64("max-upload-bytes"),
		LogLevel:        cmd.String("log-level"),
		DatabaseURL:     cmd.String("database-url"),
		Source:          source,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Credential.Username == "" || c.Credential.Password == "" {
		return ErrMissingCredential
	}
	u, err := url.Parse(c.CRMBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid CRM base URL %q", c.CRMBaseURL)
	}
	if c.TokenTTL <= 0 {
		return ErrInvalidTokenTTL
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("upstream timeout must not be negative")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max upload bytes must be positive")
	}
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	return nil
}
