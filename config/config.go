package config

import (
	"context"
	"os"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/glassechidna/lambdalogs/store"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// ErrMissingDatabaseURL is returned by Validate when no connection string
// was configured.
var ErrMissingDatabaseURL = errors.New("missing RDS_DATABASE_URL environment variable")

type Config struct {
	Env string

	// DatabaseURL is a postgres connection string.
	DatabaseURL string

	// DatabaseURLParameter names an SSM parameter holding the connection
	// string, used when DatabaseURL is empty.
	DatabaseURLParameter string

	StatementTimeout time.Duration
	ConnectTimeout   time.Duration
	LogLevel         string
	OTel             OTelConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Load reads configuration from the environment. In development a .env file
// in the working directory is loaded first.
func Load() Config {
	if getenv("APP_ENV", "production") == "development" {
		_ = godotenv.Load()
	}

	return Config{
		Env:                  getenv("APP_ENV", "production"),
		DatabaseURL:          os.Getenv("RDS_DATABASE_URL"),
		DatabaseURLParameter: os.Getenv("RDS_DATABASE_URL_PARAMETER"),
		StatementTimeout:     getenvDuration("STATEMENT_TIMEOUT", store.DefaultStatementTimeout),
		ConnectTimeout:       getenvDuration("CONNECT_TIMEOUT", store.DefaultConnectTimeout),
		LogLevel:             getenv("LOG_LEVEL", "info"),
		OTel: OTelConfig{
			Endpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Headers:        os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
			ServiceName:    getenv("OTEL_SERVICE_NAME", getenv("AWS_LAMBDA_FUNCTION_NAME", "lambdalogs")),
			ServiceVersion: getenv("OTEL_SERVICE_VERSION", getenv("AWS_LAMBDA_FUNCTION_VERSION", "dev")),
		},
	}
}

func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return nil
}

// ResolveDatabaseURL fills DatabaseURL from SSM when it is unset and a
// parameter name is configured.
func (c *Config) ResolveDatabaseURL(ctx context.Context, api ssmiface.SSMAPI) error {
	if c.DatabaseURL != "" || c.DatabaseURLParameter == "" {
		return nil
	}

	resp, err := api.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           &c.DatabaseURLParameter,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return errors.Wrapf(err, "reading ssm parameter %s", c.DatabaseURLParameter)
	}

	c.DatabaseURL = aws.StringValue(resp.Parameter.Value)
	return nil
}

func (c Config) Store() store.Config {
	return store.Config{
		DSN:              c.DatabaseURL,
		StatementTimeout: c.StatementTimeout,
		ConnectTimeout:   c.ConnectTimeout,
	}
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
