package config_test

import (
	"errors"
	"testing"

	"github.com/saurabh6354/distributed-web-crawler/internal/config"
)

func validConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_DefaultsAreValid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("defaulted config should validate, got %v", err)
	}
}

func TestValidate_MissingUserAgent(t *testing.T) {
	cfg := validConfig()
	cfg.UserAgent = ""
	if err := cfg.Validate(); !errors.Is(err, config.ErrUserAgentRequired) {
		t.Errorf("Validate() = %v, want ErrUserAgentRequired", err)
	}
}

func TestValidate_MissingRedisAddress(t *testing.T) {
	cfg := validConfig()
	cfg.Redis.Address = ""
	if err := cfg.Validate(); !errors.Is(err, config.ErrRedisAddressRequired) {
		t.Errorf("Validate() = %v, want ErrRedisAddressRequired", err)
	}
}

func TestValidate_MissingPostgres(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = ""
	if err := cfg.Validate(); !errors.Is(err, config.ErrPostgresRequired) {
		t.Errorf("Validate() = %v, want ErrPostgresRequired", err)
	}

	cfg.Postgres.Host = "db.internal"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with Host set = %v, want nil", err)
	}

	cfg.Postgres.Host = ""
	cfg.Postgres.DSN = "postgres://crawler@db.internal/crawler"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() with DSN set = %v, want nil", err)
	}
}

func TestValidate_InvalidFilterErrorRate(t *testing.T) {
	for _, rate := range []float64{0, 1, -0.5, 1.5} {
		cfg := validConfig()
		cfg.Postgres.Host = "db.internal"
		cfg.FilterErrorRate = rate
		if err := cfg.Validate(); !errors.Is(err, config.ErrInvalidFilterErrorRate) {
			t.Errorf("Validate() with rate=%v = %v, want ErrInvalidFilterErrorRate", rate, err)
		}
	}
}

func TestValidate_WorkerPoolSizeBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = "db.internal"

	cfg.WorkerPoolSize = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for worker_pool_size 0")
	}

	cfg.WorkerPoolSize = 1000000
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for worker_pool_size above MaxPoolSize")
	}
}

func TestDSN_PrefersExplicitDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = "postgres://explicit"
	cfg.Postgres.Host = "ignored-host"

	if got := cfg.DSN(); got != "postgres://explicit" {
		t.Errorf("DSN() = %q, want explicit DSN", got)
	}
}

func TestDSN_AssemblesFromDiscreteFields(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Host = "db.internal"
	cfg.Postgres.Port = "5432"
	cfg.Postgres.User = "crawler"
	cfg.Postgres.Password = "secret"
	cfg.Postgres.Database = "crawler"
	cfg.Postgres.SSLMode = "disable"

	want := "host=db.internal port=5432 user=crawler password=secret dbname=crawler sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN() = %q, want %q", got, want)
	}
}
