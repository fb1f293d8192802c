package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{}
	c.App.Env = "local"
	c.App.Port = 8080
	c.DB.Host = "localhost"
	c.DB.Port = 5432
	c.DB.User = "app"
	c.DB.Name = "selfcall"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Auth.JWTSecret = "secret"
	c.Storage.AudioBucket = "audio"
	c.ElevenLabs.APIKey = "k"
	c.ElevenLabs.AgentPhoneNumberID = "pn_1"
	c.OpenAI.APIKey = "k"
	c.Calls.CronSecret = "cron"
	return c
}

func TestValidateOK(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateMissingRequired(t *testing.T) {
	c := validConfig()
	c.ElevenLabs.APIKey = ""
	c.Calls.CronSecret = ""
	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "ELEVENLABS_API_KEY") {
		t.Fatalf("expected ELEVENLABS_API_KEY in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "CRON_SECRET") {
		t.Fatalf("expected CRON_SECRET in error, got %v", err)
	}
}

func TestValidateProductionRequiresSSL(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Auth.JWTIssuer = "iss"
	c.Auth.JWTAudience = "aud"
	err := c.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_SSLMODE") {
		t.Fatalf("expected DB_SSLMODE error, got %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	c := validConfig()
	c.applyDefaults()
	if c.Calls.StalenessThreshold != 12*time.Minute {
		t.Fatalf("expected 12m staleness threshold, got %v", c.Calls.StalenessThreshold)
	}
	if c.Calls.MaxConcurrent != 5 {
		t.Fatalf("expected default ceiling 5, got %d", c.Calls.MaxConcurrent)
	}
	if c.ElevenLabs.BaseURL == "" || c.OpenAI.BaseURL == "" {
		t.Fatalf("expected base URL defaults")
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode default disable, got %q", c.DB.SSLMode)
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	c.applyDefaults()
	dsn := c.PostgresDSN()
	for _, part := range []string{"host=localhost", "dbname=selfcall", "sslmode=disable"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("dsn missing %q: %s", part, dsn)
		}
	}
}
