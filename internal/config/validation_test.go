package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() *Config {
	return &Config{
		Provider:      ProviderGemini,
		ModelName:     "gemini-2.5-flash",
		Storage:       StorageMemory,
		ListenAddr:    ":8686",
		ChannelBuffer: 64,
	}
}

func validPostgresConfig() *Config {
	cfg := validConfig()
	cfg.Storage = StoragePostgres
	cfg.PostgresHost = "localhost"
	cfg.PostgresPort = 5432
	cfg.PostgresUser = "easel"
	cfg.PostgresPassword = "supersecretpw"
	cfg.PostgresDBName = "easel"
	cfg.PostgresSSLMode = "disable"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid memory", func(c *Config) {}, nil},
		{"empty model", func(c *Config) { c.ModelName = "" }, ErrInvalidModelName},
		{"bad storage", func(c *Config) { c.Storage = "redis" }, ErrInvalidStorage},
		{"empty listen addr", func(c *Config) { c.ListenAddr = "" }, ErrInvalidListenAddr},
		{"zero channel buffer", func(c *Config) { c.ChannelBuffer = 0 }, ErrInvalidChannelBuffer},
		{"oversized channel buffer", func(c *Config) { c.ChannelBuffer = 1 << 20 }, ErrInvalidChannelBuffer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Postgres(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid postgres", func(c *Config) {}, nil},
		{"empty host", func(c *Config) { c.PostgresHost = "" }, ErrInvalidPostgresHost},
		{"port out of range", func(c *Config) { c.PostgresPort = 70000 }, ErrInvalidPostgresPort},
		{"empty db name", func(c *Config) { c.PostgresDBName = "" }, ErrInvalidPostgresDBName},
		{"empty password", func(c *Config) { c.PostgresPassword = "" }, ErrInvalidPostgresPassword},
		{"short password", func(c *Config) { c.PostgresPassword = "short" }, ErrInvalidPostgresPassword},
		{"deprecated ssl mode", func(c *Config) { c.PostgresSSLMode = "prefer" }, ErrInvalidPostgresSSLMode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validPostgresConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestValidate_MemoryIgnoresPostgresFields(t *testing.T) {
	cfg := validConfig()
	cfg.PostgresHost = ""
	cfg.PostgresPassword = ""
	assert.NoError(t, cfg.Validate())
}

func TestValidate_NilConfig(t *testing.T) {
	var cfg *Config
	assert.ErrorIs(t, cfg.Validate(), ErrConfigNil)
}

func TestFullModelName(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		want     string
	}{
		{ProviderGemini, "gemini-2.5-flash", "googleai/gemini-2.5-flash"},
		{ProviderOllama, "llama3.3", "ollama/llama3.3"},
		{ProviderOpenAI, "gpt-4o", "openai/gpt-4o"},
		{ProviderGemini, "googleai/gemini-2.5-pro", "googleai/gemini-2.5-pro"},
	}

	for _, tt := range tests {
		cfg := &Config{Provider: tt.provider, ModelName: tt.model}
		assert.Equal(t, tt.want, cfg.FullModelName())
	}
}

func TestMaskSecret(t *testing.T) {
	assert.Empty(t, maskSecret(""))
	assert.Equal(t, maskedValue, maskSecret("shortpw"))
	masked := maskSecret("my_long_secret_key_123")
	assert.NotContains(t, masked, "long_secret")
	assert.Contains(t, masked, maskedValue)
}

func TestMarshalJSON_MasksPassword(t *testing.T) {
	cfg := validPostgresConfig()
	data, err := cfg.MarshalJSON()
	assert.NoError(t, err)
	assert.NotContains(t, string(data), "supersecretpw")
}

func TestPostgresConnectionString_QuotesPassword(t *testing.T) {
	cfg := validPostgresConfig()
	cfg.PostgresPassword = `p@ss word's\`
	dsn := cfg.PostgresConnectionString()
	assert.Contains(t, dsn, `password='p@ss word\'s\\'`)
}

func TestPostgresURL_EncodesCredentials(t *testing.T) {
	cfg := validPostgresConfig()
	cfg.PostgresPassword = "p@ss/word"
	url := cfg.PostgresURL()
	assert.Contains(t, url, "postgres://")
	assert.NotContains(t, url, "p@ss/word")
}
