package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cuebook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CUEBOOK_DB_PATH", "test.db")

	yamlContent := `
database:
  path: "${CUEBOOK_DB_PATH}"
booking:
  timezone: "UTC"
  promo_exhausted_policy: "ABORT"
table_types:
  - id: 1
    name: "Pool"
    hourly_rate: 50000
tables:
  - id: 10
    name: "Table 1"
    table_type_id: 1
promos:
  - code: "welcome10"
    discount_type: "percentage"
    discount_value: 10
    min_hours: 1
    valid_from: "2026-01-01"
    valid_until: "2026-12-31"
    max_uses: 1
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Database.Path != "test.db" {
		t.Errorf("expected expanded database path, got %s", cfg.Database.Path)
	}
	if cfg.Booking.PromoExhaustedPolicy != PromoPolicyAbort {
		t.Errorf("expected policy abort, got %s", cfg.Booking.PromoExhaustedPolicy)
	}
	if len(cfg.Tables) != 1 || cfg.Tables[0].Status != models.TableAvailable {
		t.Errorf("expected 1 available table, got %+v", cfg.Tables)
	}
	if cfg.TableTypes[0].HourlyRate != 50000 {
		t.Errorf("expected hourly rate 50000, got %d", int64(cfg.TableTypes[0].HourlyRate))
	}

	promo, err := cfg.Promos[0].ToModel()
	if err != nil {
		t.Fatalf("promo to model: %v", err)
	}
	if promo.Code != "WELCOME10" || !promo.IsActive || promo.MaxUses == nil || *promo.MaxUses != 1 {
		t.Errorf("unexpected promo: %+v", promo)
	}

	all, err := cfg.PromoModels()
	if err != nil {
		t.Fatalf("promo models: %v", err)
	}
	if len(all) != 1 || all[0].Code != "WELCOME10" {
		t.Errorf("unexpected promo models: %+v", all)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		cfg := Config{Database: DatabaseConfig{Path: "path"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "bad timezone", mutate: func(c *Config) { c.Booking.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "unknown policy", mutate: func(c *Config) { c.Booking.PromoExhaustedPolicy = "maybe" }, wantErr: true},
		{name: "too short minimum", mutate: func(c *Config) { c.Booking.MinDurationMinutes = 10 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Booking.MinDurationMinutes != models.MinReservationMinutes {
		t.Errorf("expected default min duration %d, got %d", models.MinReservationMinutes, cfg.Booking.MinDurationMinutes)
	}
	if cfg.Booking.PromoExhaustedPolicy != PromoPolicyFullPrice {
		t.Errorf("expected default policy full_price, got %s", cfg.Booking.PromoExhaustedPolicy)
	}
	if cfg.Booking.IdempotencyTTL != models.DefaultIdempotencyTTL {
		t.Errorf("expected default idempotency ttl, got %d", cfg.Booking.IdempotencyTTL)
	}
	if cfg.Notifications.QueueSize != models.NotificationQueueSize {
		t.Errorf("expected default queue size %d, got %d", models.NotificationQueueSize, cfg.Notifications.QueueSize)
	}
	if cfg.API.Auth.HeaderAPIKey != "x-api-key" {
		t.Errorf("expected default api key header, got %s", cfg.API.Auth.HeaderAPIKey)
	}
}

func TestValidateCatalog(t *testing.T) {
	types := []models.TableType{{ID: 1, Name: "Pool", HourlyRate: 50000}}
	promo := PromoConfig{
		Code: "A", DiscountType: models.DiscountFixed, DiscountValue: 100,
		ValidFrom: "2026-01-01", ValidUntil: "2026-02-01",
	}

	tests := []struct {
		name    string
		types   []models.TableType
		tables  []models.Table
		promos  []PromoConfig
		wantErr bool
	}{
		{
			name:    "valid",
			types:   types,
			tables:  []models.Table{{ID: 1, TableTypeID: 1}},
			promos:  []PromoConfig{promo},
			wantErr: false,
		},
		{
			name:    "zero table type id",
			types:   []models.TableType{{ID: 0, Name: "x"}},
			wantErr: true,
		},
		{
			name:    "duplicate table id",
			types:   types,
			tables:  []models.Table{{ID: 1, TableTypeID: 1}, {ID: 1, TableTypeID: 1}},
			wantErr: true,
		},
		{
			name:    "unknown table type",
			types:   types,
			tables:  []models.Table{{ID: 1, TableTypeID: 7}},
			wantErr: true,
		},
		{
			name:    "bad status",
			types:   types,
			tables:  []models.Table{{ID: 1, TableTypeID: 1, Status: "broken"}},
			wantErr: true,
		},
		{
			name:    "duplicate promo code ignoring case",
			types:   types,
			promos:  []PromoConfig{promo, {Code: "a", DiscountType: models.DiscountFixed, ValidFrom: "2026-01-01", ValidUntil: "2026-01-02"}},
			wantErr: true,
		},
		{
			name:    "percentage over 100",
			types:   types,
			promos:  []PromoConfig{{Code: "B", DiscountType: models.DiscountPercentage, DiscountValue: 101, ValidFrom: "2026-01-01", ValidUntil: "2026-01-02"}},
			wantErr: true,
		},
		{
			name:    "reversed dates",
			types:   types,
			promos:  []PromoConfig{{Code: "C", DiscountType: models.DiscountFixed, ValidFrom: "2026-02-01", ValidUntil: "2026-01-01"}},
			wantErr: true,
		},
		{
			name:    "malformed date",
			types:   types,
			promos:  []PromoConfig{{Code: "D", DiscountType: models.DiscountFixed, ValidFrom: "01/01/2026", ValidUntil: "2026-01-01"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCatalog(tt.types, tt.tables, tt.promos)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCatalog() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	if got := ParseDuration("", time.Second); got != time.Second {
		t.Errorf("expected default, got %v", got)
	}
	if got := ParseDuration("garbage", time.Second); got != time.Second {
		t.Errorf("expected default for malformed value, got %v", got)
	}
	if got := ParseDuration("5m", time.Second); got != 5*time.Minute {
		t.Errorf("expected 5m, got %v", got)
	}
}
