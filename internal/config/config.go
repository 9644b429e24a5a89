package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cuebook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App           AppConfig           `yaml:"app"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Backup        BackupConfig        `yaml:"backup"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Logging       LoggingConfig       `yaml:"logging"`
	API           APIConfig           `yaml:"api"`
	Booking       BookingConfig       `yaml:"booking"`
	Notifications NotificationsConfig `yaml:"notifications"`
	TableTypes    []models.TableType  `yaml:"table_types"`
	Tables        []models.Table      `yaml:"tables"`
	Promos        []PromoConfig       `yaml:"promos"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// Политики при исчерпании промокода во время бронирования
const (
	PromoPolicyFullPrice = "full_price"
	PromoPolicyAbort     = "abort"
)

type BookingConfig struct {
	Timezone             string `yaml:"timezone"`
	MinDurationMinutes   int    `yaml:"min_duration_minutes"`
	MaxAdvanceDays       int    `yaml:"max_advance_days"`
	PromoExhaustedPolicy string `yaml:"promo_exhausted_policy"`
	IdempotencyTTL       int    `yaml:"idempotency_ttl_seconds"`

	// MaxAttempts ограничивает число попыток бронирования клиента за AttemptWindow; 0 отключает
	MaxAttempts   int    `yaml:"max_attempts"`
	AttemptWindow string `yaml:"attempt_window"`
}

// Location resolves the configured timezone; empty means UTC.
func (b BookingConfig) Location() (*time.Location, error) {
	if b.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(b.Timezone)
}

type NotificationsConfig struct {
	Enabled      bool   `yaml:"enabled"`
	AMQPURL      string `yaml:"amqp_url"`
	Exchange     string `yaml:"exchange"`
	QueueSize    int    `yaml:"queue_size"`
	MaxRetries   int    `yaml:"max_retries"`
	InitialDelay string `yaml:"initial_delay"`
	MaxDelay     string `yaml:"max_delay"`
	PollInterval string `yaml:"poll_interval"`
}

// PromoConfig is the YAML shape of a promo; dates are YYYY-MM-DD.
type PromoConfig struct {
	Code          string  `yaml:"code"`
	Description   string  `yaml:"description"`
	DiscountType  string  `yaml:"discount_type"`
	DiscountValue int64   `yaml:"discount_value"`
	MinHours      float64 `yaml:"min_hours"`
	ValidFrom     string  `yaml:"valid_from"`
	ValidUntil    string  `yaml:"valid_until"`
	MaxUses       *int64  `yaml:"max_uses"`
	Inactive      bool    `yaml:"inactive"`
}

// ToModel parses dates and normalizes the code.
func (p PromoConfig) ToModel() (*models.Promo, error) {
	from, err := time.Parse(models.DateLayout, p.ValidFrom)
	if err != nil {
		return nil, fmt.Errorf("promo %s: valid_from: %w", p.Code, err)
	}
	until, err := time.Parse(models.DateLayout, p.ValidUntil)
	if err != nil {
		return nil, fmt.Errorf("promo %s: valid_until: %w", p.Code, err)
	}
	return &models.Promo{
		Code:          models.NormalizePromoCode(p.Code),
		Description:   p.Description,
		DiscountType:  p.DiscountType,
		DiscountValue: p.DiscountValue,
		MinHours:      p.MinHours,
		ValidFrom:     from,
		ValidUntil:    until,
		MaxUses:       p.MaxUses,
		IsActive:      !p.Inactive,
	}, nil
}

// PromoModels converts the configured promos in declaration order.
func (c *Config) PromoModels() ([]*models.Promo, error) {
	out := make([]*models.Promo, 0, len(c.Promos))
	for _, p := range c.Promos {
		promo, err := p.ToModel()
		if err != nil {
			return nil, err
		}
		out = append(out, promo)
	}
	return out, nil
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if _, err := c.Booking.Location(); err != nil {
		return fmt.Errorf("invalid booking timezone %q: %w", c.Booking.Timezone, err)
	}

	switch c.Booking.PromoExhaustedPolicy {
	case PromoPolicyFullPrice, PromoPolicyAbort:
	default:
		return fmt.Errorf("unknown promo_exhausted_policy %q", c.Booking.PromoExhaustedPolicy)
	}

	if c.Booking.MinDurationMinutes < models.MinReservationMinutes {
		return fmt.Errorf("min_duration_minutes must be at least %d", models.MinReservationMinutes)
	}

	return ValidateCatalog(c.TableTypes, c.Tables, c.Promos)
}

// ValidateCatalog checks ids, references and promo shapes of the seeded catalog.
func ValidateCatalog(types []models.TableType, tables []models.Table, promos []PromoConfig) error {
	typeIDs := make(map[int64]bool)
	for _, tt := range types {
		if tt.ID == 0 {
			return fmt.Errorf("table type '%s' has invalid ID 0", tt.Name)
		}
		if typeIDs[tt.ID] {
			return fmt.Errorf("duplicate table type ID found: %d", tt.ID)
		}
		if tt.HourlyRate < 0 {
			return fmt.Errorf("table type %d has negative hourly rate", tt.ID)
		}
		typeIDs[tt.ID] = true
	}

	tableIDs := make(map[int64]bool)
	for _, t := range tables {
		if t.ID == 0 {
			return fmt.Errorf("table '%s' has invalid ID 0", t.Name)
		}
		if tableIDs[t.ID] {
			return fmt.Errorf("duplicate table ID found: %d", t.ID)
		}
		if !typeIDs[t.TableTypeID] {
			return fmt.Errorf("table %d references unknown table type %d", t.ID, t.TableTypeID)
		}
		switch t.Status {
		case "", models.TableAvailable, models.TableOccupied, models.TableMaintenance:
		default:
			return fmt.Errorf("table %d has unknown status %q", t.ID, t.Status)
		}
		tableIDs[t.ID] = true
	}

	codes := make(map[string]bool)
	for _, p := range promos {
		code := models.NormalizePromoCode(p.Code)
		if code == "" {
			return errors.New("promo code is required")
		}
		if codes[code] {
			return fmt.Errorf("duplicate promo code found: %s", code)
		}
		codes[code] = true

		switch p.DiscountType {
		case models.DiscountPercentage:
			if p.DiscountValue < 0 || p.DiscountValue > 100 {
				return fmt.Errorf("promo %s: percentage must be within 0..100", code)
			}
		case models.DiscountFixed:
			if p.DiscountValue < 0 {
				return fmt.Errorf("promo %s: fixed discount must not be negative", code)
			}
		default:
			return fmt.Errorf("promo %s: unknown discount type %q", code, p.DiscountType)
		}

		promo, err := p.ToModel()
		if err != nil {
			return err
		}
		if promo.ValidUntil.Before(promo.ValidFrom) {
			return fmt.Errorf("promo %s: valid_until is before valid_from", code)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	// Booking defaults
	if c.Booking.MinDurationMinutes == 0 {
		c.Booking.MinDurationMinutes = models.MinReservationMinutes
	}
	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.IdempotencyTTL == 0 {
		c.Booking.IdempotencyTTL = models.DefaultIdempotencyTTL
	}
	c.Booking.PromoExhaustedPolicy = strings.ToLower(strings.TrimSpace(c.Booking.PromoExhaustedPolicy))
	if c.Booking.PromoExhaustedPolicy == "" {
		c.Booking.PromoExhaustedPolicy = PromoPolicyFullPrice
	}

	if c.Notifications.Exchange == "" {
		c.Notifications.Exchange = "cuebook.events"
	}
	if c.Notifications.QueueSize == 0 {
		c.Notifications.QueueSize = models.NotificationQueueSize
	}

	for i := range c.Tables {
		if c.Tables[i].Status == "" {
			c.Tables[i].Status = models.TableAvailable
		}
	}
}

// ParseDuration returns def when s is empty or malformed.
func ParseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
