// Package config содержит логику чтения конфигурации сервиса бронирования.
package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sivanpabraj/studio-m/internal/pricing"
	"github.com/sivanpabraj/studio-m/internal/ratelimit"
)

// Config содержит параметры конфигурации сервиса бронирования.
// Тарифные и лимитные поля задаются только окружением; нулевое значение
// оставляет значение по умолчанию.
type Config struct {
	RunAddress      string        `env:"RUN_ADDRESS"`
	DatabaseURI     string        `env:"DATABASE_URI"`
	NotifierAddress string        `env:"NOTIFIER_ADDRESS"`
	RedisAddress    string        `env:"REDIS_ADDRESS"`
	GatewaySecret   string        `env:"GATEWAY_SECRET"`
	OwnerActorID    int64         `env:"OWNER_ACTOR_ID"`
	DraftTTL        time.Duration `env:"DRAFT_TTL"`
	StrictDates     bool          `env:"STRICT_DATES"`

	DepositPercent  int64 `env:"DEPOSIT_PERCENT"`
	TaxPercent      int64 `env:"TAX_PERCENT"`
	DiscountPercent int64 `env:"DISCOUNT_PERCENT"`

	RateLimitGeneral int           `env:"RATE_LIMIT_GENERAL"`
	RateLimitSearch  int           `env:"RATE_LIMIT_SEARCH"`
	RateLimitButton  int           `env:"RATE_LIMIT_BUTTON"`
	RateLimitWindow  time.Duration `env:"RATE_LIMIT_WINDOW"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных
// окружения. Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envNotifierAddress := cfg.NotifierAddress
	envRedisAddress := cfg.RedisAddress
	envGatewaySecret := cfg.GatewaySecret
	envOwnerActorID := cfg.OwnerActorID
	envDraftTTL := cfg.DraftTTL
	envStrictDates := cfg.StrictDates
	// Для булева поля «значение не задано» неотличимо от false,
	// поэтому факт присутствия переменной проверяется отдельно.
	_, strictDatesSet := os.LookupEnv("STRICT_DATES")

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.NotifierAddress, "n", "", "notifier system address")
	flag.StringVar(&cfg.RedisAddress, "r", "", "redis address for rate limiting")
	flag.StringVar(&cfg.GatewaySecret, "s", "", "gateway token secret")
	flag.Int64Var(&cfg.OwnerActorID, "o", 0, "owner actor id with admin rights")
	flag.DurationVar(&cfg.DraftTTL, "t", 24*time.Hour, "draft time to live")
	flag.BoolVar(&cfg.StrictDates, "strict-dates", true, "strict calendar validation of event dates")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envNotifierAddress != "" {
		cfg.NotifierAddress = envNotifierAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}
	if envGatewaySecret != "" {
		cfg.GatewaySecret = envGatewaySecret
	}
	if envOwnerActorID != 0 {
		cfg.OwnerActorID = envOwnerActorID
	}
	if envDraftTTL != 0 {
		cfg.DraftTTL = envDraftTTL
	}
	if strictDatesSet {
		cfg.StrictDates = envStrictDates
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = 24 * time.Hour
	}

	return cfg, nil
}

// Rates возвращает тарифы расчёта стоимости с учётом переопределений из
// окружения. Незаданные проценты остаются на значениях по умолчанию.
func (c *Config) Rates() pricing.Rates {
	rates := pricing.DefaultRates()
	if c.DepositPercent > 0 {
		rates.DepositPercent = c.DepositPercent
	}
	if c.TaxPercent > 0 {
		rates.TaxPercent = c.TaxPercent
	}
	if c.DiscountPercent > 0 {
		rates.DiscountPercent = c.DiscountPercent
	}
	return rates
}

// RateRules возвращает лимиты по классам действий с учётом переопределений
// из окружения.
func (c *Config) RateRules() map[ratelimit.Class]ratelimit.Rule {
	rules := ratelimit.DefaultRules()
	limits := map[ratelimit.Class]int{
		ratelimit.ClassGeneral: c.RateLimitGeneral,
		ratelimit.ClassSearch:  c.RateLimitSearch,
		ratelimit.ClassButton:  c.RateLimitButton,
	}
	for class, limit := range limits {
		rule := rules[class]
		if limit > 0 {
			rule.Limit = limit
		}
		if c.RateLimitWindow > 0 {
			rule.Window = c.RateLimitWindow
		}
		rules[class] = rule
	}
	return rules
}
