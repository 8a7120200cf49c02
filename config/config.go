/*
Package config loads server configuration from the environment.

PURPOSE:
  Centralizes every tunable of the booking server. Values come from the
  process environment, optionally seeded from a .env file (godotenv), with
  sensible defaults for local development.

VARIABLES:
  PORT             HTTP server port (default: 8080)
  DB_PATH          SQLite database path, ":memory:" allowed (default: bookings.db)
  ALLOWED_ORIGINS  Comma-separated CORS origins (default: localhost dev hosts)
  ADVANCE_RATIO    Reservation advance as a fraction of full price (default: 0.5)
  PLATFORM_FEE     Flat reservation fee in currency units (default: 0.50)

PRECEDENCE:
  Real environment variables win over .env values; .env is a convenience
  for development only.

SEE ALSO:
  - cmd/server/main.go: The only consumer
*/
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/pampeo/booking-engine/booking"
)

// Config holds every runtime setting of the booking server.
type Config struct {
	Port           int
	DBPath         string
	AllowedOrigins []string
	Pricing        booking.Pricing
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; missing .env is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:           8080,
		DBPath:         "bookings.db",
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		Pricing:        booking.DefaultPricing(),
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.Port = port
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = v
	}

	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
			}
		}
	}

	if v := os.Getenv("ADVANCE_RATIO"); v != "" {
		ratio, err := decimal.NewFromString(v)
		if err != nil || !ratio.IsPositive() || ratio.GreaterThan(decimal.NewFromInt(1)) {
			return nil, fmt.Errorf("invalid ADVANCE_RATIO %q", v)
		}
		cfg.Pricing.AdvanceRatio = ratio
	}

	if v := os.Getenv("PLATFORM_FEE"); v != "" {
		fee, err := booking.ParseMoney(v)
		if err != nil || fee.IsNegative() {
			return nil, fmt.Errorf("invalid PLATFORM_FEE %q", v)
		}
		cfg.Pricing.PlatformFee = fee
	}

	return cfg, nil
}
