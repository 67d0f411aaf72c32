package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-envconfig"

	"tvtv2xmltv/consts"
)

// Config is the full runtime configuration of one guide run. The whole
// pipeline takes it explicitly; nothing reads the environment mid-run.
type Config struct {
	Endpoint    string    `env:"TVTV_ENDPOINT, default=https://www.tvtv.us"`
	LineupID    string    `env:"TVTV_LINEUP_ID"`
	Stations    []string  `env:"TVTV_CHANNELS"`
	LineupFile  string    `env:"LINEUP_FILE"`
	WindowDays  int       `env:"WINDOW_DAYS, default=3"`
	WindowStart time.Time `env:"WINDOW_START"`
	WindowEnd   time.Time `env:"WINDOW_END"`
	OutputPath  string    `env:"OUTPUT_FILE, default=guide.xml"`
	Credential  string    `env:"TVTV_TOKEN"`
	Timezone    string    `env:"GUIDE_TZ, default=UTC"`
	LogLevel    string    `env:"LOG_LEVEL, default=info"`

	loc *time.Location
}

// Load builds a Config from environment variables and validates it.
func Load(ctx context.Context) (*Config, error) {
	var c Config
	if err := envconfig.Process(ctx, &c); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) validate() error {
	stations := c.Stations[:0]
	for _, s := range c.Stations {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			stations = append(stations, trimmed)
		}
	}
	c.Stations = stations

	if c.LineupID == "" {
		return fmt.Errorf("TVTV_LINEUP_ID is required")
	}
	if len(c.Stations) == 0 && c.LineupFile == "" {
		return fmt.Errorf("either TVTV_CHANNELS or LINEUP_FILE must be set")
	}
	if c.WindowDays < 1 || c.WindowDays > consts.MAX_WINDOW_DAYS {
		return fmt.Errorf("WINDOW_DAYS must be between 1 and %d", consts.MAX_WINDOW_DAYS)
	}
	if c.WindowStart.IsZero() != c.WindowEnd.IsZero() {
		return fmt.Errorf("WINDOW_START and WINDOW_END must be set together")
	}
	if !c.WindowStart.IsZero() {
		if !c.WindowStart.Before(c.WindowEnd) {
			return fmt.Errorf("WINDOW_START must precede WINDOW_END")
		}
		// the provider serves at most MAX_WINDOW_DAYS days of listings
		if c.WindowEnd.Sub(c.WindowStart) > consts.MAX_WINDOW_DAYS*24*time.Hour {
			return fmt.Errorf("window span exceeds %d days", consts.MAX_WINDOW_DAYS)
		}
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("GUIDE_TZ: %w", err)
	}
	c.loc = loc
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Location returns the timezone guide timestamps are rendered in.
func (c *Config) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Window returns the listings window: the explicit WINDOW_START/WINDOW_END
// bounds when given, otherwise WINDOW_DAYS days starting at now.
func (c *Config) Window(now time.Time) (start, end time.Time) {
	if !c.WindowStart.IsZero() {
		return c.WindowStart, c.WindowEnd
	}
	return now, now.Add(time.Duration(c.WindowDays) * 24 * time.Hour)
}
