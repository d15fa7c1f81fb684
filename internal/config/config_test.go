package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	t.Setenv("DB_DRIVER", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CRON_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DBDriver != "sqlite" || cfg.HTTPAddr != ":8080" {
		t.Errorf("defaults = driver %s addr %s", cfg.DBDriver, cfg.HTTPAddr)
	}
	if cfg.OpenSchedule != (Schedule{Weekday: time.Monday, Hour: 9}) {
		t.Errorf("OpenSchedule = %v", cfg.OpenSchedule)
	}
	if cfg.JWTSecret == "" || cfg.CronSecret == "" {
		t.Errorf("development secrets not defaulted")
	}
	if cfg.CurrencySymbol != "$" || cfg.CurrencyMinorUnits != 2 {
		t.Errorf("currency = %q/%d, want $/2", cfg.CurrencySymbol, cfg.CurrencyMinorUnits)
	}
}

func TestLoad_Currency(t *testing.T) {
	t.Setenv("CURRENCY_SYMBOL", "MX$")
	t.Setenv("CURRENCY_MINOR_UNITS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CurrencySymbol != "MX$" || cfg.CurrencyMinorUnits != 0 {
		t.Errorf("currency = %q/%d, want MX$/0", cfg.CurrencySymbol, cfg.CurrencyMinorUnits)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad driver", map[string]string{"DB_DRIVER": "oracle"}},
		{"bad rate limit", map[string]string{"BID_RATE_LIMIT": "0"}},
		{"bad window", map[string]string{"CRON_WINDOW_MIN": "x"}},
		{"bad timezone", map[string]string{"CRON_TIMEZONE": "Mars/Olympus"}},
		{"bad schedule", map[string]string{"OPEN_SCHEDULE": "Funday 09:00"}},
		{"bad minor units", map[string]string{"CURRENCY_MINOR_UNITS": "7"}},
		{"production without secrets", map[string]string{"APP_ENV": "production", "JWT_SECRET": ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Errorf("Load() error = nil")
			}
		})
	}
}

func TestParseSchedule(t *testing.T) {
	tests := []struct {
		in      string
		want    Schedule
		wantErr bool
	}{
		{in: "Mon 09:00", want: Schedule{Weekday: time.Monday, Hour: 9}},
		{in: "sunday 20:30", want: Schedule{Weekday: time.Sunday, Hour: 20, Minute: 30}},
		{in: "Fri", wantErr: true},
		{in: "Fri 25:00", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSchedule(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseSchedule(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSchedule_Within(t *testing.T) {
	loc := time.FixedZone("UTC-6", -6*3600)
	s := Schedule{Weekday: time.Monday, Hour: 9}
	window := 15 * time.Minute

	// 2026-10-19 是周一
	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"at trigger", time.Date(2026, 10, 19, 9, 0, 0, 0, loc), true},
		{"inside window", time.Date(2026, 10, 19, 9, 14, 59, 0, loc), true},
		{"window closed", time.Date(2026, 10, 19, 9, 15, 0, 0, loc), false},
		{"before trigger", time.Date(2026, 10, 19, 8, 59, 0, 0, loc), false},
		{"other day", time.Date(2026, 10, 21, 9, 5, 0, 0, loc), false},
		{"utc input", time.Date(2026, 10, 19, 15, 5, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Within(tt.now, loc, window); got != tt.want {
				t.Errorf("Within(%v) = %v, want %v (last %v)", tt.now, got, tt.want, s.Last(tt.now, loc))
			}
		})
	}
}
