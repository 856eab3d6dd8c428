package config

import (
	"testing"
	"time"

	"github.com/CostinMirescu/sala-alternativa/internal/window"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"CHECKIN_OPEN_BEFORE_MIN", "CHECKIN_CLOSE_AFTER_MIN", "ONTIME_SEC", "LATE_SEC",
		"CHECKOUT_BAND_MIN", "SESSION_LENGTH_MIN", "CHECKOUT_OPEN_BEFORE_END_MIN", "CHECKOUT_GRACE_AFTER_END_MIN"} {
		t.Setenv(k, "")
	}
	cfg := Load()
	if got := cfg.Window(); got != window.DefaultConfig() {
		t.Fatalf("window: got %+v, want %+v", got, window.DefaultConfig())
	}
	if cfg.TokenMaxAge == 0 || cfg.AttemptLimit == 0 {
		t.Fatalf("missing defaults: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CHECKIN_CLOSE_AFTER_MIN", "15")
	t.Setenv("LATE_SEC", "900")
	t.Setenv("TOKEN_MAX_AGE_SEC", "60")
	t.Setenv("AUTO_SESSIONS", "false")
	t.Setenv("ATTEMPT_WINDOW", "90s")
	t.Setenv("ATTEMPT_LIMIT", "nope")

	cfg := Load()
	if cfg.CheckinCloseAfter != 15*time.Minute {
		t.Errorf("close after: got %s", cfg.CheckinCloseAfter)
	}
	if cfg.LateUntil != 900*time.Second {
		t.Errorf("late until: got %s", cfg.LateUntil)
	}
	if cfg.TokenMaxAge != time.Minute {
		t.Errorf("token max age: got %s", cfg.TokenMaxAge)
	}
	if cfg.AutoSessions {
		t.Error("auto sessions should be off")
	}
	if cfg.AttemptWindow != 90*time.Second {
		t.Errorf("attempt window: got %s", cfg.AttemptWindow)
	}
	if cfg.AttemptLimit != 3 {
		t.Errorf("invalid int should fall back, got %d", cfg.AttemptLimit)
	}
}

func TestLocation(t *testing.T) {
	if loc := (App{Timezone: "Europe/Bucharest"}).Location(); loc.String() != "Europe/Bucharest" {
		t.Errorf("got %s", loc)
	}
	if loc := (App{Timezone: "Mars/Olympus"}).Location(); loc != time.UTC {
		t.Errorf("bad zone: got %s", loc)
	}
}
