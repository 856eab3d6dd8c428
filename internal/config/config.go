package config

import (
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"

	"github.com/CostinMirescu/sala-alternativa/internal/window"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	HTTPPort         string
	DatabaseURL      string
	RedisAddr        string
	JWTIssuer        string
	JWTSigningKey    string
	AccessTTL        time.Duration
	SecretKey        string
	SaltApp          string
	Timezone         string
	PublicURL        string
	CORSOrigins      string
	RateLimitPerMin  int
	RateLimitBackend string

	CheckinOpenBefore     time.Duration
	CheckinCloseAfter     time.Duration
	CheckoutOpenBeforeEnd time.Duration
	CheckoutGraceAfterEnd time.Duration
	SessionLength         time.Duration
	OnTimeFor             time.Duration
	LateUntil             time.Duration
	CheckoutBand          time.Duration
	TokenMaxAge           time.Duration

	AutoSessions  bool
	TimetablePath string
	AttemptLimit  int
	AttemptWindow time.Duration

	TeacherEmail    string
	TeacherPassword string
	TeacherClass    string
}

// Load reads an optional .env file, then returns application config populated
// from environment variables with sensible defaults.
func Load() App {
	if err := godotenv.Load(); err == nil {
		log.Println("loaded .env")
	}
	return App{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPPort:         getEnv("HTTP_PORT", "8081"),
		DatabaseURL:      getEnv("DATABASE_URL", "sqlite:///var/lib/sala/sala.db"),
		RedisAddr:        getEnv("REDIS_ADDR", ""),
		JWTIssuer:        getEnv("JWT_ISSUER", "sala-alternativa"),
		JWTSigningKey:    getEnv("JWT_SIGNING_KEY", "dev-signing-secret-change"),
		AccessTTL:        durationEnv("ACCESS_TTL", 8*time.Hour),
		SecretKey:        getEnv("SECRET_KEY", "dev-qr-secret-change"),
		SaltApp:          getEnv("SALT_APP", "dev-salt-change"),
		Timezone:         getEnv("TIMEZONE", "Europe/Bucharest"),
		PublicURL:        getEnv("PUBLIC_URL", "http://localhost:8081"),
		CORSOrigins:      getEnv("CORS_ORIGINS", "*"),
		RateLimitPerMin:  intEnv("RATE_LIMIT_PER_MIN", 120),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),

		CheckinOpenBefore:     minutesEnv("CHECKIN_OPEN_BEFORE_MIN", 5),
		CheckinCloseAfter:     minutesEnv("CHECKIN_CLOSE_AFTER_MIN", 10),
		CheckoutOpenBeforeEnd: minutesEnv("CHECKOUT_OPEN_BEFORE_END_MIN", 5),
		CheckoutGraceAfterEnd: minutesEnv("CHECKOUT_GRACE_AFTER_END_MIN", 5),
		SessionLength:         minutesEnv("SESSION_LENGTH_MIN", 50),
		OnTimeFor:             secondsEnv("ONTIME_SEC", 300),
		LateUntil:             secondsEnv("LATE_SEC", 600),
		CheckoutBand:          minutesEnv("CHECKOUT_BAND_MIN", 5),
		TokenMaxAge:           secondsEnv("TOKEN_MAX_AGE_SEC", 90),

		AutoSessions:  boolEnv("AUTO_SESSIONS", true),
		TimetablePath: getEnv("TIMETABLE_PATH", ""),
		AttemptLimit:  intEnv("ATTEMPT_LIMIT", 3),
		AttemptWindow: durationEnv("ATTEMPT_WINDOW", time.Minute),

		TeacherEmail:    getEnv("TEACHER_EMAIL", ""),
		TeacherPassword: getEnv("TEACHER_PASSWORD", ""),
		TeacherClass:    getEnv("TEACHER_CLASS", ""),
	}
}

// Window returns the time window offsets.
func (a App) Window() window.Config {
	return window.Config{
		CheckinOpenBefore:     a.CheckinOpenBefore,
		CheckinCloseAfter:     a.CheckinCloseAfter,
		CheckoutOpenBeforeEnd: a.CheckoutOpenBeforeEnd,
		CheckoutGraceAfterEnd: a.CheckoutGraceAfterEnd,
		SessionLength:         a.SessionLength,
		OnTimeFor:             a.OnTimeFor,
		LateUntil:             a.LateUntil,
		CheckoutBand:          a.CheckoutBand,
	}
}

// Location resolves Timezone, falling back to UTC.
func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("invalid TIMEZONE %q: %v, using UTC", a.Timezone, err)
		return time.UTC
	}
	return loc
}

// Production reports whether the app runs in a production environment.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func minutesEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * time.Minute
}

func secondsEnv(key string, fallback int) time.Duration {
	return time.Duration(intEnv(key, fallback)) * time.Second
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if val == "1" || val == "true" || val == "TRUE" {
			return true
		}
		if val == "0" || val == "false" || val == "FALSE" {
			return false
		}
		log.Printf("invalid bool for %s, using fallback %v", key, fallback)
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}
