package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CostinMirescu/sala-alternativa/internal/api"
	"github.com/CostinMirescu/sala-alternativa/internal/attendance"
	"github.com/CostinMirescu/sala-alternativa/internal/auth"
	"github.com/CostinMirescu/sala-alternativa/internal/config"
	"github.com/CostinMirescu/sala-alternativa/internal/httpmiddleware"
	"github.com/CostinMirescu/sala-alternativa/internal/schedule"
	"github.com/CostinMirescu/sala-alternativa/internal/store"
	"github.com/CostinMirescu/sala-alternativa/internal/token"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer func() { _ = redisClient.Close() }()

	loc := cfg.Location()
	repo := attendance.NewRepository(db.Client)

	var generator attendance.SessionGenerator
	if cfg.AutoSessions && cfg.TimetablePath != "" {
		tt, err := schedule.Load(cfg.TimetablePath)
		if err != nil {
			return err
		}
		generator = schedule.NewGenerator(tt, repo, cfg.SessionLength)
		log.Printf("session auto-generation enabled from %s", cfg.TimetablePath)
	}

	svc := attendance.NewService(repo, attendance.Options{
		Window:        cfg.Window(),
		Salt:          cfg.SaltApp,
		Location:      loc,
		MaxAttempts:   cfg.AttemptLimit,
		AttemptWindow: cfg.AttemptWindow,
		Generator:     generator,
	})
	codec := token.New(cfg.SecretKey, cfg.JWTIssuer, cfg.TokenMaxAge, nil)

	teachers := auth.NewTeachers(db.Client)
	if err := ensureTeacher(context.Background(), teachers, cfg); err != nil {
		return err
	}

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" && redisClient != nil {
		limiter = httpmiddleware.NewRedisWindow(redisClient.Client, cfg.RateLimitPerMin)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(securityHeaders())
	r.Use(httpmiddleware.GinMiddleware(limiter))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := api.New(svc, codec, teachers, api.Config{
		JWTIssuer:     cfg.JWTIssuer,
		JWTSigningKey: cfg.JWTSigningKey,
		AccessTTL:     cfg.AccessTTL,
		PublicURL:     strings.TrimRight(cfg.PublicURL, "/"),
		SecureCookies: cfg.Production(),
	}, map[string]api.Checker{"db": db, "redis": redisClient})
	handler.Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s (tz %s)", cfg.HTTPPort, loc)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}

// ensureTeacher creates the configured class master account on first start.
func ensureTeacher(ctx context.Context, teachers *auth.Teachers, cfg config.App) error {
	if cfg.TeacherEmail == "" || cfg.TeacherPassword == "" || cfg.TeacherClass == "" {
		return nil
	}
	existing, err := teachers.GetByEmail(ctx, cfg.TeacherEmail)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	if _, err := teachers.Create(ctx, cfg.TeacherEmail, cfg.TeacherPassword, cfg.TeacherClass); err != nil {
		return err
	}
	log.Printf("created teacher account %s for class %s", cfg.TeacherEmail, cfg.TeacherClass)
	return nil
}

// corsConfig allows the listed origins with credentials so the device cookie
// travels with scans. "*" echoes the request origin.
func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           24 * time.Hour,
	}
	var allowed []string
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			allowed = append(allowed, o)
		}
	}
	for _, o := range allowed {
		if o == "*" {
			cfg.AllowOriginFunc = func(string) bool { return true }
			return cfg
		}
	}
	cfg.AllowOrigins = allowed
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
