package main

import (
	"context"
	"log"
	"time"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"eventlens/internal/analytics"
	"eventlens/internal/cache"
	"eventlens/internal/config"
	"eventlens/internal/db"
	"eventlens/internal/http/handlers"
	appmw "eventlens/internal/http/middleware"
	"eventlens/internal/keys"
	"eventlens/internal/token"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	aggregationCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := aggregationCache.Ping(pingCtx); err != nil {
		log.Fatalf("failed to connect redis at %s: %v", cfg.RedisAddr, err)
	}
	cancel()

	keyManager := keys.NewManager(db.NewCredentialStore(sqlDB), keys.NewHasher(), cfg.KeyExpirationDays)
	engine := analytics.NewEngine(db.NewEventStore(sqlDB), aggregationCache, cfg.SummaryCacheTTL)
	tokens := token.NewManager(cfg.JWTSecret, cfg.SessionTTL)

	handlers.InitPrometheusMetrics()
	appmw.InitPrometheusMetrics()
	analytics.InitPrometheusMetrics()

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/v1/auth/login", handlers.Login(sqlDB, tokens))

	ownerAuth := appmw.OwnerAuth(sqlDB, tokens)
	r.POST("/v1/apps", ownerAuth(handlers.RegisterApplication(keyManager)))
	r.GET("/v1/apps/{id}/keys", ownerAuth(handlers.ListAPIKeys(keyManager)))
	r.POST("/v1/apps/{id}/regenerate", ownerAuth(handlers.RegenerateAPIKey(keyManager)))
	r.POST("/v1/keys/revoke", ownerAuth(handlers.RevokeAPIKey(keyManager)))

	bearerAuth := appmw.BearerAuth(keyManager)
	r.POST("/v1/analytics/collect", bearerAuth(handlers.CollectEvent(engine)))
	r.GET("/v1/analytics/event-summary", bearerAuth(handlers.EventSummary(engine)))
	r.GET("/v1/analytics/user-stats", bearerAuth(handlers.UserStats(engine)))

	r.GET("/v1/metrics", handlers.ApplicationMetrics(keyManager))
	r.GET("/metrics", handlers.Metrics())

	handler := handlers.RequestLogger(r.Handler)

	log.Printf("eventlens listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
