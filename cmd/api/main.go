package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/wikigate/moderation-backend/internal/config"
	"github.com/wikigate/moderation-backend/internal/consequence"
	"github.com/wikigate/moderation-backend/internal/contentstore/memstore"
	"github.com/wikigate/moderation-backend/internal/domain"
	"github.com/wikigate/moderation-backend/internal/handler"
	"github.com/wikigate/moderation-backend/internal/middleware"
	"github.com/wikigate/moderation-backend/internal/repository"
	"github.com/wikigate/moderation-backend/internal/routes"
	"github.com/wikigate/moderation-backend/internal/service"
	pkgjwt "github.com/wikigate/moderation-backend/pkg/jwt"
	pkglogger "github.com/wikigate/moderation-backend/pkg/logger"
	pkgredis "github.com/wikigate/moderation-backend/pkg/redis"
)

// getConfigPath returns config file path based on APP_ENV environment variable
func getConfigPath() string {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("configs/config.%s.yaml", env)
}

func main() {
	dotenvFiles := config.LoadDotEnv()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "local"
	}
	pkglogger.InitStructured(env)
	log := pkglogger.GetLogger()
	log.Info().Str("env", env).Strs("dotenv", dotenvFiles).Msg("starting")

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	db, err := gorm.Open(mysql.Open(cfg.Database.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := db.AutoMigrate(
		&domain.PendingChange{},
		&domain.ModerationBlock{},
		&domain.RevisionTag{},
	); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	// Redis is optional; the notification cache degrades to direct
	// queue-store reads without it.
	rdb, err := pkgredis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, notification cache disabled")
		rdb = nil
	}

	queueRepo := repository.NewQueueRepository(db)
	blockRepo := repository.NewBlockRepository(db)
	tagRepo := repository.NewTagRepository(db)

	// The in-process content store stands in for the real document
	// store; a production deployment injects its own adapter here.
	store := memstore.New()
	store.SetReadOnly(cfg.Moderation.ReadOnly)

	registry := service.NewApproveTaskRegistry()
	policy := service.NewPolicy(service.PolicyConfig{
		Enabled:             cfg.Moderation.Enabled,
		ModeratedNamespaces: cfg.Moderation.ModeratedNamespaces,
		ExcludedNamespaces:  cfg.Moderation.ExcludedNamespaces,
	}, registry)

	cm := consequence.NewManager(pkglogger.WithComponent("consequence"))
	notify := service.NewNotifyService(rdb, queueRepo, pkglogger.WithComponent("notify"))
	sink := service.NewLogNotificationSink(pkglogger.WithComponent("notification"))

	queueSvc := service.NewQueueService(queueRepo, blockRepo, store, policy, notify, cm, pkglogger.WithComponent("queue"))
	modSvc := service.NewModerationService(queueRepo, blockRepo, tagRepo, store, registry, notify, sink, cm, pkglogger.WithComponent("moderation"))
	modSvc.SetRejectedGrace(time.Duration(cfg.Moderation.RejectedGraceDays) * 24 * time.Hour)

	jwtMgr := pkgjwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	if env != "local" && env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Anon-Token"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	mh := handler.NewModerationHandler(queueSvc, modSvc)
	nh := handler.NewNotifyHandler(notify)
	routes.Setup(r, jwtMgr, mh, nh)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("listening")
	if err := r.Run(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
