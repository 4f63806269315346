// Package main 司库与抵押品后台服务启动入口
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	auditconsumer "github.com/wyfcoding/kpstreasury/internal/audit/interfaces/consumer"
	authapp "github.com/wyfcoding/kpstreasury/internal/auth/application"
	authhttp "github.com/wyfcoding/kpstreasury/internal/auth/interfaces/http"
	collateralapp "github.com/wyfcoding/kpstreasury/internal/collateral/application"
	collateraldomain "github.com/wyfcoding/kpstreasury/internal/collateral/domain"
	collateralmysql "github.com/wyfcoding/kpstreasury/internal/collateral/infrastructure/persistence/mysql"
	collateralhttp "github.com/wyfcoding/kpstreasury/internal/collateral/interfaces/http"
	"github.com/wyfcoding/kpstreasury/internal/events"
	treasuryapp "github.com/wyfcoding/kpstreasury/internal/treasury/application"
	treasurydomain "github.com/wyfcoding/kpstreasury/internal/treasury/domain"
	treasurymysql "github.com/wyfcoding/kpstreasury/internal/treasury/infrastructure/persistence/mysql"
	treasuryhttp "github.com/wyfcoding/kpstreasury/internal/treasury/interfaces/http"
	userapp "github.com/wyfcoding/kpstreasury/internal/user/application"
	userdomain "github.com/wyfcoding/kpstreasury/internal/user/domain"
	usermysql "github.com/wyfcoding/kpstreasury/internal/user/infrastructure/persistence/mysql"
	userhttp "github.com/wyfcoding/kpstreasury/internal/user/interfaces/http"
	"github.com/wyfcoding/pkg/config"
	"github.com/wyfcoding/pkg/database"
	"github.com/wyfcoding/pkg/logging"
	"github.com/wyfcoding/pkg/messagequeue/kafka"
	"github.com/wyfcoding/pkg/metrics"
	"github.com/wyfcoding/pkg/middleware"
	"golang.org/x/sync/errgroup"
)

var configPath = flag.String("config", "configs/config.toml", "config file path")

func main() {
	flag.Parse()

	// 1. Config
	var cfg config.Config
	if err := config.Load(*configPath, &cfg); err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Logger
	logCfg := &logging.Config{Service: cfg.Server.Name, Level: cfg.Log.Level}
	logger := logging.NewFromConfig(logCfg)
	slog.SetDefault(logger.Logger)

	// 3. Metrics
	metricsImpl := metrics.NewMetrics(cfg.Server.Name)

	// 4. Database
	db, err := database.NewDB(cfg.Data.Database, cfg.CircuitBreaker, logger, metricsImpl)
	if err != nil {
		slog.Error("failed to connect database", "error", err)
		os.Exit(1)
	}

	if cfg.Server.Environment == "dev" {
		if err := db.RawDB().AutoMigrate(
			&userdomain.User{},
			&treasurydomain.Account{},
			&collateraldomain.Collateral{},
		); err != nil {
			slog.Error("failed to migrate database", "error", err)
		}
	}

	// 5. Kafka & 事件发布
	kafkaProducer := kafka.NewProducer(&cfg.MessageQueue.Kafka, logger, metricsImpl)
	publisher := events.NewPublisher(events.NewKafkaEventPublisher(kafkaProducer), logger.Logger)

	// 6. 仓储
	accountRepo := treasurymysql.NewGormAccountRepository(db.RawDB())
	treasuryTx := treasurymysql.NewTransactionManager(db.RawDB())
	collateralRepo := collateralmysql.NewGormCollateralRepository(db.RawDB())
	collateralTx := collateralmysql.NewTransactionManager(db.RawDB())
	userRepo := usermysql.NewUserRepository(db.RawDB())
	userTx := usermysql.NewTransactionManager(db.RawDB())

	// 7. 应用服务
	// 安全材料不走共享配置，从环境变量读取
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		slog.Error("JWT_SECRET is not set")
		os.Exit(1)
	}
	jwtExpiry := 24 * time.Hour
	if v := os.Getenv("JWT_EXPIRY"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			jwtExpiry = parsed
		}
	}
	tokens := authapp.NewTokenManager(jwtSecret, jwtExpiry)

	userSvc := userapp.NewUserService(userRepo, userTx, publisher, logger.Logger)
	authSvc := authapp.NewAuthService(userRepo, userSvc, tokens, publisher, logger.Logger)
	treasurySvc := treasuryapp.NewTreasuryService(accountRepo, treasuryTx, publisher, logger.Logger)
	collateralSvc := collateralapp.NewCollateralService(collateralRepo, collateralTx, publisher, logger.Logger)

	// 8. 审计消费者：五个事件主题共用一个处理器
	auditHandler := auditconsumer.NewAuditHandler(logger.Logger)
	auditTopics := []string{
		events.TopicUserEvents,
		events.TopicTreasuryEvents,
		events.TopicCollateralEvents,
		events.TopicAuditEvents,
		events.TopicNotificationEvents,
	}
	consumers := make([]*kafka.Consumer, 0, len(auditTopics))
	for _, topic := range auditTopics {
		consumerCfg := cfg.MessageQueue.Kafka
		consumerCfg.Topic = topic
		if consumerCfg.GroupID == "" {
			consumerCfg.GroupID = "kps-treasury-audit"
		}
		consumer := kafka.NewConsumer(&consumerCfg, logger, metricsImpl)
		consumer.Start(context.Background(), 3, auditHandler.Handle)
		consumers = append(consumers, consumer)
	}

	// 9. HTTP
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	authhttp.NewHandler(authSvc).RegisterRoutes(api)
	userhttp.NewHandler(userSvc).RegisterRoutes(api, tokens)
	treasuryhttp.NewHandler(treasurySvc).RegisterRoutes(api, tokens)
	collateralhttp.NewHandler(collateralSvc).RegisterRoutes(api, tokens)

	// 10. Start
	g, ctx := errgroup.WithContext(context.Background())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTP.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g.Go(func() error {
		slog.Info("HTTP server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			slog.Info("shutting down server...")
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down...")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = server.Shutdown(shutdownCtx)

		for _, c := range consumers {
			if c != nil {
				_ = c.Close()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}
