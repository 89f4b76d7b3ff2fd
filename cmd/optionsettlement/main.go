package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	ledgerdomain "github.com/wyfcoding/optionsettlement/internal/ledger/domain"
	ledgermysql "github.com/wyfcoding/optionsettlement/internal/ledger/infrastructure/persistence/mysql"
	ledgerhttp "github.com/wyfcoding/optionsettlement/internal/ledger/interfaces/http"
	optionapp "github.com/wyfcoding/optionsettlement/internal/option/application"
	optiondomain "github.com/wyfcoding/optionsettlement/internal/option/domain"
	"github.com/wyfcoding/optionsettlement/internal/option/infrastructure/messaging"
	optionmysql "github.com/wyfcoding/optionsettlement/internal/option/infrastructure/persistence/mysql"
	optionhttp "github.com/wyfcoding/optionsettlement/internal/option/interfaces/http"
	registryapp "github.com/wyfcoding/optionsettlement/internal/registry/application"
	registrydomain "github.com/wyfcoding/optionsettlement/internal/registry/domain"
	registrymysql "github.com/wyfcoding/optionsettlement/internal/registry/infrastructure/persistence/mysql"
	registryconsumer "github.com/wyfcoding/optionsettlement/internal/registry/interfaces/consumer"
	registryhttp "github.com/wyfcoding/optionsettlement/internal/registry/interfaces/http"
	"github.com/wyfcoding/optionsettlement/pkg/cache"
	"github.com/wyfcoding/optionsettlement/pkg/config"
	"github.com/wyfcoding/optionsettlement/pkg/db"
	"github.com/wyfcoding/optionsettlement/pkg/logger"
	"github.com/wyfcoding/optionsettlement/pkg/metrics"
	"github.com/wyfcoding/optionsettlement/pkg/middleware"
	"github.com/wyfcoding/optionsettlement/pkg/mq"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config file")
	flag.Parse()

	// 1. Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// 2. Logger
	if err := logger.Init(cfg.Logger); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	slogger := logger.Get()
	ctx := context.Background()

	// 3. Database
	database, err := db.Init(db.Config{
		DSN:                cfg.Database.DSN,
		MaxOpenConns:       cfg.Database.MaxOpenConns,
		MaxIdleConns:       cfg.Database.MaxIdleConns,
		ConnMaxLifetime:    cfg.Database.ConnMaxLifetime,
		LogEnabled:         cfg.Database.LogEnabled,
		SlowQueryThreshold: cfg.Database.SlowQueryThreshold,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to connect database", "error", err)
	}
	defer database.Close()

	if err := database.AutoMigrate(
		&optiondomain.Agreement{},
		&registrydomain.Record{},
		&ledgerdomain.Account{},
	); err != nil {
		logger.Fatal(ctx, "failed to migrate database", "error", err)
	}

	// 4. Redis 读缓存（可选，连接失败时降级为直读）
	var infoCache registryapp.InfoCache
	redisCache, err := cache.New(cache.Config{
		Host:         cfg.Redis.Host,
		Port:         cfg.Redis.Port,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MaxPoolSize:  cfg.Redis.MaxPoolSize,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		logger.Warn(ctx, "redis unavailable, registry info cache disabled", "error", err)
	} else {
		infoCache = redisCache
		defer redisCache.Close()
	}

	// 5. Kafka 事件发布
	var events optiondomain.EventPublisher
	mqCfg := mq.Config{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		SessionTimeout: cfg.Kafka.SessionTimeout,
		MaxRetries:     cfg.Kafka.MaxRetries,
		RetryBackoff:   cfg.Kafka.RetryBackoff,
	}
	if len(cfg.Kafka.Brokers) > 0 {
		producer := mq.NewProducer(mqCfg)
		defer producer.Close()
		events = messaging.NewKafkaPublisher(producer, cfg.Kafka.EventTopic)
	} else {
		logger.Warn(ctx, "no kafka brokers configured, events disabled")
	}

	// 6. Metrics
	m := metrics.New(cfg.ServiceName)
	if cfg.Metrics.Enabled {
		metricsSrv := metrics.Serve(cfg.Metrics.Port, cfg.Metrics.Path)
		defer metricsSrv.Close()
	}

	// 7. Layers
	agreementRepo := optionmysql.NewAgreementRepo(database.DB)
	recordRepo := registrymysql.NewRecordRepo(database.DB)
	ledger := ledgermysql.NewLedger(database, m)

	optionService := optionapp.NewOptionAppService(agreementRepo, ledger, events, slogger)
	registryService := registryapp.NewRegistryAppService(
		recordRepo, optionService, events, infoCache, slogger, cfg.RegistryID)

	// 8. 投影消费者：从事件流刷新登记记录的持有人缓存
	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	if len(cfg.Kafka.Brokers) > 0 {
		consumer := mq.NewConsumer(mqCfg, cfg.Kafka.EventTopic)
		defer consumer.Close()
		projection := registryconsumer.NewProjectionHandler(registryService, slogger)
		go projection.Run(consumerCtx, consumer)
	}

	// 9. HTTP server
	if cfg.Environment == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.Recovery(),
		middleware.Logging(),
		middleware.Metrics(m),
		middleware.RateLimit(cfg.HTTP.RateLimit, cfg.HTTP.RateBurst),
	)

	optionhttp.NewOptionHandler(optionService, m).RegisterRoutes(router)
	registryhttp.NewRegistryHandler(registryService, m).RegisterRoutes(router)
	ledgerhttp.NewLedgerHandler(ledger).RegisterRoutes(router)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info(ctx, "server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "failed to serve", "error", err)
		}
	}()

	// 10. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info(ctx, "shutting down server...")

	stopConsumer()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "server shutdown failed", "error", err)
	}
}
