// serve.go — сборка компонентов и запуск HTTP-сервера.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v3"

	"github.com/bigkaa/goartstore/filevault/internal/api/handlers"
	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/api/openapi"
	"github.com/bigkaa/goartstore/filevault/internal/codec"
	"github.com/bigkaa/goartstore/filevault/internal/config"
	"github.com/bigkaa/goartstore/filevault/internal/database"
	"github.com/bigkaa/goartstore/filevault/internal/ratelimit"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/server"
	"github.com/bigkaa/goartstore/filevault/internal/service"
	"github.com/bigkaa/goartstore/filevault/internal/storage"
	"github.com/bigkaa/goartstore/filevault/internal/storage/filestore"
	"github.com/bigkaa/goartstore/filevault/internal/storage/s3store"
)

func serveAction(ctx context.Context, _ *cli.Command) error {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("ошибка конфигурации: %w", err)
	}

	logger := config.SetupLogger(cfg)
	logger.Info("File Vault запускается",
		slog.String("server_id", cfg.ServerID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("store", cfg.StoreBackend),
		slog.String("rate_backend", cfg.RateBackend),
	)

	// --- Инициализация компонентов ---

	// 1. PostgreSQL: миграции и пул
	if err := database.Migrate(cfg, logger); err != nil {
		return err
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	// 2. Хранилище объектов и шифрование
	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	cipher, err := codec.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("ошибка инициализации шифрования: %w", err)
	}

	// 3. Репозитории и сервисы
	repos := repository.NewRepos(pool)
	tx := repository.NewTxRunner(pool)

	uploadSvc := service.NewUploadService(
		service.UploadConfig{MaxFileSize: cfg.MaxFileSize, ServerID: cfg.ServerID},
		store, cipher, repos.Files, tx, repos.Events, service.NewKeyedMutex(), logger,
	)
	downloadSvc := service.NewDownloadService(store, cipher, repos.Files, logger)
	querySvc := service.NewQueryService(
		repos.Files, tx, store, service.NewCacheService(cfg.CacheSize, cfg.CacheTTL), logger,
	)

	passwordHash := cfg.LoginPasswordHash
	if passwordHash == "" {
		if passwordHash, err = service.HashPassword(cfg.LoginPassword); err != nil {
			return fmt.Errorf("ошибка хэширования пароля: %w", err)
		}
	}
	tokenSvc := service.NewTokenService(service.TokenConfig{
		Secret:       cfg.JWTSecret,
		Issuer:       cfg.JWTIssuer,
		TTL:          cfg.JWTTTL,
		User:         cfg.LoginUser,
		PasswordHash: passwordHash,
	}, logger)

	// 4. Фоновая сверка хранилища с каталогом
	reconcileSvc := service.NewReconcileService(service.ReconcileConfig{
		Interval: cfg.ReconcileInterval,
		Grace:    cfg.ReconcileGrace,
		Repair:   cfg.ReconcileRepair,
		Verify:   cfg.ReconcileVerify,
	}, repos.Objects, store, cipher, logger)
	reconcileSvc.Start(ctx)
	defer reconcileSvc.Stop()

	// 5. Rate limiting
	limiter, closeLimiter, checkers := newLimiter(cfg)
	defer func() {
		if err := closeLimiter(); err != nil {
			logger.Warn("Ошибка закрытия клиента Redis", slog.String("error", err.Error()))
		}
	}()
	checkers = append([]handlers.ReadinessChecker{
		database.NewReadinessChecker(pool),
		database.NewPingChecker("object_store", store),
	}, checkers...)

	// 6. topologymetrics — мониторинг зависимостей
	var deps handlers.DependencyHealth
	if cfg.DephealthEnabled {
		dephealthSvc, dhErr := service.NewDephealthService(service.DephealthConfig{
			ServiceID:     cfg.ServerID,
			Group:         cfg.DephealthGroup,
			DB:            stdlib.OpenDBFromPool(pool),
			PostgresURL:   cfg.DatabaseURL(),
			JWKSURL:       cfg.JWKSURL,
			CheckInterval: cfg.DephealthCheckInterval,
		}, logger)
		if dhErr == nil {
			dhErr = dephealthSvc.Start(ctx)
		}
		if dhErr != nil {
			logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
				slog.String("error", dhErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			deps = dephealthSvc
		}
	}

	// 7. JWT middleware
	jwtAuth, err := middleware.NewJWTAuth(middleware.JWTAuthConfig{
		Secret:          cfg.JWTSecret,
		JWKSURL:         cfg.JWKSURL,
		ClientTimeout:   cfg.HTTPReadTimeout,
		RefreshInterval: cfg.JWKSRefreshInterval,
		JWTLeeway:       cfg.JWTLeeway,
	}, logger)
	if err != nil {
		return fmt.Errorf("ошибка инициализации JWT: %w", err)
	}

	// 8. Handlers
	doc, err := openapi.Load(config.Version)
	if err != nil {
		return err
	}
	openapiHandler, err := handlers.NewOpenAPIHandler(doc)
	if err != nil {
		return err
	}
	errs := handlers.NewErrorWriter(cfg.DebugErrors, logger)

	router := server.NewRouter(logger, server.Handlers{
		Files: handlers.NewFilesHandler(
			uploadSvc, downloadSvc, querySvc, cfg.MaxFileSize, errs, logger,
		),
		Auth:        handlers.NewAuthHandler(tokenSvc, errs),
		Health:      handlers.NewHealthHandler(deps, checkers...),
		Maintenance: handlers.NewMaintenanceHandler(reconcileSvc, errs),
		OpenAPI:     openapiHandler,
	}, jwtAuth.Middleware(), middleware.NewRateLimiter(limiter, rateRules(cfg), logger))

	// 9. Запуск HTTP-сервера до сигнала завершения
	if err := server.New(cfg, logger, router).Run(ctx); err != nil {
		return err
	}

	logger.Info("File Vault остановлен")
	return nil
}

// newStore выбирает бэкенд хранилища объектов по FV_STORE_BACKEND.
func newStore(cfg *config.Config) (storage.Store, error) {
	if cfg.StoreBackend == config.StoreBackendS3 {
		return s3store.New(s3store.Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			UseSSL:    cfg.S3UseSSL,
		})
	}
	return filestore.New(cfg.DataDir)
}

// newLimiter выбирает хранилище счётчиков по FV_RATE_BACKEND.
// Для Redis добавляется необязательная проверка готовности;
// возвращаемый close закрывает клиента при остановке.
func newLimiter(cfg *config.Config) (ratelimit.Limiter, func() error, []handlers.ReadinessChecker) {
	if cfg.RateBackend != config.RateBackendRedis {
		return ratelimit.NewMemoryLimiter(), func() error { return nil }, nil
	}
	rdb := ratelimit.NewRedisClient(ratelimit.RedisConfig{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	})
	limiter := ratelimit.NewRedisLimiter(rdb)
	return limiter, rdb.Close, []handlers.ReadinessChecker{database.NewOptionalPingChecker("rate_limiter", limiter)}
}

func rateRules(cfg *config.Config) ratelimit.Rules {
	return ratelimit.NewRules(cfg.RateWindow,
		cfg.RateUpload, cfg.RateRead, cfg.RateUpdate, cfg.RateDelete, cfg.RateLogin)
}
