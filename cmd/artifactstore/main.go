// Точка входа хранилища артефактов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// создаёт объектное хранилище и сервисный слой, запускает фоновые задачи
// (reconciler, topologymetrics) и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/Hug0lvt/DriveOps-sub003/internal/api/handlers"
	"github.com/Hug0lvt/DriveOps-sub003/internal/api/middleware"
	"github.com/Hug0lvt/DriveOps-sub003/internal/config"
	"github.com/Hug0lvt/DriveOps-sub003/internal/database"
	"github.com/Hug0lvt/DriveOps-sub003/internal/repository"
	"github.com/Hug0lvt/DriveOps-sub003/internal/server"
	"github.com/Hug0lvt/DriveOps-sub003/internal/service"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/blobstore"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Artifact Store запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	if os.Getenv("AS_DEPHEALTH_GROUP") == "" {
		logger.Warn("AS_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Объектное хранилище с presigner'ом
	presigner, err := blobstore.NewPresigner([]byte(cfg.PresignSecret), cfg.ExternalURL)
	if err != nil {
		logger.Error("Ошибка создания presigner", slog.String("error", err.Error()))
		os.Exit(1)
	}
	store, err := blobstore.NewDiskStore(cfg.DataDir, presigner)
	if err != nil {
		logger.Error("Ошибка инициализации объектного хранилища",
			slog.String("data_dir", cfg.DataDir),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx, cfg.DefaultBucket); err != nil {
		logger.Error("Ошибка создания bucket'а по умолчанию", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 6. Repositories
	runner := repository.NewTxRunner(pool)
	artifactRepo := repository.NewArtifactRepository(pool)
	documentRepo := repository.NewDocumentVersionRepository(pool, runner)

	// 7. Services
	cache := service.NewMetadataCache(cfg.CacheSize, cfg.CacheTTL)
	artifactSvc := service.NewFileArtifactService(
		store, artifactRepo, cache, cfg.DefaultBucket, cfg.PresignTTL, logger)
	documentSvc := service.NewVersionedDocumentStore(documentRepo, logger)

	// 8. Reconciler — фоновая сверка object store и реестра метаданных
	reconciler := service.NewReconciler(
		store, artifactRepo,
		[]string{cfg.DefaultBucket},
		cfg.ReconcileSchedule,
		cfg.ReconcileGrace,
		logger,
	)
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Ошибка запуска reconciler'а", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer reconciler.Stop()

	// 9. Мониторинг зависимостей (topologymetrics)
	dephealthSvc, err := service.NewDephealthService(
		resolveDephealthName(cfg.DephealthName),
		cfg.DephealthGroup,
		cfg.DephealthDepName,
		pgDB,
		cfg.DatabaseDSN(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания dephealth", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := dephealthSvc.Start(ctx); err != nil {
		logger.Error("Ошибка запуска dephealth", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer dephealthSvc.Stop()

	// 10. API handlers
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	objectsHandler := handlers.NewObjectsHandler(store, presigner, logger)
	artifactsHandler := handlers.NewArtifactsHandler(artifactSvc, logger)
	documentsHandler := handlers.NewDocumentsHandler(documentSvc, logger)

	// 11. HTTP-сервер: metrics middleware первым, затем логирование
	srv := server.New(cfg, logger, healthHandler, objectsHandler, artifactsHandler, documentsHandler,
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка HTTP-сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
