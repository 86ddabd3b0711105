// reconcile.go — фоновая сверка объектного хранилища с реестром метаданных.
//
// Reconciler закрывает два режима рассинхронизации, которые допускает
// best-effort saga:
//  1. Orphan-объекты: байты записаны, метаданные — нет (упавшая загрузка)
//  2. Остатки удаления: метаданные soft-deleted, объект физически остался
//
// Запускается по cron-расписанию (AS_RECONCILE_SCHEDULE).
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"github.com/Hug0lvt/DriveOps-sub003/internal/repository"
	"github.com/Hug0lvt/DriveOps-sub003/internal/storage/blobstore"
)

// Prometheus метрики reconciler'а
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_runs_total",
		Help: "Общее количество запусков сверки хранилищ",
	})

	reconcileOrphansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_orphans_total",
		Help: "Общее количество обнаруженных orphan-объектов",
	})

	reconcileDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_reconcile_objects_deleted_total",
		Help: "Общее количество объектов, удалённых сверкой",
	})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "as_reconcile_duration_seconds",
		Help:    "Длительность выполнения сверки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReconcileResult — результат одного запуска сверки.
type ReconcileResult struct {
	// Scanned — количество просмотренных объектов
	Scanned int
	// Orphans — количество обнаруженных orphan-объектов
	Orphans int
	// Deleted — количество физически удалённых объектов
	Deleted int
	// Errors — количество ошибок при обработке объектов
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Reconciler — сервис фоновой сверки двух backend'ов.
type Reconciler struct {
	store    *blobstore.DiskStore
	repo     repository.ArtifactRepository
	buckets  []string
	schedule string
	// grace — минимальный возраст объекта, после которого orphan
	// удаляется. Защищает загрузки, находящиеся в полёте.
	grace  time.Duration
	logger *slog.Logger

	cron *cron.Cron
	mu   sync.Mutex // защита от параллельного запуска RunOnce
	now  func() time.Time
}

// NewReconciler создаёт сервис сверки для перечисленных bucket'ов.
func NewReconciler(
	store *blobstore.DiskStore,
	repo repository.ArtifactRepository,
	buckets []string,
	schedule string,
	grace time.Duration,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		store:    store,
		repo:     repo,
		buckets:  buckets,
		schedule: schedule,
		grace:    grace,
		logger:   logger.With(slog.String("component", "reconciler")),
		now:      time.Now,
	}
}

// Start регистрирует cron-задачу и запускает планировщик.
// Вызывается один раз при старте приложения.
func (r *Reconciler) Start(ctx context.Context) error {
	r.cron = cron.New()
	_, err := r.cron.AddFunc(r.schedule, func() {
		r.RunOnce(ctx)
	})
	if err != nil {
		return err
	}
	r.cron.Start()

	r.logger.Info("Reconciler запущен",
		slog.String("schedule", r.schedule),
		slog.Duration("grace", r.grace),
	)
	return nil
}

// Stop останавливает планировщик и дожидается завершения текущего запуска.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
	r.logger.Info("Reconciler остановлен")
}

// RunOnce выполняет один цикл сверки по всем bucket'ам.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
//
// Для каждого объекта:
//   - метаданных нет вовсе → orphan; удаляется, если объект старше grace
//   - метаданные soft-deleted → остаток удаления; удаляется сразу
//   - метаданные live → объект корректен, не трогаем
func (r *Reconciler) RunOnce(ctx context.Context) *ReconcileResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := &ReconcileResult{}

	r.logger.Debug("Сверка начата")

	for _, bucket := range r.buckets {
		r.reconcileBucket(ctx, bucket, result)
	}

	result.Duration = time.Since(start)

	reconcileRunsTotal.Inc()
	reconcileOrphansTotal.Add(float64(result.Orphans))
	reconcileDeletedTotal.Add(float64(result.Deleted))
	reconcileDurationSeconds.Observe(result.Duration.Seconds())

	r.logger.Info("Сверка завершена",
		slog.Int("scanned", result.Scanned),
		slog.Int("orphans", result.Orphans),
		slog.Int("deleted", result.Deleted),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// reconcileBucket обходит объекты одного bucket'а.
func (r *Reconciler) reconcileBucket(ctx context.Context, bucket string, result *ReconcileResult) {
	cutoff := r.now().UTC().Add(-r.grace)

	err := r.store.Walk(ctx, bucket, func(info *blobstore.ObjectInfo) error {
		result.Scanned++

		artifact, err := r.repo.GetByLocation(ctx, info.Bucket, info.Key)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			// Orphan: объект без записи в реестре
			result.Orphans++
			if info.ModTime.After(cutoff) {
				// Возможно, загрузка ещё в полёте — оставляем до следующего цикла
				r.logger.Debug("Orphan моложе grace-периода, пропущен",
					slog.String("bucket", info.Bucket),
					slog.String("key", info.Key),
				)
				return nil
			}
			r.deleteObject(ctx, info, result, "orphan")
			return nil

		case err != nil:
			result.Errors++
			r.logger.Error("Сверка: ошибка чтения реестра",
				slog.String("bucket", info.Bucket),
				slog.String("key", info.Key),
				slog.String("error", err.Error()),
			)
			return nil

		case artifact.Deleted:
			// Остаток удаления: метаданные soft-deleted, объект остался
			r.deleteObject(ctx, info, result, "leftover")
			return nil

		default:
			return nil
		}
	})
	if err != nil {
		result.Errors++
		r.logger.Error("Сверка: ошибка обхода bucket'а",
			slog.String("bucket", bucket),
			slog.String("error", err.Error()),
		)
	}
}

// deleteObject физически удаляет объект и логирует причину.
func (r *Reconciler) deleteObject(ctx context.Context, info *blobstore.ObjectInfo, result *ReconcileResult, reason string) {
	if err := r.store.Delete(ctx, info.Bucket, info.Key); err != nil {
		result.Errors++
		r.logger.Error("Сверка: ошибка удаления объекта",
			slog.String("bucket", info.Bucket),
			slog.String("key", info.Key),
			slog.String("error", err.Error()),
		)
		return
	}
	result.Deleted++
	r.logger.Info("Сверка: объект удалён",
		slog.String("bucket", info.Bucket),
		slog.String("key", info.Key),
		slog.String("reason", reason),
	)
}
