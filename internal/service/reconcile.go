// reconcile.go — сверка хранилища объектов с каталогом (таблица objects).
//
// Обнаруживает:
//   - orphaned_object: байты в хранилище без записи objects (старше grace)
//   - missing_object: запись objects без байтов в хранилище
//   - hash_mismatch: байты не расшифровываются или хэш не совпадает (verify)
//   - refcount_mismatch: ref_count расходится с числом записей files
//
// В режиме repair осиротевшие объекты удаляются. Остальные проблемы
// только фиксируются: их исправление требует решения оператора.
//
// Запускается по запросу (POST /maintenance/reconcile) и, если задан
// FV_RECONCILE_INTERVAL, фоновой горутиной с тикером.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/filevault/internal/codec"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

// Типы проблем сверки.
const (
	IssueOrphanedObject   = "orphaned_object"
	IssueMissingObject    = "missing_object"
	IssueHashMismatch     = "hash_mismatch"
	IssueRefCountMismatch = "refcount_mismatch"
)

// Prometheus метрики сверки
var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_reconcile_runs_total",
		Help: "Общее количество запусков сверки",
	})

	reconcileIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fv_reconcile_issues_total",
		Help: "Общее количество проблем, обнаруженных сверкой",
	}, []string{"type"})

	reconcileRepairedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_reconcile_repaired_total",
		Help: "Общее количество осиротевших объектов, удалённых сверкой",
	})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fv_reconcile_duration_seconds",
		Help:    "Длительность сверки в секундах",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	})
)

// ObjectAuditor — чтение объектов каталога для сверки (repository.ObjectRepository).
type ObjectAuditor interface {
	Audit(ctx context.Context) ([]*model.ObjectAudit, error)
}

// ReconcileConfig — параметры сверки.
type ReconcileConfig struct {
	// Interval — период фоновой сверки (0 — фоновая сверка выключена)
	Interval time.Duration
	// Grace — объекты моложе этого возраста не считаются осиротевшими:
	// загрузка записывает байты раньше, чем регистрирует объект.
	Grace time.Duration
	// Repair — удалять осиротевшие объекты
	Repair bool
	// Verify — расшифровывать каждый объект и сверять хэш
	Verify bool
}

// ReconcileIssue — обнаруженная проблема.
type ReconcileIssue struct {
	Type        string `json:"type"`
	Path        string `json:"path"`
	ContentHash string `json:"content_hash,omitempty"`
	Description string `json:"description"`
	Repaired    bool   `json:"repaired,omitempty"`
}

// ReconcileSummary — сводка по типам проблем.
type ReconcileSummary struct {
	OK                 int `json:"ok"`
	OrphanedObjects    int `json:"orphaned_objects"`
	MissingObjects     int `json:"missing_objects"`
	HashMismatches     int `json:"hash_mismatches"`
	RefCountMismatches int `json:"refcount_mismatches"`
	Repaired           int `json:"repaired"`
}

// ReconcileReport — результат одного прогона.
type ReconcileReport struct {
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	ObjectsChecked int              `json:"objects_checked"`
	Issues         []ReconcileIssue `json:"issues"`
	Summary        ReconcileSummary `json:"summary"`
}

// ReconcileService — сервис сверки хранилища с каталогом.
type ReconcileService struct {
	cfg     ReconcileConfig
	objects ObjectAuditor
	store   storage.Store
	cipher  *codec.Cipher
	logger  *slog.Logger
	now     func() time.Time

	mu        sync.Mutex // защита от параллельного запуска
	inProcess bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReconcileService создаёт сервис сверки.
func NewReconcileService(
	cfg ReconcileConfig,
	objects ObjectAuditor,
	store storage.Store,
	cipher *codec.Cipher,
	logger *slog.Logger,
) *ReconcileService {
	return &ReconcileService{
		cfg:     cfg,
		objects: objects,
		store:   store,
		cipher:  cipher,
		logger:  logger.With(slog.String("component", "reconcile")),
		now:     time.Now,
	}
}

// Start запускает фоновую сверку, если задан интервал.
func (rs *ReconcileService) Start(ctx context.Context) {
	if rs.cfg.Interval <= 0 {
		rs.logger.Info("Фоновая сверка выключена")
		return
	}

	rsCtx, cancel := context.WithCancel(ctx)
	rs.cancel = cancel
	rs.done = make(chan struct{})

	go rs.run(rsCtx)

	rs.logger.Info("Фоновая сверка запущена",
		slog.String("interval", rs.cfg.Interval.String()),
		slog.Bool("repair", rs.cfg.Repair),
	)
}

// Stop останавливает фоновую сверку и ждёт завершения текущего прогона.
func (rs *ReconcileService) Stop() {
	if rs.cancel == nil {
		return
	}
	rs.cancel()
	<-rs.done
	rs.logger.Info("Фоновая сверка остановлена")
}

// IsInProgress возвращает true, если сверка выполняется.
func (rs *ReconcileService) IsInProgress() bool {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.inProcess
}

func (rs *ReconcileService) run(ctx context.Context) {
	defer close(rs.done)

	ticker := time.NewTicker(rs.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := rs.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				rs.logger.Error("Ошибка фоновой сверки", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce выполняет один прогон сверки.
// Если сверка уже выполняется, возвращает nil, true, nil.
func (rs *ReconcileService) RunOnce(ctx context.Context) (*ReconcileReport, bool, error) {
	rs.mu.Lock()
	if rs.inProcess {
		rs.mu.Unlock()
		rs.logger.Warn("Сверка уже выполняется, пропуск")
		return nil, true, nil
	}
	rs.inProcess = true
	rs.mu.Unlock()

	defer func() {
		rs.mu.Lock()
		rs.inProcess = false
		rs.mu.Unlock()
	}()

	report := &ReconcileReport{StartedAt: rs.now().UTC(), Issues: []ReconcileIssue{}}
	rs.logger.Info("Сверка начата")

	if err := rs.reconcile(ctx, report); err != nil {
		return nil, false, err
	}

	report.CompletedAt = rs.now().UTC()
	summarize(report)

	reconcileRunsTotal.Inc()
	reconcileDurationSeconds.Observe(report.CompletedAt.Sub(report.StartedAt).Seconds())
	reconcileRepairedTotal.Add(float64(report.Summary.Repaired))
	for _, issue := range report.Issues {
		reconcileIssuesTotal.WithLabelValues(issue.Type).Inc()
	}

	rs.logger.Info("Сверка завершена",
		slog.Int("objects_checked", report.ObjectsChecked),
		slog.Int("issues", len(report.Issues)),
		slog.Int("repaired", report.Summary.Repaired),
		slog.Duration("duration", report.CompletedAt.Sub(report.StartedAt)),
	)
	return report, false, nil
}

// reconcile заполняет report.Issues и report.ObjectsChecked.
func (rs *ReconcileService) reconcile(ctx context.Context, report *ReconcileReport) error {
	audit, err := rs.objects.Audit(ctx)
	if err != nil {
		return newError(ErrCatalog, "Failed to read objects", fmt.Errorf("ошибка чтения объектов каталога: %w", err))
	}
	report.ObjectsChecked = len(audit)

	known := make(map[string]bool, len(audit))
	for _, obj := range audit {
		known[obj.StoragePath] = true
	}

	// Байты в хранилище. Без Lister присутствие проверяется чтением.
	var stored map[string]bool
	if lister, ok := rs.store.(storage.Lister); ok {
		stored = make(map[string]bool)
		cutoff := rs.now().Add(-rs.cfg.Grace)
		err := lister.List(ctx, func(info storage.ObjectInfo) error {
			stored[info.Path] = true
			if known[info.Path] || info.ModTime.After(cutoff) {
				return nil
			}
			report.Issues = append(report.Issues, rs.orphan(ctx, info.Path))
			return nil
		})
		if err != nil {
			return fmt.Errorf("ошибка обхода хранилища: %w", err)
		}
	} else {
		rs.logger.Debug("Хранилище не поддерживает перечисление, поиск осиротевших объектов пропущен")
	}

	for _, obj := range audit {
		if err := ctx.Err(); err != nil {
			return err
		}
		if issue, ok := rs.checkObject(ctx, obj, stored); ok {
			report.Issues = append(report.Issues, issue)
		}
		if obj.RefCount != obj.FileRefs {
			report.Issues = append(report.Issues, ReconcileIssue{
				Type:        IssueRefCountMismatch,
				Path:        obj.StoragePath,
				ContentHash: obj.ContentHash,
				Description: fmt.Sprintf("ref_count=%d, записей files=%d", obj.RefCount, obj.FileRefs),
			})
		}
	}
	return nil
}

// orphan оформляет осиротевший объект и, в режиме repair, удаляет его.
func (rs *ReconcileService) orphan(ctx context.Context, path string) ReconcileIssue {
	issue := ReconcileIssue{
		Type:        IssueOrphanedObject,
		Path:        path,
		Description: "Объект в хранилище без записи в каталоге",
	}
	if !rs.cfg.Repair {
		return issue
	}

	if err := rs.store.Delete(ctx, path); err != nil {
		rs.logger.Warn("Не удалось удалить осиротевший объект",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return issue
	}
	rs.logger.Info("Осиротевший объект удалён", slog.String("path", path))
	issue.Repaired = true
	return issue
}

// checkObject проверяет наличие и, при verify, целостность байтов объекта.
// stored == nil — хранилище не перечисляется, наличие проверяется чтением.
func (rs *ReconcileService) checkObject(
	ctx context.Context, obj *model.ObjectAudit, stored map[string]bool,
) (ReconcileIssue, bool) {
	missing := ReconcileIssue{
		Type:        IssueMissingObject,
		Path:        obj.StoragePath,
		ContentHash: obj.ContentHash,
		Description: "Запись каталога без байтов в хранилище",
	}

	if stored != nil && !stored[obj.StoragePath] {
		return missing, true
	}
	if stored != nil && !rs.cfg.Verify {
		return ReconcileIssue{}, false
	}

	data, err := rs.store.Get(ctx, obj.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return missing, true
		}
		rs.logger.Warn("Ошибка чтения объекта при сверке",
			slog.String("path", obj.StoragePath),
			slog.String("error", err.Error()),
		)
		return ReconcileIssue{}, false
	}
	if !rs.cfg.Verify {
		return ReconcileIssue{}, false
	}

	plaintext, err := rs.cipher.Decrypt(data)
	if err != nil {
		return ReconcileIssue{
			Type:        IssueHashMismatch,
			Path:        obj.StoragePath,
			ContentHash: obj.ContentHash,
			Description: "Объект не расшифровывается",
		}, true
	}
	if codec.Hash(plaintext) != obj.ContentHash {
		return ReconcileIssue{
			Type:        IssueHashMismatch,
			Path:        obj.StoragePath,
			ContentHash: obj.ContentHash,
			Description: "Хэш расшифрованного содержимого не совпадает с каталогом",
		}, true
	}
	return ReconcileIssue{}, false
}

// summarize считает сводку по списку проблем.
func summarize(report *ReconcileReport) {
	s := &report.Summary
	broken := make(map[string]bool)
	for _, issue := range report.Issues {
		switch issue.Type {
		case IssueOrphanedObject:
			s.OrphanedObjects++
			if issue.Repaired {
				s.Repaired++
			}
			continue
		case IssueMissingObject:
			s.MissingObjects++
		case IssueHashMismatch:
			s.HashMismatches++
		case IssueRefCountMismatch:
			s.RefCountMismatches++
		}
		broken[issue.Path] = true
	}
	s.OK = max(report.ObjectsChecked-len(broken), 0)
}
