// maintenance.go — обработчик POST /maintenance/reconcile.
// Делегирует сверку хранилища с каталогом в ReconcileService.
package handlers

import (
	"context"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

// ReconcileRunner — запуск сверки (service.ReconcileService).
type ReconcileRunner interface {
	// RunOnce выполняет один прогон. Второе значение — сверка уже выполняется.
	RunOnce(ctx context.Context) (*service.ReconcileReport, bool, error)
}

// MaintenanceHandler — обработчик endpoints обслуживания.
type MaintenanceHandler struct {
	reconciler ReconcileRunner
	errs       *ErrorWriter
}

// NewMaintenanceHandler создаёт обработчик maintenance endpoints.
func NewMaintenanceHandler(reconciler ReconcileRunner, errs *ErrorWriter) *MaintenanceHandler {
	return &MaintenanceHandler{reconciler: reconciler, errs: errs}
}

// Reconcile обрабатывает POST /maintenance/reconcile.
// Сверка синхронная; если она уже выполняется — 409 RECONCILE_IN_PROGRESS.
func (h *MaintenanceHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, inProgress, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	if inProgress {
		apierrors.ReconcileInProgress(w, "Reconciliation is already in progress")
		return
	}
	writeJSON(w, http.StatusOK, report)
}
