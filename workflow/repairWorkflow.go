package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
)

// repairChunkSize bounds rows per transaction so a run over years of data
// never holds long locks. Each chunk commits independently; a crashed run
// resumes by simply running again, every job is idempotent.
const repairChunkSize = 200

// RepairRunSummary is what one full repair run did.
type RepairRunSummary struct {
	CorrelationId        string
	ProjectRefsResolved  int
	ProjectRefsUnknown   int
	CostsBackfilled      int
	LedgerRowsBackfilled int
	ProjectsRecomputed   int
	DiscrepanciesFlagged int
	StartedAt            time.Time
	FinishedAt           time.Time
}

// RunLedgerRepair runs the whole repair pipeline under a job lock:
// reference normalization, cost backfill, missing-row backfill, aggregate
// recomputation, then discrepancy checks against the repaired data.
func RunLedgerRepair(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (*RepairRunSummary, error) {
	lock, err := utils.ObtainJobLock(ctx, "ledger-repair", 30*time.Second, "workflow", "RunLedgerRepair")
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release(ctx) }()

	correlationId, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || correlationId == "" {
		correlationId = uuid.NewString()
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
	}

	summary := RepairRunSummary{
		CorrelationId: correlationId,
		StartedAt:     time.Now().UTC(),
	}

	// a long run must keep the lock alive across chunks
	refreshDone := make(chan struct{})
	defer close(refreshDone)
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-refreshDone:
				return
			case <-ticker.C:
				_ = lock.Refresh(ctx, 30*time.Second, nil)
			}
		}
	}()

	resolved, unknown, err := NormalizeProjectRefs(ctx, db, logger, correlationId)
	if err != nil {
		return &summary, err
	}
	summary.ProjectRefsResolved = resolved
	summary.ProjectRefsUnknown = unknown

	costs, err := BackfillUnitCosts(ctx, db, logger)
	if err != nil {
		return &summary, err
	}
	summary.CostsBackfilled = costs

	rows, err := BackfillMissingLedgerRows(ctx, db, logger, correlationId)
	if err != nil {
		return &summary, err
	}
	summary.LedgerRowsBackfilled = rows

	projects, err := RecomputeAllProjectAggregates(ctx, db, logger)
	if err != nil {
		return &summary, err
	}
	summary.ProjectsRecomputed = projects

	flagged, err := RunDiscrepancyChecks(ctx, db, logger, correlationId)
	if err != nil {
		return &summary, err
	}
	summary.DiscrepanciesFlagged = flagged

	summary.FinishedAt = time.Now().UTC()

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":               "workflow",
			"correlationId":        correlationId,
			"projectRefsResolved":  summary.ProjectRefsResolved,
			"projectRefsUnknown":   summary.ProjectRefsUnknown,
			"costsBackfilled":      summary.CostsBackfilled,
			"ledgerRowsBackfilled": summary.LedgerRowsBackfilled,
			"projectsRecomputed":   summary.ProjectsRecomputed,
			"discrepanciesFlagged": summary.DiscrepanciesFlagged,
			"elapsed":              summary.FinishedAt.Sub(summary.StartedAt).String(),
		}).Info("ledger repair run completed")
	}

	return &summary, nil
}

// RunAggregateRebuild recomputes project aggregates only, without touching
// ledger data. Shares the repair lock so the two never interleave.
func RunAggregateRebuild(ctx context.Context, db *gorm.DB, logger *logrus.Logger) (int, error) {
	lock, err := utils.ObtainJobLock(ctx, "ledger-repair", 30*time.Second, "workflow", "RunAggregateRebuild")
	if err != nil {
		return 0, err
	}
	defer func() { _ = lock.Release(ctx) }()

	projects, err := RecomputeAllProjectAggregates(ctx, db, logger)
	if err != nil {
		return projects, err
	}
	if logger != nil {
		logger.WithFields(logrus.Fields{
			"module":             "workflow",
			"projectsRecomputed": projects,
		}).Info("aggregate rebuild completed")
	}
	return projects, nil
}

func logRepairError(logger *logrus.Logger, funcName string, context string, data any, err error) {
	config.LogError(logger, "workflow", funcName, context, data, err)
}
