package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/utils"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
)

func main() {
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before repairing")
	exportPath := flag.String("export", "", "Optional: write the run's findings to an .xlsx file at this path")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	config.ConnectRedisWithRetry()
	logger := config.GetLogger()

	if *migrate {
		models.MigrateTable()
	}

	ctx := utils.SetCorrelationIdInContext(context.Background(), uuid.NewString())

	summary, err := workflow.RunLedgerRepair(ctx, db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger repair failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("correlation id:         %s\n", summary.CorrelationId)
	fmt.Printf("project refs resolved:  %d (unknown: %d)\n", summary.ProjectRefsResolved, summary.ProjectRefsUnknown)
	fmt.Printf("costs backfilled:       %d\n", summary.CostsBackfilled)
	fmt.Printf("ledger rows backfilled: %d\n", summary.LedgerRowsBackfilled)
	fmt.Printf("projects recomputed:    %d\n", summary.ProjectsRecomputed)
	fmt.Printf("discrepancies flagged:  %d\n", summary.DiscrepanciesFlagged)

	if strings.TrimSpace(*exportPath) != "" {
		if err := workflow.ExportDiscrepancyReportExcel(ctx, summary.CorrelationId, *exportPath); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("report exported to %s\n", *exportPath)
	}
}
