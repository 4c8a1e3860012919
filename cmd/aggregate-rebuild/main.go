package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"bitbucket.org/mmdatafocus/procurement_backend/models"
	"bitbucket.org/mmdatafocus/procurement_backend/workflow"
)

func main() {
	migrate := flag.Bool("migrate", false, "Run AutoMigrate before rebuilding")
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

	recomputed, err := workflow.RunAggregateRebuild(context.Background(), db, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "aggregate rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("projects recomputed: %d\n", recomputed)
}
