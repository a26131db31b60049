package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/workflow"
)

// outbox-publish ships committed bill_events rows to Pub/Sub (PUBSUB_PROJECT_ID,
// PUBSUB_TOPIC). Without -once it keeps polling until SIGTERM. -status only prints the
// row counts per publish status.
//
// Example:
//
//	go run ./cmd/outbox-publish/ -once -batch=200
//	go run ./cmd/outbox-publish/ -status
func main() {
	once := flag.Bool("once", false, "Drain due rows once and exit")
	batch := flag.Int("batch", 50, "Rows claimed per batch")
	maxAttempts := flag.Int("max-attempts", 20, "Attempts before a row is moved to DEAD")
	poll := flag.Duration("poll", 500*time.Millisecond, "Poll interval when running continuously")
	status := flag.Bool("status", false, "Print outbox counts per publish status and exit")
	flag.Parse()

	if !*status && strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")) == "" {
		fmt.Fprintln(os.Stderr, "PUBSUB_TOPIC is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *status {
		summary, err := models.GetOutboxStatus(ctx, db)
		if err != nil {
			fmt.Fprintln(os.Stderr, "outbox status:", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
		return
	}

	d := workflow.NewOutboxDispatcher(db, config.GetLogger())
	d.BatchSize = *batch
	d.MaxAttempts = *maxAttempts
	d.PollInterval = *poll

	if *once {
		sent := d.DispatchAll(ctx)
		fmt.Printf("published %d bill events\n", sent)
		return
	}
	d.Run(ctx)
}
