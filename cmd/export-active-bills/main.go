package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/models/reports"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
	"bitbucket.org/mmdatafocus/billing_backend/workflow"
)

// export-active-bills writes every non-cancelled bill with its items to an xlsx file,
// and optionally uploads it to GCS_BUCKET.
//
// Example:
//
//	go run ./cmd/export-active-bills/ -out=active_bills.xlsx -upload
func main() {
	out := flag.String("out", "", "Output file (default active_bills_<timestamp>.xlsx)")
	upload := flag.Bool("upload", false, "Upload the workbook to GCS_BUCKET as well")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	ctx := context.Background()
	engine := workflow.NewBillEngine(models.NewGormStore(db), workflow.WithLocker(nil))
	bills, err := engine.ActiveBillsWithItems(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading bills:", err)
		os.Exit(1)
	}
	data, err := reports.ActiveBillsXlsx(bills)
	if err != nil {
		fmt.Fprintln(os.Stderr, "building workbook:", err)
		os.Exit(1)
	}

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("active_bills_%s.xlsx", time.Now().Format("20060102_150405"))
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "writing file:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bills to %s\n", len(bills), filename)

	if *upload {
		if !utils.GCSEnabled() {
			fmt.Fprintln(os.Stderr, "GCS_BUCKET is required for -upload")
			os.Exit(1)
		}
		uri, err := utils.UploadBytesToGCS(ctx, "exports/"+filepath.Base(filename), data, reports.ExcelContentType)
		if err != nil {
			fmt.Fprintln(os.Stderr, "upload failed:", err)
			os.Exit(1)
		}
		fmt.Println("uploaded", uri)
	}
}
