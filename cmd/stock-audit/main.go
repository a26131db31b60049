package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
)

// stock-audit checks that product quantities agree with the stock movement trail and
// with the bills currently holding reservations. Exits 2 when anything disagrees.
//
// Example:
//
//	go run ./cmd/stock-audit/ -json
func main() {
	asJSON := flag.Bool("json", false, "Print discrepancies as JSON")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	discrepancies, err := models.RunStockAudit(context.Background(), db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "audit failed:", err)
		os.Exit(1)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(discrepancies)
	} else {
		for _, d := range discrepancies {
			fmt.Printf("product_id=%d check=%s expected=%d actual=%d\n", d.ProductId, d.Check, d.Expected, d.Actual)
		}
		fmt.Printf("%d discrepancies\n", len(discrepancies))
	}
	if len(discrepancies) > 0 {
		os.Exit(2)
	}
}
