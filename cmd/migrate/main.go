package main

import (
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/billing_backend/config"
	"bitbucket.org/mmdatafocus/billing_backend/models"
)

// migrate runs AutoMigrate for every billing table. Run it as a job before rolling out
// a release with SKIP_MIGRATIONS=true on the service.
//
// Example:
//
//	go run ./cmd/migrate/
func main() {
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if err := models.AutoMigrate(db); err != nil {
		fmt.Fprintln(os.Stderr, "migration failed:", err)
		os.Exit(1)
	}
	fmt.Printf("migrated (driver=%s)\n", config.GetDBDriver())
}
