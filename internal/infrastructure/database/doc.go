// Package database provides SQLite connectivity for Guard Imoto Core.
//
// This package manages:
//   - Database connection with WAL mode and foreign keys enabled
//   - Embedded schema migrations registered by the migrations package
//   - A transaction helper used by multi-table writes
//   - The fixed-width UTC timestamp format every table stores
//
// Security Considerations:
//   - All queries use parameterised statements
//   - Database file permissions are set to 0600
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
package database
