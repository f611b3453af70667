package gtfsnext

import (
	"fmt"
	"log/slog"
	"os"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Validate gates a converted store before it may go live: the file must
// exist and every required table must be present with at least one row.
// Any violation fails the whole run.
func Validate(storePath string) error {
	if _, err := os.Stat(storePath); err != nil {
		return fmt.Errorf("%w: store file missing: %v", ErrDatasetInvalid, err)
	}

	db, err := sqlite.OpenConn(storePath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	slog.Info("Validating " + storePath)

	existing := make(map[string]bool)
	err = sqlitex.Exec(db, "SELECT name FROM sqlite_master WHERE type = 'table'", func(stmt *sqlite.Stmt) error {
		existing[stmt.GetText("name")] = true
		return nil
	})
	if err != nil {
		return err
	}

	for _, table := range requiredTables {
		if !existing[table] {
			return fmt.Errorf("%w: missing required table %s", ErrDatasetInvalid, table)
		}
	}

	for _, table := range requiredTables {
		var count int64
		err = sqlitex.Exec(db, fmt.Sprintf("SELECT count(*) AS count FROM %s", table), func(stmt *sqlite.Stmt) error {
			count = stmt.GetInt64("count")
			return nil
		})
		if err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: table %s is empty", ErrDatasetInvalid, table)
		}
		slog.Debug(fmt.Sprintf("Table %s: %d rows", table, count))
	}

	slog.Info("Validation passed")
	return nil
}
