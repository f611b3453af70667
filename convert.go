package gtfsnext

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

var convertPragmas = map[string]string{
	"synchronous": "OFF",
}

func sqlitexNoop(stmt *sqlite.Stmt) error { return nil }

// Convert materializes a GTFS zip archive into a relational store at
// outputPath, one table per GTFS file, then builds the secondary indexes
// the query engine relies on. Any prior file at outputPath is replaced.
//
// This is by far the most expensive phase of a run; callers that need to
// stay responsive should run it off their hot path (see Manager).
func Convert(archivePath string, outputPath string) error {
	if err := convert(archivePath, outputPath); err != nil {
		return &ConversionError{Err: err}
	}
	return nil
}

func convert(archivePath string, outputPath string) error {
	slog.Info(fmt.Sprintf("Converting %s to %s", archivePath, outputPath))

	archive, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = archive.Close() }()

	err = os.Remove(outputPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	db, err := sqlite.OpenConn(outputPath, 0)
	if err != nil {
		return err
	}
	defer func() {
		if db != nil {
			_ = db.Close()
		}
	}()

	for pragma, value := range convertPragmas {
		err = sqlitex.Exec(db, "PRAGMA "+pragma+" = "+value, sqlitexNoop)
		if err != nil {
			return err
		}
	}

	for table, columns := range gtfsSchema {
		if err := createTable(db, table, columns); err != nil {
			return err
		}
	}

	for _, entry := range archive.File {
		err = convertFileIn(archive, db, entry.Name)
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name, err)
		}
	}

	createIndexes(db)

	err = db.Close()
	db = nil
	if err != nil {
		return err
	}

	slog.Info(fmt.Sprintf("Wrote %s", outputPath))
	return nil
}

func createTable(db *sqlite.Conn, table string, columns []string) error {
	var columnFragments []string
	for _, column := range columns {
		columnFragments = append(columnFragments, column+" TEXT")
	}
	query := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(columnFragments, ", "))
	return sqlitex.ExecTransient(db, query, sqlitexNoop)
}

func convertFileIn(archive *zip.ReadCloser, db *sqlite.Conn, filename string) error {
	if !strings.HasSuffix(filename, ".txt") {
		slog.Info("Skipping non-tabular file " + filename)
		return nil
	}

	input, err := archive.Open(filename)
	if err != nil {
		return err
	}
	defer func() { _ = input.Close() }()

	inputCSV := csv.NewReader(input)
	table := strings.TrimSuffix(filename, ".txt")

	// Header

	header, err := inputCSV.Read()
	if err != nil {
		return err
	}
	slog.Info(fmt.Sprintf("Converting %s: %s", filename, strings.Join(header, ",")))

	var unknownColumns []string
	for _, column := range header {
		if !slices.Contains(gtfsSchema[table], column) {
			unknownColumns = append(unknownColumns, column)
		}
	}
	_, hasTable := gtfsSchema[table]
	for _, column := range unknownColumns {
		columnFragment := column + " TEXT"

		var query string
		if hasTable {
			query = fmt.Sprintf("ALTER TABLE %s ADD %s", table, columnFragment)
		} else {
			query = fmt.Sprintf("CREATE TABLE %s (%s)", table, columnFragment)
			hasTable = true
		}

		if err := sqlitex.ExecTransient(db, query, sqlitexNoop); err != nil {
			return err
		}
	}

	var argFragments []string
	for i := range header {
		argFragments = append(argFragments, fmt.Sprintf("?%d", i+1))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(header, ", "), strings.Join(argFragments, ", "))
	insertStmt, err := db.Prepare(query)
	if err != nil {
		return err
	}

	// Rows

	inputCSV.FieldsPerRecord = -1 // Allow variable numbers of fields

	rowCount := 0
	for {
		row, err := inputCSV.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return err
		}

		err = insertStmt.Reset()
		if err != nil {
			return err
		}
		err = insertStmt.ClearBindings()
		if err != nil {
			return err
		}

		for i, v := range row {
			param := i + 1
			if v == "" {
				insertStmt.BindNull(param)
			} else {
				insertStmt.BindText(param, v)
			}
		}

		for {
			rowReturned, err := insertStmt.Step()
			if err != nil {
				return err
			}
			if !rowReturned {
				break
			}
		}

		rowCount++
	}
	slog.Info(fmt.Sprintf("Wrote %d rows to %s", rowCount, table))

	return nil
}

// createIndexes builds the secondary indexes. A failed index is logged
// and skipped: the store stays correct without it, just slower.
func createIndexes(db *sqlite.Conn) {
	for _, query := range storeIndexes {
		if err := sqlitex.ExecTransient(db, query, sqlitexNoop); err != nil {
			slog.Warn(fmt.Sprintf("Failed to create index, continuing: %v", err))
		}
	}
	slog.Info(fmt.Sprintf("Created %d indexes", len(storeIndexes)))
}
