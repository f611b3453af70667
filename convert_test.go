package gtfsnext

import (
	"archive/zip"
	"errors"
	"fmt"
	"os"
	"testing"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertCreatesRequiredTables(t *testing.T) {
	outDir := testTempdir(t)
	zipPath := outDir + "/feed.zip"
	storePath := outDir + "/feed.sqlite"
	writeFeedZip(t, zipPath, sampleFeedFiles())

	require.NoError(t, Convert(zipPath, storePath))

	db := openTestStore(t, storePath)
	for _, table := range requiredTables {
		count := queryCount(t, db, fmt.Sprintf("SELECT count(*) AS count FROM %s", table))
		assert.Greater(t, count, int64(0), table)
	}
}

func TestConvertEmptyValuesAsNull(t *testing.T) {
	outDir := testTempdir(t)
	zipPath := outDir + "/feed.zip"
	storePath := outDir + "/feed.sqlite"
	writeFeedZip(t, zipPath, sampleFeedFiles())

	require.NoError(t, Convert(zipPath, storePath))

	db := openTestStore(t, storePath)
	count := queryCount(t, db, "SELECT count(*) AS count FROM routes WHERE route_desc IS NULL")
	assert.Equal(t, int64(2), count)
}

func TestConvertBuildsIndexes(t *testing.T) {
	outDir := testTempdir(t)
	zipPath := outDir + "/feed.zip"
	storePath := outDir + "/feed.sqlite"
	writeFeedZip(t, zipPath, sampleFeedFiles())

	require.NoError(t, Convert(zipPath, storePath))

	db := openTestStore(t, storePath)
	var indexes []string
	err := sqlitex.Exec(db, "SELECT name FROM sqlite_master WHERE type = 'index'", func(stmt *sqlite.Stmt) error {
		indexes = append(indexes, stmt.GetText("name"))
		return nil
	})
	require.NoError(t, err)

	assert.Contains(t, indexes, "idx_stop_times_stop_id")
	assert.Contains(t, indexes, "idx_trips_route_id")
	assert.Contains(t, indexes, "idx_calendar_dates_date")
	assert.Contains(t, indexes, "idx_stop_times_composite")
}

func TestConvertKeepsUnknownColumns(t *testing.T) {
	outDir := testTempdir(t)
	zipPath := outDir + "/feed.zip"
	storePath := outDir + "/feed.sqlite"

	files := sampleFeedFiles()
	files["stops.txt"] = "stop_id,stop_name,stop_lat,stop_lon,extra_column\n" +
		"s1,Central,55.6,13.0,hello\n"
	writeFeedZip(t, zipPath, files)

	require.NoError(t, Convert(zipPath, storePath))

	db := openTestStore(t, storePath)
	var got string
	err := sqlitex.Exec(db, "SELECT extra_column FROM stops WHERE stop_id = ?", func(stmt *sqlite.Stmt) error {
		got = stmt.GetText("extra_column")
		return nil
	}, "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestConvertReplacesPriorStore(t *testing.T) {
	outDir := testTempdir(t)
	zipPath := outDir + "/feed.zip"
	storePath := outDir + "/feed.sqlite"
	writeFeedZip(t, zipPath, sampleFeedFiles())

	require.NoError(t, os.WriteFile(storePath, []byte("not a database"), 0o644))
	require.NoError(t, Convert(zipPath, storePath))
	require.NoError(t, Validate(storePath))
}

func TestConvertMissingArchive(t *testing.T) {
	outDir := testTempdir(t)

	err := Convert(outDir+"/nope.zip", outDir+"/feed.sqlite")
	require.Error(t, err)

	var convErr *ConversionError
	assert.True(t, errors.As(err, &convErr))
}

// sampleFeedFiles is a minimal but complete feed: every required table
// has rows, and trips cover both directions of one route plus a second
// route for filter tests.
func sampleFeedFiles() map[string]string {
	return map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"a1,Skanetrafiken,https://www.skanetrafiken.se,Europe/Stockholm\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon,location_type,parent_station,wheelchair_boarding,platform_code\n" +
			"s1,Malmo C,55.609,13.000,0,,1,3\n" +
			"s2,Lund C,55.705,13.186,0,,1,1\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_desc,route_type\n" +
			"r1,a1,11,Malmo - Lund,,3\n" +
			"r2,a1,130,Malmo - Ystad,,3\n",
		"trips.txt": "route_id,service_id,trip_id,trip_headsign,direction_id\n" +
			"r1,wk,t1,Lund,1\n" +
			"r1,wk,t2,Lund,1\n" +
			"r1,wk,t3,Malmo,0\n" +
			"r2,wk,t4,Ystad,1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence,stop_headsign\n" +
			"t1,08:00:00,08:00:00,s1,1,Lund\n" +
			"t2,09:00:00,09:00:00,s1,1,Lund\n" +
			"t3,08:30:00,08:30:00,s1,1,Malmo\n" +
			"t4,08:45:00,08:45:00,s1,1,Ystad\n",
		"calendar_dates.txt": "service_id,date,exception_type\n" +
			"wk,20240115,1\n",
	}
}

func writeFeedZip(t *testing.T, path string, files map[string]string) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	w := zip.NewWriter(f)
	for name, contents := range files {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(contents))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())
}

func openTestStore(t *testing.T, path string) *sqlite.Conn {
	t.Helper()
	db, err := sqlite.OpenConn(path, sqlite.SQLITE_OPEN_READONLY)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func queryCount(t *testing.T, db *sqlite.Conn, query string) int64 {
	t.Helper()
	var count int64
	err := sqlitex.Exec(db, query, func(stmt *sqlite.Stmt) error {
		count = stmt.GetInt64("count")
		return nil
	})
	require.NoError(t, err)
	return count
}

func testTempdir(t *testing.T) string {
	dir, err := os.MkdirTemp("", "")
	require.NoError(t, err)
	t.Cleanup(func() {
		if t.Failed() {
			fmt.Println("Preserving tempdir after failed test", dir)
		} else {
			_ = os.RemoveAll(dir)
		}
	})
	return dir
}
