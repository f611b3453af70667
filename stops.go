package gtfsnext

import (
	"strconv"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Route is one route serving a stop, carrying its agency and the headsign
// trips display there. Distinct direction/headsign combinations are
// distinct Routes.
type Route struct {
	ID          string
	ShortName   string
	LongName    string
	Description string
	Type        int
	Direction   int
	AgencyID    string
	AgencyName  string
	AgencyURL   string
	Headsign    string
}

// Stop is a stop with the full set of routes serving it. The route set is
// derived by joining stop_times, trips, routes and agency; it is computed
// per call, never stored.
type Stop struct {
	ID                 string
	Name               string
	Lat                float64
	Lon                float64
	LocationType       int
	ParentStation      string
	Timezone           string
	WheelchairBoarding int
	PlatformCode       string
	Routes             []Route
}

// Grouping by the full attribute tuple collapses trips that contribute an
// identical route/direction/headsign combination into one row while
// keeping genuinely distinct combinations apart.
const resolveStopQuery = `
SELECT
	s.stop_id AS stop_id,
	s.stop_name AS stop_name,
	s.stop_lat AS stop_lat,
	s.stop_lon AS stop_lon,
	s.location_type AS location_type,
	s.parent_station AS parent_station,
	s.wheelchair_boarding AS wheelchair_boarding,
	s.platform_code AS platform_code,
	r.route_id AS route_id,
	r.agency_id AS agency_id,
	a.agency_name AS agency_name,
	a.agency_url AS agency_url,
	a.agency_timezone AS agency_timezone,
	r.route_short_name AS route_short_name,
	r.route_long_name AS route_long_name,
	r.route_desc AS route_desc,
	r.route_type AS route_type,
	t.direction_id AS direction_id,
	st.stop_headsign AS stop_headsign
FROM stops s
INNER JOIN stop_times st ON st.stop_id = s.stop_id
INNER JOIN trips t ON st.trip_id = t.trip_id
INNER JOIN routes r ON t.route_id = r.route_id
INNER JOIN agency a ON r.agency_id = a.agency_id
WHERE s.stop_id = ?
GROUP BY
	s.stop_id, s.stop_name, s.stop_lat, s.stop_lon, s.location_type,
	s.parent_station, s.wheelchair_boarding, s.platform_code,
	r.route_id, r.agency_id, a.agency_name, a.agency_url, a.agency_timezone,
	r.route_short_name, r.route_long_name, r.route_desc, r.route_type,
	t.direction_id, st.stop_headsign
`

// ResolveStop aggregates everything serving a stop. Returns nil (and no
// error) when the stop id is unknown.
func ResolveStop(storePath string, stopID string) (*Stop, error) {
	db, err := sqlite.OpenConn(storePath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var stop *Stop
	err = sqlitex.Exec(db, resolveStopQuery, func(stmt *sqlite.Stmt) error {
		if stop == nil {
			lat, _ := strconv.ParseFloat(stmt.GetText("stop_lat"), 64)
			lon, _ := strconv.ParseFloat(stmt.GetText("stop_lon"), 64)
			stop = &Stop{
				ID:                 stmt.GetText("stop_id"),
				Name:               stmt.GetText("stop_name"),
				Lat:                lat,
				Lon:                lon,
				LocationType:       textInt(stmt, "location_type"),
				ParentStation:      stmt.GetText("parent_station"),
				Timezone:           stmt.GetText("agency_timezone"),
				WheelchairBoarding: textInt(stmt, "wheelchair_boarding"),
				PlatformCode:       stmt.GetText("platform_code"),
			}
		}
		stop.Routes = append(stop.Routes, Route{
			ID:          stmt.GetText("route_id"),
			ShortName:   stmt.GetText("route_short_name"),
			LongName:    stmt.GetText("route_long_name"),
			Description: stmt.GetText("route_desc"),
			Type:        textInt(stmt, "route_type"),
			Direction:   textInt(stmt, "direction_id"),
			AgencyID:    stmt.GetText("agency_id"),
			AgencyName:  stmt.GetText("agency_name"),
			AgencyURL:   stmt.GetText("agency_url"),
			Headsign:    stmt.GetText("stop_headsign"),
		})
		return nil
	}, stopID)
	if err != nil {
		return nil, err
	}
	return stop, nil
}

func textInt(stmt *sqlite.Stmt, column string) int {
	n, _ := strconv.Atoi(stmt.GetText(column))
	return n
}

// ResolveStop aggregates routes for a stop against the live store.
func (m *Manager) ResolveStop(stopID string) (*Stop, error) {
	return ResolveStop(m.storePath, stopID)
}
