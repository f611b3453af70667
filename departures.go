package gtfsnext

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
)

// Departure is one resolved upcoming departure. Ephemeral: produced per
// query, never persisted.
type Departure struct {
	At       time.Time // absolute departure instant
	Time     string    // time-of-day component, HH:MM:SS
	Headsign string
}

// feedDate is the calendar-date encoding used in calendar_dates.
const feedDate = "20060102"

// NextDepartures resolves the next limit departures from a stop on a
// route, strictly after now.
//
// GTFS encodes post-midnight departures as times past 24:00:00 attributed
// to the previous service day, so a single wall-clock moment can be
// covered by up to three service dates. The engine evaluates yesterday,
// today and tomorrow as service dates, resolves every active trip's true
// departure instant, and takes the earliest limit of those after now.
//
// The contract is all-or-nothing: when fewer than limit qualifying
// departures exist the result is empty, not partial.
func NextDepartures(storePath string, stopID string, routeID string, direction int, limit int, now time.Time) ([]Departure, error) {
	db, err := sqlite.OpenConn(storePath, sqlite.SQLITE_OPEN_READONLY)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	var candidates []Departure
	seen := make(map[string]bool)

	for _, window := range []int{-1, 0, 1} {
		serviceDate := now.AddDate(0, 0, window)
		departures, err := departuresOn(db, stopID, routeID, direction, serviceDate)
		if err != nil {
			return nil, err
		}
		for _, d := range departures {
			key := d.At.Format(time.RFC3339) + "\x00" + d.Headsign
			if seen[key] {
				continue
			}
			seen[key] = true
			candidates = append(candidates, d)
		}
	}

	var upcoming []Departure
	for _, d := range candidates {
		if d.At.After(now) {
			upcoming = append(upcoming, d)
		}
	}
	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].At.Before(upcoming[j].At) })

	if len(upcoming) < limit {
		return nil, nil
	}
	return upcoming[:limit], nil
}

const departuresQuery = `
SELECT st.departure_time AS departure_time, st.stop_headsign AS stop_headsign
FROM trips t
INNER JOIN stop_times st ON st.trip_id = t.trip_id
WHERE t.route_id = ?
  AND st.stop_id = ?
  AND t.direction_id = ?
  AND st.departure_time IS NOT NULL
  AND t.service_id IN (SELECT service_id FROM calendar_dates WHERE date = ?)
`

// departuresOn lists departures of trips whose service runs on
// serviceDate, with each stored time resolved to its true instant: a time
// past 24:00:00 rolled over once lands on the day after the service date.
func departuresOn(db *sqlite.Conn, stopID string, routeID string, direction int, serviceDate time.Time) ([]Departure, error) {
	var out []Departure
	var innerErr error

	err := sqlitex.Exec(db, departuresQuery, func(stmt *sqlite.Stmt) error {
		stored := stmt.GetText("departure_time")
		headsign := stmt.GetText("stop_headsign")

		at, err := resolveDeparture(serviceDate, stored)
		if err != nil {
			innerErr = err
			return innerErr
		}

		out = append(out, Departure{
			At:       at,
			Time:     at.Format("15:04:05"),
			Headsign: headsign,
		})
		return nil
	}, routeID, stopID, strconv.Itoa(direction), serviceDate.Format(feedDate))
	if innerErr != nil {
		return nil, innerErr
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// resolveDeparture turns a stored GTFS time into an absolute instant on
// (or after) the given service date. Exactly 00:00:00 belongs to the
// service date itself, not a rolled-over day.
func resolveDeparture(serviceDate time.Time, stored string) (time.Time, error) {
	h, m, s, err := parseFeedTime(stored)
	if err != nil {
		return time.Time{}, err
	}

	dayOffset := h / 24
	at := time.Date(serviceDate.Year(), serviceDate.Month(), serviceDate.Day(),
		h%24, m, s, 0, serviceDate.Location())
	if dayOffset > 0 {
		at = at.AddDate(0, 0, dayOffset)
	}
	return at, nil
}

// parseFeedTime parses H:MM:SS or HH:MM:SS, where the hour may exceed 23
// per the GTFS rolled-over-time convention. H:MM is accepted too.
func parseFeedTime(x string) (h, m, s int, err error) {
	colons := 0
	for _, c := range x {
		if c == ':' {
			colons++
		}
	}

	switch colons {
	case 1:
		_, err = fmt.Sscanf(x, "%d:%d", &h, &m)
	case 2:
		_, err = fmt.Sscanf(x, "%d:%d:%d", &h, &m, &s)
	default:
		err = fmt.Errorf("invalid time string: %q", x)
	}
	if err == nil && (h < 0 || m < 0 || m > 59 || s < 0 || s > 59) {
		err = fmt.Errorf("time out of range: %q", x)
	}
	return
}

// NextDepartures resolves upcoming departures against the live store.
func (m *Manager) NextDepartures(stopID string, routeID string, direction int, limit int) ([]Departure, error) {
	return NextDepartures(m.storePath, stopID, routeID, direction, limit, time.Now())
}
