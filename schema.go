package gtfsnext

// requiredTables are the tables a converted store must contain, each with
// at least one row, before the dataset may go live.
var requiredTables = []string{
	"agency",
	"stops",
	"routes",
	"trips",
	"stop_times",
	"calendar_dates",
}

// gtfsSchema lists the columns we pre-create for each known GTFS file.
// Feeds routinely ship extra columns; the converter adds those on the fly,
// so this only has to cover the common shape of a feed.
var gtfsSchema = map[string][]string{
	"agency": {
		"agency_id",
		"agency_name",
		"agency_url",
		"agency_timezone",
		"agency_lang",
		"agency_phone",
		"agency_fare_url",
		"agency_email",
	},

	"stops": {
		"stop_id",
		"stop_code",
		"stop_name",
		"stop_desc",
		"stop_lat",
		"stop_lon",
		"zone_id",
		"stop_url",
		"location_type",
		"parent_station",
		"stop_timezone",
		"wheelchair_boarding",
		"level_id",
		"platform_code",
	},

	"routes": {
		"route_id",
		"agency_id",
		"route_short_name",
		"route_long_name",
		"route_desc",
		"route_type",
		"route_url",
		"route_color",
		"route_text_color",
		"route_sort_order",
	},

	"trips": {
		"route_id",
		"service_id",
		"trip_id",
		"trip_headsign",
		"trip_short_name",
		"direction_id",
		"block_id",
		"shape_id",
		"wheelchair_accessible",
		"bikes_allowed",
	},

	"stop_times": {
		"trip_id",
		"arrival_time",
		"departure_time",
		"stop_id",
		"stop_sequence",
		"stop_headsign",
		"pickup_type",
		"drop_off_type",
		"shape_dist_traveled",
		"timepoint",
	},

	"calendar": {
		"service_id",
		"monday",
		"tuesday",
		"wednesday",
		"thursday",
		"friday",
		"saturday",
		"sunday",
		"start_date",
		"end_date",
	},

	"calendar_dates": {
		"service_id",
		"date",
		"exception_type",
	},

	"shapes": {
		"shape_id",
		"shape_pt_lat",
		"shape_pt_lon",
		"shape_pt_sequence",
		"shape_dist_traveled",
	},

	"frequencies": {
		"trip_id",
		"start_time",
		"end_time",
		"headway_secs",
		"exact_times",
	},

	"transfers": {
		"from_stop_id",
		"to_stop_id",
		"from_route_id",
		"to_route_id",
		"from_trip_id",
		"to_trip_id",
		"transfer_type",
		"min_transfer_time",
	},

	"feed_info": {
		"feed_publisher_name",
		"feed_publisher_url",
		"feed_lang",
		"default_lang",
		"feed_start_date",
		"feed_end_date",
		"feed_version",
		"feed_contact_email",
		"feed_contact_url",
	},
}

// storeIndexes are the secondary indexes built after base conversion for
// the departure and stop-resolution query patterns. Creating any of these
// can fail without failing the run.
var storeIndexes = []string{
	"CREATE INDEX IF NOT EXISTS idx_stop_times_stop_id ON stop_times(stop_id)",
	"CREATE INDEX IF NOT EXISTS idx_stop_times_trip_id ON stop_times(trip_id)",
	"CREATE INDEX IF NOT EXISTS idx_trips_route_id ON trips(route_id)",
	"CREATE INDEX IF NOT EXISTS idx_trips_service_id ON trips(service_id)",
	"CREATE INDEX IF NOT EXISTS idx_trips_direction_id ON trips(direction_id)",
	"CREATE INDEX IF NOT EXISTS idx_calendar_dates_service_id ON calendar_dates(service_id)",
	"CREATE INDEX IF NOT EXISTS idx_calendar_dates_date ON calendar_dates(date)",
	"CREATE INDEX IF NOT EXISTS idx_routes_agency_id ON routes(agency_id)",
	"CREATE INDEX IF NOT EXISTS idx_stop_times_composite ON stop_times(stop_id, trip_id, departure_time)",
}
