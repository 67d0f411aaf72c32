package consts

const (
	UA = "tvtv2xmltv-cron/1.0"

	// XMLTV timestamp layout, UTC offset included.
	TIME_FORMAT = "20060102150405 -0700"

	TVTV_URL = "https://www.tvtv.us"

	// Instant layout the grid API expects in its URL path.
	API_TIME_FORMAT = "2006-01-02T15:04:05.000Z"

	// The grid endpoint accepts at most 20 station ids per request.
	GRID_BATCH_SIZE = 20

	// The provider serves at most 8 days of listings.
	MAX_WINDOW_DAYS = 8
)
