package council

import "time"

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func parseTimestamp(s string) (time.Time, error) {
	return time.Parse(rfc3339Milli, s)
}
