package utils

import "time"

// Timestamp normalizes t to UTC without a monotonic reading so values
// compare equal after a round trip through storage.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Round(0)
}
