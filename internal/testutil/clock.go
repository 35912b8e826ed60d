package testutil

import "time"

// FixedClock returns a clock function pinned to the given instant, for
// driving engines whose catch-up loop depends on "now".
func FixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at.UTC() }
}

// MustTime parses a UTC timestamp in "2006-01-02 15:04:05" form,
// panicking on malformed input. Test fixtures only.
func MustTime(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}
