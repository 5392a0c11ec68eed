// Package system provides the wall clock used by the site.
package system

import "time"

// Clock implements news.Clock. Calendar helpers use the site's edition
// timezone so the "today" boundary follows readers rather than the host.
type Clock struct {
	loc *time.Location
}

// New creates a Clock whose calendar follows loc. A nil loc means Asia/Tokyo,
// falling back to a fixed +09:00 zone when tzdata is unavailable.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = editionZone()
	}
	return &Clock{loc: loc}
}

// Now returns the current time in UTC.
func (c *Clock) Now() time.Time {
	return time.Now().UTC()
}

// Today returns the current edition date as YYYY-MM-DD.
func (c *Clock) Today() string {
	return DateIn(c.Now(), c.loc)
}

// Location returns the edition timezone.
func (c *Clock) Location() *time.Location {
	return c.loc
}

// DateIn formats t as a date in loc.
func DateIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(time.DateOnly)
}

func editionZone() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}
