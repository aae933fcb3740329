// Package markethours answers "is this a trading day / is the market open"
// for one exchange calendar: a time zone, a daily session and a holiday list.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // calendars must resolve zones on minimal images
)

// Config describes an exchange calendar.
type Config struct {
	Timezone string   `yaml:"timezone"` // IANA name, e.g. America/New_York
	Open     string   `yaml:"open"`     // HH:MM local
	Close    string   `yaml:"close"`    // HH:MM local
	Holidays []string `yaml:"holidays"` // YYYY-MM-DD local dates
}

// Calendar is an immutable trading calendar.
type Calendar struct {
	loc        *time.Location
	openMin    int // minutes after local midnight
	closeMin   int
	holidaySet map[string]bool
}

// DefaultConfig is the NYSE regular session with its 2026 holidays.
func DefaultConfig() Config {
	return Config{
		Timezone: "America/New_York",
		Open:     "09:30",
		Close:    "16:00",
		Holidays: append([]string(nil), nyseHolidays2026...),
	}
}

// New builds a calendar, validating every field.
func New(cfg Config) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("markethours: timezone %q: %w", cfg.Timezone, err)
	}
	openMin, err := parseClock(cfg.Open)
	if err != nil {
		return nil, fmt.Errorf("markethours: open: %w", err)
	}
	closeMin, err := parseClock(cfg.Close)
	if err != nil {
		return nil, fmt.Errorf("markethours: close: %w", err)
	}
	if closeMin <= openMin {
		return nil, fmt.Errorf("markethours: close %s must be after open %s", cfg.Close, cfg.Open)
	}
	set := make(map[string]bool, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		d, err := time.ParseInLocation("2006-01-02", h, loc)
		if err != nil {
			return nil, fmt.Errorf("markethours: holiday %q: %w", h, err)
		}
		set[d.Format("2006-01-02")] = true
	}
	return &Calendar{loc: loc, openMin: openMin, closeMin: closeMin, holidaySet: set}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Location returns the calendar's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

// IsHoliday reports whether t's local date is a listed holiday.
func (c *Calendar) IsHoliday(t time.Time) bool {
	return c.holidaySet[t.In(c.loc).Format("2006-01-02")]
}

// IsWeekday returns true if t is Mon–Fri locally.
func (c *Calendar) IsWeekday(t time.Time) bool {
	wd := t.In(c.loc).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	return c.IsWeekday(t) && !c.IsHoliday(t)
}

// IsOpen reports whether t falls inside the regular session.
func (c *Calendar) IsOpen(t time.Time) bool {
	if !c.IsTradingDay(t) {
		return false
	}
	local := t.In(c.loc)
	hm := local.Hour()*60 + local.Minute()
	return hm >= c.openMin && hm < c.closeMin
}

func (c *Calendar) at(day time.Time, minutes int) time.Time {
	d := day.In(c.loc)
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, c.loc)
}

// NextOpen returns the next session open at or after t.
func (c *Calendar) NextOpen(t time.Time) time.Time {
	if open := c.at(t, c.openMin); c.IsTradingDay(t) && t.Before(open) {
		return open
	}
	d := t.In(c.loc)
	for i := 0; i < 14; i++ {
		d = c.at(d, 0).AddDate(0, 0, 1)
		if c.IsTradingDay(d) {
			return c.at(d, c.openMin)
		}
	}
	return c.at(d, c.openMin)
}

// TodayClose returns the session close on t's local date.
func (c *Calendar) TodayClose(t time.Time) time.Time {
	return c.at(t, c.closeMin)
}

// LastSessionDate returns the local date (midnight) of the most recent
// session that has closed at t.
func (c *Calendar) LastSessionDate(t time.Time) time.Time {
	d := t.In(c.loc)
	if !c.IsTradingDay(d) || d.Before(c.TodayClose(d)) {
		for i := 0; i < 14; i++ {
			d = c.at(d, 0).AddDate(0, 0, -1)
			if c.IsTradingDay(d) {
				break
			}
		}
	}
	return c.at(d, 0)
}

// StatusString returns a human-readable market status.
func (c *Calendar) StatusString(t time.Time) string {
	if c.IsOpen(t) {
		return fmt.Sprintf("Market Open, closes in %s", fmtDur(c.TodayClose(t).Sub(t)))
	}
	next := c.NextOpen(t)
	local := next.In(c.loc)
	return fmt.Sprintf("Market Closed, opens %s %s (%s)",
		local.Weekday().String()[:3], local.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
