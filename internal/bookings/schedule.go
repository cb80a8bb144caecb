package bookings

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/pgclosets/quote-service/internal/platform/httpx"
)

const (
	// TimeZone is the wall clock appointments are offered in.
	TimeZone = "America/Toronto"
	// DurationMinutes is the length of a measurement visit.
	DurationMinutes = 120

	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// Reasons reported for unavailable slots.
const (
	ReasonWeekend      = "Weekend - appointments are booked Monday to Friday"
	ReasonTooSoon      = "Appointments must be booked at least 1 day ahead"
	ReasonTooFar       = "Appointments can be booked at most 90 days ahead"
	ReasonBooked       = "Time slot already booked"
	ReasonInvalidStart = "Appointments start on the hour between 09:00 and 16:00"
)

// Schedule holds the booking window rules.
type Schedule struct {
	Location   *time.Location
	FirstHour  int
	LastHour   int
	MinDays    int
	MaxDays    int
	WorkingDay func(time.Weekday) bool
}

// DefaultSchedule offers 09:00 to 16:00 on weekdays, 1 to 90 days ahead.
func DefaultSchedule() (Schedule, error) {
	loc, err := time.LoadLocation(TimeZone)
	if err != nil {
		return Schedule{}, fmt.Errorf("load %s: %w", TimeZone, err)
	}
	return Schedule{
		Location:  loc,
		FirstHour: 9,
		LastHour:  16,
		MinDays:   1,
		MaxDays:   90,
		WorkingDay: func(d time.Weekday) bool {
			return d != time.Saturday && d != time.Sunday
		},
	}, nil
}

// ParseDate reads a YYYY-MM-DD local date.
func (s Schedule) ParseDate(raw string) (time.Time, error) {
	day, err := time.ParseInLocation(dateLayout, raw, s.Location)
	if err != nil {
		return time.Time{}, httpx.NewValidationError("date must be formatted YYYY-MM-DD")
	}
	return day, nil
}

// SlotStart combines a local date and HH:MM into an instant.
func (s Schedule) SlotStart(date, clock string) (time.Time, error) {
	day, err := s.ParseDate(date)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(timeLayout, clock)
	if err != nil {
		return time.Time{}, httpx.NewValidationError("time must be formatted HH:MM")
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, s.Location), nil
}

// dayOffset counts calendar days between now and day in the schedule zone.
func (s Schedule) dayOffset(now, day time.Time) int {
	n := now.In(s.Location)
	d := day.In(s.Location)
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	target := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today).Hours() / 24)
}

// dayReason explains why no slot on day can be booked, or returns "".
func (s Schedule) dayReason(now, day time.Time) string {
	if !s.WorkingDay(day.In(s.Location).Weekday()) {
		return ReasonWeekend
	}
	offset := s.dayOffset(now, day)
	switch {
	case offset < s.MinDays:
		return ReasonTooSoon
	case offset > s.MaxDays:
		return ReasonTooFar
	}
	return ""
}

// Check reports why start cannot be booked, ignoring existing bookings.
func (s Schedule) Check(now, start time.Time) string {
	local := start.In(s.Location)
	if local.Minute() != 0 || local.Second() != 0 || local.Hour() < s.FirstHour || local.Hour() > s.LastHour {
		return ReasonInvalidStart
	}
	return s.dayReason(now, local)
}

// Day lists every slot of day with its availability. booked holds the
// confirmed start instants of that day.
func (s Schedule) Day(now, day time.Time, booked []time.Time) Availability {
	local := day.In(s.Location)
	taken := make(map[int64]bool, len(booked))
	for _, b := range booked {
		taken[b.Unix()] = true
	}
	dayReason := s.dayReason(now, local)
	out := Availability{Date: local.Format(dateLayout)}
	for hour := s.FirstHour; hour <= s.LastHour; hour++ {
		start := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, s.Location)
		slot := Slot{Time: start.Format(timeLayout), StartsAt: start.UTC(), Available: true}
		switch {
		case dayReason != "":
			slot.Available, slot.Reason = false, dayReason
		case taken[start.Unix()]:
			slot.Available, slot.Reason = false, ReasonBooked
		}
		out.Slots = append(out.Slots, slot)
	}
	return out
}

// Bounds returns the UTC instants enclosing the local day.
func (s Schedule) Bounds(day time.Time) (time.Time, time.Time) {
	local := day.In(s.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.Location)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
