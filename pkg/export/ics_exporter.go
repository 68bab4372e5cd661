package export

import (
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
)

// Event is one weekly recurring occurrence.
type Event struct {
	UID         string
	Summary     string
	Location    string
	Description string
	Weekday     time.Weekday
	// Start and End are minutes after midnight.
	Start int
	End   int
}

// ICSExporter renders weekly recurring events as an iCalendar feed.
type ICSExporter struct {
	location *time.Location
	weeks    int
}

// NewICSExporter builds an exporter. Events are anchored in loc and repeat for weeks.
func NewICSExporter(loc *time.Location, weeks int) *ICSExporter {
	if loc == nil {
		loc = time.UTC
	}
	if weeks <= 0 {
		weeks = 16
	}
	return &ICSExporter{location: loc, weeks: weeks}
}

// Render serialises the calendar. The first occurrence of each event is the
// first matching weekday on or after from.
func (e *ICSExporter) Render(name string, from time.Time, events []Event) ([]byte, error) {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//timetable-scheduler-api//EN")
	cal.SetName(name)
	cal.SetXWRTimezone(e.location.String())

	from = from.In(e.location)
	base := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, e.location)
	stamp := time.Now().UTC()

	for _, ev := range events {
		if ev.End <= ev.Start {
			return nil, fmt.Errorf("event %s ends before it starts", ev.UID)
		}
		offset := (int(ev.Weekday) - int(base.Weekday()) + 7) % 7
		day := base.AddDate(0, 0, offset)
		start := day.Add(time.Duration(ev.Start) * time.Minute)
		end := day.Add(time.Duration(ev.End) * time.Minute)

		event := cal.AddEvent(ev.UID)
		event.SetDtStampTime(stamp)
		event.SetStartAt(start)
		event.SetEndAt(end)
		event.SetSummary(ev.Summary)
		if ev.Location != "" {
			event.SetLocation(ev.Location)
		}
		if ev.Description != "" {
			event.SetDescription(ev.Description)
		}
		event.AddRrule(fmt.Sprintf("FREQ=WEEKLY;COUNT=%d", e.weeks))
	}

	return []byte(cal.Serialize()), nil
}
