package scheduler

import (
	"fmt"
	"strconv"
	"strings"
)

// Slot is one named teaching interval inside a day.
type Slot struct {
	Label string
	Start int
	End   int
}

// StartText returns the slot start as HH:MM.
func (s Slot) StartText() string { return formatClock(s.Start) }

// EndText returns the slot end as HH:MM.
func (s Slot) EndText() string { return formatClock(s.End) }

// Grid is the weekly (day, slot) enumeration every run schedules into.
// Global slot index = day*len(slots) + slot.
type Grid struct {
	days  []string
	slots []Slot
	byDay map[string]int
}

// NewGrid validates the configured days and "HH:MM-HH:MM" slot labels.
func NewGrid(days []string, slots []string) (*Grid, error) {
	if len(days) == 0 {
		return nil, fmt.Errorf("grid: at least one day is required")
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("grid: at least one time slot is required")
	}

	g := &Grid{
		days:  make([]string, 0, len(days)),
		slots: make([]Slot, 0, len(slots)),
		byDay: make(map[string]int, len(days)),
	}
	for _, day := range days {
		key := dayKey(day)
		if _, dup := g.byDay[key]; dup {
			return nil, fmt.Errorf("grid: duplicate day %q", day)
		}
		g.byDay[key] = len(g.days)
		g.days = append(g.days, strings.TrimSpace(day))
	}

	prevEnd := -1
	for _, raw := range slots {
		start, end, err := parseRange(raw)
		if err != nil {
			return nil, fmt.Errorf("grid: %w", err)
		}
		if start < prevEnd {
			return nil, fmt.Errorf("grid: slot %q overlaps or precedes the previous slot", raw)
		}
		prevEnd = end
		g.slots = append(g.slots, Slot{Label: formatClock(start) + "-" + formatClock(end), Start: start, End: end})
	}

	return g, nil
}

// Days returns the configured day names in order.
func (g *Grid) Days() []string { return append([]string(nil), g.days...) }

// Slots returns the per-day slots in order.
func (g *Grid) Slots() []Slot { return append([]Slot(nil), g.slots...) }

// SlotsPerDay returns the number of slots in one day.
func (g *Grid) SlotsPerDay() int { return len(g.slots) }

// Size is the total number of (day, slot) pairs.
func (g *Grid) Size() int { return len(g.days) * len(g.slots) }

// Index maps a (day, slot) pair onto the global enumeration.
func (g *Grid) Index(day, slot int) int { return day*len(g.slots) + slot }

// Position is the inverse of Index.
func (g *Grid) Position(idx int) (day, slot int) { return idx / len(g.slots), idx % len(g.slots) }

// DayIndex resolves a day name case-insensitively. Plural forms ("mondays") resolve too.
func (g *Grid) DayIndex(name string) (int, bool) {
	key := dayKey(name)
	if idx, ok := g.byDay[key]; ok {
		return idx, true
	}
	if strings.HasSuffix(key, "s") {
		idx, ok := g.byDay[strings.TrimSuffix(key, "s")]
		return idx, ok
	}
	return 0, false
}

// DayName returns the configured name of a day index.
func (g *Grid) DayName(day int) string { return g.days[day] }

// SlotAt returns the slot index whose bounds equal [start, end).
func (g *Grid) SlotAt(start, end int) (int, bool) {
	for i, s := range g.slots {
		if s.Start == start && s.End == end {
			return i, true
		}
	}
	return 0, false
}

// Locate resolves an entry's day and HH:MM bounds to a global slot index when it is grid-aligned.
func (g *Grid) Locate(day, startText, endText string) (int, bool) {
	d, ok := g.DayIndex(day)
	if !ok {
		return 0, false
	}
	start, err := parseClock(startText)
	if err != nil {
		return 0, false
	}
	end, err := parseClock(endText)
	if err != nil {
		return 0, false
	}
	s, ok := g.SlotAt(start, end)
	if !ok {
		return 0, false
	}
	return g.Index(d, s), true
}

func dayKey(day string) string {
	return strings.ToLower(strings.TrimSpace(day))
}

func parseRange(raw string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(raw), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time range %q", raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return 0, 0, err
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return 0, 0, err
	}
	if end <= start {
		return 0, 0, fmt.Errorf("time range %q must end after it starts", raw)
	}
	return start, end, nil
}

// parseClock converts HH:MM into minutes after midnight.
func parseClock(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	hh, mm, ok := strings.Cut(raw, ":")
	if !ok {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid time %q", raw)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// overlapping returns the global slots on day that intersect [start, end).
func (g *Grid) overlapping(day, startText, endText string) []int {
	d, ok := g.DayIndex(day)
	if !ok {
		return nil
	}
	start, err := parseClock(startText)
	if err != nil {
		return nil
	}
	end, err := parseClock(endText)
	if err != nil || end <= start {
		return nil
	}
	var out []int
	for s, slot := range g.slots {
		if overlaps(start, end, slot.Start, slot.End) {
			out = append(out, g.Index(d, s))
		}
	}
	return out
}
