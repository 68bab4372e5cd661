package scheduler

import (
	"strings"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

// Index holds immutable per-entity bitsets over the grid. It carries no
// scheduling state; the search keeps its own occupancy.
type Index struct {
	grid         *Grid
	facultyRows  map[string]int
	roomRows     map[string]int
	facultyAvail arena
	roomAvail    arena
	preferred    arena
	avoided      arena
}

// NewIndex builds availability and preference bitsets for a snapshot.
func NewIndex(grid *Grid, faculty []models.Faculty, rooms []models.Room) *Index {
	size := grid.Size()
	ix := &Index{
		grid:         grid,
		facultyRows:  make(map[string]int, len(faculty)),
		roomRows:     make(map[string]int, len(rooms)),
		facultyAvail: newArena(size, len(faculty)),
		roomAvail:    newArena(size, len(rooms)),
		preferred:    newArena(size, len(faculty)),
		avoided:      newArena(size, len(faculty)),
	}

	for i, f := range faculty {
		ix.facultyRows[f.ID] = i
		fillAvailability(grid, f.Availability, ix.facultyAvail.row(i))
		fillPreferences(grid, f.Preferences.PreferredTimeSlots, ix.preferred.row(i))
		fillPreferences(grid, f.Preferences.AvoidTimeSlots, ix.avoided.row(i))
	}
	for i, r := range rooms {
		ix.roomRows[r.ID] = i
		fillAvailability(grid, r.Availability, ix.roomAvail.row(i))
	}

	return ix
}

// FacultyAvailable reports whether the faculty may teach in the global slot.
func (ix *Index) FacultyAvailable(facultyID string, slot int) bool {
	row, ok := ix.facultyRows[facultyID]
	return ok && ix.facultyAvail.row(row).has(slot)
}

// RoomAvailable reports whether the room may be booked in the global slot.
func (ix *Index) RoomAvailable(roomID string, slot int) bool {
	row, ok := ix.roomRows[roomID]
	return ok && ix.roomAvail.row(row).has(slot)
}

// Preference returns -1 for a preferred slot, +1 for an avoided slot and 0 otherwise.
// A slot listed as both preferred and avoided is neutral.
func (ix *Index) Preference(facultyID string, slot int) int {
	row, ok := ix.facultyRows[facultyID]
	if !ok {
		return 0
	}
	score := 0
	if ix.preferred.row(row).has(slot) {
		score--
	}
	if ix.avoided.row(row).has(slot) {
		score++
	}
	return score
}

// FacultyFreeSlots counts the slots a faculty member may teach in.
func (ix *Index) FacultyFreeSlots(facultyID string) int {
	row, ok := ix.facultyRows[facultyID]
	if !ok {
		return 0
	}
	return ix.facultyAvail.row(row).count()
}

// fillAvailability maps intervals onto every grid slot they fully cover.
// An entity that declares nothing is available everywhere.
func fillAvailability(grid *Grid, availability models.Availability, dst bitset) {
	if !availability.Declared() {
		dst.fill(grid.Size())
		return
	}
	for day, intervals := range availability {
		d, ok := grid.DayIndex(day)
		if !ok {
			continue
		}
		for _, iv := range intervals {
			start, err := parseClock(iv.Start)
			if err != nil {
				continue
			}
			end, err := parseClock(iv.End)
			if err != nil || end <= start {
				continue
			}
			for s, slot := range grid.slots {
				if start <= slot.Start && slot.End <= end {
					dst.set(grid.Index(d, s))
				}
			}
		}
	}
}

// coveredBy reports whether [start,end) on day lies inside one declared interval.
func coveredBy(availability models.Availability, grid *Grid, day string, start, end int) bool {
	if !availability.Declared() {
		return true
	}
	target, ok := grid.DayIndex(day)
	if !ok {
		return false
	}
	for key, intervals := range availability {
		d, ok := grid.DayIndex(key)
		if !ok || d != target {
			continue
		}
		for _, iv := range intervals {
			s, err := parseClock(iv.Start)
			if err != nil {
				continue
			}
			e, err := parseClock(iv.End)
			if err != nil {
				continue
			}
			if s <= start && end <= e {
				return true
			}
		}
	}
	return false
}

// fillPreferences understands "HH:MM-HH:MM", "<day>", "<day> HH:MM-HH:MM",
// "morning" and "afternoon". Anything else is ignored.
func fillPreferences(grid *Grid, tokens []string, dst bitset) {
	for _, token := range tokens {
		match := preferenceMatcher(grid, token)
		if match == nil {
			continue
		}
		for d := range grid.days {
			for s, slot := range grid.slots {
				if match(d, slot) {
					dst.set(grid.Index(d, s))
				}
			}
		}
	}
}

func preferenceMatcher(grid *Grid, token string) func(day int, slot Slot) bool {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return nil
	}
	switch token {
	case "morning", "mornings":
		return func(_ int, slot Slot) bool { return slot.Start < noon }
	case "afternoon", "afternoons":
		return func(_ int, slot Slot) bool { return slot.Start >= noon }
	}

	fields := strings.Fields(token)
	switch len(fields) {
	case 1:
		if d, ok := grid.DayIndex(fields[0]); ok {
			return func(day int, _ Slot) bool { return day == d }
		}
		if start, end, err := parseRange(fields[0]); err == nil {
			return func(_ int, slot Slot) bool { return overlaps(start, end, slot.Start, slot.End) }
		}
	case 2:
		d, ok := grid.DayIndex(fields[0])
		if !ok {
			return nil
		}
		if part := fields[1]; part == "morning" || part == "afternoon" {
			morning := part == "morning"
			return func(day int, slot Slot) bool { return day == d && (slot.Start < noon) == morning }
		}
		start, end, err := parseRange(fields[1])
		if err != nil {
			return nil
		}
		return func(day int, slot Slot) bool { return day == d && overlaps(start, end, slot.Start, slot.End) }
	}
	return nil
}

const noon = 12 * 60

func overlaps(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}
