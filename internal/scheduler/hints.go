package scheduler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

// Hints is the compiled form of a free-text constraints block.
type Hints struct {
	size       int
	exclusions map[models.CourseType]bitset
	preferred  map[models.CourseType]bitset
	avoided    map[models.CourseType]bitset
	DailyCap   int
	Recognized []string
	Ignored    []string
}

// anyType keys rules that apply to every course type.
const anyType models.CourseType = ""

type hintRule struct {
	pattern *regexp.Regexp
	apply   func(h *Hints, grid *Grid, m []string) bool
}

var (
	clauseSplitter = regexp.MustCompile(`[\n;,.]+`)
	courseTypeWord = `(lecture|lab|tutorial|class|course)(?:es|s)?`
	clockWord      = `(\d{1,2})(?::(\d{2}))?\s*(am|pm)?`
)

var hintRules = []hintRule{
	{
		pattern: regexp.MustCompile(`^no ` + courseTypeWord + ` (?:on|during) (\w+)$`),
		apply: func(h *Hints, grid *Grid, m []string) bool {
			d, ok := grid.DayIndex(m[2])
			if !ok {
				return false
			}
			h.mark(h.exclusions, courseTypeOf(m[1]), grid, func(day int, _ Slot) bool { return day == d })
			return true
		},
	},
	{
		pattern: regexp.MustCompile(`^no ` + courseTypeWord + ` (before|after) ` + clockWord + `$`),
		apply: func(h *Hints, grid *Grid, m []string) bool {
			at, ok := clockFromParts(m[3], m[4], m[5])
			if !ok {
				return false
			}
			before := m[2] == "before"
			h.mark(h.exclusions, courseTypeOf(m[1]), grid, func(_ int, slot Slot) bool {
				if before {
					return slot.Start < at
				}
				return slot.End > at
			})
			return true
		},
	},
	{
		pattern: regexp.MustCompile(`^max(?:imum)? (\d+) hours? (?:per|a) day(?: per (?:faculty|teacher|instructor))?$`),
		apply: func(h *Hints, _ *Grid, m []string) bool {
			n, err := strconv.Atoi(m[1])
			if err != nil || n <= 0 {
				return false
			}
			if h.DailyCap == 0 || n < h.DailyCap {
				h.DailyCap = n
			}
			return true
		},
	},
	{
		pattern: regexp.MustCompile(`^prefer (?:` + courseTypeWord + ` (?:in|during) (?:the )?)?(morning|afternoon)s?$`),
		apply: func(h *Hints, grid *Grid, m []string) bool {
			morning := m[2] == "morning"
			h.mark(h.preferred, courseTypeOf(m[1]), grid, func(_ int, slot Slot) bool { return (slot.Start < noon) == morning })
			return true
		},
	},
	{
		pattern: regexp.MustCompile(`^` + courseTypeWord + ` (?:in|during) (?:the )?(morning|afternoon)s?$`),
		apply: func(h *Hints, grid *Grid, m []string) bool {
			morning := m[2] == "morning"
			h.mark(h.preferred, courseTypeOf(m[1]), grid, func(_ int, slot Slot) bool { return (slot.Start < noon) == morning })
			return true
		},
	},
	{
		pattern: regexp.MustCompile(`^avoid (?:` + courseTypeWord + ` on )?(\w+)$`),
		apply: func(h *Hints, grid *Grid, m []string) bool {
			d, ok := grid.DayIndex(m[2])
			if !ok {
				return false
			}
			h.mark(h.avoided, courseTypeOf(m[1]), grid, func(day int, _ Slot) bool { return day == d })
			return true
		},
	},
}

// ParseHints matches each clause of text against a fixed rule table.
// Unrecognised clauses are collected in Ignored and never fail the run.
func ParseHints(grid *Grid, text string) Hints {
	h := Hints{
		size:       grid.Size(),
		exclusions: map[models.CourseType]bitset{},
		preferred:  map[models.CourseType]bitset{},
		avoided:    map[models.CourseType]bitset{},
	}
	for _, clause := range clauseSplitter.Split(text, -1) {
		clause = normalizeClause(clause)
		if clause == "" {
			continue
		}
		matched := false
		for _, rule := range hintRules {
			m := rule.pattern.FindStringSubmatch(clause)
			if m == nil {
				continue
			}
			if rule.apply(&h, grid, m) {
				matched = true
				break
			}
		}
		if matched {
			h.Recognized = append(h.Recognized, clause)
		} else {
			h.Ignored = append(h.Ignored, clause)
		}
	}
	return h
}

// Excluded reports a hard exclusion for the course type at the slot.
func (h Hints) Excluded(t models.CourseType, slot int) bool {
	return lookup(h.exclusions, anyType, slot) || lookup(h.exclusions, t, slot)
}

// Preference returns the soft score of a slot for the course type; lower is better.
func (h Hints) Preference(t models.CourseType, slot int) int {
	score := 0
	if lookup(h.preferred, anyType, slot) || lookup(h.preferred, t, slot) {
		score--
	}
	if lookup(h.avoided, anyType, slot) || lookup(h.avoided, t, slot) {
		score++
	}
	return score
}

func (h *Hints) mark(target map[models.CourseType]bitset, t models.CourseType, grid *Grid, match func(day int, slot Slot) bool) {
	row, ok := target[t]
	if !ok {
		row = newArena(h.size, 1).row(0)
		target[t] = row
	}
	for d := range grid.days {
		for s, slot := range grid.slots {
			if match(d, slot) {
				row.set(grid.Index(d, s))
			}
		}
	}
}

func lookup(rows map[models.CourseType]bitset, t models.CourseType, slot int) bool {
	row, ok := rows[t]
	return ok && row.has(slot)
}

func courseTypeOf(word string) models.CourseType {
	switch word {
	case "lecture":
		return models.CourseTypeLecture
	case "lab":
		return models.CourseTypeLab
	case "tutorial":
		return models.CourseTypeTutorial
	default:
		return anyType
	}
}

func clockFromParts(hour, minute, meridiem string) (int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, false
	}
	m := 0
	if minute != "" {
		if m, err = strconv.Atoi(minute); err != nil || m > 59 {
			return 0, false
		}
	}
	switch meridiem {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 12 {
			h += 12
		}
	}
	if h > 23 {
		return 0, false
	}
	return h*60 + m, true
}

func normalizeClause(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
