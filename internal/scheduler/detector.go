package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

// DetectInput is everything the detector needs to re-verify a schedule.
type DetectInput struct {
	Schedule []models.ScheduleEntry
	// Courses are the in-scope courses whose weekly hours must be covered.
	Courses []models.Course
	// Catalogue resolves prerequisite chains and courses referenced by
	// entries outside Courses. Courses is used when it is empty.
	Catalogue []models.Course
	Faculty   []models.Faculty
	Rooms     []models.Room
	// Reasons optionally explain why the solver left a course short.
	Reasons map[string]string
}

// Detector is a pure validation pass over a finished schedule.
type Detector struct {
	grid              *Grid
	defaultEnrollment int
}

// NewDetector builds a detector over the same grid the engine uses.
func NewDetector(grid *Grid, defaultEnrollment int) *Detector {
	if defaultEnrollment <= 0 {
		defaultEnrollment = 30
	}
	return &Detector{grid: grid, defaultEnrollment: defaultEnrollment}
}

// located is an entry resolved against the grid.
type located struct {
	models.ScheduleEntry
	day    int
	start  int
	end    int
	slot   int
	onGrid bool
}

// Detect returns every conflict in a deterministic order. Running it again on
// the same input yields the same list. Entries that reference unknown
// entities or carry unreadable times are rejected as errors.
func (d *Detector) Detect(in DetectInput) ([]models.Conflict, error) {
	catalogue := in.Catalogue
	if len(catalogue) == 0 {
		catalogue = in.Courses
	}
	courses := lo.KeyBy(append(append([]models.Course(nil), catalogue...), in.Courses...), func(c models.Course) string { return c.ID })
	faculty := lo.KeyBy(in.Faculty, func(f models.Faculty) string { return f.ID })
	rooms := lo.KeyBy(in.Rooms, func(r models.Room) string { return r.ID })

	entries := make([]located, 0, len(in.Schedule))
	for i, e := range in.Schedule {
		if _, ok := courses[e.CourseID]; !ok {
			return nil, fmt.Errorf("%w: entry %d references course %q", ErrUnknownReference, i, e.CourseID)
		}
		if _, ok := faculty[e.FacultyID]; !ok {
			return nil, fmt.Errorf("%w: entry %d references faculty %q", ErrUnknownReference, i, e.FacultyID)
		}
		if _, ok := rooms[e.RoomID]; !ok {
			return nil, fmt.Errorf("%w: entry %d references room %q", ErrUnknownReference, i, e.RoomID)
		}
		loc, err := d.locate(e)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrInvalidEntry, i, err)
		}
		entries = append(entries, loc)
	}

	index := NewIndex(d.grid, in.Faculty, in.Rooms)

	var conflicts []models.Conflict
	conflicts = append(conflicts, d.doubleBookings(entries, courses, models.ConflictFacultyDoubleBooked,
		func(e located) string { return e.FacultyID },
		func(id string) string { return "Faculty " + faculty[id].Name })...)
	conflicts = append(conflicts, d.doubleBookings(entries, courses, models.ConflictRoomDoubleBooked,
		func(e located) string { return e.RoomID },
		func(id string) string { return "Room " + rooms[id].Name })...)
	conflicts = append(conflicts, d.capacity(entries, courses, rooms)...)
	conflicts = append(conflicts, d.availability(entries, courses, faculty, rooms, index)...)
	conflicts = append(conflicts, d.unassigned(entries, in.Courses, in.Reasons)...)
	conflicts = append(conflicts, d.prerequisites(entries, catalogue, courses)...)

	d.order(conflicts)
	return conflicts, nil
}

func (d *Detector) locate(e models.ScheduleEntry) (located, error) {
	day, ok := d.grid.DayIndex(e.Day)
	if !ok {
		return located{}, fmt.Errorf("unknown day %q", e.Day)
	}
	start, err := parseClock(e.StartTime)
	if err != nil {
		return located{}, err
	}
	end, err := parseClock(e.EndTime)
	if err != nil {
		return located{}, err
	}
	if end <= start {
		return located{}, fmt.Errorf("end %s is not after start %s", e.EndTime, e.StartTime)
	}
	loc := located{ScheduleEntry: e, day: day, start: start, end: end, slot: -1}
	if s, ok := d.grid.SlotAt(start, end); ok {
		loc.slot = d.grid.Index(day, s)
		loc.onGrid = true
	}
	return loc, nil
}

func (d *Detector) doubleBookings(entries []located, courses map[string]models.Course, kind models.ConflictType, owner func(located) string, label func(string) string) []models.Conflict {
	groups := lo.GroupBy(entries, owner)
	keys := lo.Keys(groups)
	sort.Strings(keys)

	var out []models.Conflict
	for _, key := range keys {
		group := groups[key]
		sort.SliceStable(group, func(i, j int) bool { return lessLocated(group[i], group[j], courses) })
		for i := 0; i < len(group); i++ {
			for j := i + 1; j < len(group); j++ {
				a, b := group[i], group[j]
				if a.day != b.day || b.start >= a.end {
					break
				}
				window := formatClock(maxInt(a.start, b.start)) + "-" + formatClock(minInt(a.end, b.end))
				refs := models.ConflictReferences{
					CourseIDs: sortedIDs(a.CourseID, b.CourseID),
					Day:       d.grid.DayName(a.day),
					TimeSlot:  window,
				}
				if kind == models.ConflictFacultyDoubleBooked {
					refs.FacultyID = key
				} else {
					refs.RoomID = key
				}
				out = append(out, models.Conflict{
					Type: kind,
					Message: fmt.Sprintf("%s is booked for %s and %s on %s %s",
						label(key), courseLabel(courses[a.CourseID]), courseLabel(courses[b.CourseID]), refs.Day, window),
					References: refs,
				})
			}
		}
	}
	return out
}

func (d *Detector) capacity(entries []located, courses map[string]models.Course, rooms map[string]models.Room) []models.Conflict {
	var out []models.Conflict
	for _, e := range entries {
		course := courses[e.CourseID]
		room := rooms[e.RoomID]
		need := course.ExpectedEnrollment
		if need <= 0 {
			need = d.defaultEnrollment
		}
		if room.Capacity >= need {
			continue
		}
		out = append(out, models.Conflict{
			Type:    models.ConflictCapacityExceeded,
			Message: fmt.Sprintf("Room %s seats %d but %s expects %d students", room.Name, room.Capacity, courseLabel(course), need),
			References: models.ConflictReferences{
				CourseIDs: []string{e.CourseID},
				RoomID:    e.RoomID,
				Day:       d.grid.DayName(e.day),
				TimeSlot:  formatClock(e.start) + "-" + formatClock(e.end),
			},
		})
	}
	return out
}

func (d *Detector) availability(entries []located, courses map[string]models.Course, faculty map[string]models.Faculty, rooms map[string]models.Room, index *Index) []models.Conflict {
	var out []models.Conflict
	for _, e := range entries {
		window := formatClock(e.start) + "-" + formatClock(e.end)
		day := d.grid.DayName(e.day)

		f := faculty[e.FacultyID]
		facultyOK := coveredBy(f.Availability, d.grid, e.Day, e.start, e.end)
		if e.onGrid {
			facultyOK = index.FacultyAvailable(f.ID, e.slot)
		}
		if !facultyOK {
			out = append(out, models.Conflict{
				Type:    models.ConflictAvailabilityViolated,
				Message: fmt.Sprintf("Faculty %s is not available on %s %s for %s", f.Name, day, window, courseLabel(courses[e.CourseID])),
				References: models.ConflictReferences{
					CourseIDs: []string{e.CourseID},
					FacultyID: f.ID,
					Day:       day,
					TimeSlot:  window,
				},
			})
		}

		r := rooms[e.RoomID]
		roomOK := coveredBy(r.Availability, d.grid, e.Day, e.start, e.end)
		if e.onGrid {
			roomOK = index.RoomAvailable(r.ID, e.slot)
		}
		if !roomOK {
			out = append(out, models.Conflict{
				Type:    models.ConflictAvailabilityViolated,
				Message: fmt.Sprintf("Room %s is not available on %s %s for %s", r.Name, day, window, courseLabel(courses[e.CourseID])),
				References: models.ConflictReferences{
					CourseIDs: []string{e.CourseID},
					RoomID:    r.ID,
					Day:       day,
					TimeSlot:  window,
				},
			})
		}
	}
	return out
}

// unassigned emits one conflict per missing weekly hour of each in-scope course.
func (d *Detector) unassigned(entries []located, scope []models.Course, reasons map[string]string) []models.Conflict {
	covered := lo.CountValuesBy(entries, func(e located) string { return e.CourseID })
	var out []models.Conflict
	for _, c := range scope {
		missing := c.HoursPerWeek - covered[c.ID]
		for h := 0; h < missing; h++ {
			msg := fmt.Sprintf("%s is missing %d of %d weekly hours (hour %d unassigned)", courseLabel(c), missing, c.HoursPerWeek, covered[c.ID]+h+1)
			reason := reasons[c.ID]
			if reason != "" {
				msg += ": " + reason
			}
			out = append(out, models.Conflict{
				Type:       models.ConflictUnassignedCourse,
				Message:    msg,
				References: models.ConflictReferences{CourseIDs: []string{c.ID}},
				Reason:     reason,
			})
		}
	}
	return out
}

// prerequisites flags every scheduled course whose transitive prerequisite
// chain contains another course scheduled in the same timetable.
func (d *Detector) prerequisites(entries []located, catalogue []models.Course, courses map[string]models.Course) []models.Conflict {
	graph := newPrerequisiteGraph(catalogue)
	scheduled := map[string]models.Course{}
	for _, e := range entries {
		c := courses[e.CourseID]
		scheduled[codeKey(c.Code)] = c
	}
	codes := lo.Keys(scheduled)
	sort.Strings(codes)

	var out []models.Conflict
	for _, code := range codes {
		course := scheduled[code]
		for _, ancestor := range graph.ancestors(code) {
			prereq, ok := scheduled[ancestor]
			if !ok {
				continue
			}
			out = append(out, models.Conflict{
				Type:    models.ConflictPrerequisiteOrderViolated,
				Message: fmt.Sprintf("%s is scheduled in the same semester as its prerequisite %s", courseLabel(course), courseLabel(prereq)),
				References: models.ConflictReferences{
					CourseIDs: []string{course.ID, prereq.ID},
				},
			})
		}
	}
	return out
}

var conflictOrder = map[models.ConflictType]int{
	models.ConflictFacultyDoubleBooked:       0,
	models.ConflictRoomDoubleBooked:          1,
	models.ConflictCapacityExceeded:          2,
	models.ConflictAvailabilityViolated:      3,
	models.ConflictUnassignedCourse:          4,
	models.ConflictPrerequisiteOrderViolated: 5,
}

func (d *Detector) order(conflicts []models.Conflict) {
	dayOf := func(c models.Conflict) int {
		if idx, ok := d.grid.DayIndex(c.References.Day); ok {
			return idx
		}
		return -1
	}
	sort.SliceStable(conflicts, func(i, j int) bool {
		a, b := conflicts[i], conflicts[j]
		if conflictOrder[a.Type] != conflictOrder[b.Type] {
			return conflictOrder[a.Type] < conflictOrder[b.Type]
		}
		if da, db := dayOf(a), dayOf(b); da != db {
			return da < db
		}
		if a.References.TimeSlot != b.References.TimeSlot {
			return a.References.TimeSlot < b.References.TimeSlot
		}
		ak, bk := strings.Join(a.References.CourseIDs, ","), strings.Join(b.References.CourseIDs, ",")
		if ak != bk {
			return ak < bk
		}
		if a.References.FacultyID != b.References.FacultyID {
			return a.References.FacultyID < b.References.FacultyID
		}
		if a.References.RoomID != b.References.RoomID {
			return a.References.RoomID < b.References.RoomID
		}
		return a.Message < b.Message
	})
}

func lessLocated(a, b located, courses map[string]models.Course) bool {
	if a.day != b.day {
		return a.day < b.day
	}
	if a.start != b.start {
		return a.start < b.start
	}
	if a.end != b.end {
		return a.end < b.end
	}
	ca, cb := courses[a.CourseID], courses[b.CourseID]
	if ca.Code != cb.Code {
		return ca.Code < cb.Code
	}
	if a.CourseID != b.CourseID {
		return a.CourseID < b.CourseID
	}
	if a.FacultyID != b.FacultyID {
		return a.FacultyID < b.FacultyID
	}
	return a.RoomID < b.RoomID
}

func courseLabel(c models.Course) string {
	if c.Name == "" {
		return c.Code
	}
	return fmt.Sprintf("%s (%s)", c.Name, c.Code)
}

func sortedIDs(a, b string) []string {
	if b < a {
		return []string{b, a}
	}
	return []string{a, b}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
