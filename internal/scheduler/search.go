package scheduler

import (
	"context"
	"sort"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

const deadlineReason = "generation deadline exceeded before this hour was placed"

// unit is one course-hour, or a whole contiguous block when blocks are required.
type unit struct {
	course int
	length int
	reason string
}

type placement struct {
	unit    int
	faculty int
	room    int
	slot    int
}

// search is the mutable working set of one solve.
type search struct {
	grid    *Grid
	opts    Options
	index   *Index
	hints   Hints
	courses []courseInfo
	faculty []models.Faculty
	rooms   []models.Room
	units   []unit

	facultyBusy  arena
	roomBusy     arena
	courseBusy   arena
	facultyHours []int
	facultyDaily []int
	courseHits   []int

	committed  []placement
	failed     []int
	trials     int
	retries    int
	backtracks int
	expired    bool
}

func newSearch(grid *Grid, opts Options, index *Index, hints Hints, courses []courseInfo, faculty []models.Faculty, rooms []models.Room) *search {
	size := grid.Size()
	days := len(grid.days)
	s := &search{
		grid:         grid,
		opts:         opts,
		index:        index,
		hints:        hints,
		courses:      courses,
		faculty:      faculty,
		rooms:        rooms,
		facultyBusy:  newArena(size, len(faculty)),
		roomBusy:     newArena(size, len(rooms)),
		courseBusy:   newArena(size, len(courses)),
		facultyHours: make([]int, len(faculty)),
		facultyDaily: make([]int, len(faculty)*days),
		courseHits:   make([]int, len(courses)*len(faculty)),
	}

	for ci, info := range courses {
		hours := info.course.HoursPerWeek
		if hours <= 0 {
			continue
		}
		if opts.ContiguousBlocks {
			s.units = append(s.units, unit{course: ci, length: hours})
			continue
		}
		for h := 0; h < hours; h++ {
			s.units = append(s.units, unit{course: ci, length: 1})
		}
	}
	return s
}

// reserve blocks faculty and room slots already used by other published timetables.
func (s *search) reserve(entries []models.ScheduleEntry) {
	facultyRows := make(map[string]int, len(s.faculty))
	for i, f := range s.faculty {
		facultyRows[f.ID] = i
	}
	roomRows := make(map[string]int, len(s.rooms))
	for i, r := range s.rooms {
		roomRows[r.ID] = i
	}

	for _, e := range entries {
		for _, slot := range s.grid.overlapping(e.Day, e.StartTime, e.EndTime) {
			if f, ok := facultyRows[e.FacultyID]; ok {
				s.facultyBusy.row(f).set(slot)
				s.facultyHours[f]++
				day, _ := s.grid.Position(slot)
				s.facultyDaily[f*len(s.grid.days)+day]++
			}
			if r, ok := roomRows[e.RoomID]; ok {
				s.roomBusy.row(r).set(slot)
			}
		}
	}
}

func (s *search) run(ctx context.Context) {
	for ui := range s.units {
		u := &s.units[ui]
		if s.expired || ctx.Err() != nil {
			s.expired = true
			u.reason = deadlineReason
			s.failed = append(s.failed, ui)
			continue
		}
		if reason := s.courses[u.course].reason; reason != "" {
			u.reason = reason
			s.failed = append(s.failed, ui)
			continue
		}

		if p, ok := s.first(ui); ok {
			s.place(p)
			continue
		}
		if s.opts.Mode == ModeExhaustive && s.backtrack(ctx, ui) {
			continue
		}
		if ctx.Err() != nil {
			s.expired = true
			u.reason = deadlineReason
		} else {
			u.reason = s.diagnose(ui)
		}
		s.failed = append(s.failed, ui)
	}
}

// first returns the best-ranked placement for the unit, if any.
func (s *search) first(ui int) (placement, bool) {
	for _, c := range s.candidates(ui) {
		for _, r := range s.courses[s.units[ui].course].rooms {
			s.trials++
			if s.roomFree(r, c.slot, s.units[ui].length) {
				return placement{unit: ui, faculty: c.faculty, room: r, slot: c.slot}, true
			}
		}
	}
	return placement{}, false
}

// backtrack reopens the most recent commitments and searches them together
// with the failing unit. On failure the reopened placements are restored.
func (s *search) backtrack(ctx context.Context, failing int) bool {
	k := s.opts.BacktrackWindow
	if k > len(s.committed) {
		k = len(s.committed)
	}
	if k == 0 || s.retries >= s.opts.RetryBudget {
		return false
	}
	s.backtracks++

	reopened := append([]placement(nil), s.committed[len(s.committed)-k:]...)
	for i := len(reopened) - 1; i >= 0; i-- {
		s.release(reopened[i])
	}

	order := make([]int, 0, k+1)
	for _, p := range reopened {
		order = append(order, p.unit)
	}
	order = append(order, failing)

	if s.dfs(ctx, order, 0) {
		return true
	}

	for _, p := range reopened {
		s.place(p)
	}
	return false
}

func (s *search) dfs(ctx context.Context, order []int, depth int) bool {
	if depth == len(order) {
		return true
	}
	ui := order[depth]
	for _, c := range s.candidates(ui) {
		for _, r := range s.courses[s.units[ui].course].rooms {
			if s.retries >= s.opts.RetryBudget || ctx.Err() != nil {
				return false
			}
			s.retries++
			s.trials++
			if !s.roomFree(r, c.slot, s.units[ui].length) {
				continue
			}
			p := placement{unit: ui, faculty: c.faculty, room: r, slot: c.slot}
			s.place(p)
			if s.dfs(ctx, order, depth+1) {
				return true
			}
			s.release(p)
		}
	}
	return false
}

func (s *search) place(p placement) {
	s.apply(p, true)
	s.committed = append(s.committed, p)
}

func (s *search) release(p placement) {
	s.apply(p, false)
	for i := len(s.committed) - 1; i >= 0; i-- {
		if s.committed[i] == p {
			s.committed = append(s.committed[:i], s.committed[i+1:]...)
			break
		}
	}
}

func (s *search) apply(p placement, on bool) {
	u := s.units[p.unit]
	days := len(s.grid.days)
	day, _ := s.grid.Position(p.slot)
	delta := u.length
	if !on {
		delta = -delta
	}
	for i := 0; i < u.length; i++ {
		slot := p.slot + i
		if on {
			s.facultyBusy.row(p.faculty).set(slot)
			s.roomBusy.row(p.room).set(slot)
			s.courseBusy.row(u.course).set(slot)
		} else {
			s.facultyBusy.row(p.faculty).clear(slot)
			s.roomBusy.row(p.room).clear(slot)
			s.courseBusy.row(u.course).clear(slot)
		}
	}
	s.facultyHours[p.faculty] += delta
	s.facultyDaily[p.faculty*days+day] += delta
	s.courseHits[u.course*len(s.faculty)+p.faculty] += delta
}

func (s *search) roomFree(r, start, length int) bool {
	id := s.rooms[r].ID
	for i := 0; i < length; i++ {
		slot := start + i
		if !s.index.RoomAvailable(id, slot) || s.roomBusy.row(r).has(slot) {
			return false
		}
	}
	return true
}

func (s *search) diagnose(ui int) string {
	u := s.units[ui]
	info := s.courses[u.course]
	exhausted := true
	for _, f := range info.faculty {
		limit := s.faculty[f].MaxHoursPerWeek
		if limit <= 0 || s.facultyHours[f]+u.length <= limit {
			exhausted = false
			break
		}
	}
	if exhausted {
		return "qualified faculty have no remaining weekly hours"
	}
	if s.opts.Mode == ModeExhaustive && s.retries >= s.opts.RetryBudget {
		return "no free slot shared by a qualified faculty member and a suitable room within the retry budget"
	}
	return "no free slot shared by a qualified faculty member and a suitable room"
}

// export renders committed placements as entries ordered by slot then course.
func (s *search) export() []models.ScheduleEntry {
	type row struct {
		slot   int
		course int
		entry  models.ScheduleEntry
	}
	rows := make([]row, 0, len(s.committed))
	for _, p := range s.committed {
		u := s.units[p.unit]
		for i := 0; i < u.length; i++ {
			slot := p.slot + i
			day, idx := s.grid.Position(slot)
			gs := s.grid.slots[idx]
			rows = append(rows, row{slot: slot, course: u.course, entry: models.ScheduleEntry{
				CourseID:  s.courses[u.course].course.ID,
				FacultyID: s.faculty[p.faculty].ID,
				RoomID:    s.rooms[p.room].ID,
				Day:       s.grid.days[day],
				StartTime: gs.StartText(),
				EndTime:   gs.EndText(),
				TimeSlot:  gs.Label,
			}})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].slot != rows[j].slot {
			return rows[i].slot < rows[j].slot
		}
		a, b := s.courses[rows[i].course].course, s.courses[rows[j].course].course
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.ID < b.ID
	})
	out := make([]models.ScheduleEntry, len(rows))
	for i, r := range rows {
		out[i] = r.entry
	}
	return out
}

func (s *search) unplaced() []Unplaced {
	byCourse := map[int]*Unplaced{}
	var order []int
	for _, ui := range s.failed {
		u := s.units[ui]
		entry, ok := byCourse[u.course]
		if !ok {
			entry = &Unplaced{CourseID: s.courses[u.course].course.ID, Reason: u.reason}
			byCourse[u.course] = entry
			order = append(order, u.course)
		}
		entry.Hours += u.length
	}
	out := make([]Unplaced, 0, len(order))
	for _, ci := range order {
		out = append(out, *byCourse[ci])
	}
	return out
}
