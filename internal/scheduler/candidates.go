package scheduler

import "sort"

// candidate is a (faculty, start slot) pair; rooms are tried in their static
// order for each pair, so the room is always the last tie-breaker.
type candidate struct {
	faculty    int
	slot       int
	continuity int
	score      int
}

// candidates lists every feasible (faculty, slot) pair for the unit ranked by
// soft preference (preferred, neutral, avoided), then continuity with earlier
// hours of the course, then grid order, then faculty order.
func (s *search) candidates(ui int) []candidate {
	u := s.units[ui]
	info := s.courses[u.course]
	days := len(s.grid.days)
	perDay := s.grid.SlotsPerDay()
	taught := false
	for _, f := range info.faculty {
		if s.courseHits[u.course*len(s.faculty)+f] > 0 {
			taught = true
			break
		}
	}

	var out []candidate
	for _, f := range info.faculty {
		fac := s.faculty[f]
		if fac.MaxHoursPerWeek > 0 && s.facultyHours[f]+u.length > fac.MaxHoursPerWeek {
			continue
		}
		continuity := 0
		if taught && s.courseHits[u.course*len(s.faculty)+f] == 0 {
			continuity = 1
		}

		for day := 0; day < days; day++ {
			if s.hints.DailyCap > 0 && s.facultyDaily[f*days+day]+u.length > s.hints.DailyCap {
				continue
			}
			for idx := 0; idx+u.length <= perDay; idx++ {
				start := s.grid.Index(day, idx)
				score, ok := s.slotScore(u, f, start)
				if !ok {
					continue
				}
				out = append(out, candidate{faculty: f, slot: start, continuity: continuity, score: score})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.score != b.score {
			return a.score < b.score
		}
		if a.continuity != b.continuity {
			return a.continuity < b.continuity
		}
		if a.slot != b.slot {
			return a.slot < b.slot
		}
		return a.faculty < b.faculty
	})
	return out
}

// slotScore checks the hard constraints for every slot of the unit starting
// at start and sums the soft preference scores.
func (s *search) slotScore(u unit, f, start int) (int, bool) {
	id := s.faculty[f].ID
	courseType := s.courses[u.course].course.Type
	score := 0
	for i := 0; i < u.length; i++ {
		slot := start + i
		if !s.index.FacultyAvailable(id, slot) ||
			s.facultyBusy.row(f).has(slot) ||
			s.courseBusy.row(u.course).has(slot) ||
			s.hints.Excluded(courseType, slot) {
			return 0, false
		}
		score += s.index.Preference(id, slot) + s.hints.Preference(courseType, slot)
	}
	return score, true
}
