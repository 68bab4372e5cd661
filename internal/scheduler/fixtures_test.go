package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

var (
	testDays  = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}
	testSlots = []string{"09:00-10:00", "10:00-11:00", "11:15-12:15", "12:15-13:15", "14:15-15:15", "15:15-16:15", "16:30-17:30"}
)

func newTestGrid(t *testing.T) *Grid {
	t.Helper()
	grid, err := NewGrid(testDays, testSlots)
	require.NoError(t, err)
	return grid
}

func course(id, code string, hours int, tags ...string) models.Course {
	return models.Course{
		ID:                 id,
		Code:               code,
		Name:               "Course " + code,
		Department:         "CS",
		Type:               models.CourseTypeLecture,
		HoursPerWeek:       hours,
		Semester:           1,
		Year:               2026,
		Prerequisites:      tags,
		ExpectedEnrollment: 30,
	}
}

func lecturer(id string, specialization ...string) models.Faculty {
	return models.Faculty{ID: id, Name: "Faculty " + id, Department: "CS", Specialization: specialization}
}

func room(id string, capacity int) models.Room {
	return models.Room{ID: id, Name: "Room " + id, Capacity: capacity, Type: models.RoomTypeLectureHall}
}

func only(day string, intervals ...models.TimeInterval) models.Availability {
	return models.Availability{day: intervals}
}

func conflictTypes(conflicts []models.Conflict) []models.ConflictType {
	out := make([]models.ConflictType, len(conflicts))
	for i, c := range conflicts {
		out[i] = c.Type
	}
	return out
}
