package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

func TestIndexMapsOnlyFullyCoveredSlots(t *testing.T) {
	grid := newTestGrid(t)
	f := lecturer("f1")
	f.Availability = only("monday", models.TimeInterval{Start: "09:30", End: "12:15"})
	r := room("r1", 40)

	ix := NewIndex(grid, []models.Faculty{f}, []models.Room{r})

	assert.False(t, ix.FacultyAvailable("f1", grid.Index(0, 0)), "09:00-10:00 is only partially covered")
	assert.True(t, ix.FacultyAvailable("f1", grid.Index(0, 1)))
	assert.True(t, ix.FacultyAvailable("f1", grid.Index(0, 2)))
	assert.False(t, ix.FacultyAvailable("f1", grid.Index(0, 3)))
	assert.False(t, ix.FacultyAvailable("f1", grid.Index(1, 1)))
	assert.Equal(t, 2, ix.FacultyFreeSlots("f1"))

	assert.True(t, ix.RoomAvailable("r1", grid.Index(4, 6)), "rooms without declared availability are always free")
	assert.False(t, ix.RoomAvailable("missing", 0))
}

func TestIndexPreferences(t *testing.T) {
	grid := newTestGrid(t)
	f := lecturer("f1")
	f.Preferences = models.Preferences{
		PreferredTimeSlots: []string{"morning", "not a slot"},
		AvoidTimeSlots:     []string{"Friday", "monday 09:00-10:00"},
	}

	ix := NewIndex(grid, []models.Faculty{f}, nil)

	assert.Equal(t, -1, ix.Preference("f1", grid.Index(1, 0)))
	assert.Equal(t, 0, ix.Preference("f1", grid.Index(0, 0)), "preferred and avoided cancel out")
	assert.Equal(t, 1, ix.Preference("f1", grid.Index(4, 5)))
	assert.Equal(t, 0, ix.Preference("f1", grid.Index(2, 4)))
}

func TestCoveredByRawIntervals(t *testing.T) {
	grid := newTestGrid(t)
	availability := only("tuesday", models.TimeInterval{Start: "08:00", End: "11:00"})

	assert.True(t, coveredBy(availability, grid, "Tuesday", 8*60+30, 10*60))
	assert.False(t, coveredBy(availability, grid, "Tuesday", 10*60+30, 11*60+30))
	assert.False(t, coveredBy(availability, grid, "Monday", 9*60, 10*60))
	assert.True(t, coveredBy(nil, grid, "Monday", 9*60, 10*60))
}
