package dto

import "github.com/noah-isme/timetable-scheduler-api/internal/models"

// GenerateTimetableRequest asks the engine for a new draft timetable.
type GenerateTimetableRequest struct {
	Name            string `json:"name" validate:"omitempty,max=200"`
	Department      string `json:"department" validate:"required,max=100"`
	Semester        int    `json:"semester" validate:"required,min=1,max=12"`
	AcademicYear    int    `json:"academicYear" validate:"required,min=1"`
	ConstraintsText string `json:"constraintsText" validate:"max=4000"`
}

// ScheduleEntryInput is one manually edited schedule row.
type ScheduleEntryInput struct {
	CourseID  string `json:"courseId" validate:"required"`
	FacultyID string `json:"facultyId" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
	Day       string `json:"day" validate:"required"`
	StartTime string `json:"startTime" validate:"required"`
	EndTime   string `json:"endTime" validate:"required"`
	TimeSlot  string `json:"timeSlot,omitempty"`
}

// UpdateTimetableRequest is the full timetable body the admin client sends
// back on PUT. A nil Schedule leaves the stored schedule untouched.
type UpdateTimetableRequest struct {
	Name            string                 `json:"name" validate:"omitempty,max=200"`
	Status          models.TimetableStatus `json:"status" validate:"omitempty,oneof=draft published"`
	ConstraintsText *string                `json:"constraintsText" validate:"omitempty,max=4000"`
	Schedule        []ScheduleEntryInput   `json:"schedule" validate:"omitempty,dive"`
}

// Entries converts the edited rows into schedule entries.
func (r UpdateTimetableRequest) Entries() []models.ScheduleEntry {
	if r.Schedule == nil {
		return nil
	}
	entries := make([]models.ScheduleEntry, 0, len(r.Schedule))
	for _, in := range r.Schedule {
		entries = append(entries, models.ScheduleEntry{
			CourseID:  in.CourseID,
			FacultyID: in.FacultyID,
			RoomID:    in.RoomID,
			Day:       in.Day,
			StartTime: in.StartTime,
			EndTime:   in.EndTime,
		})
	}
	return entries
}

// GridSlot is one configured time interval.
type GridSlot struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// GridResponse describes the weekly slot grid.
type GridResponse struct {
	Days  []string   `json:"days"`
	Slots []GridSlot `json:"slots"`
}
