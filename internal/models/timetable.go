package models

import (
	"database/sql/driver"
	"time"
)

// TimetableStatus represents the lifecycle phase of a timetable.
type TimetableStatus string

const (
	TimetableStatusDraft     TimetableStatus = "draft"
	TimetableStatusPublished TimetableStatus = "published"
)

// ConflictType enumerates the constraint violations the detector reports.
type ConflictType string

const (
	ConflictFacultyDoubleBooked       ConflictType = "faculty_double_booked"
	ConflictRoomDoubleBooked          ConflictType = "room_double_booked"
	ConflictCapacityExceeded          ConflictType = "capacity_exceeded"
	ConflictAvailabilityViolated      ConflictType = "availability_violated"
	ConflictUnassignedCourse          ConflictType = "unassigned_course"
	ConflictPrerequisiteOrderViolated ConflictType = "prerequisite_order_violated"
)

// Timetable is a weekly schedule for one department and semester.
type Timetable struct {
	ID              string          `db:"id" json:"_id"`
	Name            string          `db:"name" json:"name"`
	Department      string          `db:"department" json:"department"`
	Semester        int             `db:"semester" json:"semester"`
	Year            int             `db:"academic_year" json:"year"`
	ConstraintsText string          `db:"constraints_text" json:"constraintsText,omitempty"`
	Status          TimetableStatus `db:"status" json:"status"`
	Schedule        []ScheduleEntry `db:"-" json:"schedule"`
	Conflicts       ConflictList    `db:"conflicts" json:"conflicts"`
	CreatedAt       time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updatedAt"`
}

// ScheduleEntry is one weekly occurrence of one course.
type ScheduleEntry struct {
	CourseID  string `db:"course_id" json:"courseId"`
	FacultyID string `db:"faculty_id" json:"facultyId"`
	RoomID    string `db:"room_id" json:"roomId"`
	Day       string `db:"day" json:"day"`
	StartTime string `db:"start_time" json:"startTime"`
	EndTime   string `db:"end_time" json:"endTime"`
	TimeSlot  string `db:"-" json:"timeSlot,omitempty"`
}

// TimetableEntryRow is the persisted form of a schedule entry.
type TimetableEntryRow struct {
	ID          string `db:"id"`
	TimetableID string `db:"timetable_id"`
	Position    int    `db:"position"`
	ScheduleEntry
}

// Conflict is a structured, non-fatal record of an unresolved constraint.
type Conflict struct {
	Type       ConflictType       `json:"type"`
	Message    string             `json:"message"`
	References ConflictReferences `json:"references"`
	// Reason keeps the solver's explanation for an unassigned course so later
	// validations can repeat it.
	Reason string `json:"reason,omitempty"`
}

// ConflictReferences points at the entities and slot implicated in a conflict.
type ConflictReferences struct {
	CourseIDs []string `json:"courseIds,omitempty"`
	FacultyID string   `json:"facultyId,omitempty"`
	RoomID    string   `json:"roomId,omitempty"`
	Day       string   `json:"day,omitempty"`
	TimeSlot  string   `json:"timeSlot,omitempty"`
}

// ConflictList is persisted as JSONB alongside the timetable row.
type ConflictList []Conflict

// Value marshals conflicts to JSON for persistence.
func (l ConflictList) Value() (driver.Value, error) {
	if l == nil {
		l = ConflictList{}
	}
	return marshalJSONColumn(l, "conflicts")
}

// Scan unmarshals a JSONB column into conflicts.
func (l *ConflictList) Scan(value interface{}) error {
	*l = ConflictList{}
	return scanJSONColumn(value, l, "conflicts")
}

// TimetableFilter captures filtering options for listing timetables.
type TimetableFilter struct {
	Department string
	Semester   int
	Year       int
	Status     TimetableStatus
}
