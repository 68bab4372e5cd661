package dto

import "github.com/noah-isme/timetable-scheduler-api/internal/models"

// CourseRequest is the create/update payload for a catalogue course.
type CourseRequest struct {
	Code               string            `json:"code" validate:"required,max=32"`
	Name               string            `json:"name" validate:"required,max=200"`
	Department         string            `json:"department" validate:"required,max=100"`
	Credits            int               `json:"credits" validate:"min=0,max=30"`
	Type               models.CourseType `json:"type" validate:"required,oneof=lecture lab tutorial"`
	HoursPerWeek       int               `json:"hoursPerWeek" validate:"required,min=1,max=40"`
	Semester           int               `json:"semester" validate:"required,min=1,max=12"`
	Year               int               `json:"year" validate:"omitempty,min=1,max=10"`
	Prerequisites      []string          `json:"prerequisites" validate:"omitempty,dive,required,max=32"`
	ExpectedEnrollment int               `json:"expectedEnrollment" validate:"min=0"`
	RequiredEquipment  []string          `json:"requiredEquipment" validate:"omitempty,dive,required"`
}

// FacultyRequest is the create/update payload for a faculty member.
type FacultyRequest struct {
	Name            string              `json:"name" validate:"required,max=200"`
	Email           string              `json:"email" validate:"omitempty,email"`
	Department      string              `json:"department" validate:"required,max=100"`
	Designation     string              `json:"designation" validate:"omitempty,max=100"`
	Specialization  []string            `json:"specialization" validate:"omitempty,dive,required"`
	MaxHoursPerWeek int                 `json:"maxHoursPerWeek" validate:"min=0,max=80"`
	Availability    models.Availability `json:"availability"`
	Preferences     models.Preferences  `json:"preferences"`
}

// RoomRequest is the create/update payload for a room.
type RoomRequest struct {
	Name         string              `json:"name" validate:"required,max=100"`
	Building     string              `json:"building" validate:"omitempty,max=100"`
	Floor        int                 `json:"floor"`
	Capacity     int                 `json:"capacity" validate:"required,min=1"`
	Type         models.RoomType     `json:"type" validate:"omitempty,oneof=lecture_hall lab seminar_room auditorium"`
	Equipment    []string            `json:"equipment" validate:"omitempty,dive,required"`
	Availability models.Availability `json:"availability"`
}
