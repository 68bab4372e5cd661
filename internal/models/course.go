package models

import "time"

// CourseType classifies how a course is taught.
type CourseType string

const (
	CourseTypeLecture  CourseType = "lecture"
	CourseTypeLab      CourseType = "lab"
	CourseTypeTutorial CourseType = "tutorial"
)

// Course is a catalogue entry that needs weekly teaching hours.
type Course struct {
	ID                 string     `db:"id" json:"_id"`
	Code               string     `db:"code" json:"code"`
	Name               string     `db:"name" json:"name"`
	Department         string     `db:"department" json:"department"`
	Credits            int        `db:"credits" json:"credits"`
	Type               CourseType `db:"type" json:"type"`
	HoursPerWeek       int        `db:"hours_per_week" json:"hoursPerWeek"`
	Semester           int        `db:"semester" json:"semester"`
	Year               int        `db:"year" json:"year"`
	Prerequisites      StringList `db:"prerequisites" json:"prerequisites"`
	ExpectedEnrollment int        `db:"expected_enrollment" json:"expectedEnrollment,omitempty"`
	RequiredEquipment  StringList `db:"required_equipment" json:"requiredEquipment,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// CourseFilter captures filtering options for listing courses.
type CourseFilter struct {
	Department string
	Semester   int
	Year       int
	Type       CourseType
	Search     string
}
