package models

import (
	"database/sql/driver"
	"time"
)

// Faculty represents an instructor who can be assigned to courses.
type Faculty struct {
	ID              string       `db:"id" json:"_id"`
	Name            string       `db:"name" json:"name"`
	Email           string       `db:"email" json:"email,omitempty"`
	Department      string       `db:"department" json:"department"`
	Designation     string       `db:"designation" json:"designation,omitempty"`
	Specialization  StringList   `db:"specialization" json:"specialization"`
	MaxHoursPerWeek int          `db:"max_hours_per_week" json:"maxHoursPerWeek"`
	Availability    Availability `db:"availability" json:"availability"`
	Preferences     Preferences  `db:"preferences" json:"preferences"`
	CreatedAt       time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updatedAt"`
}

// Preferences are soft slot wishes used only to order candidates.
type Preferences struct {
	PreferredTimeSlots []string `json:"preferredTimeSlots"`
	AvoidTimeSlots     []string `json:"avoidTimeSlots"`
}

// Value marshals preferences to JSON for persistence.
func (p Preferences) Value() (driver.Value, error) {
	if p.PreferredTimeSlots == nil {
		p.PreferredTimeSlots = []string{}
	}
	if p.AvoidTimeSlots == nil {
		p.AvoidTimeSlots = []string{}
	}
	return marshalJSONColumn(p, "preferences")
}

// Scan unmarshals a JSONB column into preferences.
func (p *Preferences) Scan(value interface{}) error {
	*p = Preferences{}
	return scanJSONColumn(value, p, "preferences")
}

// FacultyFilter captures filtering options for listing faculty.
type FacultyFilter struct {
	Department string
	Search     string
}
