package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// TimeInterval is a half-open [Start, End) window expressed as HH:MM.
type TimeInterval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Availability maps a lower-case weekday to the intervals an entity can be booked.
type Availability map[string][]TimeInterval

// Declared reports whether any interval has been configured.
func (a Availability) Declared() bool {
	for _, intervals := range a {
		if len(intervals) > 0 {
			return true
		}
	}
	return false
}

// Value marshals availability to JSON for persistence.
func (a Availability) Value() (driver.Value, error) {
	if a == nil {
		a = Availability{}
	}
	return marshalJSONColumn(a, "availability")
}

// Scan unmarshals a JSONB column into availability.
func (a *Availability) Scan(value interface{}) error {
	*a = Availability{}
	return scanJSONColumn(value, a, "availability")
}

// StringList is a JSONB-backed list of tags or codes.
type StringList []string

// Value marshals the list to JSON for persistence.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return marshalJSONColumn(l, "string list")
}

// Scan unmarshals a JSONB column into the list.
func (l *StringList) Scan(value interface{}) error {
	*l = StringList{}
	return scanJSONColumn(value, l, "string list")
}

func marshalJSONColumn(v interface{}, name string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return data, nil
}

func scanJSONColumn(value interface{}, dst interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}
