package content

import (
	"fmt"
	"time"
)

// Status is the publication state of a content item.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPublished Status = "Published"
	StatusArchived  Status = "Archived"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPublished, StatusArchived:
		return true
	}
	return false
}

// ParseStatus converts a string to a Status. An empty string yields StatusDraft.
func ParseStatus(s string) (Status, error) {
	if s == "" {
		return StatusDraft, nil
	}
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

// Sensitivity is the coarse read classification of a content item.
type Sensitivity string

const (
	SensitivityPublic    Sensitivity = "Public"
	SensitivitySensitive Sensitivity = "Sensitive"
	SensitivityHidden    Sensitivity = "Hidden"
)

// Valid reports whether s is one of the known classifications.
func (s Sensitivity) Valid() bool {
	switch s {
	case SensitivityPublic, SensitivitySensitive, SensitivityHidden:
		return true
	}
	return false
}

// ParseSensitivity converts a string to a Sensitivity. An empty string yields
// SensitivityPublic.
func ParseSensitivity(s string) (Sensitivity, error) {
	if s == "" {
		return SensitivityPublic, nil
	}
	sv := Sensitivity(s)
	if !sv.Valid() {
		return "", fmt.Errorf("unknown sensitivity %q", s)
	}
	return sv, nil
}

// Data is the free-form field map of a content item.
type Data map[string]any

// Clone returns a deep copy of d. Nested maps and slices are copied so that
// the clone can be mutated without affecting d.
func (d Data) Clone() Data {
	if d == nil {
		return Data{}
	}
	out := make(Data, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = cloneValue(e)
		}
		return m
	case Data:
		return val.Clone()
	case []any:
		s := make([]any, len(val))
		for i, e := range val {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Content is the current state of a content item, derived from its event stream.
type Content struct {
	ID             string      `json:"id"`
	ContentType    string      `json:"content_type"`
	Data           Data        `json:"data"`
	Status         Status      `json:"status"`
	Sensitivity    Sensitivity `json:"sensitivity"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	LastModifiedBy string      `json:"last_modified_by"`
	Version        int64       `json:"version"`
	Deleted        bool        `json:"deleted,omitempty"`
}

// Clone returns a deep copy of c. A nil receiver yields nil.
func (c *Content) Clone() *Content {
	if c == nil {
		return nil
	}
	out := *c
	out.Data = c.Data.Clone()
	return &out
}
