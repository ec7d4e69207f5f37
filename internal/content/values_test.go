package content

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, ""},
		{"string", "High", "High"},
		{"bool", true, "true"},
		{"whole float", 42.0, "42"},
		{"fraction", 2.5, "2.5"},
		{"int", 7, "7"},
		{"json number", json.Number("12"), "12"},
		{"time", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), "2026-01-02T03:04:05Z"},
		{"slice", []any{"a", 1.0}, `["a",1]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.in))
		})
	}
}

func TestData_Lookup(t *testing.T) {
	d := Data{
		"Name":    "x",
		"Address": map[string]any{"City": "Oslo"},
		"Empty":   nil,
	}

	v, ok := d.Lookup("Name")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = d.Lookup("Address.City")
	assert.True(t, ok)
	assert.Equal(t, "Oslo", v)

	v, ok = d.Lookup("Empty")
	assert.True(t, ok)
	assert.Nil(t, v)

	_, ok = d.Lookup("Address.Zip")
	assert.False(t, ok)

	_, ok = d.Lookup("Name.Inner")
	assert.False(t, ok)
}

func TestData_CloneIsDeep(t *testing.T) {
	d := Data{"Tags": []any{"a"}, "Meta": map[string]any{"k": "v"}}
	c := d.Clone()

	c["Tags"].([]any)[0] = "b"
	c["Meta"].(map[string]any)["k"] = "w"

	assert.Equal(t, "a", d["Tags"].([]any)[0])
	assert.Equal(t, "v", d["Meta"].(map[string]any)["k"])
}

func TestParseStatusAndSensitivity(t *testing.T) {
	s, err := ParseStatus("")
	assert.NoError(t, err)
	assert.Equal(t, StatusDraft, s)

	_, err = ParseStatus("Live")
	assert.Error(t, err)

	sv, err := ParseSensitivity("Hidden")
	assert.NoError(t, err)
	assert.Equal(t, SensitivityHidden, sv)

	_, err = ParseSensitivity("Secret")
	assert.Error(t, err)
}
