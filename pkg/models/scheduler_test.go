package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScheduleDays(t *testing.T) {
	assert.Equal(t, []int{0, 1, 4}, ParseScheduleDays("mon,tue,fri"))
	assert.Equal(t, []int{5, 6}, ParseScheduleDays("SAT, sun"))
	// Unknown tokens are dropped; empty results fall back to weekdays.
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ParseScheduleDays("holiday"))
	assert.Equal(t, []int{0, 1, 2, 3, 4}, ParseScheduleDays(""))
}

func TestNewSearchCriteria_RejectsBlankPosition(t *testing.T) {
	_, err := NewSearchCriteria("   ", "r1")
	assert.Error(t, err)

	criteria, err := NewSearchCriteria(" Go Developer ", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Go Developer", criteria.Position)
	assert.True(t, criteria.UseCoverLetter)
}

func TestSchedulerSettings_Validate(t *testing.T) {
	valid := SchedulerSettings{
		UserID:                DefaultUserID,
		ScheduleHour:          9,
		ScheduleMinute:        0,
		Timezone:              "Europe/Moscow",
		MaxApplicationsPerRun: 10,
	}
	assert.NoError(t, valid.Validate())

	badHour := valid
	badHour.ScheduleHour = 24
	assert.Error(t, badHour.Validate())

	badZone := valid
	badZone.Timezone = "Mars/Olympus"
	assert.Error(t, badZone.Validate())

	badMax := valid
	badMax.MaxApplicationsPerRun = 51
	assert.Error(t, badMax.Validate())

	// enabled=true requires criteria with a position.
	enabled := valid
	enabled.Enabled = true
	assert.Error(t, enabled.Validate())

	enabled.SearchCriteria = &SearchCriteria{Position: ""}
	assert.Error(t, enabled.Validate())

	enabled.SearchCriteria = &SearchCriteria{Position: "Go Developer"}
	assert.NoError(t, enabled.Validate())
}

func TestSearchCriteria_JSONRoundTrip(t *testing.T) {
	criteria := SearchCriteria{
		Position:         "Python (Django)",
		ResumeID:         "r1",
		ExcludeCompanies: []string{"Acme"},
		RemoteOnly:       true,
		UseCoverLetter:   true,
	}

	value, err := criteria.Value()
	require.NoError(t, err)

	var decoded SearchCriteria
	require.NoError(t, decoded.Scan(value))
	assert.Equal(t, criteria, decoded)
}
