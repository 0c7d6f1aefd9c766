package apply

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/frostwillmott/applybot/pkg/hh"
)

func vacancyFixture() hh.Vacancy {
	return hh.Vacancy{
		ID:          "101",
		Name:        "Go Developer",
		Employer:    hh.Employer{Name: "Acme Software"},
		Description: "We build backend services in Go and Postgres.",
		KeySkills:   []hh.KeySkill{{Name: "Go"}, {Name: "PostgreSQL"}},
	}
}

func TestShouldApply_Passes(t *testing.T) {
	v := vacancyFixture()
	ok, reason := ShouldApply(&v, &BulkRequest{})
	assert.True(t, ok)
	assert.Equal(t, "Passed all filters", reason)
}

func TestShouldApply_RejectsArchived(t *testing.T) {
	v := vacancyFixture()
	v.Archived = true
	ok, reason := ShouldApply(&v, &BulkRequest{})
	assert.False(t, ok)
	assert.Equal(t, "Vacancy is archived", reason)
}

func TestShouldApply_RejectsExcludedCompany(t *testing.T) {
	v := vacancyFixture()
	ok, reason := ShouldApply(&v, &BulkRequest{ExcludeCompanies: []string{"acme"}})
	assert.False(t, ok)
	assert.Contains(t, reason, "Excluded company")
}

func TestShouldApply_RejectsMissingRequiredSkills(t *testing.T) {
	v := vacancyFixture()
	ok, reason := ShouldApply(&v, &BulkRequest{RequiredSkills: []string{"Go", "Kafka"}})
	assert.False(t, ok)
	assert.Equal(t, "Missing required skills: Kafka", reason)
}

func TestShouldApply_RequiredSkillInDescriptionCounts(t *testing.T) {
	v := vacancyFixture()
	v.KeySkills = nil
	ok, _ := ShouldApply(&v, &BulkRequest{RequiredSkills: []string{"Postgres"}})
	assert.True(t, ok)
}

func TestShouldApply_RejectsExcludedKeywords(t *testing.T) {
	v := vacancyFixture()
	v.Description = "Gambling platform backend"
	ok, reason := ShouldApply(&v, &BulkRequest{ExcludedKeywords: []string{"gambling"}})
	assert.False(t, ok)
	assert.Equal(t, "Found excluded keywords: gambling", reason)
}

func TestShouldApply_IsPure(t *testing.T) {
	v := vacancyFixture()
	req := BulkRequest{RequiredSkills: []string{"Go"}}
	ok1, reason1 := ShouldApply(&v, &req)
	ok2, reason2 := ShouldApply(&v, &req)
	assert.Equal(t, ok1, ok2)
	assert.Equal(t, reason1, reason2)
}
