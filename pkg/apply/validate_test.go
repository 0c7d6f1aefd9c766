package apply

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRequest_RequiresResumeID(t *testing.T) {
	result := ValidateRequest(&Request{Position: "Go Developer"})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "Resume ID is required")
}

func TestValidateRequest_DetectsTemplateContent(t *testing.T) {
	result := ValidateRequest(&Request{
		ResumeID: "r1",
		Resume:   "Lorem ipsum dolor sit amet",
	})
	assert.False(t, result.Valid)
	assert.Contains(t, result.Error, "lorem ipsum")
}

func TestValidateRequest_WarnsOnShortFields(t *testing.T) {
	result := ValidateRequest(&Request{
		ResumeID:   "r1",
		Skills:     "Go",
		Experience: "3 years",
	})
	assert.True(t, result.Valid)
	assert.Len(t, result.Warnings, 2)
}

func TestValidateCoverLetter_RejectsShort(t *testing.T) {
	assert.Error(t, ValidateCoverLetter("too short"))
	assert.Error(t, ValidateCoverLetter("   "+strings.Repeat("x", 40)+"   "))
	assert.NoError(t, ValidateCoverLetter(strings.Repeat("a decent letter ", 10)))
}
