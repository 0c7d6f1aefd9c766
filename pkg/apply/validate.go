package apply

import (
	"fmt"
	"strings"
)

// MinCoverLetterLength is the shortest letter accepted for submission.
const MinCoverLetterLength = 50

// templateIndicators mark content that was never personalized.
var templateIndicators = []string{"lorem ipsum", "sample text", "template"}

// ValidationResult is the outcome of request validation.
type ValidationResult struct {
	Valid    bool
	Error    string
	Warnings []string
}

// ValidateRequest checks an application request locally, before any
// outbound call.
func ValidateRequest(req *Request) ValidationResult {
	var warnings []string

	if req.Resume != "" && len(strings.TrimSpace(req.Resume)) < 100 {
		warnings = append(warnings, "Resume content is very short")
	}
	if req.Skills != "" && len(strings.TrimSpace(req.Skills)) < 20 {
		warnings = append(warnings, "Skills description is very brief")
	}
	if req.Experience != "" && len(strings.TrimSpace(req.Experience)) < 50 {
		warnings = append(warnings, "Experience description is quite short")
	}

	if strings.TrimSpace(req.ResumeID) == "" {
		return ValidationResult{
			Error: "Resume ID is required for application submission",
		}
	}

	content := strings.ToLower(req.Resume + " " + req.Skills + " " + req.Experience)
	for _, indicator := range templateIndicators {
		if strings.Contains(content, indicator) {
			return ValidationResult{
				Error: fmt.Sprintf("Template content detected: %s", indicator),
			}
		}
	}

	return ValidationResult{Valid: true, Warnings: warnings}
}

// ValidateCoverLetter rejects letters too short to be a real letter.
func ValidateCoverLetter(letter string) error {
	if len(strings.TrimSpace(letter)) < MinCoverLetterLength {
		return fmt.Errorf("cover letter must be at least %d characters", MinCoverLetterLength)
	}
	return nil
}
