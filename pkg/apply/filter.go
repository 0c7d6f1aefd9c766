package apply

import (
	"fmt"
	"strings"

	"github.com/frostwillmott/applybot/pkg/hh"
)

// ShouldApply is the local filter engine. It is pure: the same vacancy and
// criteria always produce the same verdict. Salary, schedule, experience and
// employment are filtered server-side through search parameters, not here.
func ShouldApply(vacancy *hh.Vacancy, req *BulkRequest) (bool, string) {
	if vacancy.Archived {
		return false, "Vacancy is archived"
	}

	if len(req.ExcludeCompanies) > 0 {
		employer := strings.ToLower(vacancy.Employer.Name)
		for _, excluded := range req.ExcludeCompanies {
			if excluded != "" && strings.Contains(employer, strings.ToLower(excluded)) {
				return false, fmt.Sprintf("Excluded company: %s", vacancy.Employer.Name)
			}
		}
	}

	if len(req.RequiredSkills) > 0 {
		if missing := missingRequiredSkills(vacancy, req.RequiredSkills); len(missing) > 0 {
			return false, fmt.Sprintf("Missing required skills: %s", strings.Join(missing, ", "))
		}
	}

	if len(req.ExcludedKeywords) > 0 {
		if found := foundExcludedKeywords(vacancy, req.ExcludedKeywords); len(found) > 0 {
			return false, fmt.Sprintf("Found excluded keywords: %s", strings.Join(found, ", "))
		}
	}

	return true, "Passed all filters"
}

func missingRequiredSkills(vacancy *hh.Vacancy, required []string) []string {
	description := strings.ToLower(vacancy.Description)
	name := strings.ToLower(vacancy.Name)
	keySkills := make([]string, 0, len(vacancy.KeySkills))
	for _, s := range vacancy.KeySkills {
		keySkills = append(keySkills, strings.ToLower(s.Name))
	}

	var missing []string
	for _, skill := range required {
		lower := strings.ToLower(skill)
		if lower == "" {
			continue
		}
		inKeySkills := false
		for _, ks := range keySkills {
			if strings.Contains(ks, lower) {
				inKeySkills = true
				break
			}
		}
		if !inKeySkills && !strings.Contains(description, lower) && !strings.Contains(name, lower) {
			missing = append(missing, skill)
		}
	}
	return missing
}

func foundExcludedKeywords(vacancy *hh.Vacancy, excluded []string) []string {
	description := strings.ToLower(vacancy.Description)
	name := strings.ToLower(vacancy.Name)

	var found []string
	for _, keyword := range excluded {
		lower := strings.ToLower(keyword)
		if lower == "" {
			continue
		}
		if strings.Contains(description, lower) || strings.Contains(name, lower) {
			found = append(found, keyword)
		}
	}
	return found
}
