package apply

import (
	"fmt"
	"strings"

	"github.com/frostwillmott/applybot/pkg/hh"
	"github.com/frostwillmott/applybot/pkg/llm"
)

// BuildProfile flattens a board resume into the candidate profile handed to
// the LLM, falling back to request fields where the resume is blank.
func BuildProfile(resume *hh.Resume, req *Request) *llm.CandidateProfile {
	profile := &llm.CandidateProfile{
		Experience: req.Experience,
		Skills:     req.Skills,
		Position:   req.Position,
	}

	if resume == nil {
		return profile
	}

	if name := resume.FullName(); name != "" {
		profile.Name = name
	}
	if email := resume.Email(); email != "" {
		profile.Email = email
	}
	if resume.Title != "" {
		profile.Position = resume.Title
	}

	if exp := flattenExperience(resume.Experience); exp != "" {
		profile.Experience = exp
	}
	if skills := joinSkills(resume); skills != "" {
		profile.Skills = skills
	}
	if resume.Education != nil && len(resume.Education.Primary) > 0 {
		profile.Education = resume.Education.Primary[0].Name
	}

	return profile
}

// flattenExperience renders the work history as one entry per line.
func flattenExperience(entries []hh.ResumeExperience) string {
	var lines []string
	for _, e := range entries {
		header := e.Position
		if e.Company != "" {
			if header != "" {
				header = fmt.Sprintf("%s at %s", header, e.Company)
			} else {
				header = e.Company
			}
		}
		if e.Start != "" {
			period := e.Start
			if e.End != "" {
				period += " - " + e.End
			} else {
				period += " - present"
			}
			header = fmt.Sprintf("%s (%s)", header, period)
		}
		if desc := strings.TrimSpace(e.Description); desc != "" {
			header += ": " + desc
		}
		if header != "" {
			lines = append(lines, header)
		}
	}
	return strings.Join(lines, "\n")
}

func joinSkills(resume *hh.Resume) string {
	if len(resume.SkillSet) > 0 {
		return strings.Join(resume.SkillSet, ", ")
	}
	return strings.TrimSpace(resume.Skills)
}
