package llm

import (
	"context"

	"github.com/frostwillmott/applybot/pkg/hh"
)

// CandidateProfile is the flattened view of a resume handed to the LLM.
type CandidateProfile struct {
	Name       string
	Email      string
	Position   string
	Experience string
	Skills     string
	Education  string
}

// Provider is the LLM capability used by the pipeline: compose a cover
// letter, answer screening questions. Backends may block for minutes;
// everything goes through context.
type Provider interface {
	// GenerateCoverLetter writes a letter tailored to the vacancy.
	GenerateCoverLetter(ctx context.Context, vacancy *hh.Vacancy, profile *CandidateProfile) (string, error)

	// AnswerScreeningQuestions answers each question, keyed by question ID.
	AnswerScreeningQuestions(ctx context.Context, questions []hh.Question, vacancy *hh.Vacancy, profile *CandidateProfile) (map[string]string, error)

	// GenerateReply drafts a response to an employer chat message.
	GenerateReply(ctx context.Context, employerMessage, vacancyTitle string, profile *CandidateProfile) (string, error)
}
