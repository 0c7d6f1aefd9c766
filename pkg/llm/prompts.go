package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/frostwillmott/applybot/pkg/hh"
)

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

func stripHTML(s string) string {
	return htmlTagRe.ReplaceAllString(s, "")
}

func hasCyrillic(s string) bool {
	return strings.ContainsFunc(s, func(r rune) bool {
		return r >= 'а' && r <= 'я' || r >= 'А' && r <= 'Я' || r == 'ё' || r == 'Ё'
	})
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// coverLetterPrompt builds the letter prompt in the language the vacancy is
// written in.
func coverLetterPrompt(vacancy *hh.Vacancy, profile *CandidateProfile) string {
	requirements := vacancy.SnippetRequirement()
	responsibilities := vacancy.SnippetResponsibility()
	description := stripHTML(vacancy.Description)
	skills := strings.Join(vacancy.SkillNames(), ", ")

	company := orDefault(vacancy.Employer.Name, "the company")
	position := orDefault(vacancy.Name, "this position")

	if hasCyrillic(requirements + responsibilities + description) {
		name := orDefault(profile.Name, "Кандидат")
		return fmt.Sprintf(`Напишите профессиональное сопроводительное письмо для данной вакансии:

ДОЛЖНОСТЬ: %s
КОМПАНИЯ: %s

ТРЕБОВАНИЯ К КАНДИДАТУ:
%s

ОСНОВНЫЕ ОБЯЗАННОСТИ:
%s

КЛЮЧЕВЫЕ НАВЫКИ: %s

ОПИСАНИЕ ВАКАНСИИ:
%s

ПРОФИЛЬ КАНДИДАТА:
- Имя: %s
- Email: %s
- Опыт: %s
- Навыки: %s
- Образование: %s

ИНСТРУКЦИИ:
1. Напишите краткое, профессиональное сопроводительное письмо (200-300 слов)
2. Начните с обращения "Здравствуйте!" или "Добрый день!"
3. Выделите релевантный опыт, соответствующий требованиям вакансии
4. Завершите подписью с реальным именем кандидата и email

ВАЖНО:
- НЕ используйте плейсхолдеры вроде [Ваш email], [Дата], [Имя менеджера]
- Используйте ТОЛЬКО реальные данные кандидата из профиля выше
- Выводите ТОЛЬКО текст письма, ничего больше

Сгенерируйте сопроводительное письмо:`,
			position, company, requirements, responsibilities,
			orDefault(skills, "Не указаны"), clip(description, 800),
			name, profile.Email,
			orDefault(profile.Experience, "Не указан"),
			orDefault(profile.Skills, "Не указаны"),
			orDefault(profile.Education, "Не указано"))
	}

	name := orDefault(profile.Name, "Candidate")
	return fmt.Sprintf(`Write a professional cover letter for this job application:

POSITION: %s
COMPANY: %s

JOB REQUIREMENTS:
%s

KEY RESPONSIBILITIES:
%s

REQUIRED SKILLS: %s

JOB DESCRIPTION:
%s

CANDIDATE PROFILE:
- Name: %s
- Email: %s
- Experience: %s
- Skills: %s
- Education: %s

INSTRUCTIONS:
1. Write a concise, professional cover letter (200-300 words)
2. Start with "Dear Hiring Manager," or a similar professional greeting
3. Highlight relevant experience matching the job requirements
4. End with a signature using the real candidate name and email

IMPORTANT:
- Do NOT use placeholders like [Your email], [Date], [Manager name]
- Use ONLY real candidate data from the profile above
- Output ONLY the cover letter text, nothing else

Generate the cover letter:`,
		position, company, requirements, responsibilities,
		orDefault(skills, "Not specified"), clip(description, 800),
		name, profile.Email,
		orDefault(profile.Experience, "Not specified"),
		orDefault(profile.Skills, "Not specified"),
		orDefault(profile.Education, "Not specified"))
}

// screeningAnswerPrompt builds the prompt for one screening question.
func screeningAnswerPrompt(question string, vacancy *hh.Vacancy, profile *CandidateProfile) string {
	if hasCyrillic(question + vacancy.SnippetRequirement()) {
		return fmt.Sprintf(`Ответьте на вопрос работодателя по вакансии "%s" профессионально и кратко:

ВОПРОС: %s

ПРОФИЛЬ КАНДИДАТА:
- Опыт: %s
- Навыки: %s

Дайте краткий профессиональный ответ от первого лица. Выводите ТОЛЬКО текст ответа:`,
			vacancy.Name, question,
			orDefault(profile.Experience, "Не указан"),
			orDefault(profile.Skills, "Не указаны"))
	}
	return fmt.Sprintf(`Answer this job screening question for the "%s" vacancy professionally:

QUESTION: %s

CANDIDATE PROFILE:
- Experience: %s
- Skills: %s

Provide a brief, professional first-person answer. Output ONLY the answer text:`,
		vacancy.Name, question,
		orDefault(profile.Experience, "Not specified"),
		orDefault(profile.Skills, "Not specified"))
}

// replyPrompt builds the auto-reply prompt for an employer chat message.
func replyPrompt(employerMessage, vacancyTitle string, profile *CandidateProfile) string {
	if hasCyrillic(employerMessage) {
		return fmt.Sprintf(`Работодатель написал сообщение по вакансии "%s":

%s

Напишите вежливый, профессиональный ответ от лица кандидата (%s). Подтвердите заинтересованность и ответьте на заданные вопросы, используя профиль:
- Опыт: %s
- Навыки: %s

Выводите ТОЛЬКО текст ответа:`,
			vacancyTitle, employerMessage, orDefault(profile.Name, "Кандидат"),
			orDefault(profile.Experience, "Не указан"),
			orDefault(profile.Skills, "Не указаны"))
	}
	return fmt.Sprintf(`An employer sent a message regarding the "%s" vacancy:

%s

Write a polite, professional reply on behalf of the candidate (%s). Confirm interest and address any questions using the profile:
- Experience: %s
- Skills: %s

Output ONLY the reply text:`,
		vacancyTitle, employerMessage, orDefault(profile.Name, "Candidate"),
		orDefault(profile.Experience, "Not specified"),
		orDefault(profile.Skills, "Not specified"))
}
