package apply

import (
	"regexp"
	"strings"
)

var (
	parensRe     = regexp.MustCompile(`\(([^)]*)\)`)
	dashRe       = strings.NewReplacer("-", " ", "–", " ", "—", " ")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// roleWords are position nouns a parenthetical keyword combines with, e.g.
// "Python разработчик (Django)" searches "Django разработчик" too.
var roleWords = []string{"разработчик", "developer", "инженер", "engineer", "программист"}

// ParseSearchQueries expands a human position string into board search
// queries: the cleaned main query plus one query per parenthetical keyword,
// each combined with the detected role word.
func ParseSearchQueries(position string) []string {
	var keywords []string
	for _, m := range parensRe.FindAllStringSubmatch(position, -1) {
		for _, part := range strings.Split(m[1], ",") {
			if kw := strings.TrimSpace(part); kw != "" {
				keywords = append(keywords, kw)
			}
		}
	}

	main := parensRe.ReplaceAllString(position, " ")
	main = dashRe.Replace(main)
	main = strings.TrimSpace(whitespaceRe.ReplaceAllString(main, " "))

	var role string
	mainLower := strings.ToLower(main)
	for _, w := range strings.Fields(mainLower) {
		for _, rw := range roleWords {
			if w == rw {
				role = rw
				break
			}
		}
		if role != "" {
			break
		}
	}

	seen := make(map[string]struct{})
	var queries []string
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" {
			return
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
	}

	add(main)
	for _, kw := range keywords {
		if role != "" {
			add(kw + " " + role)
		} else {
			add(kw)
		}
	}

	if len(queries) == 0 {
		add(strings.TrimSpace(position))
	}
	return queries
}
