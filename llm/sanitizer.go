package llm

import (
	"errors"
	"regexp"
	"strings"
)

// leakTerms - признаки того, что модель пересказала внутренние инструкции
// или раскрыла свою природу. Такой текст клиенту не отправляется.
var leakTerms = []string{
	"hasdebts", "has overdue debts",
	"system prompt", "developer prompt",
	"language model", "modelo de lenguaje",
	// только самоописания: "inteligencia artificial" в тексте про авто - нормально
	"as an ai", "i am an ai", "i'm an ai",
	"como una ia", "soy una ia",
	"soy una inteligencia artificial", "como inteligencia artificial",
}

var (
	markdownEmphasis = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	markdownHeading  = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	codeFence        = regexp.MustCompile("(?m)^```[a-zA-Z]*\\s*$")
	blankLines       = regexp.MustCompile(`\n{3,}`)
)

// Sanitize приводит ответ модели к простому тексту. Если в тексте есть следы
// внутренних инструкций, возвращает *Error вида KindRejected.
func Sanitize(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = codeFence.ReplaceAllString(text, "")
	text = markdownHeading.ReplaceAllString(text, "")
	text = markdownEmphasis.ReplaceAllString(text, "$2")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(trimQuotes(strings.TrimSpace(text)))

	if text == "" {
		return "", &Error{Kind: KindEmpty, Err: errors.New("nothing left after sanitizing")}
	}

	lower := strings.ToLower(text)
	for _, term := range leakTerms {
		if strings.Contains(lower, term) {
			return "", &Error{Kind: KindRejected, Err: errors.New("completion mentions " + term)}
		}
	}
	return text, nil
}

// trimQuotes снимает кавычки, в которые модель иногда оборачивает весь ответ
func trimQuotes(s string) string {
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"«", "»"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			inner := s[len(pair[0]) : len(s)-len(pair[1])]
			if !strings.Contains(inner, pair[0]) {
				return inner
			}
		}
	}
	return s
}
