// Package punctuation restores sentence punctuation on raw recognizer output.
package punctuation

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	terminalRunes = ".!?。！？"
	softRunes     = ",;:…、，"
)

// Engine cleans disfluencies and infers terminal punctuation. It holds no
// per-call state and is safe for concurrent use.
type Engine struct {
	subs *Substitutions
}

// New returns an engine. subs may be nil.
func New(subs *Substitutions) *Engine {
	return &Engine{subs: subs}
}

// Punctuate returns text with fillers removed, adjacent repeats collapsed,
// the first letter capitalized and exactly one terminal mark. An utterance of
// nothing but fillers yields "". Applying it to its own output returns the
// output unchanged.
func (e *Engine) Punctuate(text, language string) string {
	normalized := collapseSpace(text)
	if normalized == "" {
		return text
	}
	if e != nil && e.subs != nil {
		normalized = collapseSpace(e.subs.Apply(normalized))
		if normalized == "" {
			return ""
		}
	}

	lex := lexiconFor(language)
	tokens := strings.Fields(normalized)
	cleaned := dropRepeats(dropFillers(tokens, lex))
	if len(cleaned) == 0 {
		return ""
	}

	body := strings.TrimRightFunc(strings.Join(cleaned, " "), func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune(softRunes, r)
	})
	body = terminate(body, cores(cleaned), lex)
	return collapseSpace(capitalize(body))
}

func dropFillers(tokens []string, lex lexicon) []string {
	for {
		kept := make([]string, 0, len(tokens))
		tokenCores := cores(tokens)
		for i := 0; i < len(tokens); i++ {
			if n := lex.fillers.matchAt(tokenCores, i); n > 0 {
				i += n - 1
				continue
			}
			kept = append(kept, tokens[i])
		}
		// removal can join the halves of a multi-word filler
		if len(kept) == len(tokens) {
			return kept
		}
		tokens = kept
	}
}

func dropRepeats(tokens []string) []string {
	kept := make([]string, 0, len(tokens))
	last := ""
	for _, token := range tokens {
		core := tokenCore(token)
		if core != "" && core == last {
			continue
		}
		kept = append(kept, token)
		last = core
	}
	return kept
}

func terminate(body string, tokenCores []string, lex lexicon) string {
	if start := terminalRunStart(body); start < len(body) {
		first, _ := utf8.DecodeRuneInString(strings.TrimLeftFunc(body[start:], unicode.IsSpace))
		return strings.TrimRightFunc(body[:start], unicode.IsSpace) + string(first)
	}
	if body == "" {
		return lex.marks.period
	}

	switch {
	case isQuestion(body, tokenCores, lex):
		return body + lex.marks.question
	case lex.exclamations.matches(tokenCores, body) || strings.ContainsRune(body, '¡'):
		return body + lex.marks.exclamation
	default:
		// closures and unmatched text share the period
		return body + lex.marks.period
	}
}

func isQuestion(body string, tokenCores []string, lex lexicon) bool {
	if strings.ContainsRune(body, '¿') || lex.questions.matches(tokenCores, body) {
		return true
	}
	if len(tokenCores) < 2 {
		return false
	}
	_, modal := lex.modals[tokenCores[0]]
	return modal
}

// terminalRunStart returns the byte offset where the trailing run of
// terminal marks and spaces begins, or len(s) when s does not end in a mark.
func terminalRunStart(s string) int {
	start := len(s)
	sawMark := false
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(s[:start])
		if strings.ContainsRune(terminalRunes, r) {
			sawMark = true
		} else if !unicode.IsSpace(r) {
			break
		}
		start -= size
	}
	if !sawMark {
		return len(s)
	}
	for start < len(s) {
		r, size := utf8.DecodeRuneInString(s[start:])
		if !unicode.IsSpace(r) {
			break
		}
		start += size
	}
	return start
}

// capitalize uppercases the first letter unless a digit comes first.
func capitalize(s string) string {
	for i, r := range s {
		if unicode.IsDigit(r) {
			return s
		}
		if unicode.IsLetter(r) {
			upper := unicode.ToUpper(r)
			if upper == r {
				return s
			}
			return s[:i] + string(upper) + s[i+utf8.RuneLen(r):]
		}
	}
	return s
}

func cores(tokens []string) []string {
	out := make([]string, len(tokens))
	for i, token := range tokens {
		out[i] = tokenCore(token)
	}
	return out
}

// tokenCore lowercases a token and trims surrounding punctuation, keeping
// inner apostrophes and hyphens.
func tokenCore(token string) string {
	return strings.ToLower(strings.TrimFunc(token, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
