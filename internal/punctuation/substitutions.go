package punctuation

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

const defaultLoopLimit = 30

type substitution interface {
	rewrite(input string) (string, bool)
}

// SubstitutionParser turns one rules-file line into a substitution.
type SubstitutionParser interface {
	Accepts(line string) bool
	Parse(line string) (substitution, error)
}

// Substitutions rewrites recognized text with user vocabulary fixes before
// punctuation runs. Rules are applied repeatedly until the text stops
// changing or the loop limit is reached.
type Substitutions struct {
	rules     []substitution
	loopLimit int
}

// LoadSubstitutions reads a rules file. A blank path or a missing file
// yields an empty rule set.
func LoadSubstitutions(path string, loopLimit int, parsers ...SubstitutionParser) (*Substitutions, error) {
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}
	if strings.TrimSpace(path) == "" {
		return &Substitutions{loopLimit: loopLimit}, nil
	}

	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Substitutions{loopLimit: loopLimit}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read substitutions %q: %w", path, err)
	}

	subs, err := ParseSubstitutions(string(contents), loopLimit, parsers...)
	if err != nil {
		return nil, fmt.Errorf("parse substitutions %q: %w", path, err)
	}
	return subs, nil
}

// ParseSubstitutions compiles rules from text. Extra parsers are consulted
// before the built-in sed and arrow forms.
func ParseSubstitutions(contents string, loopLimit int, parsers ...SubstitutionParser) (*Substitutions, error) {
	if loopLimit <= 0 {
		loopLimit = defaultLoopLimit
	}
	parsers = append(append([]SubstitutionParser{}, parsers...), sedParser{}, arrowParser{})

	var rules []substitution
	for number, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := parseLine(line, parsers)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", number+1, err)
		}
		rules = append(rules, rule)
	}
	return &Substitutions{rules: rules, loopLimit: loopLimit}, nil
}

func parseLine(line string, parsers []SubstitutionParser) (substitution, error) {
	for _, parser := range parsers {
		if parser.Accepts(line) {
			return parser.Parse(line)
		}
	}
	return nil, errors.New("unsupported rule format")
}

// Len reports how many rules were compiled.
func (s *Substitutions) Len() int {
	if s == nil {
		return 0
	}
	return len(s.rules)
}

// Apply rewrites text until no rule changes it.
func (s *Substitutions) Apply(text string) string {
	if s.Len() == 0 {
		return text
	}
	for pass := 0; pass < s.loopLimit; pass++ {
		changed := false
		for _, rule := range s.rules {
			if next, ok := rule.rewrite(text); ok {
				text = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return text
}

// arrowParser handles "spoken form => written form" literals, matched
// without regard to case.
type arrowParser struct{}

func (arrowParser) Accepts(line string) bool { return strings.Contains(line, "=>") }

func (arrowParser) Parse(line string) (substitution, error) {
	from, to, _ := strings.Cut(line, "=>")
	from = strings.TrimSpace(from)
	if from == "" {
		return nil, errors.New("literal rule source cannot be empty")
	}
	return patternRule{
		re:          regexp.MustCompile("(?i)" + regexp.QuoteMeta(from)),
		replacement: strings.TrimSpace(to),
		global:      true,
	}, nil
}

// sedParser handles s/pattern/replacement/flags with any punctuation
// delimiter. Matching is case-insensitive unless the pattern overrides it.
type sedParser struct{}

func (sedParser) Accepts(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1])
}

func (sedParser) Parse(line string) (substitution, error) {
	delim := line[1]
	pattern, rest, err := splitDelimited(line[2:], delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, rest, err := splitDelimited(rest, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	inline := "i"
	global := false
	for _, flag := range strings.TrimSpace(rest) {
		switch flag {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm', 's':
			if !strings.ContainsRune(inline, flag) {
				inline += string(flag)
			}
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + inline + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return patternRule{re: re, replacement: replacement, global: global}, nil
}

type patternRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func (r patternRule) rewrite(input string) (string, bool) {
	var output string
	if r.global {
		output = r.re.ReplaceAllString(input, r.replacement)
	} else {
		loc := r.re.FindStringSubmatchIndex(input)
		if loc == nil {
			return input, false
		}
		expanded := r.re.ExpandString(nil, r.replacement, input, loc)
		output = input[:loc[0]] + string(expanded) + input[loc[1]:]
	}
	return output, output != input
}

// splitDelimited reads up to the next unescaped delim. Escapes are kept so
// the regexp package sees them.
func splitDelimited(s string, delim byte) (string, string, error) {
	escaped := false
	for i := 0; i < len(s); i++ {
		switch {
		case escaped:
			escaped = false
		case s[i] == '\\':
			escaped = true
		case s[i] == delim:
			return s[:i], s[i+1:], nil
		}
	}
	if s == "" {
		return "", "", errors.New("unexpected end of expression")
	}
	return "", "", errors.New("unterminated expression")
}

func isWordByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == ' ' || c == '\t'
}
