package punctuation

import "strings"

// terminalMarks are the sentence-ending marks for a script.
type terminalMarks struct {
	question    string
	exclamation string
	period      string
}

var (
	latinMarks    = terminalMarks{question: "?", exclamation: "!", period: "."}
	fullwidthMark = terminalMarks{question: "？", exclamation: "！", period: "。"}
)

// cueSet matches lexical cues either as whole-token phrases or, for scripts
// written without spaces, as raw substrings.
type cueSet struct {
	phrases   [][]string
	fragments []string
}

func (c cueSet) matches(cores []string, text string) bool {
	for _, phrase := range c.phrases {
		if indexPhrase(cores, phrase, 0) >= 0 {
			return true
		}
	}
	for _, fragment := range c.fragments {
		if strings.Contains(text, fragment) {
			return true
		}
	}
	return false
}

// matchAt reports the length of the longest phrase starting at cores[i].
func (c cueSet) matchAt(cores []string, i int) int {
	best := 0
	for _, phrase := range c.phrases {
		if len(phrase) > best && hasPhraseAt(cores, phrase, i) {
			best = len(phrase)
		}
	}
	return best
}

type lexicon struct {
	fillers      cueSet
	questions    cueSet
	modals       map[string]struct{}
	exclamations cueSet
	closures     cueSet
	marks        terminalMarks
}

type lexiconSpec struct {
	fillers      []string
	questions    []string
	modals       []string
	exclamations []string
	closures     []string
	// fragment cues are matched as substrings
	questionFragments    []string
	exclamationFragments []string
	fullwidth            bool
}

var englishSpec = lexiconSpec{
	fillers: []string{"um", "umm", "uh", "uhh", "er", "erm", "ah", "hmm", "mm", "well", "you know", "i mean"},
	questions: []string{
		"what", "when", "where", "who", "why", "how", "which", "whose", "whom",
	},
	modals: []string{
		"is", "are", "was", "were", "do", "does", "did", "can", "could",
		"will", "would", "should", "may", "might", "shall", "have", "has",
	},
	exclamations: []string{
		"wow", "oh", "ooh", "amazing", "incredible", "fantastic", "great", "excellent",
		"perfect", "wonderful", "terrible", "awful", "horrible",
		"stop", "wait", "no", "yes", "please", "thank you", "thanks",
		"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
		"goodbye", "bye", "see you",
	},
	closures: []string{"period", "full stop", "that's it", "that is all", "done", "finish", "complete"},
}

var languageSpecs = map[string]lexiconSpec{
	"es": {
		fillers:   []string{"eh", "em", "mmm", "o sea"},
		questions: []string{"qué", "cuándo", "dónde", "quién", "por qué", "cómo", "cuál"},
		exclamations: []string{
			"hola", "buenos días", "buenas tardes", "buenas noches", "adiós",
			"hasta luego", "por favor", "gracias", "perdón",
		},
	},
	"fr": {
		fillers:   []string{"euh", "bah", "ben", "hein"},
		questions: []string{"qu'est-ce que", "quand", "où", "qui", "pourquoi", "comment", "quel", "quelle"},
		exclamations: []string{
			"bonjour", "bonsoir", "au revoir", "s'il vous plaît", "merci", "pardon", "excusez-moi",
		},
	},
	"de": {
		fillers:   []string{"äh", "ähm", "öh", "hm"},
		questions: []string{"was", "wann", "wo", "wer", "warum", "wie", "welcher", "welche"},
		exclamations: []string{
			"hallo", "guten tag", "guten abend", "auf wiedersehen", "bitte", "danke", "entschuldigung",
		},
	},
	"zh": {
		fillers:              []string{"嗯", "呃", "那个"},
		questionFragments:    []string{"什么", "哪里", "谁", "为什么", "怎么", "哪个", "吗"},
		exclamationFragments: []string{"你好", "早上好", "下午好", "晚上好", "再见", "谢谢", "请", "对不起"},
		fullwidth:            true,
	},
	"ja": {
		fillers:              []string{"えーと", "あの", "えっと"},
		questionFragments:    []string{"何", "いつ", "どこ", "誰", "なぜ", "どう", "どちら"},
		exclamationFragments: []string{"こんにちは", "おはよう", "こんばんは", "さようなら", "ありがとう", "お願い", "すみません"},
		fullwidth:            true,
	},
}

var lexicons = buildLexicons()

func buildLexicons() map[string]lexicon {
	built := map[string]lexicon{"en": compileLexicon(englishSpec, lexiconSpec{})}
	for code, spec := range languageSpecs {
		built[code] = compileLexicon(englishSpec, spec)
	}
	return built
}

// compileLexicon extends base with the language-specific overlay.
func compileLexicon(base lexiconSpec, overlay lexiconSpec) lexicon {
	marks := latinMarks
	if overlay.fullwidth {
		marks = fullwidthMark
	}

	modals := make(map[string]struct{}, len(base.modals)+len(overlay.modals))
	for _, word := range append(append([]string{}, base.modals...), overlay.modals...) {
		modals[word] = struct{}{}
	}

	return lexicon{
		fillers:   cueSet{phrases: splitPhrases(base.fillers, overlay.fillers)},
		questions: cueSet{phrases: splitPhrases(base.questions, overlay.questions), fragments: overlay.questionFragments},
		modals:    modals,
		exclamations: cueSet{
			phrases:   splitPhrases(base.exclamations, overlay.exclamations),
			fragments: overlay.exclamationFragments,
		},
		closures: cueSet{phrases: splitPhrases(base.closures, overlay.closures)},
		marks:    marks,
	}
}

func splitPhrases(groups ...[]string) [][]string {
	var phrases [][]string
	for _, group := range groups {
		for _, phrase := range group {
			words := strings.Fields(strings.ToLower(phrase))
			if len(words) > 0 {
				phrases = append(phrases, words)
			}
		}
	}
	return phrases
}

// lexiconFor resolves "en-US" style codes to a lexicon, defaulting to English.
func lexiconFor(language string) lexicon {
	code := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		code = code[:i]
	}
	if lex, ok := lexicons[code]; ok {
		return lex
	}
	return lexicons["en"]
}

func hasPhraseAt(cores []string, phrase []string, i int) bool {
	if i+len(phrase) > len(cores) {
		return false
	}
	for j, word := range phrase {
		if cores[i+j] != word {
			return false
		}
	}
	return true
}

func indexPhrase(cores []string, phrase []string, from int) int {
	for i := from; i+len(phrase) <= len(cores); i++ {
		if hasPhraseAt(cores, phrase, i) {
			return i
		}
	}
	return -1
}
