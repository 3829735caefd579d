// Package intent maps free-text replies to coarse yes/no/help signals using
// keyword heuristics.
package intent

import (
	"strings"
	"unicode"
)

// Result is the classification of one reply.
//
// Exactly one of Affirmative and Negative is true. Ambiguous is set when
// neither keyword list matched; such input is treated as affirmative.
type Result struct {
	Affirmative bool `json:"affirmative"`
	Negative    bool `json:"negative"`
	HelpNeeded  bool `json:"help_needed"`
	Ambiguous   bool `json:"ambiguous"`
}

// Hints extends the keyword lists for a single question.
type Hints struct {
	Affirmative []string
	Negative    []string
}

// Classifier turns a reply into a Result.
type Classifier interface {
	Classify(text string, hints Hints) Result
}

var (
	defaultAffirmative = []string{"yes", "yeah", "yep", "yup", "sure", "ok", "okay", "ready", "full day", "half", "few"}
	defaultNegative    = []string{"no", "nope", "can't", "cannot", "not today", "not yet"}
	defaultHelp        = []string{"help", "stuck", "issue", "problem"}
)

// Keywords is the default Classifier. Matching is case-insensitive and
// anchored on word boundaries; there is no stemming.
type Keywords struct {
	Affirmative []string
	Negative    []string
	Help        []string
}

// NewKeywords returns a classifier with the stock word lists.
func NewKeywords() *Keywords {
	return &Keywords{
		Affirmative: defaultAffirmative,
		Negative:    defaultNegative,
		Help:        defaultHelp,
	}
}

var _ Classifier = (*Keywords)(nil)

// Classify implements Classifier. Ties and non-matches resolve affirmative.
func (k *Keywords) Classify(text string, hints Hints) Result {
	yes := hasDigit(text) ||
		MatchAny(text, k.Affirmative...) ||
		MatchAny(text, hints.Affirmative...)
	no := MatchAny(text, k.Negative...) || MatchAny(text, hints.Negative...)

	return Result{
		Affirmative: yes || !no,
		Negative:    no && !yes,
		HelpNeeded:  MatchAny(text, k.Help...),
		Ambiguous:   !yes && !no,
	}
}

// MatchAny reports whether text contains any of words as a whole word or
// phrase, ignoring case.
func MatchAny(text string, words ...string) bool {
	if len(words) == 0 {
		return false
	}
	haystack := normalize(text)
	for _, w := range words {
		if containsWord(haystack, normalize(w)) {
			return true
		}
	}
	return false
}

// Command reports whether the whole reply is one of the given commands,
// ignoring case, surrounding space and trailing punctuation.
func Command(text string, commands ...string) bool {
	t := strings.TrimRightFunc(normalize(strings.TrimSpace(text)), unicode.IsPunct)
	for _, c := range commands {
		if t == normalize(c) {
			return true
		}
	}
	return false
}

func normalize(s string) string {
	s = strings.ToLower(s)
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

func containsWord(haystack, word string) bool {
	if word == "" {
		return false
	}
	from := 0
	for {
		i := strings.Index(haystack[from:], word)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(word)
		if isBoundary(haystack, start-1) && isBoundary(haystack, end) {
			return true
		}
		from = start + 1
	}
}

func isBoundary(s string, i int) bool {
	if i < 0 || i >= len(s) {
		return true
	}
	c := rune(s[i])
	return !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '\'' || c == '_')
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
