// Package textnorm holds the text cleanup shared by embedding, retrieval and
// highlighting.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	specialChars = regexp.MustCompile(`[^\p{L}\p{N}_\s.,:;!?()-]`)
	whitespace   = regexp.MustCompile(`\s+`)
)

// Clean replaces characters outside letters, digits and basic punctuation
// with spaces, collapses whitespace and optionally drops stopwords.
func Clean(text string, dropStopwords bool) string {
	text = specialChars.ReplaceAllString(text, " ")
	text = strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
	if !dropStopwords || text == "" {
		return text
	}
	words := strings.Fields(text)
	kept := words[:0]
	for _, w := range words {
		if !IsStopword(w) {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

// Fingerprint returns the first n runes of the lowercased text.
func Fingerprint(text string, n int) string {
	r := []rune(strings.ToLower(text))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}

// Tokenize lowercases text and splits it on anything that is not a letter or
// digit. Tokens shorter than two runes are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// Terms is Tokenize without stopwords and duplicates, in first-seen order.
func Terms(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, tok := range Tokenize(text) {
		if IsStopword(tok) || seen[tok] {
			continue
		}
		seen[tok] = true
		out = append(out, tok)
	}
	return out
}

// IsStopword reports whether w (any case, surrounding punctuation ignored)
// is a common function word.
func IsStopword(w string) bool {
	w = strings.ToLower(strings.TrimFunc(w, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	return stopwords[w]
}

var stopwords = toSet(
	// English
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and",
	"any", "are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does", "doing",
	"down", "during", "each", "few", "for", "from", "further", "had", "has", "have",
	"having", "he", "her", "here", "hers", "herself", "him", "himself", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on", "once",
	"only", "or", "other", "our", "ours", "ourselves", "out", "over", "own", "same",
	"she", "should", "so", "some", "such", "than", "that", "the", "their", "theirs",
	"them", "themselves", "then", "there", "these", "they", "this", "those",
	"through", "to", "too", "under", "until", "up", "very", "was", "we", "were",
	"what", "when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your", "yours", "yourself", "yourselves",
	// Russian
	"и", "в", "во", "не", "что", "он", "на", "я", "с", "со", "как", "а", "то",
	"все", "она", "так", "его", "но", "да", "ты", "к", "у", "же", "вы", "за", "бы",
	"по", "только", "ее", "мне", "было", "вот", "от", "меня", "еще", "нет", "о",
	"из", "ему", "теперь", "когда", "даже", "ну", "ли", "если", "уже", "или", "ни",
	"быть", "был", "него", "до", "вас", "нибудь", "уж", "вам", "там", "потом",
	"себя", "ничего", "ей", "может", "они", "тут", "где", "есть", "надо", "ней",
	"для", "мы", "тебя", "их", "чем", "была", "сам", "чтоб", "без", "будто", "чего",
	"раз", "тоже", "себе", "под", "будет", "ж", "тогда", "кто", "этот", "того",
	"потому", "этого", "какой", "совсем", "ним", "здесь", "этом", "один", "почти",
	"мой", "тем", "чтобы", "нее", "были", "куда", "зачем", "всех", "можно", "при",
	"об", "хоть", "после", "над", "больше", "тот", "через", "эти", "нас", "про",
	"всего", "них", "какая", "много", "разве", "эту", "моя", "свою", "этой",
	"перед", "иногда", "лучше", "чуть", "том", "нельзя", "такой", "им", "более",
	"всегда", "конечно", "всю", "между",
)

func toSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
