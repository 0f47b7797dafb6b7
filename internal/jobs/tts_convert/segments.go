package tts_convert

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// abbreviations never end a sentence even when followed by a capital.
var abbreviations = map[string]struct{}{
	"mr": {}, "mrs": {}, "ms": {}, "dr": {}, "prof": {}, "sr": {}, "jr": {},
	"st": {}, "mt": {}, "vs": {}, "etc": {}, "no": {}, "vol": {}, "ch": {},
	"fig": {}, "al": {}, "inc": {}, "ltd": {}, "co": {}, "pp": {}, "ed": {},
	"jan": {}, "feb": {}, "mar": {}, "apr": {}, "jun": {}, "jul": {}, "aug": {},
	"sep": {}, "sept": {}, "oct": {}, "nov": {}, "dec": {},
	"a.m": {}, "p.m": {}, "e.g": {}, "i.e": {}, "u.s": {}, "u.k": {},
}

// Segment splits text into synthesis requests of at most maxChars runes.
// Paragraph breaks always end a segment; within a paragraph whole sentences
// are packed together, and a sentence longer than maxChars is cut at clause
// punctuation.
func Segment(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultSegmentChars
	}

	var out []string
	for _, para := range paragraphs(text) {
		out = append(out, pack(sentences(para), maxChars)...)
	}
	return out
}

// paragraphs splits on blank lines and folds the remaining whitespace.
func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		if p := strings.Join(strings.Fields(block), " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sentences splits a single-line paragraph at sentence punctuation.
func sentences(p string) []string {
	var out []string
	start := 0
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if c == '.' && !periodEndsSentence(p, i) {
			continue
		}
		end, ok := sentenceEnd(p, i)
		if !ok {
			continue
		}
		if s := strings.TrimSpace(p[start:end]); s != "" {
			out = append(out, s)
		}
		start = end
	}
	if s := strings.TrimSpace(p[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func periodEndsSentence(p string, i int) bool {
	// Ellipsis.
	if (i > 0 && p[i-1] == '.') || (i+1 < len(p) && p[i+1] == '.') {
		return false
	}
	// Decimal number.
	if i > 0 && i+1 < len(p) && isDigit(p[i-1]) && isDigit(p[i+1]) {
		return false
	}

	j := i - 1
	for j >= 0 && !isWordBoundary(p[j]) {
		j--
	}
	word := p[j+1 : i]
	if word == "" {
		return true
	}
	// Initials.
	if len(word) == 1 && isLetter(word[0]) {
		return false
	}
	_, abbrev := abbreviations[strings.ToLower(word)]
	return !abbrev
}

// sentenceEnd returns the index just past the punctuation at i and any
// closing quotes, provided the next word looks like a new sentence.
func sentenceEnd(p string, i int) (int, bool) {
	end := i + 1
	for end < len(p) && isCloser(p[end]) {
		end++
	}
	if end >= len(p) {
		return end, true
	}
	if p[end] != ' ' {
		return 0, false
	}

	next := end + 1
	for next < len(p) && isOpener(p[next]) {
		next++
	}
	if next >= len(p) {
		return end, true
	}
	r, _ := utf8.DecodeRuneInString(p[next:])
	return end, unicode.IsUpper(r) || unicode.IsDigit(r)
}

// pack greedily joins sentences into segments of at most max runes.
func pack(sents []string, max int) []string {
	var out []string
	var cur strings.Builder
	curLen := 0

	flush := func() {
		if curLen > 0 {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
	}

	for _, s := range sents {
		n := utf8.RuneCountInString(s)
		if n > max {
			flush()
			out = append(out, splitLong(s, max)...)
			continue
		}
		if curLen > 0 && curLen+1+n > max {
			flush()
		}
		if curLen > 0 {
			cur.WriteByte(' ')
			curLen++
		}
		cur.WriteString(s)
		curLen += n
	}
	flush()
	return out
}

// splitLong cuts an oversized sentence, preferring the last clause
// punctuation in the back half of each window and falling back to the last
// space, then to a hard cut.
func splitLong(s string, max int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > max {
		cut := lastIndexFunc(runes[max/2:max], isClauseRune)
		if cut >= 0 {
			cut += max/2 + 1
		} else if sp := lastIndexFunc(runes[:max], unicode.IsSpace); sp > 0 {
			cut = sp
		} else {
			cut = max
		}
		if part := strings.TrimSpace(string(runes[:cut])); part != "" {
			out = append(out, part)
		}
		runes = runes[cut:]
	}
	if part := strings.TrimSpace(string(runes)); part != "" {
		out = append(out, part)
	}
	return out
}

func lastIndexFunc(rs []rune, f func(rune) bool) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if f(rs[i]) {
			return i
		}
	}
	return -1
}

func isClauseRune(r rune) bool {
	switch r {
	case ',', ';', ':', '—', '–':
		return true
	}
	return false
}

func isWordBoundary(c byte) bool {
	// Apostrophes stay inside words so "don't." still ends a sentence.
	return c == ' ' || c == '"' || c == '(' || c == '['
}

func isOpener(c byte) bool {
	return c == '"' || c == '\'' || c == '(' || c == '['
}

func isCloser(c byte) bool {
	return c == '"' || c == '\'' || c == ')' || c == ']'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
