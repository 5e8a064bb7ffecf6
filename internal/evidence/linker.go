// Package evidence locates extracted quotes in the original scoped transcript
// text and attaches exact character offsets to them.
//
// The linker proceeds in two stages:
//
//  1. Exact substring search: the quote is looked up verbatim (then
//     case-insensitively) in the scope text. A hit scores 100 and carries
//     the precise offsets.
//
//  2. Fuzzy window scan: the scope text is tokenised into words with their
//     original offsets, and a sliding window of roughly the quote's word
//     count is ranked by Jaro-Winkler similarity against the quote. Double
//     Metaphone codes of the quote's first word pre-filter anchor positions
//     so the scan stays cheap on long scopes. The best window wins when its
//     score reaches the acceptance threshold (default 75/100).
//
// Quotes that cannot be located stay in the output with nil offsets — they
// are preserved for diagnostics but excluded from high-trust evidence by the
// validity filter.
//
// Offsets always index the ORIGINAL scope text, never a cleaned variant.
package evidence

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/personaforge/pkg/types"
)

const (
	defaultThreshold = 75.0

	// windowSlack widens the candidate window by this many words on each
	// side of the quote's word count, absorbing filler the model dropped.
	windowSlack = 2

	// maxQuoteWords caps the fuzzy scan; longer "quotes" are summaries, not
	// verbatim speech, and matching them is noise.
	maxQuoteWords = 60
)

// Option is a functional option for configuring a [Linker].
type Option func(*Linker)

// WithThreshold sets the minimum fuzzy match score (0–100) for a located
// span to be accepted. The default of 75 is an empirical constant — tune it
// against a labelled corpus rather than trusting it.
func WithThreshold(t float64) Option {
	return func(l *Linker) {
		l.threshold = t
	}
}

// Linker locates evidence quotes in scope text. Safe for concurrent use —
// read-only after construction.
type Linker struct {
	threshold float64
}

// New returns a [Linker] configured with the supplied options.
func New(opts ...Option) *Linker {
	l := &Linker{threshold: defaultThreshold}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Link locates each quote in the scope's original text and returns one
// [types.EvidenceItem] per surviving quote, in input order.
//
// Quotes rejected by the hygiene filter (interviewer questions, speaker-label
// lines, section headers) are dropped entirely. Quotes that pass hygiene but
// cannot be located are returned unlinked.
func (l *Linker) Link(scope *types.SpeakerScope, quotes []string) []types.EvidenceItem {
	words := tokenize(scope.Text)

	var items []types.EvidenceItem
	for _, q := range quotes {
		q = strings.TrimSpace(q)
		if !CleanQuote(q) {
			continue
		}
		item := l.locate(scope, words, q)
		items = append(items, item)
	}
	return items
}

// locate finds one quote in the scope text, exact first, fuzzy second.
func (l *Linker) locate(scope *types.SpeakerScope, words []token, quote string) types.EvidenceItem {
	item := types.EvidenceItem{
		Quote:   quote,
		Speaker: scope.Speaker,
	}

	if start, end, ok := indexExact(scope.Text, quote); ok {
		item.StartChar = &start
		item.EndChar = &end
		item.MatchScore = 100
		item.DocumentID = scope.DocumentFor(start)
		return item
	}

	start, end, score := l.fuzzyLocate(scope.Text, words, quote)
	if score >= l.threshold {
		item.StartChar = &start
		item.EndChar = &end
		item.MatchScore = score
		item.DocumentID = scope.DocumentFor(start)
	}
	return item
}

// indexExact returns the byte span of quote in text, trying a verbatim match
// before a case-insensitive scan. The scan folds rune by rune against the
// original bytes — lowering a whole copy of the text would shift offsets
// wherever case conversion changes rune widths (U+0130 "İ" lowers to a
// longer sequence).
func indexExact(text, quote string) (start, end int, ok bool) {
	if quote == "" {
		return 0, 0, false
	}
	if i := strings.Index(text, quote); i >= 0 {
		return i, i + len(quote), true
	}
	for i := range text {
		if n := foldPrefixLen(text[i:], quote); n >= 0 {
			return i, i + n, true
		}
	}
	return 0, 0, false
}

// foldPrefixLen returns the byte length of the prefix of s that matches
// quote case-insensitively, or -1 when s does not start with quote.
func foldPrefixLen(s, quote string) int {
	n := 0
	for _, qr := range quote {
		r, size := utf8.DecodeRuneInString(s[n:])
		if size == 0 || !foldEq(r, qr) {
			return -1
		}
		n += size
	}
	return n
}

// foldEq reports whether two runes are equal under Unicode simple folding,
// the same relation strings.EqualFold uses.
func foldEq(a, b rune) bool {
	if a == b {
		return true
	}
	for r := unicode.SimpleFold(a); r != a; r = unicode.SimpleFold(r) {
		if r == b {
			return true
		}
	}
	return false
}

// token is one whitespace-delimited word of the scope text with its
// original byte offsets.
type token struct {
	text  string
	start int
	end   int
}

func tokenize(text string) []token {
	var toks []token
	i := 0
	for i < len(text) {
		for i < len(text) && isSpace(text[i]) {
			i++
		}
		start := i
		for i < len(text) && !isSpace(text[i]) {
			i++
		}
		if i > start {
			toks = append(toks, token{text: text[start:i], start: start, end: i})
		}
	}
	return toks
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// fuzzyLocate slides word windows over the scope text and returns the
// best-scoring span. Scores are Jaro-Winkler similarity scaled to 0–100.
func (l *Linker) fuzzyLocate(text string, words []token, quote string) (start, end int, score float64) {
	qWords := strings.Fields(quote)
	if len(qWords) == 0 || len(qWords) > maxQuoteWords || len(words) == 0 {
		return 0, 0, 0
	}
	qNorm := normalizeForMatch(quote)

	anchors := anchorPositions(words, qWords[0])

	minW := len(qWords) - windowSlack
	if minW < 1 {
		minW = 1
	}
	maxW := len(qWords) + windowSlack

	best := -1.0
	for _, a := range anchors {
		for w := minW; w <= maxW; w++ {
			last := a + w - 1
			if last >= len(words) {
				break
			}
			window := text[words[a].start:words[last].end]
			s := matchr.JaroWinkler(normalizeForMatch(window), qNorm, false)
			if s > best {
				best = s
				start, end = words[a].start, words[last].end
			}
		}
	}
	if best < 0 {
		return 0, 0, 0
	}
	return start, end, best * 100
}

// anchorPositions returns candidate window start indices: words that equal
// the quote's first word case-insensitively or share a Double Metaphone code
// with it. When the phonetic pre-filter yields nothing, every position
// becomes an anchor (short scopes make the full scan affordable).
func anchorPositions(words []token, first string) []int {
	firstNorm := normalizeForMatch(first)
	p1, s1 := matchr.DoubleMetaphone(firstNorm)

	var anchors []int
	for i, w := range words {
		wn := normalizeForMatch(w.text)
		if wn == firstNorm {
			anchors = append(anchors, i)
			continue
		}
		p2, s2 := matchr.DoubleMetaphone(wn)
		if codesOverlap(p1, s1, p2, s2) {
			anchors = append(anchors, i)
		}
	}
	if anchors == nil {
		anchors = make([]int, len(words))
		for i := range words {
			anchors[i] = i
		}
	}
	return anchors
}

func codesOverlap(p1, s1, p2, s2 string) bool {
	if p1 == "" && s1 == "" {
		return false
	}
	return (p1 != "" && (p1 == p2 || p1 == s2)) ||
		(s1 != "" && (s1 == p2 || s1 == s2))
}

// normalizeForMatch lowercases and strips punctuation so fuzzy scoring
// compares speech content, not transcription formatting.
func normalizeForMatch(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r == '\n', r == '\t':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
