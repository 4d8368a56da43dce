// Package stopseq finds stop phrases in streamed output.
package stopseq

import "strings"

// Matcher searches accumulated output for the earliest occurrence of any
// phrase. It remembers how much of the output it has already scanned so each
// Check only looks at the region a new match could start in; results are the
// same as a full scan.
type Matcher struct {
	phrases []string
	longest int
	scanned int
}

// New returns a matcher over the non-empty phrases.
func New(phrases ...string) *Matcher {
	m := &Matcher{}
	seen := make(map[string]struct{}, len(phrases))
	for _, p := range phrases {
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		m.phrases = append(m.phrases, p)
		m.longest = max(m.longest, len(p))
	}
	return m
}

// Empty reports whether there is nothing to match.
func (m *Matcher) Empty() bool { return m == nil || len(m.phrases) == 0 }

// Phrases returns the active phrases.
func (m *Matcher) Phrases() []string {
	if m == nil {
		return nil
	}
	return append([]string(nil), m.phrases...)
}

// Find returns the earliest byte offset at which any phrase occurs in text.
func (m *Matcher) Find(text string) (int, bool) {
	return m.findFrom(text, 0)
}

// Check is Find for text that only grew since the previous call.
func (m *Matcher) Check(text string) (int, bool) {
	if m.Empty() {
		return 0, false
	}
	from := 0
	if m.scanned > 0 && m.scanned <= len(text) {
		from = max(m.scanned-m.longest+1, 0)
	}
	m.scanned = len(text)
	return m.findFrom(text, from)
}

// Rewind forgets scan progress, for reuse on unrelated text.
func (m *Matcher) Rewind() {
	if m != nil {
		m.scanned = 0
	}
}

func (m *Matcher) findFrom(text string, from int) (int, bool) {
	if m.Empty() {
		return 0, false
	}
	best := -1
	window := text[from:]
	for _, p := range m.phrases {
		if i := strings.Index(window, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return 0, false
	}
	return from + best, true
}
