package skill

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is a span of cleaned text. Offset and Length count runes.
type Chunk struct {
	Content string
	Offset  int
	Length  int
}

// CleanText drops control characters and collapses whitespace runs into a
// single space. Newline runs collapse to one newline so paragraphs survive.
func CleanText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	pendingSpace, pendingNewline := false, false
	for _, r := range s {
		switch {
		case r == '\n':
			pendingNewline = true
		case unicode.IsSpace(r):
			pendingSpace = true
		case unicode.IsControl(r) || r == utf8.RuneError:
		default:
			if b.Len() > 0 {
				if pendingNewline {
					b.WriteByte('\n')
				} else if pendingSpace {
					b.WriteByte(' ')
				}
			}
			pendingSpace, pendingNewline = false, false
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Truncate keeps at most max runes of s. max <= 0 disables truncation.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	return string([]rune(s)[:max]), true
}

// Split cuts text into chunks of at most size runes, each starting overlap
// runes before the previous chunk ended. A cut prefers the last whitespace
// in the second half of the window.
func Split(text string, size, overlap int) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 || size <= 0 {
		return nil
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if cut := lastSpace(runes[start+size/2 : end]); cut >= 0 {
			end = start + size/2 + cut + 1
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{Content: content, Offset: start, Length: end - start})
		}
		if end == len(runes) {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}
