// Package normalize turns raw spreadsheet headers and cells into the
// canonical form stored by the ingestion sink.
package normalize

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/formstream/backend/internal/models"
)

// Header canonicalizes a raw header cell for contract comparison: surrounding
// whitespace removed, lowercased. Applied to both the contract labels and the
// observed file headers so the two sides compare equal.
func Header(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Headers applies Header to every element.
func Headers(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = Header(s)
	}
	return out
}

// Key converts a header into the identifier used as a field key on stored
// records. Latin headers become a single camel-cased token ("Phone Number" ->
// "phoneNumber"). Headers containing Devanagari text keep their script
// unchanged and only have non-Devanagari characters stripped, since case
// folding has no meaning there. Key is idempotent: Key(Key(s)) == Key(s).
func Key(s string) string {
	s = strings.TrimSpace(s)
	if containsDevanagari(s) {
		return stripNonDevanagari(s)
	}
	segs := splitSegments(s)
	if len(segs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(segs[0]))
	for _, seg := range segs[1:] {
		lower := strings.ToLower(seg)
		r, size := utf8.DecodeRuneInString(lower)
		b.WriteRune(unicode.ToUpper(r))
		b.WriteString(lower[size:])
	}
	return b.String()
}

// splitSegments splits on separator characters and on camel-case boundaries,
// so an already-canonical key round-trips to itself.
func splitSegments(s string) []string {
	var segs []string
	var cur []rune
	runes := []rune(s)
	flush := func() {
		if len(cur) > 0 {
			segs = append(segs, string(cur))
			cur = cur[:0]
		}
	}
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if len(cur) > 0 && unicode.IsUpper(r) {
			prev := cur[len(cur)-1]
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			// boundary: aB, 1B, or the last capital of an acronym run (ABc)
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return segs
}

func containsDevanagari(s string) bool {
	for _, r := range s {
		if r >= 0x0900 && r <= 0x097F {
			return true
		}
	}
	return false
}

func stripNonDevanagari(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 0x0900 && r <= 0x097F {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Row builds the stored record for one source row. row is keyed by canonical
// header (see Header); expected is the canonical contract header list. Every
// contract header appears in the result; models.MissingValue fills headers
// absent from the row, while a present-but-blank cell stays blank.
func Row(documentID string, row map[string]string, expected []string) models.NormalizedRecord {
	fields := make(map[string]string, len(expected))
	for _, h := range expected {
		v, ok := row[h]
		if !ok {
			fields[Key(h)] = models.MissingValue
			continue
		}
		fields[Key(h)] = strings.TrimSpace(v)
	}
	return models.NormalizedRecord{DocumentID: documentID, Fields: fields}
}

// IsEmptyRow reports whether every cell is blank after trimming.
func IsEmptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
