package knowledge

import "strings"

// Chunk splits raw text into retrieval units, one per sentence. Segments
// are split on '.', trimmed, and empty or whitespace-only segments are
// dropped. Order follows the source text. A trailing unterminated sentence
// becomes one chunk; no size cap is applied here.
//
// Empty or whitespace-only input yields nil; callers must skip the
// embedding round-trip entirely in that case.
func Chunk(text string) []string {
	segments := strings.Split(strings.TrimSpace(text), ".")

	chunks := make([]string, 0, len(segments))
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		chunks = append(chunks, seg)
	}
	if len(chunks) == 0 {
		return nil
	}
	return chunks
}
