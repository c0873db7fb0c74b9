package analyze

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSON recovers a JSON document from model output that may wrap it
// in prose or a code fence. Fenced blocks are tried first, then the
// largest balanced object or array in the text. The raw document bytes
// are returned for the caller to unmarshal into its own shape.
func ExtractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if json.Valid([]byte(text)) {
		return []byte(text), nil
	}

	for _, fenced := range fencedBlocks(text) {
		if json.Valid([]byte(fenced)) {
			return []byte(fenced), nil
		}
	}

	if doc := largestBalanced(text); doc != "" {
		return []byte(doc), nil
	}
	return nil, fmt.Errorf("no JSON document in response")
}

// fencedBlocks returns the contents of every ``` fence in order.
func fencedBlocks(text string) []string {
	var blocks []string
	for {
		start := strings.Index(text, "```")
		if start < 0 {
			return blocks
		}
		text = text[start+3:]
		// Skip the language tag on the opening fence line.
		if nl := strings.IndexByte(text, '\n'); nl >= 0 && nl < 20 {
			text = text[nl+1:]
		}
		end := strings.Index(text, "```")
		if end < 0 {
			return blocks
		}
		blocks = append(blocks, strings.TrimSpace(text[:end]))
		text = text[end+3:]
	}
}

// largestBalanced finds the largest brace- or bracket-balanced substring
// that parses as JSON. Strings and escapes are honored so braces inside
// values do not break the scan.
func largestBalanced(text string) string {
	best := ""
	for i := 0; i < len(text); i++ {
		open := text[i]
		if open != '{' && open != '[' {
			continue
		}
		if end := matchBalanced(text, i); end > i {
			candidate := text[i : end+1]
			if len(candidate) > len(best) && json.Valid([]byte(candidate)) {
				best = candidate
			}
			i = end
		}
	}
	return best
}

// matchBalanced returns the index of the bracket closing the one at
// start, or -1 when the text ends first.
func matchBalanced(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
