package analyze

import (
	"encoding/json"
	"testing"
)

func TestExtractJSONBare(t *testing.T) {
	doc, err := ExtractJSON(`[{"id":"abc"}]`)
	if err != nil {
		t.Fatal(err)
	}
	if string(doc) != `[{"id":"abc"}]` {
		t.Errorf("doc = %s", doc)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	in := "Here are the results:\n```json\n{\"score\": 80}\n```\nLet me know."
	doc, err := ExtractJSON(in)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]int
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["score"] != 80 {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestExtractJSONEmbeddedInProse(t *testing.T) {
	in := `Sure! The array you asked for is [{"id":"x","score":5}] and that covers everything.`
	doc, err := ExtractJSON(in)
	if err != nil {
		t.Fatal(err)
	}
	var parsed []map[string]any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatal(err)
	}
	if len(parsed) != 1 || parsed[0]["id"] != "x" {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestExtractJSONBracesInsideStrings(t *testing.T) {
	in := `prefix {"text": "a value with } and { inside"} suffix`
	doc, err := ExtractJSON(in)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]string
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatal(err)
	}
	if parsed["text"] != "a value with } and { inside" {
		t.Errorf("parsed = %v", parsed)
	}
}

func TestExtractJSONPicksLargest(t *testing.T) {
	in := `{"small":1} some text {"bigger": {"nested": [1,2,3]}}`
	doc, err := ExtractJSON(in)
	if err != nil {
		t.Fatal(err)
	}
	var parsed map[string]any
	if err := json.Unmarshal(doc, &parsed); err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed["bigger"]; !ok {
		t.Errorf("should pick the largest document, got %s", doc)
	}
}

func TestExtractJSONNoDocument(t *testing.T) {
	if _, err := ExtractJSON("no structured data here at all"); err == nil {
		t.Error("prose without JSON should error")
	}
	if _, err := ExtractJSON("{broken: json"); err == nil {
		t.Error("unbalanced braces should error")
	}
}
