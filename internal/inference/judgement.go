package inference

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Judgement is a parsed model verdict. Raw is the exact text that was parsed.
type Judgement struct {
	Raw    string
	Fields map[string]any
}

// MarshalJSON renders the decoded fields.
func (j *Judgement) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Fields)
}

// Reasoning returns the reasoning steps, or nil when absent.
func (j *Judgement) Reasoning() []string {
	items, ok := lookup(j.Fields, "reasoning", "reasoning_steps", "steps").([]any)
	if !ok {
		return nil
	}
	steps := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			steps = append(steps, s)
		}
	}
	return steps
}

// Answer interprets the conclusion. ok is false when it is missing or not
// boolean-like.
func (j *Judgement) Answer() (answer bool, ok bool) {
	switch v := lookup(j.Fields, "answer", "conclusion", "result").(type) {
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "yes", "true", "y":
			return true, true
		case "no", "false", "n":
			return false, true
		}
	}
	return false, false
}

func lookup(fields map[string]any, keys ...string) any {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return v
		}
	}
	return nil
}

var (
	errNotObject    = errors.New("response is not a JSON object")
	errTrailingData = errors.New("response has data after the JSON object")
)

// ParseJudgement strips an optional code fence from text and decodes the
// remainder as a JSON object.
func ParseJudgement(text string) (*Judgement, error) {
	cleaned := StripFence(text)

	// Numbers stay json.Number so the rendered judgement matches Raw exactly.
	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, errNotObject
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return &Judgement{Raw: cleaned, Fields: fields}, nil
}
