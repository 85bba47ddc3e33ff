package extraction

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Candidate is an entity named by the LLM before it is located in the source.
type Candidate struct {
	Text       string
	EntityType string
	Confidence *float64
}

// TypeSet reports whether an entity type name is registered.
type TypeSet interface {
	Has(name string) bool
}

// NewTypeSet builds a case-insensitive TypeSet from names.
func NewTypeSet(names []string) TypeSet {
	s := make(typeSet, len(names))
	for _, n := range names {
		s[strings.ToUpper(strings.TrimSpace(n))] = struct{}{}
	}
	return s
}

type typeSet map[string]struct{}

func (s typeSet) Has(name string) bool {
	_, ok := s[strings.ToUpper(strings.TrimSpace(name))]
	return ok
}

type rawEntity struct {
	Text       string     `json:"text"`
	EntityType string     `json:"entity_type"`
	Type       string     `json:"type"`
	Confidence *flexFloat `json:"confidence"`
}

// flexFloat accepts 0.9 and "0.9".
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// ParseResponse turns raw LLM output into candidates. It tries JSON first
// ({"entities": [...]} or a bare array) and falls back to "text:TYPE" lines,
// keeping only types present in types. It never fails; unusable input
// yields an empty slice.
func ParseResponse(raw string, types TypeSet) []Candidate {
	body := stripCodeFence(strings.TrimSpace(raw))
	if body == "" {
		return []Candidate{}
	}
	if body[0] == '{' || body[0] == '[' {
		if cands, ok := parseJSON(body); ok {
			return cands
		}
	}
	return parseLines(body, types)
}

func parseJSON(body string) ([]Candidate, bool) {
	var items []rawEntity
	if body[0] == '{' {
		var wrapper struct {
			Entities []rawEntity `json:"entities"`
		}
		if err := json.Unmarshal([]byte(body), &wrapper); err != nil {
			return nil, false
		}
		items = wrapper.Entities
	} else if err := json.Unmarshal([]byte(body), &items); err != nil {
		return nil, false
	}

	out := make([]Candidate, 0, len(items))
	for _, it := range items {
		typ := it.EntityType
		if typ == "" {
			typ = it.Type
		}
		if strings.TrimSpace(it.Text) == "" || strings.TrimSpace(typ) == "" {
			continue
		}
		c := Candidate{Text: it.Text, EntityType: strings.ToUpper(strings.TrimSpace(typ))}
		if it.Confidence != nil {
			v := clamp01(float64(*it.Confidence))
			c.Confidence = &v
		}
		out = append(out, c)
	}
	return out, true
}

func parseLines(body string, types TypeSet) []Candidate {
	out := []Candidate{}
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			continue
		}
		text := strings.TrimSpace(parts[0])
		typ := strings.TrimSpace(parts[1])
		if text == "" || typ == "" || types == nil || !types.Has(typ) {
			continue
		}
		out = append(out, Candidate{Text: text, EntityType: strings.ToUpper(typ)})
	}
	return out
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
