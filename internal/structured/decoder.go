// Package structured validates model output against a declared shape and maps
// it field by field into a typed value.
package structured

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperjump/hanashi/internal/apperr"
)

// Field types understood by the validator.
const (
	TypeString      = "string"
	TypeStringArray = "string_array"
)

// Field declares one property of the expected JSON object.
type Field struct {
	Name        string
	Type        string
	Enum        []string
	Description string
}

// Schema describes the JSON object a model must produce and how to build T from it.
// Every declared field is required and no other field is allowed.
type Schema[T any] struct {
	Name   string
	Fields []Field
	// Build maps validated fields into T. It may still reject values.
	Build func(fields map[string]json.RawMessage) (T, error)
}

// JSONSchema renders the schema as a JSON Schema document.
func (s Schema[T]) JSONSchema() string {
	props := make(map[string]interface{}, len(s.Fields))
	required := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		p := map[string]interface{}{}
		switch f.Type {
		case TypeStringArray:
			p["type"] = "array"
			p["items"] = map[string]interface{}{"type": "string"}
		default:
			p["type"] = "string"
		}
		if len(f.Enum) > 0 {
			p["enum"] = f.Enum
		}
		if f.Description != "" {
			p["description"] = f.Description
		}
		props[f.Name] = p
		required = append(required, f.Name)
	}
	doc := map[string]interface{}{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
	b, _ := json.MarshalIndent(doc, "", "  ")
	return string(b)
}

// Instructions returns the text appended to a prompt to request this shape.
func (s Schema[T]) Instructions() string {
	return "Your response should be in JSON format.\n" +
		"Do not include any explanations, only provide a RFC8259 compliant JSON response following this format without deviation.\n" +
		"Do not include markdown code blocks in your response.\n" +
		"Here is the JSON Schema instance your output must adhere to:\n" +
		s.JSONSchema() + "\n"
}

// Decode validates raw against s and builds the typed value. Any mismatch is a
// decoding error; nothing is coerced or defaulted.
func Decode[T any](raw string, s Schema[T]) (*T, error) {
	op := "decode " + s.Name
	body := stripFences(raw)
	if body == "" {
		return nil, apperr.Errorf(apperr.KindDecoding, op, "empty model output")
	}
	dec := json.NewDecoder(strings.NewReader(body))
	var fields map[string]json.RawMessage
	if err := dec.Decode(&fields); err != nil {
		return nil, apperr.Errorf(apperr.KindDecoding, op, "output is not a JSON object: %v", err)
	}
	if fields == nil {
		return nil, apperr.Errorf(apperr.KindDecoding, op, "output is null")
	}
	if dec.More() {
		return nil, apperr.Errorf(apperr.KindDecoding, op, "trailing data after JSON object")
	}
	if err := s.validate(fields); err != nil {
		return nil, apperr.New(apperr.KindDecoding, op, err)
	}
	v, err := s.Build(fields)
	if err != nil {
		return nil, apperr.New(apperr.KindDecoding, op, err)
	}
	return &v, nil
}

func (s Schema[T]) validate(fields map[string]json.RawMessage) error {
	declared := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		declared[f.Name] = true
		raw, ok := fields[f.Name]
		if !ok {
			return fmt.Errorf("missing field %q", f.Name)
		}
		if err := checkType(f, raw); err != nil {
			return err
		}
	}
	var extra []string
	for name := range fields {
		if !declared[name] {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return fmt.Errorf("unexpected fields %q", extra)
	}
	return nil
}

func checkType(f Field, raw json.RawMessage) error {
	switch f.Type {
	case TypeStringArray:
		var v []string
		if err := json.Unmarshal(raw, &v); err != nil || v == nil {
			return fmt.Errorf("field %q must be an array of strings", f.Name)
		}
	default:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
			return fmt.Errorf("field %q must be a string", f.Name)
		}
		if len(f.Enum) > 0 && !contains(f.Enum, v) {
			return fmt.Errorf("field %q: %q is not one of %v", f.Name, v, f.Enum)
		}
	}
	return nil
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// stripFences removes a surrounding markdown code fence (``` or ```json), which
// models add despite being asked not to.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
