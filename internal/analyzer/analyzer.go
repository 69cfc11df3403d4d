// Package analyzer provides the named token analyzers that search views
// use to turn document field values into indexed terms.
package analyzer

import (
	"fmt"
	"strings"
	"unicode"
)

// Analyzer turns a field value into the tokens a view stores for it.
type Analyzer interface {
	Name() string
	Tokens(value string) []string
}

// Default is the analyzer applied when link metadata names none.
const Default = "identity"

const delimiterPrefix = "delimiter:"

// Lookup resolves an analyzer by name. Known names are "identity",
// "text", and "delimiter:<sep>" where <sep> is a non-empty separator.
func Lookup(name string) (Analyzer, error) {
	switch {
	case name == "identity":
		return identity{}, nil
	case name == "text":
		return text{}, nil
	case strings.HasPrefix(name, delimiterPrefix):
		sep := strings.TrimPrefix(name, delimiterPrefix)
		if sep == "" {
			return nil, fmt.Errorf("analyzer: empty delimiter in %q", name)
		}
		return delimiter{sep: sep}, nil
	}
	return nil, fmt.Errorf("analyzer: unknown analyzer %q", name)
}

// Valid reports whether name resolves to a known analyzer.
func Valid(name string) bool {
	_, err := Lookup(name)
	return err == nil
}

// identity emits the whole value as a single exact token.
type identity struct{}

func (identity) Name() string { return "identity" }

func (identity) Tokens(value string) []string {
	if value == "" {
		return nil
	}
	return []string{value}
}

// text lowercases the value and splits it into unicode word tokens.
type text struct{}

func (text) Name() string { return "text" }

func (text) Tokens(value string) []string {
	fields := strings.FieldsFunc(strings.ToLower(value), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// delimiter splits the value on a fixed separator, dropping empty parts.
type delimiter struct {
	sep string
}

func (d delimiter) Name() string { return delimiterPrefix + d.sep }

func (d delimiter) Tokens(value string) []string {
	var out []string
	for _, part := range strings.Split(value, d.sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
