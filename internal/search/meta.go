package search

import (
	"fmt"

	"github.com/skarde/beacon/internal/analyzer"
	"github.com/skarde/beacon/internal/apperr"
)

// FieldMeta configures indexing for one document field. A nil analyzer
// list inherits the link's default chain.
type FieldMeta struct {
	Analyzers []string
}

// LinkMeta describes which document fields a link feeds into its view
// and how their values are tokenized. Values are immutable once built;
// changing a link's metadata means building a new link.
type LinkMeta struct {
	// Analyzers is the default analyzer chain, applied to every field
	// without an override. Defaults to the identity analyzer.
	Analyzers []string
	// Fields lists per-field overrides. With IncludeAllFields unset,
	// it is also the set of indexed fields.
	Fields map[string]FieldMeta
	// IncludeAllFields indexes every document field, not just the
	// ones listed in Fields.
	IncludeAllFields bool
	// TrackListPositions keeps array element order observable by
	// emitting positional field names for array values.
	TrackListPositions bool
}

// Definition keys owned by the metadata.
const (
	metaAnalyzersField          = "analyzers"
	metaFieldsField             = "fields"
	metaIncludeAllFieldsField   = "includeAllFields"
	metaTrackListPositionsField = "trackListPositions"
)

// ParseMeta builds link metadata from a definition. Malformed shapes
// and unknown analyzer names fail with ErrBadMetadata; the error
// message names the offending key.
func ParseMeta(def Definition) (*LinkMeta, error) {
	m := &LinkMeta{Analyzers: []string{analyzer.Default}}

	if raw, ok := def[metaAnalyzersField]; ok {
		names, err := stringList(raw)
		if err != nil {
			return nil, fmt.Errorf("search: meta: %s: %v: %w", metaAnalyzersField, err, apperr.ErrBadMetadata)
		}
		if len(names) == 0 {
			return nil, fmt.Errorf("search: meta: %s: empty analyzer list: %w", metaAnalyzersField, apperr.ErrBadMetadata)
		}
		m.Analyzers = names
	}
	for _, name := range m.Analyzers {
		if !analyzer.Valid(name) {
			return nil, fmt.Errorf("search: meta: unknown analyzer %q: %w", name, apperr.ErrBadMetadata)
		}
	}

	if raw, ok := def[metaFieldsField]; ok {
		fields, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("search: meta: %s: expected object: %w", metaFieldsField, apperr.ErrBadMetadata)
		}
		m.Fields = make(map[string]FieldMeta, len(fields))
		for name, rawField := range fields {
			fm, err := parseFieldMeta(rawField)
			if err != nil {
				return nil, fmt.Errorf("search: meta: field %q: %v: %w", name, err, apperr.ErrBadMetadata)
			}
			m.Fields[name] = fm
		}
	}

	var err error
	if m.IncludeAllFields, err = boolField(def, metaIncludeAllFieldsField); err != nil {
		return nil, err
	}
	if m.TrackListPositions, err = boolField(def, metaTrackListPositionsField); err != nil {
		return nil, err
	}

	return m, nil
}

func parseFieldMeta(raw any) (FieldMeta, error) {
	var fm FieldMeta
	if raw == nil {
		return fm, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return fm, fmt.Errorf("expected object")
	}
	if rawAnalyzers, ok := obj[metaAnalyzersField]; ok {
		names, err := stringList(rawAnalyzers)
		if err != nil {
			return fm, err
		}
		for _, name := range names {
			if !analyzer.Valid(name) {
				return fm, fmt.Errorf("unknown analyzer %q", name)
			}
		}
		fm.Analyzers = names
	}
	return fm, nil
}

func stringList(raw any) ([]string, error) {
	switch list := raw.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string list, got %T", raw)
	}
}

func boolField(def Definition, key string) (bool, error) {
	raw, ok := def[key]
	if !ok {
		return false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("search: meta: %s: expected bool, got %T: %w", key, raw, apperr.ErrBadMetadata)
	}
	return b, nil
}

// AnalyzersFor returns the analyzer chain for a field: the field's
// override when it has one, the default chain otherwise.
func (m *LinkMeta) AnalyzersFor(field string) []string {
	if fm, ok := m.Fields[field]; ok && len(fm.Analyzers) > 0 {
		return fm.Analyzers
	}
	return m.Analyzers
}

// Equal reports structural equality: same analyzer chains in the same
// order, same field set, same flags.
func (m *LinkMeta) Equal(other *LinkMeta) bool {
	if other == nil {
		return false
	}
	if m.IncludeAllFields != other.IncludeAllFields ||
		m.TrackListPositions != other.TrackListPositions ||
		!stringsEqual(m.Analyzers, other.Analyzers) ||
		len(m.Fields) != len(other.Fields) {
		return false
	}
	for name, fm := range m.Fields {
		otherFM, ok := other.Fields[name]
		if !ok || !stringsEqual(fm.Analyzers, otherFM.Analyzers) {
			return false
		}
	}
	return true
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Memory returns the approximate number of bytes the metadata occupies.
func (m *LinkMeta) Memory() int {
	const entryOverhead = 16
	n := 0
	for _, name := range m.Analyzers {
		n += len(name) + entryOverhead
	}
	for name, fm := range m.Fields {
		n += len(name) + entryOverhead
		for _, a := range fm.Analyzers {
			n += len(a) + entryOverhead
		}
	}
	return n
}

// fill writes the metadata's keys into def, defaults included, so that
// ParseMeta on the result rebuilds an equal LinkMeta.
func (m *LinkMeta) fill(def Definition) {
	def[metaAnalyzersField] = append([]string(nil), m.Analyzers...)
	fields := make(map[string]any, len(m.Fields))
	for name, fm := range m.Fields {
		field := map[string]any{}
		if len(fm.Analyzers) > 0 {
			field[metaAnalyzersField] = append([]string(nil), fm.Analyzers...)
		}
		fields[name] = field
	}
	def[metaFieldsField] = fields
	def[metaIncludeAllFieldsField] = m.IncludeAllFields
	def[metaTrackListPositionsField] = m.TrackListPositions
}
