package search

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/skarde/beacon/internal/apperr"
)

// LinkType is the type tag every link definition carries.
const LinkType = "fulltext"

// Definition keys owned by the link itself. The metadata keys live in
// meta.go.
const (
	defTypeField    = "type"
	defIDField      = "id"
	defViewField    = "view"
	defSkipField    = "skipViewRegistration"
	defFiguresField = "figures"
)

// Definition is the JSON-shaped description of a link: the document a
// link is built from and serialized back into.
type Definition map[string]any

// Type returns the definition's type tag, if present.
func (d Definition) Type() (string, bool) {
	raw, ok := d[defTypeField]
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

// ViewID returns the view identifier named by the definition. The
// second result is false when the key is absent. A value that is not
// an unsigned integer fails with ErrBadParameter.
func (d Definition) ViewID() (uint64, bool, error) {
	raw, ok := d[defViewField]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case uint64:
		return v, true, nil
	case int:
		if v < 0 {
			return 0, false, viewIDErr(raw)
		}
		return uint64(v), true, nil
	case int64:
		if v < 0 {
			return 0, false, viewIDErr(raw)
		}
		return uint64(v), true, nil
	case float64:
		if v < 0 || v != math.Trunc(v) {
			return 0, false, viewIDErr(raw)
		}
		return uint64(v), true, nil
	case json.Number:
		id, err := parseUintNumber(v)
		if err != nil {
			return 0, false, viewIDErr(raw)
		}
		return id, true, nil
	default:
		return 0, false, viewIDErr(raw)
	}
}

func parseUintNumber(n json.Number) (uint64, error) {
	i, err := n.Int64()
	if err != nil || i < 0 {
		return 0, fmt.Errorf("not an unsigned integer")
	}
	return uint64(i), nil
}

func viewIDErr(raw any) error {
	return fmt.Errorf("search: definition: %s: expected unsigned integer, got %T(%v): %w",
		defViewField, raw, raw, apperr.ErrBadParameter)
}

// SkipRegistration reports whether the definition carries the
// construction-only hint to build the link without resolving and
// registering with its view. The hint is never serialized back out.
func (d Definition) SkipRegistration() bool {
	b, ok := d[defSkipField].(bool)
	return ok && b
}

// SetType sets the definition's type tag and returns the definition
// for chaining.
func (d Definition) SetType(linkType string) Definition {
	d[defTypeField] = linkType
	return d
}

// SetView sets the view identifier and returns the definition for
// chaining.
func (d Definition) SetView(id uint64) Definition {
	d[defViewField] = id
	return d
}

// SetSkipRegistration marks the definition with the construction-only
// hint and returns the definition for chaining.
func (d Definition) SetSkipRegistration() Definition {
	d[defSkipField] = true
	return d
}

// Clone returns a shallow copy of the definition.
func (d Definition) Clone() Definition {
	out := make(Definition, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Normalize validates def and returns its canonical persistable form:
// the type tag set, metadata keys written out with defaults filled,
// the view identifier carried over when present, and the id, figures,
// and skip-registration keys stripped. Malformed metadata fails with
// ErrBadMetadata, a malformed view identifier with ErrBadParameter,
// and a foreign type tag with ErrBadMetadata.
func Normalize(def Definition) (Definition, error) {
	if raw, ok := def[defTypeField]; ok {
		t, isString := raw.(string)
		if !isString || t != LinkType {
			return nil, fmt.Errorf("search: definition: unexpected type %v: %w", raw, apperr.ErrBadMetadata)
		}
	}
	meta, err := ParseMeta(def)
	if err != nil {
		return nil, err
	}
	out := Definition{}
	meta.fill(out)
	out.SetType(LinkType)
	if viewID, ok, err := def.ViewID(); err != nil {
		return nil, err
	} else if ok {
		out.SetView(viewID)
	}
	return out, nil
}
