package search

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarde/beacon/internal/apperr"
)

func TestParseMeta_Defaults(t *testing.T) {
	m, err := ParseMeta(Definition{})
	require.NoError(t, err)
	assert.Equal(t, []string{"identity"}, m.Analyzers)
	assert.Empty(t, m.Fields)
	assert.False(t, m.IncludeAllFields)
	assert.False(t, m.TrackListPositions)
}

func TestParseMeta_Full(t *testing.T) {
	m, err := ParseMeta(Definition{
		"analyzers": []any{"text"},
		"fields": map[string]any{
			"title": map[string]any{"analyzers": []any{"identity"}},
			"tags":  map[string]any{"analyzers": []any{"delimiter:,"}},
			"body":  map[string]any{},
		},
		"includeAllFields":   true,
		"trackListPositions": true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"text"}, m.Analyzers)
	assert.True(t, m.IncludeAllFields)
	assert.True(t, m.TrackListPositions)
	assert.Len(t, m.Fields, 3)
	assert.Equal(t, []string{"delimiter:,"}, m.AnalyzersFor("tags"))
	// No override on body: inherits the default chain.
	assert.Equal(t, []string{"text"}, m.AnalyzersFor("body"))
	assert.Equal(t, []string{"text"}, m.AnalyzersFor("unlisted"))
}

func TestParseMeta_Malformed(t *testing.T) {
	cases := map[string]Definition{
		"analyzers not a list":    {"analyzers": "identity"},
		"analyzer not a string":   {"analyzers": []any{7}},
		"empty analyzer list":     {"analyzers": []any{}},
		"unknown analyzer":        {"analyzers": []any{"soundex"}},
		"fields not an object":    {"fields": []any{"title"}},
		"field not an object":     {"fields": map[string]any{"title": "identity"}},
		"field unknown analyzer":  {"fields": map[string]any{"title": map[string]any{"analyzers": []any{"nope"}}}},
		"includeAllFields type":   {"includeAllFields": "yes"},
		"trackListPositions type": {"trackListPositions": 1},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMeta(def)
			require.ErrorIs(t, err, apperr.ErrBadMetadata)
		})
	}
}

func TestMetaEqual(t *testing.T) {
	base := Definition{
		"analyzers": []any{"text"},
		"fields":    map[string]any{"title": map[string]any{"analyzers": []any{"identity"}}},
	}
	a, err := ParseMeta(base)
	require.NoError(t, err)
	b, err := ParseMeta(base)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.False(t, a.Equal(nil))

	c, err := ParseMeta(Definition{"analyzers": []any{"identity"}})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))

	d, err := ParseMeta(Definition{
		"analyzers": []any{"text"},
		"fields":    map[string]any{"title": map[string]any{"analyzers": []any{"text"}}},
	})
	require.NoError(t, err)
	assert.False(t, a.Equal(d))

	e, err := ParseMeta(Definition{"analyzers": []any{"text"}, "includeAllFields": true})
	require.NoError(t, err)
	assert.False(t, c.Equal(e))
}

func TestMetaFillRoundTrip(t *testing.T) {
	m, err := ParseMeta(Definition{
		"analyzers":        []any{"text"},
		"fields":           map[string]any{"tags": map[string]any{"analyzers": []any{"delimiter:,"}}},
		"includeAllFields": true,
	})
	require.NoError(t, err)

	def := Definition{}
	m.fill(def)
	back, err := ParseMeta(def)
	require.NoError(t, err)
	assert.True(t, m.Equal(back))

	// Same again through a JSON encode/decode cycle.
	raw, err := json.Marshal(def)
	require.NoError(t, err)
	var decoded Definition
	require.NoError(t, json.Unmarshal(raw, &decoded))
	back, err = ParseMeta(decoded)
	require.NoError(t, err)
	assert.True(t, m.Equal(back))
}

func TestMetaMemory(t *testing.T) {
	small, err := ParseMeta(Definition{})
	require.NoError(t, err)
	large, err := ParseMeta(Definition{
		"analyzers": []any{"text"},
		"fields": map[string]any{
			"title": map[string]any{"analyzers": []any{"identity"}},
			"body":  map[string]any{},
		},
	})
	require.NoError(t, err)
	assert.Greater(t, small.Memory(), 0)
	assert.Greater(t, large.Memory(), small.Memory())
}
