package search

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skarde/beacon/internal/apperr"
	"github.com/skarde/beacon/internal/txn"
)

// fakeView records every call routed through a link.
type fakeView struct {
	id  uint64
	mem int

	mu       sync.Mutex
	links    map[uint64]*Link
	inserts  []uint64 // rids
	batches  [][]BatchEntry
	removes  []uint64 // rids
	drops    []uint64 // collection ids
	batchErr error
}

func newFakeView(id uint64) *fakeView {
	return &fakeView{id: id, links: make(map[uint64]*Link)}
}

func (v *fakeView) ID() uint64 { return v.id }

func (v *fakeView) Insert(_ *txn.Txn, _ uint64, rid uint64, _ Document, meta *LinkMeta) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if meta == nil {
		return errors.New("fake: nil meta")
	}
	v.inserts = append(v.inserts, rid)
	return nil
}

func (v *fakeView) InsertBatch(_ *txn.Txn, _ uint64, batch []BatchEntry, _ *LinkMeta) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.batches = append(v.batches, batch)
	return v.batchErr
}

func (v *fakeView) Remove(_ *txn.Txn, _ uint64, rid uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.removes = append(v.removes, rid)
	return nil
}

func (v *fakeView) Drop(collection uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.drops = append(v.drops, collection)
	return nil
}

func (v *fakeView) RegisterLink(l *Link) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.links[l.ID()] = l
	return nil
}

func (v *fakeView) UnregisterLink(l *Link) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.links[l.ID()]; !ok {
		return apperr.ErrNotFound
	}
	delete(v.links, l.ID())
	return nil
}

func (v *fakeView) LinkCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.links)
}

func (v *fakeView) Memory() int { return v.mem }

// fakeDB resolves views out of a fixed set.
type fakeDB struct {
	views map[uint64]View
}

func (db *fakeDB) ViewByID(id uint64) (View, error) {
	v, ok := db.views[id]
	if !ok {
		return nil, apperr.ErrViewNotFound
	}
	return v, nil
}

type fakeCollection struct {
	id      uint64
	deleted bool
	db      *fakeDB
}

func (c *fakeCollection) ID() uint64         { return c.id }
func (c *fakeCollection) Deleted() bool      { return c.deleted }
func (c *fakeCollection) Database() Resolver { return c.db }

// recordSink collects every reported outcome.
type recordSink struct {
	mu    sync.Mutex
	calls []error
}

func (s *recordSink) SetStatus(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, err)
}

func (s *recordSink) outcomes() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.calls...)
}

// boundLink builds a link bound to a fresh view with the given id.
func boundLink(t *testing.T, viewID uint64, extra Definition) (*Link, *fakeView, *fakeCollection) {
	t.Helper()
	view := newFakeView(viewID)
	col := &fakeCollection{id: 100, db: &fakeDB{views: map[uint64]View{viewID: view}}}

	def := Definition{}.SetView(viewID)
	for k, val := range extra {
		def[k] = val
	}
	l, err := NewLink(1, col, def)
	require.NoError(t, err)
	return l, view, col
}

func testTxn() *txn.Txn {
	return txn.New(context.Background(), nil)
}

func TestLinkCharacteristics(t *testing.T) {
	l, _, _ := boundLink(t, 7, nil)
	assert.False(t, l.Unique())
	assert.True(t, l.Sparse())
	assert.True(t, l.AllowExpansion())
	assert.True(t, l.HasBatchInsert())
	assert.False(t, l.HasSelectivityEstimate())
	assert.False(t, l.Sorted())
	assert.True(t, l.Persistent())
	assert.True(t, l.CanBeDropped())
}

func TestInsertRemove_Delegate(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)

	require.NoError(t, l.Insert(testTxn(), 11, Document{"title": "a"}))
	require.NoError(t, l.Remove(testTxn(), 11))
	assert.Equal(t, []uint64{11}, view.inserts)
	assert.Equal(t, []uint64{11}, view.removes)
}

func TestGuards_UnboundLink(t *testing.T) {
	view := newFakeView(7)
	col := &fakeCollection{id: 100, db: &fakeDB{views: map[uint64]View{7: view}}}
	l, err := NewLink(1, col, Definition{}.SetView(7).SetSkipRegistration())
	require.NoError(t, err)

	require.ErrorIs(t, l.Insert(testTxn(), 1, Document{}), apperr.ErrCollectionNotLoaded)
	require.ErrorIs(t, l.Remove(testTxn(), 1), apperr.ErrCollectionNotLoaded)

	sink := &recordSink{}
	l.BatchInsert(testTxn(), []BatchEntry{{RID: 1}}, sink)
	outcomes := sink.outcomes()
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0], apperr.ErrCollectionNotLoaded)

	// Nothing was delegated.
	assert.Empty(t, view.inserts)
	assert.Empty(t, view.removes)
	assert.Empty(t, view.batches)
}

func TestGuards_NilCollection(t *testing.T) {
	l, err := NewLink(1, nil, Definition{}.SetSkipRegistration())
	require.NoError(t, err)
	require.ErrorIs(t, l.Insert(testTxn(), 1, Document{}), apperr.ErrCollectionNotLoaded)
}

func TestGuards_NilTxn(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)

	require.ErrorIs(t, l.Insert(nil, 1, Document{}), apperr.ErrBadParameter)
	require.ErrorIs(t, l.Remove(nil, 1), apperr.ErrBadParameter)

	sink := &recordSink{}
	l.BatchInsert(nil, []BatchEntry{{RID: 1}}, sink)
	outcomes := sink.outcomes()
	require.Len(t, outcomes, 1)
	require.ErrorIs(t, outcomes[0], apperr.ErrBadParameter)

	assert.Empty(t, view.inserts)
	assert.Empty(t, view.batches)
}

func TestBatchInsert_NilSinkPanics(t *testing.T) {
	l, _, _ := boundLink(t, 7, nil)
	require.Panics(t, func() {
		l.BatchInsert(testTxn(), []BatchEntry{{RID: 1}}, nil)
	})
}

func TestBatchInsert_ReportsThroughSink(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)

	sink := &recordSink{}
	l.BatchInsert(testTxn(), []BatchEntry{{RID: 1}, {RID: 2}}, sink)
	outcomes := sink.outcomes()
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0])
	require.Len(t, view.batches, 1)
	assert.Len(t, view.batches[0], 2)

	// View failure travels through the sink, not a return value.
	view.batchErr = errors.New("view full")
	sink = &recordSink{}
	l.BatchInsert(testTxn(), []BatchEntry{{RID: 3}}, sink)
	outcomes = sink.outcomes()
	require.Len(t, outcomes, 1)
	assert.EqualError(t, outcomes[0], "view full")
}

func TestBatchInsert_EmptyBatchStillResolves(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)
	sink := &recordSink{}
	l.BatchInsert(testTxn(), nil, sink)
	outcomes := sink.outcomes()
	require.Len(t, outcomes, 1)
	assert.NoError(t, outcomes[0])
	assert.Empty(t, view.batches)
}

func TestUnloadSnapshotsViewID(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)
	require.True(t, l.BoundTo(view))

	require.NoError(t, l.Unload())
	assert.Equal(t, uint64(0), l.ViewID())
	assert.False(t, l.BoundTo(view))

	// The serialized form still names the remembered view.
	id, ok, err := l.ToDefinition(false).ViewID()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), id)

	// Unloading again stays a no-op.
	require.NoError(t, l.Unload())
	id, _, err = l.ToDefinition(false).ViewID()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
}

func TestUnload_DeletedCollectionDropsData(t *testing.T) {
	l, view, col := boundLink(t, 7, nil)
	col.deleted = true
	require.NoError(t, l.Unload())
	assert.Equal(t, []uint64{100}, view.drops)
}

func TestLoadRebinds(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)
	require.NoError(t, l.Unload())
	require.NoError(t, l.Load())
	assert.Equal(t, uint64(7), l.ViewID())
	assert.True(t, l.BoundTo(view))
	assert.Equal(t, 1, view.LinkCount())

	// Loading a bound link is a no-op.
	require.NoError(t, l.Load())
	assert.Equal(t, uint64(7), l.ViewID())
}

func TestLoad_NothingRemembered(t *testing.T) {
	l, err := NewLink(1, nil, Definition{}.SetSkipRegistration())
	require.NoError(t, err)
	require.NoError(t, l.Load())
	assert.Equal(t, uint64(0), l.ViewID())
}

func TestLoad_ViewGone(t *testing.T) {
	col := &fakeCollection{id: 100, db: &fakeDB{views: map[uint64]View{}}}
	l, err := NewLink(1, col, Definition{}.SetView(42).SetSkipRegistration())
	require.NoError(t, err)
	require.ErrorIs(t, l.Load(), apperr.ErrViewNotFound)
	assert.Equal(t, uint64(0), l.ViewID())
}

func TestDrop(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)

	require.NoError(t, l.Drop())
	assert.Equal(t, []uint64{100}, view.drops)
	assert.Equal(t, 0, view.LinkCount())
	assert.Equal(t, uint64(0), l.ViewID())

	// The deferred id is cleared too: a dropped link cannot resurrect.
	_, ok, err := l.ToDefinition(false).ViewID()
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, l.Load())
	assert.Equal(t, uint64(0), l.ViewID())

	require.ErrorIs(t, l.Drop(), apperr.ErrCollectionNotLoaded)
}

func TestMatchesDefinition(t *testing.T) {
	l, _, _ := boundLink(t, 7, Definition{"analyzers": []any{"text"}})

	// Reflexive against its own serialized form.
	assert.True(t, l.MatchesDefinition(l.ToDefinition(false)))

	assert.False(t, l.MatchesDefinition(Definition{"view": 8, "analyzers": []any{"text"}}))
	assert.False(t, l.MatchesDefinition(Definition{"analyzers": []any{"text"}}))
	assert.False(t, l.MatchesDefinition(Definition{"view": 7}))
	assert.False(t, l.MatchesDefinition(Definition{"view": "x", "analyzers": []any{"text"}}))
}

func TestMatchesDefinition_Unbound(t *testing.T) {
	// An unbound link matches a definition without a view key.
	l, err := NewLink(1, nil, Definition{}.SetSkipRegistration())
	require.NoError(t, err)
	assert.True(t, l.MatchesDefinition(Definition{}))

	// A deferred view id is not authoritative: the link's own
	// serialized form names view 42, yet the unbound link does not
	// match it.
	l, err = NewLink(2, nil, Definition{}.SetView(42).SetSkipRegistration())
	require.NoError(t, err)
	assert.False(t, l.MatchesDefinition(l.ToDefinition(false)))
}

func TestToDefinition(t *testing.T) {
	l, _, _ := boundLink(t, 7, Definition{"analyzers": []any{"text"}})
	def := l.ToDefinition(false)

	assert.Equal(t, "1", def["id"])
	typ, ok := def.Type()
	require.True(t, ok)
	assert.Equal(t, "fulltext", typ)
	id, ok, err := def.ViewID()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(7), id)
	assert.NotContains(t, def, "skipViewRegistration")
	assert.NotContains(t, def, "figures")
}

func TestToDefinition_SkipScenario(t *testing.T) {
	view := newFakeView(42)
	col := &fakeCollection{id: 100, db: &fakeDB{views: map[uint64]View{42: view}}}

	l, err := NewLink(9, col, Definition{}.SetView(42).SetSkipRegistration())
	require.NoError(t, err)

	// Unbound, not registered, but the definition names the view.
	assert.Equal(t, uint64(0), l.ViewID())
	assert.Equal(t, 0, view.LinkCount())

	def := l.ToDefinition(false)
	id, ok, err := def.ViewID()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(42), id)
	assert.NotContains(t, def, "skipViewRegistration")
}

func TestToDefinition_Figures(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)
	view.mem = 1000

	def := l.ToDefinition(true)
	figures, ok := def["figures"].(Definition)
	require.True(t, ok)
	assert.Equal(t, l.Memory(), figures["memory"])
}

func TestSerializationJSONRoundTrip(t *testing.T) {
	l, _, _ := boundLink(t, 7, Definition{
		"analyzers": []any{"text"},
		"fields":    map[string]any{"title": map[string]any{}},
	})

	raw, err := json.Marshal(l.ToDefinition(false))
	require.NoError(t, err)
	var decoded Definition
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.True(t, l.MatchesDefinition(decoded))

	meta, err := ParseMeta(decoded)
	require.NoError(t, err)
	linkMeta := l.Meta()
	assert.True(t, linkMeta.Equal(meta))
}

func TestMemory(t *testing.T) {
	l, view, _ := boundLink(t, 7, nil)
	view.mem = 1000

	// Second link on the same view halves the view share.
	l2, err := NewLink(2, &fakeCollection{id: 101, db: &fakeDB{views: map[uint64]View{7: view}}},
		Definition{}.SetView(7))
	require.NoError(t, err)
	require.Equal(t, 2, view.LinkCount())

	meta := l.Meta()
	assert.Equal(t, linkOverheadBytes+meta.Memory()+500, l.Memory())
	meta2 := l2.Meta()
	assert.Equal(t, linkOverheadBytes+meta2.Memory()+500, l2.Memory())

	// Unbound: no view share.
	require.NoError(t, l.Unload())
	assert.Equal(t, linkOverheadBytes+meta.Memory(), l.Memory())
}
