package graphrag

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/smallnest/dagrag/dag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store used only by this package's tests.
type fakeStore struct {
	edges   []Edge
	caps    []Capability
	params  *Params
	history []EntropySample
}

func (f *fakeStore) SaveEdges(ctx context.Context, edges []Edge) error {
	f.edges = edges
	return nil
}
func (f *fakeStore) LoadEdges(ctx context.Context) ([]Edge, error) { return f.edges, nil }

func (f *fakeStore) SaveCapabilities(ctx context.Context, caps []Capability) error {
	f.caps = caps
	return nil
}
func (f *fakeStore) LoadCapabilities(ctx context.Context) ([]Capability, error) {
	return f.caps, nil
}

func (f *fakeStore) SaveParams(ctx context.Context, params *Params) error {
	f.params = params
	return nil
}
func (f *fakeStore) LoadParams(ctx context.Context) (*Params, error) { return f.params, nil }

func (f *fakeStore) AppendEntropySample(ctx context.Context, sample EntropySample) error {
	f.history = append(f.history, sample)
	return nil
}
func (f *fakeStore) EntropyHistory(ctx context.Context) ([]EntropySample, error) {
	return f.history, nil
}

// fakeEmbedder returns a deterministic embedding keyed off text length, so
// tests never depend on network access.
type fakeEmbedder struct{ dim int }

func (f fakeEmbedder) Dim() int { return f.dim }
func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	out := make([]float64, f.dim)
	for i := range out {
		out[i] = 0
	}
	if f.dim > 0 {
		out[len(text)%f.dim] = 1
	}
	return out, nil
}

func newTestCore() (*Core, *fakeStore) {
	store := &fakeStore{}
	cfg := Config{EmbedDim: 4, HeadDim: 4, NumHeads: 2, MaxLevel: 1, PreserveDim: true, ResidualR: 0.3}
	core := NewCore(cfg, store, fakeEmbedder{dim: 4}, rand.New(rand.NewSource(7)))
	return core, store
}

func twoLayerDAG(t *testing.T) (*dag.DAG, []dag.TaskResult) {
	t.Helper()
	tasks := []dag.Task{
		{ID: "fetch", Tool: "http_get", Kind: dag.KindMCPTool},
		{ID: "summarize", Tool: "summarizer", Kind: dag.KindMCPTool, DependsOn: []string{"fetch"}},
	}
	d, err := dag.New(tasks)
	require.NoError(t, err)
	results := []dag.TaskResult{
		{TaskID: "fetch", Status: dag.StatusSuccess, LayerIndex: 0},
		{TaskID: "summarize", Status: dag.StatusSuccess, LayerIndex: 1},
	}
	return d, results
}

func TestRecordTraceAddsDependencyEdgeAndOutcome(t *testing.T) {
	core, _ := newTestCore()
	d, results := twoLayerDAG(t)
	core.RecordTrace(d, results)

	assert.True(t, core.Graph.Dirty())
	assert.Greater(t, core.Graph.SuccessRate("http_get"), 0.0)
	assert.Greater(t, core.Graph.SuccessRate("summarizer"), 0.0)

	neighbors := core.Graph.Neighbors("http_get")
	var tos []string
	for _, e := range neighbors {
		tos = append(tos, e.To)
	}
	assert.Contains(t, tos, "summarizer")
}

func TestRecomputeIsNoOpWhenGraphClean(t *testing.T) {
	core, _ := newTestCore()
	result, err := core.Recompute(context.Background(), time.Unix(0, 0))
	require.NoError(t, err)
	assert.Nil(t, result.PageRank)
}

func TestRecomputePersistsEntropySampleAndEdges(t *testing.T) {
	core, store := newTestCore()
	d, results := twoLayerDAG(t)
	core.RecordTrace(d, results)

	result, err := core.Recompute(context.Background(), time.Unix(100, 0))
	require.NoError(t, err)
	assert.NotEmpty(t, result.PageRank)
	assert.Len(t, store.history, 1)
	assert.NotEmpty(t, store.edges)
	assert.False(t, core.Graph.Dirty())
	assert.Len(t, core.EntropyHistory(), 1)
}

func TestRecommendReturnsRankedCandidates(t *testing.T) {
	core, _ := newTestCore()
	d, results := twoLayerDAG(t)
	core.RecordTrace(d, results)
	_, err := core.Recompute(context.Background(), time.Unix(1, 0))
	require.NoError(t, err)

	toolEmbeddings := map[string][]float64{
		"http_get":   {1, 0, 0, 0},
		"summarizer": {0, 1, 0, 0},
	}
	candidates, err := core.Recommend(context.Background(), "fetch a page", toolEmbeddings, nil)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for i := 1; i < len(candidates); i++ {
		assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
	}
}

func TestLoadRestoresGraphFromStore(t *testing.T) {
	store := &fakeStore{
		edges: []Edge{{From: "a", To: "b", Type: EdgeSequence, Source: SourceObserved, Count: 2, Weight: 1}},
		caps:  []Capability{{ID: "cap1", ChildTools: []string{"a", "b"}}},
	}
	cfg := Config{EmbedDim: 4, HeadDim: 4, NumHeads: 2, MaxLevel: 1, PreserveDim: true, ResidualR: 0.3}
	core := NewCore(cfg, store, fakeEmbedder{dim: 4}, rand.New(rand.NewSource(8)))

	require.NoError(t, core.Load(context.Background()))
	neighbors := core.Graph.Neighbors("a")
	require.NotEmpty(t, neighbors)
	assert.Equal(t, "b", neighbors[0].To)
	cap1, ok := core.Hypergraph.Get("cap1")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, cap1.ChildTools)
}

func TestPersistWritesCapabilitiesAndParams(t *testing.T) {
	core, store := newTestCore()
	core.Hypergraph.Upsert(Capability{ID: "cap1"})
	require.NoError(t, core.Persist(context.Background()))
	assert.Len(t, store.caps, 1)
	assert.NotNil(t, store.params)
}

func TestLoadAndPersistAreNoOpsWithoutStore(t *testing.T) {
	cfg := Config{EmbedDim: 4, HeadDim: 4, NumHeads: 2, MaxLevel: 1, PreserveDim: true, ResidualR: 0.3}
	core := NewCore(cfg, nil, fakeEmbedder{dim: 4}, rand.New(rand.NewSource(9)))
	assert.NoError(t, core.Load(context.Background()))
	assert.NoError(t, core.Persist(context.Background()))
}
