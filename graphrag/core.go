package graphrag

import (
	"context"
	"math/rand"
	"sort"
	"time"

	"github.com/smallnest/dagrag/dag"
)

// Core wires the tool graph, capability hypergraph, SHGAT scorer, and
// Thompson-sampling advisor together behind the single entry point the
// rest of the system uses: record one completed workflow's trace, then
// query recommendations against the resulting model (spec §4.5).
type Core struct {
	Graph      *Graph
	Hypergraph *Hypergraph
	Scorer     *Scorer
	Cache      *AttentionCache
	Advisor    *ThresholdAdvisor
	Store      Store
	Embeddings EmbeddingProvider

	entropy *entropyTracker
}

// NewCore builds a Core from scratch with freshly initialized parameters.
// rng seeds both SHGAT weight initialization and Thompson sampling.
func NewCore(cfg Config, store Store, embeddings EmbeddingProvider, rng *rand.Rand) *Core {
	hg := NewHypergraph()
	return &Core{
		Graph:      NewGraph(),
		Hypergraph: hg,
		Scorer:     NewScorer(cfg, hg, rng),
		Cache:      NewAttentionCache(),
		Advisor:    NewThresholdAdvisor(rng),
		Store:      store,
		Embeddings: embeddings,
		entropy:    newEntropyTracker(),
	}
}

// toolIDFor returns the graph-node id for a task: its tool selector for
// mcp_tool/capability tasks, or a synthetic "code:<task_id>" id for bare
// code_execution tasks that never named a tool (spec §4.5.1 "For
// code_execution traces, derive sequence edges between consecutive tool
// invocations inside the same trace").
func toolIDFor(t dag.Task) string {
	if t.Tool != "" {
		return t.Tool
	}
	return "code:" + t.ID
}

// RecordTrace updates the tool graph and per-tool reliability stats from
// one completed workflow run (spec §4.5.1 "Graph maintenance"). Call this
// once per workflow, after Scheduler.Run returns.
func (c *Core) RecordTrace(d *dag.DAG, results []dag.TaskResult) {
	byID := make(map[string]dag.Task, len(results))
	for _, r := range results {
		if t, ok := d.Task(r.TaskID); ok {
			byID[r.TaskID] = t
		}
	}

	for _, r := range results {
		t, ok := byID[r.TaskID]
		if !ok {
			continue
		}
		c.Graph.RecordOutcome(toolIDFor(t), r.Status == dag.StatusSuccess)

		for _, depID := range t.DependsOn {
			depTask, ok := byID[depID]
			if !ok {
				continue
			}
			c.Graph.Observe(toolIDFor(depTask), toolIDFor(t), EdgeDependency)
		}
	}

	c.recordLayerFanout(byID, results)
	c.recordCodeExecutionSequence(byID, results)
}

// recordLayerFanout connects every tool in layer N to every tool in layer
// N+1 as an inferred sequence edge (spec §4.5.1 "Sequence edges may also
// be learned from layerIndex").
func (c *Core) recordLayerFanout(byID map[string]dag.Task, results []dag.TaskResult) {
	byLayer := map[int][]string{}
	maxLayer := -1
	for _, r := range results {
		t, ok := byID[r.TaskID]
		if !ok {
			continue
		}
		byLayer[r.LayerIndex] = append(byLayer[r.LayerIndex], toolIDFor(t))
		if r.LayerIndex > maxLayer {
			maxLayer = r.LayerIndex
		}
	}
	for layer := 0; layer < maxLayer; layer++ {
		for _, from := range byLayer[layer] {
			for _, to := range byLayer[layer+1] {
				c.Graph.Infer(from, to, EdgeSequence, SourceInferred)
			}
		}
	}
}

// recordCodeExecutionSequence derives sequence edges between consecutive
// code_execution tasks within the same run, ordered by layer then by
// their position within dag.DAG (spec §4.5.1).
func (c *Core) recordCodeExecutionSequence(byID map[string]dag.Task, results []dag.TaskResult) {
	type ordered struct {
		layer int
		tool  string
	}
	var seq []ordered
	for _, r := range results {
		t, ok := byID[r.TaskID]
		if !ok || t.Kind != dag.KindCodeExecution {
			continue
		}
		seq = append(seq, ordered{layer: r.LayerIndex, tool: toolIDFor(t)})
	}
	sort.SliceStable(seq, func(i, j int) bool { return seq[i].layer < seq[j].layer })
	for i := 1; i < len(seq); i++ {
		c.Graph.Infer(seq[i-1].tool, seq[i].tool, EdgeSequence, SourceInferred)
	}
}

// Recompute runs PageRank and Louvain if the graph has mutated since the
// last call, records an entropy sample of the resulting distribution, and
// invalidates the SHGAT attention cache so the next scoring call rebuilds
// propagated embeddings from the new graph (spec §4.5.1 "After any batch
// update, recompute ... cache results until next mutation").
func (c *Core) Recompute(ctx context.Context, now time.Time) (RecomputeResult, error) {
	if !c.Graph.Dirty() && !c.Hypergraph.Dirty() {
		return RecomputeResult{}, nil
	}

	scores := PageRank(c.Graph, DefaultPageRankTolerance)
	communities := Louvain(c.Graph, DefaultLouvainResolution)
	c.Graph.MarkClean()
	c.Cache.Invalidate()

	sample := c.entropy.record(scores, now)
	if c.Store != nil {
		if err := c.Store.AppendEntropySample(ctx, sample); err != nil {
			return RecomputeResult{}, err
		}
		if err := c.Store.SaveEdges(ctx, c.Graph.Edges()); err != nil {
			return RecomputeResult{}, err
		}
	}

	return RecomputeResult{PageRank: scores, Community: communities, Entropy: sample}, nil
}

// RecomputeResult is Recompute's output (spec §4.5.2).
type RecomputeResult struct {
	PageRank  map[string]float64
	Community map[string]string
	Entropy   EntropySample
}

// EntropyHistory returns the graph-health time series (SPEC_FULL.md
// supplemented feature).
func (c *Core) EntropyHistory() []EntropySample {
	return c.entropy.snapshot()
}

// Recommend scores candidates for intentText against the current graph
// and SHGAT model, blending hybrid search with the learned scorer: each
// tool's hybrid search score is averaged with its SHGAT score (the sigmoid
// of the reliability-scaled logit, which is not capped) (spec
// §4.5.2, §4.5.3 work as two complementary scoring strategies that feed
// the same recommendation surface).
func (c *Core) Recommend(ctx context.Context, intentText string, toolEmbeddings map[string][]float64, context []string) ([]SearchCandidate, error) {
	intentEmbedding, err := c.Embeddings.Embed(ctx, intentText)
	if err != nil {
		return nil, err
	}

	hybrid := HybridSearch(c.Graph, intentEmbedding, toolEmbeddings, context, nil)

	propagated := c.Scorer.Propagate(toolEmbeddings)
	learned := c.Scorer.ScoreCandidates(intentEmbedding, propagated, c.Graph.SuccessRate, true)

	learnedByTool := make(map[string]float64, len(learned))
	for _, l := range learned {
		learnedByTool[l.Tool] = l.Score
	}

	out := make([]SearchCandidate, len(hybrid))
	for i, h := range hybrid {
		score := h.Score
		if l, ok := learnedByTool[h.Tool]; ok {
			score = (h.Score + l) / 2
		}
		out[i] = SearchCandidate{Tool: h.Tool, Score: score}
	}
	sortCandidatesDescending(out)
	return out, nil
}

// Load restores Graph/Hypergraph/SHGAT params from Store, used once at
// process start (spec §3 "explicit load-from-DB on start").
func (c *Core) Load(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	edges, err := c.Store.LoadEdges(ctx)
	if err != nil {
		return err
	}
	for _, e := range edges {
		for i := 0; i < e.Count; i++ {
			c.Graph.Infer(e.From, e.To, e.Type, e.Source)
		}
	}
	c.Graph.MarkClean()

	caps, err := c.Store.LoadCapabilities(ctx)
	if err != nil {
		return err
	}
	for _, cap := range caps {
		c.Hypergraph.Upsert(cap)
	}

	params, err := c.Store.LoadParams(ctx)
	if err != nil {
		return err
	}
	if params != nil {
		c.Scorer.LoadParams(params)
	}
	return nil
}

// Persist writes the current SHGAT parameters and capability set to
// Store (spec §3 "periodic persist-on-change").
func (c *Core) Persist(ctx context.Context) error {
	if c.Store == nil {
		return nil
	}
	if err := c.Store.SaveCapabilities(ctx, c.Hypergraph.All()); err != nil {
		return err
	}
	return c.Store.SaveParams(ctx, c.Scorer.Params())
}
