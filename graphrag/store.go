package graphrag

import "context"

// EmbeddingProvider is the narrow interface Core needs to turn intent
// text into a vector; graphrag/embedding ships two implementations
// (HashEmbedder, OpenAIEmbedder) that both satisfy this structurally so
// this package never imports a concrete embedding backend.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	Dim() int
}

// Store persists the GraphRAG core's process-wide state: tool-graph
// edges, capability hypergraph membership, SHGAT parameters (opaque
// blob), and the entropy-history graph-health series (spec §3 "Graph/
// hypergraph/SHGAT params are process-wide state with explicit
// load-from-DB on start and periodic persist-on-change").
type Store interface {
	SaveEdges(ctx context.Context, edges []Edge) error
	LoadEdges(ctx context.Context) ([]Edge, error)

	SaveCapabilities(ctx context.Context, caps []Capability) error
	LoadCapabilities(ctx context.Context) ([]Capability, error)

	SaveParams(ctx context.Context, params *Params) error
	LoadParams(ctx context.Context) (*Params, error)

	AppendEntropySample(ctx context.Context, sample EntropySample) error
	EntropyHistory(ctx context.Context) ([]EntropySample, error)
}
