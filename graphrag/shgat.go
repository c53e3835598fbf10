package graphrag

import (
	"math"
	"math/rand"
)

// LevelParams holds the message-passing weights for one hierarchy level
// (spec §4.5.3, §3 "SHGAT parameters").
type LevelParams struct {
	WChild    [][][]float64 // [head][d_out][d_in]
	WParent   [][][]float64 // [head][d_out][d_in]
	AUpward   [][]float64   // [head][2*d_out]
	ADownward [][]float64   // [head][2*d_out]
}

// ScoringParams holds the intent-scoring weights, shared across levels
// (spec §4.5.3 "Scoring (K-head)"). W_v is intentionally omitted: the
// scoring formula named in spec §4.5.3 only projects Q and K; a value
// projection is part of the persisted parameter shape in spec §3 but has
// no consumer in the scoring formula as specified, so it is not
// instantiated here (would be unwired, dead weight).
type ScoringParams struct {
	WQ     [][][]float64 // [head][d_head][d_model]
	WK     [][][]float64 // [head][d_head][d_model]
	WIntent [][]float64  // [d_model][d_model], used only when !PreserveDim
}

// Params bundles every learned weight of the hierarchical attention
// scorer, owned exclusively by Scorer and persisted as an opaque blob
// (spec §3 "ownership: the scoring engine exclusively owns them").
type Params struct {
	Levels  []LevelParams // indexed by hierarchy level
	Scoring ScoringParams
}

// Config fixes the scorer's dimensions and hyperparameters.
type Config struct {
	EmbedDim    int
	HeadDim     int
	NumHeads    int
	MaxLevel    int
	PreserveDim bool    // spec §4.5.3 "recommended default for large models"
	ResidualR   float64 // convex residual weight, default 0.3
}

// DefaultConfig returns the spec's recommended defaults.
func DefaultConfig(embedDim int) Config {
	return Config{
		EmbedDim:    embedDim,
		HeadDim:     embedDim,
		NumHeads:    4,
		MaxLevel:    4,
		PreserveDim: true,
		ResidualR:   0.3,
	}
}

// NewParams randomly initializes Params for cfg using rng (pass a seeded
// *rand.Rand for deterministic tests).
func NewParams(cfg Config, rng *rand.Rand) *Params {
	levelInputDim := func(level int) int {
		if level == 0 {
			return cfg.EmbedDim
		}
		return cfg.NumHeads * cfg.HeadDim
	}

	// LevelParams[l] is used when l acts as a parent level: WChild
	// projects its children (which live at level l-1, dimension
	// levelInputDim(l-1)), WParent projects the parent's own embedding
	// (dimension levelInputDim(l)). Level 0 never acts as a parent, so
	// Levels[0] is allocated but unused by Propagate.
	levels := make([]LevelParams, cfg.MaxLevel+1)
	for l := 0; l <= cfg.MaxLevel; l++ {
		childDim := cfg.EmbedDim
		if l-1 > 0 {
			childDim = levelInputDim(l - 1)
		}
		parentDim := levelInputDim(l)
		levels[l] = LevelParams{
			WChild:    randTensor3(rng, cfg.NumHeads, cfg.HeadDim, childDim),
			WParent:   randTensor3(rng, cfg.NumHeads, cfg.HeadDim, parentDim),
			AUpward:   randTensor2(rng, cfg.NumHeads, 2*cfg.HeadDim),
			ADownward: randTensor2(rng, cfg.NumHeads, 2*cfg.HeadDim),
		}
	}

	dModel := cfg.EmbedDim
	if !cfg.PreserveDim {
		dModel = cfg.NumHeads * cfg.HeadDim
	}

	return &Params{
		Levels: levels,
		Scoring: ScoringParams{
			WQ:      randTensor3(rng, cfg.NumHeads, cfg.HeadDim, dModel),
			WK:      randTensor3(rng, cfg.NumHeads, cfg.HeadDim, dModel),
			WIntent: randTensor2(rng, dModel, cfg.EmbedDim),
		},
	}
}

func randTensor3(rng *rand.Rand, a, b, c int) [][][]float64 {
	out := make([][][]float64, a)
	scale := 1.0 / math.Sqrt(float64(c))
	for i := range out {
		out[i] = make([][]float64, b)
		for j := range out[i] {
			out[i][j] = make([]float64, c)
			for k := range out[i][j] {
				out[i][j][k] = (rng.Float64()*2 - 1) * scale
			}
		}
	}
	return out
}

func randTensor2(rng *rand.Rand, a, b int) [][]float64 {
	out := make([][]float64, a)
	scale := 1.0 / math.Sqrt(float64(b))
	for i := range out {
		out[i] = make([]float64, b)
		for j := range out[i] {
			out[i][j] = (rng.Float64()*2 - 1) * scale
		}
	}
	return out
}

func matVec(w [][]float64, v []float64) []float64 {
	out := make([]float64, len(w))
	for i, row := range w {
		var sum float64
		n := len(row)
		if len(v) < n {
			n = len(v)
		}
		for j := 0; j < n; j++ {
			sum += row[j] * v[j]
		}
		out[i] = sum
	}
	return out
}

func concat(a, b []float64) []float64 {
	out := make([]float64, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

func leakyReLU(x float64) float64 {
	if x >= 0 {
		return x
	}
	return 0.01 * x
}

func elu(x float64) float64 {
	if x >= 0 {
		return x
	}
	return math.Exp(x) - 1
}

func dot(a, b []float64) float64 {
	var s float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

func l2Normalize(v []float64) []float64 {
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}

// Scorer runs hierarchical message passing and intent scoring over a
// Hypergraph using Params (spec §4.5.3). Scorer has no internal locking:
// Train updates Params in place and takes no lock.
type Scorer struct {
	cfg    Config
	params *Params
	hg     *Hypergraph
}

// NewScorer builds a Scorer over hg with freshly initialized params.
func NewScorer(cfg Config, hg *Hypergraph, rng *rand.Rand) *Scorer {
	return &Scorer{cfg: cfg, params: NewParams(cfg, rng), hg: hg}
}

// Params returns the scorer's current parameters, for persistence.
func (s *Scorer) Params() *Params { return s.params }

// LoadParams replaces the scorer's parameters (e.g. after restoring from
// a persisted blob).
func (s *Scorer) LoadParams(p *Params) { s.params = p }

// headOutput computes one message-passing head's attention-weighted
// aggregation over children for a single parent, given per-child
// projected child vectors and the attention vector for this direction.
func attentionAggregate(parentProj []float64, childProj [][]float64, attnVec []float64) []float64 {
	if len(childProj) == 0 {
		return parentProj
	}
	logits := make([]float64, len(childProj))
	maxLogit := math.Inf(-1)
	for i, c := range childProj {
		logits[i] = leakyReLU(dot(attnVec, concat(c, parentProj)))
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	var sumExp float64
	weights := make([]float64, len(childProj))
	for i, l := range logits {
		weights[i] = math.Exp(l - maxLogit)
		sumExp += weights[i]
	}
	if sumExp == 0 {
		sumExp = 1
	}

	agg := make([]float64, len(parentProj))
	for i, c := range childProj {
		w := weights[i] / sumExp
		for d := range agg {
			if d < len(c) {
				agg[d] += w * c[d]
			}
		}
	}
	for d := range agg {
		agg[d] = elu(agg[d])
	}
	return agg
}

// Propagate runs the full upward-then-downward message-passing pass over
// hg given leaf (level-0, tool) embeddings, returning the final embedding
// for every tool and capability node (spec §4.5.3 "Message passing" and
// "Preserve-dim mode").
func (s *Scorer) Propagate(leafEmbeddings map[string][]float64) map[string][]float64 {
	if s.hg.Dirty() {
		s.hg.ComputeHierarchy()
	}
	maxLevel := s.hg.MaxLevel()

	// current holds the working embedding for every node (tools + every
	// capability seen so far), keyed by id.
	current := make(map[string][]float64, len(leafEmbeddings))
	for k, v := range leafEmbeddings {
		current[k] = v
	}

	// Upward pass: build each level's capability embeddings from its
	// children (tools at level 0, child capabilities at level>0).
	for level := 1; level <= maxLevel && level < len(s.params.Levels); level++ {
		lp := s.params.Levels[level]
		for _, cap := range s.hg.AtLevel(level) {
			children := make([][]float64, 0, len(cap.ChildTools)+len(cap.ChildCapabilities))
			for _, t := range cap.ChildTools {
				if e, ok := current[t]; ok {
					children = append(children, e)
				}
			}
			for _, c := range cap.ChildCapabilities {
				if e, ok := current[c]; ok {
					children = append(children, e)
				}
			}
			current[cap.ID] = s.multiHeadUpward(lp, children)
		}
	}

	// Downward pass: refine child embeddings using their parent's
	// context, from the top level back down to 1.
	parentOf := s.parentIndex()
	for level := maxLevel; level >= 1 && level < len(s.params.Levels); level-- {
		lp := s.params.Levels[level]
		for _, cap := range s.hg.AtLevel(level) {
			parentEmb := current[cap.ID]
			for _, t := range cap.ChildTools {
				if e, ok := current[t]; ok {
					current[t] = s.multiHeadDownward(lp, e, parentEmb)
				}
			}
			for _, c := range cap.ChildCapabilities {
				if e, ok := current[c]; ok {
					current[c] = s.multiHeadDownward(lp, e, parentEmb)
				}
			}
		}
	}
	_ = parentOf // reserved: multi-parent resolution order not modeled beyond single pass

	if s.cfg.PreserveDim {
		for id, propagated := range current {
			orig, ok := leafEmbeddings[id]
			if !ok {
				continue
			}
			blended := make([]float64, len(propagated))
			for i := range blended {
				o := 0.0
				if i < len(orig) {
					o = orig[i]
				}
				blended[i] = (1-s.cfg.ResidualR)*propagated[i] + s.cfg.ResidualR*o
			}
			current[id] = l2Normalize(blended)
		}
	} else {
		for id, v := range current {
			current[id] = l2Normalize(v)
		}
	}
	return current
}

func (s *Scorer) parentIndex() map[string]string {
	idx := map[string]string{}
	for _, cap := range s.hg.All() {
		for _, t := range cap.ChildTools {
			idx[t] = cap.ID
		}
		for _, c := range cap.ChildCapabilities {
			idx[c] = cap.ID
		}
	}
	return idx
}

func (s *Scorer) multiHeadUpward(lp LevelParams, children [][]float64) []float64 {
	heads := make([][]float64, len(lp.WChild))
	for h := range lp.WChild {
		parentProj := []float64{} // parent has no prior embedding on first build; use zero vector sized to head dim
		if len(lp.WParent[h]) > 0 {
			parentProj = make([]float64, len(lp.WParent[h]))
		}
		childProj := make([][]float64, len(children))
		for i, c := range children {
			childProj[i] = matVec(lp.WChild[h], c)
		}
		heads[h] = attentionAggregate(parentProj, childProj, lp.AUpward[h])
	}
	return concatAll(heads)
}

func (s *Scorer) multiHeadDownward(lp LevelParams, childEmb, parentEmb []float64) []float64 {
	heads := make([][]float64, len(lp.WParent))
	for h := range lp.WParent {
		parentProj := matVec(lp.WParent[h], parentEmb)
		childProj := matVec(lp.WChild[h], childEmb)
		heads[h] = attentionAggregate(childProj, [][]float64{parentProj}, lp.ADownward[h])
	}
	return concatAll(heads)
}

func concatAll(vs [][]float64) []float64 {
	out := []float64{}
	for _, v := range vs {
		out = append(out, v...)
	}
	return out
}

// Score computes logit(candidate) for a single candidate embedding
// against an intent embedding (spec §4.5.3 "Scoring (K-head)").
func (s *Scorer) Score(intentEmbedding, candidateEmbedding []float64) float64 {
	intent := intentEmbedding
	if !s.cfg.PreserveDim {
		intent = matVec(s.params.Scoring.WIntent, intentEmbedding)
	}

	numHeads := len(s.params.Scoring.WQ)
	if numHeads == 0 {
		return 0
	}
	var total float64
	headDim := float64(len(s.params.Scoring.WQ[0]))
	if headDim == 0 {
		headDim = 1
	}
	for h := 0; h < numHeads; h++ {
		q := matVec(s.params.Scoring.WQ[h], intent)
		k := matVec(s.params.Scoring.WK[h], candidateEmbedding)
		total += dot(q, k) / math.Sqrt(headDim)
	}
	return total / float64(numHeads)
}

// ScoreCandidates batch-scores every candidate in embeddings against
// intentEmbedding, multiplying each logit by the candidate's reliability
// factor and passing it through a sigmoid (spec §4.5.3 "For candidate
// ranking the final score is multiplied by the same reliability factor
// and (optionally) passed through a sigmoid"). Returns an empty slice for
// an empty candidate set, never panics (spec §4.5.3 "Failure semantics").
func (s *Scorer) ScoreCandidates(intentEmbedding []float64, embeddings map[string][]float64, reliability func(id string) float64, sigmoid bool) []SearchCandidate {
	out := make([]SearchCandidate, 0, len(embeddings))
	for id, emb := range embeddings {
		logit := s.Score(intentEmbedding, emb)
		r := 1.0
		if reliability != nil {
			r = reliability(id)
		}
		score := logit * r
		if sigmoid {
			score = 1 / (1 + math.Exp(-score))
		}
		out = append(out, SearchCandidate{Tool: id, Score: score})
	}
	sortCandidatesDescending(out)
	return out
}
