package graphrag

import "math"

// contrastiveTemperature is InfoNCE's softmax temperature (spec §4.5.3
// "Temperature = 0.1").
const contrastiveTemperature = 0.1

// TrainExample is one online training step's input: an intent embedding,
// a positive capability/tool embedding, and either sampled negatives
// (contrastive path) or a binary outcome (BCE fallback path) (spec
// §4.5.3 "Training (online, K-head)").
type TrainExample struct {
	IntentEmbedding   []float64
	PositiveID        string
	PositiveEmbedding []float64
	Negatives         map[string][]float64 // id -> embedding, sampled from non-executed capabilities
	Outcome           *bool                // used only when Negatives is empty
	Weight            float64              // importance-sampling weight; 0 treated as 1
}

// TrainResult reports one training step's diagnostics (spec §4.5.3
// "gradient norm computed and returned for diagnostics").
type TrainResult struct {
	Loss     float64
	GradNorm float64
	Skipped  bool // true when NaN/Inf was detected and the step was dropped
}

// Train runs one online gradient step against the scoring parameters
// (W_q, W_k), using InfoNCE when negatives are available and falling
// back to binary cross-entropy against Outcome otherwise (spec §4.5.3).
// Gradients flow through the scoring projections; the upstream
// hierarchical message-passing weights (W_child/W_parent/attention
// vectors) are treated as fixed inputs for this step, matching the
// preserve-dim deployment mode's design intent of keeping propagated
// embeddings stable while only the scorer adapts online.
func (s *Scorer) Train(ex TrainExample, lr, l2 float64) TrainResult {
	weight := ex.Weight
	if weight == 0 {
		weight = 1
	}

	type candidate struct {
		id    string
		emb   []float64
		dLoss float64 // dLoss/dScore for this candidate, filled below
	}
	candidates := []candidate{{id: ex.PositiveID, emb: ex.PositiveEmbedding}}
	for id, emb := range ex.Negatives {
		candidates = append(candidates, candidate{id: id, emb: emb})
	}

	var loss float64
	if len(ex.Negatives) > 0 {
		logits := make([]float64, len(candidates))
		for i, c := range candidates {
			logits[i] = s.Score(ex.IntentEmbedding, c.emb) / contrastiveTemperature
		}
		maxLogit := logits[0]
		for _, l := range logits[1:] {
			if l > maxLogit {
				maxLogit = l
			}
		}
		var sumExp float64
		probs := make([]float64, len(logits))
		for i, l := range logits {
			probs[i] = math.Exp(l - maxLogit)
			sumExp += probs[i]
		}
		for i := range probs {
			probs[i] /= sumExp
		}
		loss = -math.Log(probs[0] + 1e-12)
		for i := range candidates {
			target := 0.0
			if i == 0 {
				target = 1.0
			}
			candidates[i].dLoss = (probs[i] - target) / contrastiveTemperature
		}
	} else {
		y := 0.0
		if ex.Outcome != nil && *ex.Outcome {
			y = 1.0
		}
		logit := s.Score(ex.IntentEmbedding, ex.PositiveEmbedding)
		p := 1 / (1 + math.Exp(-logit))
		loss = -(y*math.Log(p+1e-12) + (1-y)*math.Log(1-p+1e-12))
		candidates[0].dLoss = p - y
	}

	numHeads := len(s.params.Scoring.WQ)
	if numHeads == 0 {
		return TrainResult{Loss: loss, Skipped: true}
	}
	headDim := float64(len(s.params.Scoring.WQ[0]))
	if headDim == 0 {
		headDim = 1
	}

	gradWQ := zeroLike(s.params.Scoring.WQ)
	gradWK := zeroLike(s.params.Scoring.WK)

	intent := ex.IntentEmbedding
	if !s.cfg.PreserveDim {
		intent = matVec(s.params.Scoring.WIntent, ex.IntentEmbedding)
	}

	for _, c := range candidates {
		dScore := weight * c.dLoss / float64(numHeads)
		for h := 0; h < numHeads; h++ {
			q := matVec(s.params.Scoring.WQ[h], intent)
			k := matVec(s.params.Scoring.WK[h], c.emb)
			coeff := dScore / math.Sqrt(headDim)
			for d := range gradWQ[h] {
				for j := range gradWQ[h][d] {
					if j < len(intent) && d < len(k) {
						gradWQ[h][d][j] += coeff * k[d] * intent[j]
					}
				}
			}
			for d := range gradWK[h] {
				for j := range gradWK[h][d] {
					if j < len(c.emb) && d < len(q) {
						gradWK[h][d][j] += coeff * q[d] * c.emb[j]
					}
				}
			}
		}
	}

	gradNorm := tensorNorm(gradWQ) + tensorNorm(gradWK)
	if math.IsNaN(gradNorm) || math.IsInf(gradNorm, 0) {
		return TrainResult{Loss: loss, GradNorm: gradNorm, Skipped: true}
	}

	applyGradient(s.params.Scoring.WQ, gradWQ, lr, l2)
	applyGradient(s.params.Scoring.WK, gradWK, lr, l2)

	return TrainResult{Loss: loss, GradNorm: gradNorm}
}

func zeroLike(w [][][]float64) [][][]float64 {
	out := make([][][]float64, len(w))
	for i, m := range w {
		out[i] = make([][]float64, len(m))
		for j, row := range m {
			out[i][j] = make([]float64, len(row))
		}
	}
	return out
}

func tensorNorm(w [][][]float64) float64 {
	var sum float64
	for _, m := range w {
		for _, row := range m {
			for _, v := range row {
				sum += v * v
			}
		}
	}
	return math.Sqrt(sum)
}

// applyGradient performs one SGD step with L2 weight decay:
// param -= lr * (grad + l2*param).
func applyGradient(params, grad [][][]float64, lr, l2 float64) {
	for h := range params {
		for d := range params[h] {
			for j := range params[h][d] {
				params[h][d][j] -= lr * (grad[h][d][j] + l2*params[h][d][j])
			}
		}
	}
}
