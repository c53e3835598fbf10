package graphrag

import (
	"container/heap"
	"math"
)

// edgeCost converts an edge's weight into a traversal cost: higher weight
// means a cheaper, more-preferred edge (spec §4.5.2 "cost = 1 /
// max(weight, 0.1)").
func edgeCost(weight float64) float64 {
	return 1.0 / math.Max(weight, 0.1)
}

type pqItem struct {
	node string
	dist float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPath runs a bidirectional Dijkstra search (spec §4.5.2
// "Dijkstra: bidirectional") between from and to, returning the total
// cost and true if a path exists.
func ShortestPath(g *Graph, from, to string) (float64, bool) {
	if from == to {
		return 0, true
	}

	forward := map[string]float64{from: 0}
	backward := map[string]float64{to: 0}
	forwardPQ := &priorityQueue{{node: from, dist: 0}}
	backwardPQ := &priorityQueue{{node: to, dist: 0}}
	heap.Init(forwardPQ)
	heap.Init(backwardPQ)

	fVisited := map[string]bool{}
	bVisited := map[string]bool{}

	best := math.Inf(1)
	found := false

	for forwardPQ.Len() > 0 || backwardPQ.Len() > 0 {
		if forwardPQ.Len() > 0 {
			cur := heap.Pop(forwardPQ).(pqItem)
			if !fVisited[cur.node] {
				fVisited[cur.node] = true
				for _, e := range g.Neighbors(cur.node) {
					c := cur.dist + edgeCost(e.Weight)
					if d, ok := forward[e.To]; !ok || c < d {
						forward[e.To] = c
						heap.Push(forwardPQ, pqItem{node: e.To, dist: c})
					}
					if bd, ok := backward[e.To]; ok {
						total := c + bd
						if total < best {
							best = total
							found = true
						}
					}
				}
			}
		}
		if backwardPQ.Len() > 0 {
			cur := heap.Pop(backwardPQ).(pqItem)
			if !bVisited[cur.node] {
				bVisited[cur.node] = true
				for _, e := range g.InNeighbors(cur.node) {
					c := cur.dist + edgeCost(e.Weight)
					if d, ok := backward[e.From]; !ok || c < d {
						backward[e.From] = c
						heap.Push(backwardPQ, pqItem{node: e.From, dist: c})
					}
					if fd, ok := forward[e.From]; ok {
						total := c + fd
						if total < best {
							best = total
							found = true
						}
					}
				}
			}
		}
	}

	if !found {
		return 0, false
	}
	return best, true
}
