// Package search provides the per-collection HNSW approximate nearest
// neighbor index.
package search

import (
	"container/heap"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"

	"github.com/vectordb/vectordb/pkg/math/vector"
	"github.com/vectordb/vectordb/pkg/metric"
)

// ErrDimensionMismatch is returned when a vector's length doesn't match the
// index's configured dimensionality.
var ErrDimensionMismatch = errors.New("search: vector dimension mismatch")

// SearchResult is a single hit returned from Search, ordered so that
// smaller Distance always means more similar, regardless of metric.
type SearchResult struct {
	ID       uint64
	Distance float64
}

// HNSWConfig holds the tunable hyperparameters for one index.
type HNSWConfig struct {
	M               int
	MaxM0           int
	EfConstruction  int
	LevelMultiplier float64
}

// ParamsForDimension returns the hyperparameter bucket mandated for a given
// vector dimensionality.
func ParamsForDimension(dim int) HNSWConfig {
	var m, maxM0, efConstruction int
	switch {
	case dim <= 384:
		m, maxM0, efConstruction = 16, 32, 150
	case dim <= 768:
		m, maxM0, efConstruction = 12, 24, 150
	default:
		m, maxM0, efConstruction = 8, 16, 100
	}
	return HNSWConfig{
		M:               m,
		MaxM0:           maxM0,
		EfConstruction:  efConstruction,
		LevelMultiplier: 1.0 / math.Log(float64(m)),
	}
}

// efSearch returns the candidate-list size used during search, per the
// spec's max(2*k, 50) rule.
func efSearch(k int) int {
	if 2*k > 50 {
		return 2 * k
	}
	return 50
}

type hnswNode struct {
	id        uint64
	vector    []float32
	level     int
	neighbors [][]uint64
	mu        sync.RWMutex
}

// HNSWIndex is an HNSW graph over a single collection's vectors, built for
// one of the three supported metrics. The distance function is selected
// once at construction and never branches again on the hot path.
type HNSWIndex struct {
	config     HNSWConfig
	dimensions int
	distance   func(a, b []float32) float64

	mu         sync.RWMutex
	nodes      map[uint64]*hnswNode
	entryPoint uint64
	hasEntry   bool
	maxLevel   int
}

// NewHNSWIndex creates an empty index for the given dimensionality and
// metric, choosing hyperparameters from the dimension bucket table.
func NewHNSWIndex(dimensions int, m metric.Metric) *HNSWIndex {
	return &HNSWIndex{
		config:     ParamsForDimension(dimensions),
		dimensions: dimensions,
		distance:   distanceFuncFor(m),
		nodes:      make(map[uint64]*hnswNode),
	}
}

// distanceFuncFor returns the metric-specific distance function, normalized
// so that smaller is always more similar. Dot product is negated here, at
// the index boundary, to conform to that convention.
func distanceFuncFor(m metric.Metric) func(a, b []float32) float64 {
	switch m {
	case metric.Euclidean:
		return vector.EuclideanDistance
	case metric.Cosine:
		return func(a, b []float32) float64 {
			return 1.0 - vector.CosineSimilarity(a, b)
		}
	case metric.Dot:
		return func(a, b []float32) float64 {
			return -vector.DotProduct(a, b)
		}
	default:
		return vector.EuclideanDistance
	}
}

// Insert adds a vector to the index. The caller is responsible for
// dimension validation (the engine facade rejects mismatches before this
// is ever called), but Insert re-checks defensively since the index is
// also exercised directly in tests.
func (h *HNSWIndex) Insert(id uint64, vec []float32) error {
	if len(vec) != h.dimensions {
		return ErrDimensionMismatch
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	level := h.randomLevel()
	node := &hnswNode{
		id:        id,
		vector:    vec,
		level:     level,
		neighbors: make([][]uint64, level+1),
	}
	for i := range node.neighbors {
		node.neighbors[i] = make([]uint64, 0, h.config.M)
	}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLevel = level
		return nil
	}

	ep := h.entryPoint
	epLevel := h.nodes[ep].level

	for l := epLevel; l > level; l-- {
		ep = h.searchLayerSingle(vec, ep, l)
	}

	for l := min(level, epLevel); l >= 0; l-- {
		maxConns := h.config.M
		if l == 0 {
			maxConns = h.config.MaxM0
		}

		candidates := h.searchLayer(vec, ep, h.config.EfConstruction, l)
		neighbors := h.selectNeighbors(vec, candidates, maxConns)
		node.neighbors[l] = neighbors

		for _, neighborID := range neighbors {
			neighbor := h.nodes[neighborID]
			neighbor.mu.Lock()
			if len(neighbor.neighbors) > l {
				if len(neighbor.neighbors[l]) < maxConns {
					neighbor.neighbors[l] = append(neighbor.neighbors[l], id)
				} else {
					merged := append(append([]uint64(nil), neighbor.neighbors[l]...), id)
					neighbor.neighbors[l] = h.selectNeighbors(neighbor.vector, merged, maxConns)
				}
			}
			neighbor.mu.Unlock()
		}

		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}

	if level > h.maxLevel {
		h.entryPoint = id
		h.maxLevel = level
	}

	return nil
}

// Search returns up to k neighbors of query, ordered by ascending distance.
// Returns an empty slice (never an error) for an empty index or k == 0.
func (h *HNSWIndex) Search(query []float32, k int) ([]SearchResult, error) {
	if len(query) != h.dimensions {
		return nil, ErrDimensionMismatch
	}
	if k == 0 {
		return []SearchResult{}, nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.nodes) == 0 {
		return []SearchResult{}, nil
	}

	ep := h.entryPoint
	for l := h.maxLevel; l > 0; l-- {
		ep = h.searchLayerSingle(query, ep, l)
	}

	candidates := h.searchLayer(query, ep, efSearch(k), 0)

	results := make([]SearchResult, 0, len(candidates))
	for _, candidateID := range candidates {
		node := h.nodes[candidateID]
		results = append(results, SearchResult{
			ID:       candidateID,
			Distance: h.distance(query, node.vector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Size returns the number of vectors currently in the index.
func (h *HNSWIndex) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

func (h *HNSWIndex) searchLayerSingle(query []float32, entryID uint64, level int) uint64 {
	current := entryID
	currentDist := h.distance(query, h.nodes[current].vector)

	for {
		changed := false
		node := h.nodes[current]
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			neighbor := h.nodes[neighborID]
			dist := h.distance(query, neighbor.vector)
			if dist < currentDist {
				current = neighborID
				currentDist = dist
				changed = true
			}
		}

		if !changed {
			break
		}
	}

	return current
}

func (h *HNSWIndex) searchLayer(query []float32, entryID uint64, ef int, level int) []uint64 {
	visited := map[uint64]bool{entryID: true}

	candidates := &hnswDistHeap{}
	results := &hnswDistHeap{}

	entryDist := h.distance(query, h.nodes[entryID].vector)
	heap.Push(candidates, hnswDistItem{id: entryID, dist: entryDist, isMax: false})
	heap.Push(results, hnswDistItem{id: entryID, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(hnswDistItem)

		if results.Len() >= ef {
			furthest := (*results)[0]
			if closest.dist > furthest.dist {
				break
			}
		}

		node := h.nodes[closest.id]
		if node.level < level {
			continue
		}
		node.mu.RLock()
		neighbors := node.neighbors[level]
		node.mu.RUnlock()

		for _, neighborID := range neighbors {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighbor := h.nodes[neighborID]
			dist := h.distance(query, neighbor.vector)

			if results.Len() < ef || dist < (*results)[0].dist {
				heap.Push(candidates, hnswDistItem{id: neighborID, dist: dist, isMax: false})
				heap.Push(results, hnswDistItem{id: neighborID, dist: dist, isMax: true})

				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	resultList := make([]uint64, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		item := heap.Pop(results).(hnswDistItem)
		resultList[i] = item.id
	}
	return resultList
}

func (h *HNSWIndex) selectNeighbors(query []float32, candidates []uint64, m int) []uint64 {
	if len(candidates) <= m {
		return candidates
	}

	type distNode struct {
		id   uint64
		dist float64
	}
	dists := make([]distNode, len(candidates))
	for i, cid := range candidates {
		dists[i] = distNode{id: cid, dist: h.distance(query, h.nodes[cid].vector)}
	}

	sort.Slice(dists, func(i, j int) bool {
		return dists[i].dist < dists[j].dist
	})

	result := make([]uint64, m)
	for i := 0; i < m; i++ {
		result[i] = dists[i].id
	}
	return result
}

func (h *HNSWIndex) randomLevel() int {
	r := rand.Float64()
	return int(-math.Log(r) * h.config.LevelMultiplier)
}

type hnswDistItem struct {
	id    uint64
	dist  float64
	isMax bool
}

type hnswDistHeap []hnswDistItem

func (dh hnswDistHeap) Len() int { return len(dh) }
func (dh hnswDistHeap) Less(i, j int) bool {
	if dh[i].isMax {
		return dh[i].dist > dh[j].dist
	}
	return dh[i].dist < dh[j].dist
}
func (dh hnswDistHeap) Swap(i, j int) { dh[i], dh[j] = dh[j], dh[i] }

func (dh *hnswDistHeap) Push(x interface{}) {
	*dh = append(*dh, x.(hnswDistItem))
}

func (dh *hnswDistHeap) Pop() interface{} {
	old := *dh
	n := len(old)
	x := old[n-1]
	*dh = old[0 : n-1]
	return x
}
