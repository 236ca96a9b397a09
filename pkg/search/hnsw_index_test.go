package search

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/vectordb/vectordb/pkg/metric"
)

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	idx := NewHNSWIndex(3, metric.Cosine)
	results, err := idx.Search([]float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search on empty index = %v, want empty", results)
	}
}

func TestSearchKZeroReturnsEmpty(t *testing.T) {
	idx := NewHNSWIndex(3, metric.Cosine)
	if err := idx.Insert(1, []float32{1, 0, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	results, err := idx.Search([]float32{1, 0, 0}, 0)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search(k=0) = %v, want empty", results)
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex(3, metric.Euclidean)
	err := idx.Insert(1, []float32{1, 0})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Insert(wrong dim) error = %v, want ErrDimensionMismatch", err)
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	idx := NewHNSWIndex(3, metric.Euclidean)
	idx.Insert(1, []float32{1, 0, 0})
	_, err := idx.Search([]float32{1, 0}, 1)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("Search(wrong dim) error = %v, want ErrDimensionMismatch", err)
	}
}

func TestCosineSelfDistanceNearZero(t *testing.T) {
	idx := NewHNSWIndex(3, metric.Cosine)
	vectors := map[uint64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0, 0, 1},
	}
	for id, v := range vectors {
		if err := idx.Insert(id, v); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	results, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Search returned no results")
	}
	if results[0].ID != 1 {
		t.Errorf("top result ID = %d, want 1", results[0].ID)
	}
	if results[0].Distance > 1e-4 {
		t.Errorf("top result distance = %v, want ~0", results[0].Distance)
	}
}

func TestEuclideanRecallOnRandomData(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	dim := 8
	idx := NewHNSWIndex(dim, metric.Euclidean)

	n := 200
	vectors := make(map[uint64][]float32, n)
	for id := uint64(1); id <= uint64(n); id++ {
		v := make([]float32, dim)
		for i := range v {
			v[i] = rng.Float32()
		}
		vectors[id] = v
		if err := idx.Insert(id, v); err != nil {
			t.Fatalf("Insert(%d): %v", id, err)
		}
	}

	found := 0
	for id, v := range vectors {
		results, err := idx.Search(v, 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) > 0 && results[0].ID == id {
			found++
		}
	}

	recall := float64(found) / float64(n)
	if recall < 0.9 {
		t.Errorf("recall@1 = %v, want >= 0.9", recall)
	}
}

func TestDotDistanceIsNegated(t *testing.T) {
	idx := NewHNSWIndex(2, metric.Dot)
	idx.Insert(1, []float32{1, 0})
	idx.Insert(2, []float32{-1, 0})

	results, err := idx.Search([]float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search returned %d results, want 2", len(results))
	}
	if results[0].ID != 1 {
		t.Errorf("closest by dot = %d, want 1 (ascending distance convention)", results[0].ID)
	}
	if results[0].Distance >= results[1].Distance {
		t.Errorf("results not ascending: %+v", results)
	}
}

func TestParamsForDimensionBuckets(t *testing.T) {
	tests := []struct {
		dim                int
		m, maxM0, efConstr int
	}{
		{1, 16, 32, 150},
		{384, 16, 32, 150},
		{385, 12, 24, 150},
		{768, 12, 24, 150},
		{769, 8, 16, 100},
		{3072, 8, 16, 100},
	}
	for _, tt := range tests {
		cfg := ParamsForDimension(tt.dim)
		if cfg.M != tt.m || cfg.MaxM0 != tt.maxM0 || cfg.EfConstruction != tt.efConstr {
			t.Errorf("ParamsForDimension(%d) = %+v, want M=%d MaxM0=%d EfConstruction=%d",
				tt.dim, cfg, tt.m, tt.maxM0, tt.efConstr)
		}
	}
}

func TestEfSearchFloor(t *testing.T) {
	if got := efSearch(1); got != 50 {
		t.Errorf("efSearch(1) = %d, want 50", got)
	}
	if got := efSearch(30); got != 60 {
		t.Errorf("efSearch(30) = %d, want 60", got)
	}
}
