package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/vectordb/vectordb/pkg/collection"
	"github.com/vectordb/vectordb/pkg/engine"
)

type healthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Version:       Version,
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

type collectionResponse struct {
	ID       uint64 `json:"id"`
	Name     string `json:"name"`
	Dim      int    `json:"dim"`
	Metric   string `json:"metric"`
	DocCount uint64 `json:"doc_count"`
}

func toCollectionResponse(m collection.Meta) collectionResponse {
	return collectionResponse{
		ID:       m.ID,
		Name:     m.Name,
		Dim:      m.Dim,
		Metric:   m.Metric.String(),
		DocCount: m.DocCount,
	}
}

type createCollectionRequest struct {
	Name      string `json:"name"`
	Metric    string `json:"metric"`
	Dimension int    `json:"dimension"`
}

func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req createCollectionRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	metricName := req.Metric
	if metricName == "" {
		metricName = s.cfg.DefaultMetric
	}

	meta, err := s.engine.CreateCollection(req.Name, metricName, req.Dimension)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCollectionResponse(meta))
}

// handleCollections serves both listing (GET) and creation (POST), since
// /api/v1/collections is both in the documented surface. /collections is
// routed here as well, so it also accepts POST.
func (s *Server) handleCollections(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		metas := s.engine.ListCollections()
		resp := make([]collectionResponse, len(metas))
		for i, m := range metas {
			resp[i] = toCollectionResponse(m)
		}
		s.writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		s.handleCreateCollection(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
	}
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/collections/")
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "collection name required", nil)
		return
	}

	meta, err := s.engine.GetCollectionByName(name)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toCollectionResponse(meta))
}

type addDocumentRequest struct {
	ID             *uint64   `json:"id"`
	Embedding      []float32 `json:"embedding"`
	Metadata       string    `json:"metadata"`
	Content        string    `json:"content"`
	CollectionName string    `json:"collection_name"`
}

type addDocumentResponse struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}

func (s *Server) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req addDocumentRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	id, err := s.engine.AddDocument(req.CollectionName, req.ID, req.Embedding, req.Metadata, req.Content)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, addDocumentResponse{ID: id, Status: "ok"})
}

type addDocumentsRequest struct {
	CollectionName string               `json:"collection_name"`
	Documents      []addDocumentRequest `json:"documents"`
}

type addDocumentsResponse struct {
	Documents []addDocumentResponse `json:"documents"`
	Errors    []string              `json:"errors,omitempty"`
}

func (s *Server) handleAddDocuments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req addDocumentsRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	inputs := make([]engine.DocumentInput, len(req.Documents))
	for i, d := range req.Documents {
		inputs[i] = engine.DocumentInput{
			ID:        d.ID,
			Embedding: d.Embedding,
			Metadata:  d.Metadata,
			Content:   d.Content,
		}
	}

	results, err := s.engine.AddDocuments(req.CollectionName, inputs)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := addDocumentsResponse{Documents: make([]addDocumentResponse, len(results))}
	for i, item := range results {
		status := "ok"
		if item.Err != "" {
			status = "error"
			resp.Errors = append(resp.Errors, item.Err)
		}
		resp.Documents[i] = addDocumentResponse{ID: item.ID, Status: status}
	}

	if len(resp.Errors) > 0 {
		s.writeJSON(w, http.StatusMultiStatus, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	CollectionName string    `json:"collection_name"`
	Query          []float32 `json:"query"`
	N              int       `json:"n"`
}

type searchHitResponse struct {
	ID       uint64  `json:"id"`
	Distance float64 `json:"distance"`
	Metadata string  `json:"metadata"`
	Content  string  `json:"content"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}

	var req searchRequest
	if err := s.readJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	hits, err := s.engine.Search(req.CollectionName, req.Query, req.N)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}

	resp := make([]searchHitResponse, len(hits))
	for i, h := range hits {
		resp[i] = searchHitResponse{ID: h.ID, Distance: h.Distance, Metadata: h.Metadata, Content: h.Content}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type memoryUsage struct {
	AllocMB  float64 `json:"alloc_mb"`
	SystemMB float64 `json:"system_mb"`
}

type statsResponse struct {
	Collections    int         `json:"collections"`
	TotalDocuments uint64      `json:"total_documents"`
	MemoryUsage    memoryUsage `json:"memory_usage"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()
	s.writeJSON(w, http.StatusOK, statsResponse{
		Collections:    stats.Collections,
		TotalDocuments: stats.TotalDocuments,
		MemoryUsage: memoryUsage{
			AllocMB:  stats.MemoryAllocMB,
			SystemMB: stats.MemorySystemMB,
		},
	})
}
