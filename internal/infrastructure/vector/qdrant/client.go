package qdrant

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/infrastructure/resilience"
)

// pointNamespace seeds deterministic point ids so re-ingesting a record overwrites its point.
var pointNamespace = uuid.MustParse("6f1c8e1a-3b0e-4a57-9a7e-2f1a63c0b9d4")

type Config struct {
	BaseURL            string
	CollectionPrefix   string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

// Client is a VectorIndex over the qdrant REST API. Each partition is its own
// cosine collection; distances are reported as 1 - score.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu sync.Mutex
	ensured  map[string]int
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		prefix:     cfg.CollectionPrefix,
		httpClient: &http.Client{Timeout: timeout},
		executor:   cfg.ResilienceExecutor,
		ensured:    make(map[string]int),
	}
}

func (c *Client) collection(partition string) string {
	return c.prefix + partition
}

func (c *Client) Upsert(ctx context.Context, partition string, records []domain.Record, vectors [][]float32) error {
	if len(records) == 0 {
		return nil
	}
	if len(records) != len(vectors) {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert",
			fmt.Errorf("records/vectors mismatch: %d != %d", len(records), len(vectors)))
	}

	collection := c.collection(partition)
	if err := c.ensureCollection(ctx, collection, len(vectors[0])); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(records))
	for i, rec := range records {
		payload := map[string]any{
			"record_id": rec.ID,
			"content":   rec.Content,
		}
		if len(rec.Metadata) > 0 {
			payload["metadata"] = rec.Metadata
		}
		points = append(points, point{
			ID:      PointID(partition, rec.ID),
			Vector:  vectors[i],
			Payload: payload,
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", collection)
	status, err := c.call(ctx, "qdrant_upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
	if err != nil {
		return err
	}
	if status.code == http.StatusBadRequest && isDimensionError(status.body) {
		return domain.WrapError(domain.ErrIndexMismatch, "qdrant upsert", status.err())
	}
	if status.code >= 300 {
		return status.err()
	}
	return nil
}

func (c *Client) Query(ctx context.Context, partition string, vector []float32, k int) (domain.IndexQueryResult, error) {
	if k <= 0 || len(vector) == 0 {
		return domain.IndexQueryResult{}, nil
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   *float64       `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection(partition))
	status, err := c.call(ctx, "qdrant_search", http.MethodPost, path, reqBody, &searchResp)
	if err != nil {
		return domain.IndexQueryResult{}, err
	}
	switch {
	case status.code == http.StatusNotFound:
		return domain.IndexQueryResult{}, domain.WrapError(domain.ErrIndexEmpty, "qdrant search", status.err())
	case status.code == http.StatusBadRequest && isDimensionError(status.body):
		return domain.IndexQueryResult{}, domain.WrapError(domain.ErrIndexMismatch, "qdrant search", status.err())
	case status.code >= 300:
		return domain.IndexQueryResult{}, status.err()
	}

	out := domain.IndexQueryResult{
		IDs:       make([]string, 0, len(searchResp.Result)),
		Documents: make([]string, 0, len(searchResp.Result)),
		Metadatas: make([]map[string]any, 0, len(searchResp.Result)),
		Distances: make([]float64, 0, len(searchResp.Result)),
	}
	for _, r := range searchResp.Result {
		if r.Score == nil {
			return domain.IndexQueryResult{}, domain.WrapError(domain.ErrMalformedResponse, "qdrant search",
				errors.New("hit without score"))
		}
		meta, _ := r.Payload["metadata"].(map[string]any)
		out.IDs = append(out.IDs, getStringPayload(r.Payload, "record_id"))
		out.Documents = append(out.Documents, getStringPayload(r.Payload, "content"))
		out.Metadatas = append(out.Metadatas, meta)
		// Cosine scores of identical vectors can exceed 1 by float error.
		out.Distances = append(out.Distances, math.Max(0, 1-*r.Score))
	}
	return out, nil
}

// DeletePartition drops the partition's collection. A missing collection is not an error.
func (c *Client) DeletePartition(ctx context.Context, partition string) error {
	collection := c.collection(partition)
	status, err := c.call(ctx, "qdrant_delete_collection", http.MethodDelete, "/collections/"+collection, nil, nil)
	if err != nil {
		return err
	}
	if status.code >= 300 && status.code != http.StatusNotFound {
		return status.err()
	}

	c.ensureMu.Lock()
	delete(c.ensured, collection)
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, collection string, vectorSize int) error {
	c.ensureMu.Lock()
	if size, ok := c.ensured[collection]; ok && size == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	status, err := c.call(ctx, "qdrant_ensure_collection", http.MethodPut, "/collections/"+collection, reqBody, nil)
	if err != nil {
		return err
	}
	// 200/201 for create, 409 if already exists (depends on version/config).
	if status.code >= 300 && status.code != http.StatusConflict {
		return status.err()
	}

	c.ensureMu.Lock()
	c.ensured[collection] = vectorSize
	c.ensureMu.Unlock()
	return nil
}

// PointID derives the qdrant point id of a record.
func PointID(partition, recordID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(partition+"/"+recordID)).String()
}

func isDimensionError(body string) bool {
	body = strings.ToLower(body)
	return strings.Contains(body, "dimension")
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
