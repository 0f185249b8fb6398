// Package lexical is the in-memory BM25 retriever built from the flat corpus document list.
package lexical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
	"github.com/kirillkom/career-case-rag/internal/core/retrieval"
)

const defaultLoadTimeout = 30 * time.Second

// DegradedObserver is told every time the retriever falls back to disabled mode.
type DegradedObserver interface {
	ObserveLexicalDegraded(reason string)
}

type Options struct {
	Partition   string
	LoadTimeout time.Duration
	Logger      *slog.Logger
	Observer    DegradedObserver
}

// Retriever serves BM25 searches. Until a load succeeds it is disabled: Search returns nothing
// and Enabled reports false. Searches take the read lock; Rebuild swaps the index under the
// write lock.
type Retriever struct {
	source      ports.CorpusSource
	partition   string
	loadTimeout time.Duration
	logger      *slog.Logger
	observer    DegradedObserver

	mu    sync.RWMutex
	index *Index
}

func NewRetriever(source ports.CorpusSource, opts Options) *Retriever {
	if opts.Partition == "" {
		opts.Partition = domain.PartitionCareerCases
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = defaultLoadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		source:      source,
		partition:   opts.Partition,
		loadTimeout: opts.LoadTimeout,
		logger:      opts.Logger,
		observer:    opts.Observer,
	}
}

// Rebuild loads the corpus and replaces the index. On failure the previous index, if any,
// keeps serving; with no previous index the retriever stays disabled.
func (r *Retriever) Rebuild(ctx context.Context) error {
	records, err := r.load(ctx)
	if err == nil {
		records = retrieval.FilterMeaningful(records)
		if len(records) == 0 {
			err = domain.WrapError(domain.ErrIndexEmpty, "lexical load", errors.New("corpus has no meaningful records"))
		}
	}
	if err != nil {
		r.degrade(err)
		return err
	}

	idx := Build(records)
	r.mu.Lock()
	r.index = idx
	r.mu.Unlock()

	r.logger.Info("lexical_index_built", "partition", r.partition, "documents", idx.Len())
	return nil
}

func (r *Retriever) Search(ctx context.Context, query string, k int) []domain.ScoredResult {
	if ctx.Err() != nil {
		return []domain.ScoredResult{}
	}
	r.mu.RLock()
	idx := r.index
	r.mu.RUnlock()
	if idx == nil {
		return []domain.ScoredResult{}
	}
	return idx.Search(query, k)
}

func (r *Retriever) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.index != nil
}

// Size is the number of indexed documents, 0 when disabled.
func (r *Retriever) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.index == nil {
		return 0
	}
	return r.index.Len()
}

type loadResult struct {
	records []domain.Record
	err     error
}

// load bounds the source call by loadTimeout even if the source ignores its context.
func (r *Retriever) load(ctx context.Context) ([]domain.Record, error) {
	if r.source == nil {
		return nil, domain.WrapError(domain.ErrNotFound, "lexical load", errors.New("no corpus source configured"))
	}

	ctx, cancel := context.WithTimeout(ctx, r.loadTimeout)
	defer cancel()

	done := make(chan loadResult, 1)
	go func() {
		records, err := r.source.LoadRecords(ctx, r.partition)
		done <- loadResult{records: records, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("load corpus: %w", res.err)
		}
		return res.records, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("load corpus: %w", ctx.Err())
	}
}

func (r *Retriever) degrade(err error) {
	if r.Enabled() {
		r.logger.Warn("lexical_reload_failed", "partition", r.partition, "error", err)
		return
	}
	r.logger.Warn("lexical_degraded_mode", "partition", r.partition, "error", err)
	if r.observer != nil {
		r.observer.ObserveLexicalDegraded(degradedReason(err))
	}
}

func degradedReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case domain.IsKind(err, domain.ErrNotFound):
		return "missing"
	case domain.IsKind(err, domain.ErrIndexEmpty):
		return "empty"
	default:
		return "load_error"
	}
}
