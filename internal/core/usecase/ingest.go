package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/career-case-rag/internal/core/domain"
	"github.com/kirillkom/career-case-rag/internal/core/ports"
	"github.com/kirillkom/career-case-rag/internal/core/retrieval"
)

type IngestConfig struct {
	Concurrency int
	BatchSize   int
}

// CorpusIngestUseCase loads a partition: filter, embed, persist, index, announce.
type CorpusIngestUseCase struct {
	embedder ports.Embedder
	index    ports.VectorIndex
	records  ports.RecordRepository
	events   ports.CorpusEvents
	cfg      IngestConfig
}

func NewCorpusIngestUseCase(
	embedder ports.Embedder,
	index ports.VectorIndex,
	records ports.RecordRepository,
	events ports.CorpusEvents,
	cfg IngestConfig,
) *CorpusIngestUseCase {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	return &CorpusIngestUseCase{
		embedder: embedder,
		index:    index,
		records:  records,
		events:   events,
		cfg:      cfg,
	}
}

// Ingest embeds every meaningful record and writes it to the vector index and the record store.
// Embedding runs before any write, so a provider failure leaves the existing partition
// untouched. With replace set the vector partition is wiped and refilled before the record
// store is touched; a failed index write leaves the vector partition empty but keeps the
// previous records, and re-running the ingest restores the index.
func (uc *CorpusIngestUseCase) Ingest(
	ctx context.Context,
	partition string,
	records []domain.Record,
	replace bool,
) (*domain.IngestReport, error) {
	partition = strings.TrimSpace(partition)
	if partition == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest corpus", errors.New("partition is required"))
	}

	kept := uniqueRecords(retrieval.FilterMeaningful(records), partition)
	report := &domain.IngestReport{
		Partition: partition,
		Received:  len(records),
		Skipped:   len(records) - len(kept),
		Replaced:  replace,
	}
	if len(kept) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "ingest corpus", errors.New("no meaningful records to ingest"))
	}

	vectors, err := uc.embed(ctx, kept)
	if err != nil {
		return nil, err
	}

	if replace {
		if err := uc.index.DeletePartition(ctx, partition); err != nil {
			return nil, fmt.Errorf("delete vector partition: %w", err)
		}
	}
	if err := uc.index.Upsert(ctx, partition, kept, vectors); err != nil {
		return nil, fmt.Errorf("index records in vector db: %w", err)
	}

	if replace {
		if err := uc.records.ReplacePartition(ctx, partition, kept); err != nil {
			return nil, fmt.Errorf("replace record partition: %w", err)
		}
	} else if err := uc.records.UpsertRecords(ctx, partition, kept); err != nil {
		return nil, fmt.Errorf("upsert records: %w", err)
	}
	report.Indexed = len(kept)

	if uc.events != nil {
		if err := uc.events.PublishCorpusReindexed(ctx, partition); err != nil {
			return nil, fmt.Errorf("publish reindex event: %w", err)
		}
	}
	return report, nil
}

// embed splits the texts into batches and runs them on a bounded pool.
func (uc *CorpusIngestUseCase) embed(ctx context.Context, records []domain.Record) ([][]float32, error) {
	pool, err := ants.NewPool(uc.cfg.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}
	defer pool.Release()

	vectors := make([][]float32, len(records))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}

	for start := 0; start < len(records); start += uc.cfg.BatchSize {
		end := min(start+uc.cfg.BatchSize, len(records))
		batch := records[start:end]
		offset := start

		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				fail(err)
				return
			}
			texts := make([]string, len(batch))
			for i, rec := range batch {
				texts[i] = rec.Content
			}
			out, err := uc.embedder.Embed(ctx, texts)
			if err != nil {
				fail(fmt.Errorf("embed records: %w", err))
				return
			}
			if len(out) != len(batch) {
				fail(domain.WrapError(
					domain.ErrMalformedResponse,
					"embed records",
					fmt.Errorf("vectors/records mismatch: %d/%d", len(out), len(batch)),
				))
				return
			}
			copy(vectors[offset:], out)
		}
		if err := pool.Submit(task); err != nil {
			wg.Done()
			fail(fmt.Errorf("submit embedding task: %w", err))
			break
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return vectors, nil
}

// uniqueRecords drops records without an ID and keeps the last occurrence of each ID,
// stamping the target partition.
func uniqueRecords(records []domain.Record, partition string) []domain.Record {
	index := make(map[string]int, len(records))
	out := make([]domain.Record, 0, len(records))
	for _, rec := range records {
		rec.ID = strings.TrimSpace(rec.ID)
		if rec.ID == "" {
			continue
		}
		rec.Partition = partition
		if pos, ok := index[rec.ID]; ok {
			out[pos] = rec
			continue
		}
		index[rec.ID] = len(out)
		out = append(out, rec)
	}
	return out
}
