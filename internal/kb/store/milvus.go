package store

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// MilvusConfig contains Milvus backend configuration.
type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Database   string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// MilvusStore is a Milvus-backed VectorStore. It uses an inner-product
// metric, so it expects the same unit-normalized vectors as the flat
// store.
type MilvusStore struct {
	client *milvusclient.Client
	cfg    *MilvusConfig
}

// NewMilvusStore connects to Milvus and returns a store bound to the
// configured collection.
func NewMilvusStore(cfg *MilvusConfig) (*MilvusStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("milvus config is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &MilvusStore{client: c, cfg: cfg}, nil
}

var metaFields = []string{"chunk_id", "chunk_index", "source", "text", "email", "region", "branch"}

// Build drops any existing collection, recreates it, and inserts all rows.
// A full rebuild keeps the collection a faithful snapshot of one ingestion
// run, mirroring the flat store's replace semantics.
func (s *MilvusStore) Build(ctx context.Context, rows []Row) error {
	if len(rows) == 0 {
		return fmt.Errorf("cannot build an empty index")
	}

	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.cfg.Collection))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		if err := s.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(s.cfg.Collection)); err != nil {
			return fmt.Errorf("failed to drop collection: %w", err)
		}
	}

	if err := s.createCollection(ctx); err != nil {
		return err
	}

	embeddings := make([][]float32, len(rows))
	chunkIDs := make([]string, len(rows))
	chunkIndexes := make([]int64, len(rows))
	sources := make([]string, len(rows))
	texts := make([]string, len(rows))
	emails := make([]string, len(rows))
	regions := make([]string, len(rows))
	branches := make([]string, len(rows))

	for i, row := range rows {
		embeddings[i] = row.Vector
		chunkIDs[i] = row.Meta.ChunkID
		chunkIndexes[i] = int64(row.Meta.ChunkIndex)
		sources[i] = row.Meta.Source
		texts[i] = row.Meta.Text
		emails[i] = row.Meta.Email
		regions[i] = row.Meta.Region
		branches[i] = row.Meta.Branch
	}

	columns := []column.Column{
		column.NewColumnFloatVector("embedding", s.cfg.Dimension, embeddings),
		column.NewColumnVarChar("chunk_id", chunkIDs),
		column.NewColumnInt64("chunk_index", chunkIndexes),
		column.NewColumnVarChar("source", sources),
		column.NewColumnVarChar("text", texts),
		column.NewColumnVarChar("email", emails),
		column.NewColumnVarChar("region", regions),
		column.NewColumnVarChar("branch", branches),
	}

	if _, err := s.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(s.cfg.Collection, columns...)); err != nil {
		return fmt.Errorf("failed to insert into milvus: %w", err)
	}

	flushTask, err := s.client.Flush(ctx, milvusclient.NewFlushOption(s.cfg.Collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}

	return nil
}

func (s *MilvusStore) createCollection(ctx context.Context) error {
	schema := entity.NewSchema().
		WithName(s.cfg.Collection).
		WithDescription("Onboarding knowledge base collection").
		WithAutoID(true)

	schema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeInt64).
			WithIsPrimaryKey(true).
			WithIsAutoID(true),
	)
	schema.WithField(
		entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(s.cfg.Dimension)),
	)
	schema.WithField(
		entity.NewField().
			WithName("chunk_index").
			WithDataType(entity.FieldTypeInt64),
	)
	for _, name := range []string{"chunk_id", "source", "email", "region", "branch"} {
		schema.WithField(
			entity.NewField().
				WithName(name).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(255),
		)
	}
	schema.WithField(
		entity.NewField().
			WithName("text").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(65535),
	)

	if err := s.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(s.cfg.Collection, schema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(entity.IP, 128)
	createIdxTask, err := s.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(s.cfg.Collection, "embedding", idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.cfg.Collection))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// Search performs an inner-product search and maps results back to Hits.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	exists, err := s.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(s.cfg.Collection))
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, ErrNotLoaded
	}

	loadTask, err := s.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(s.cfg.Collection))
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	searchVectors := []entity.Vector{entity.FloatVector(vector)}
	results, err := s.client.Search(ctx, milvusclient.NewSearchOption(
		s.cfg.Collection,
		topK,
		searchVectors,
	).WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields(metaFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	if len(results) == 0 {
		return []Hit{}, nil
	}

	hits := make([]Hit, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		hit := Hit{Score: results[0].Scores[i]}
		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				switch col.Name() {
				case "chunk_id":
					hit.Meta.ChunkID = col.Data()[i]
				case "source":
					hit.Meta.Source = col.Data()[i]
				case "text":
					hit.Meta.Text = col.Data()[i]
				case "email":
					hit.Meta.Email = col.Data()[i]
				case "region":
					hit.Meta.Region = col.Data()[i]
				case "branch":
					hit.Meta.Branch = col.Data()[i]
				}
			case *column.ColumnInt64:
				if col.Name() == "chunk_index" {
					hit.Meta.ChunkIndex = int(col.Data()[i])
				}
			}
		}
		hits = append(hits, hit)
	}

	return hits, nil
}

// Count returns the number of entities in the collection.
func (s *MilvusStore) Count(ctx context.Context) (int64, error) {
	stats, err := s.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(s.cfg.Collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

var _ VectorStore = (*MilvusStore)(nil)
