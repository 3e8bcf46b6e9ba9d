// Package qdrant implements the retriever collection store on Qdrant.
//
// Each rebuild creates a physical collection "{alias}__{gen}" and then moves
// the alias "{namespace}_{name}" onto it in a single UpdateAliases call.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Payload keys of a chunk point.
const (
	payloadContent  = "content"
	payloadDocument = "document"
	payloadChunk    = "chunk"
	payloadMetadata = "metadata"
)

const upsertBatchSize = 256

// client is the subset of *qdrant.Client the store uses.
//
//nolint:interfacebloat // alias swap needs collection + alias + point operations
type client interface {
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	ListAliases(ctx context.Context) ([]*qdrant.AliasDescription, error)
	UpdateAliases(ctx context.Context, actions []*qdrant.AliasOperations) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	HealthCheck(ctx context.Context) (*qdrant.HealthCheckReply, error)
	Close() error
}

// Config holds connection parameters. Port is the gRPC port.
type Config struct {
	Host      string
	Port      int
	APIKey    string
	UseTLS    bool
	Namespace string
}

// Store implements the retriever collection store via the Qdrant gRPC client.
type Store struct {
	client client
	ns     string
	logger *zap.Logger
}

// NewStore connects to Qdrant.
func NewStore(cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Host == "" {
		return nil, errors.New("host is required")
	}
	c, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return newStore(c, cfg.Namespace, logger), nil
}

func newStore(c client, namespace string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: c, ns: namespace, logger: logger}
}

// Ping checks server health.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant health: %w", err)
	}
	return nil
}

// Close releases the gRPC connection.
func (s *Store) Close() {
	if err := s.client.Close(); err != nil {
		s.logger.Warn("close qdrant client", zap.Error(err))
	}
}

// WaitForReady polls Ping until Qdrant answers or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := s.Ping(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for qdrant: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// Rebuild creates a new physical collection with entries, then atomically
// points the alias at it and drops the old one. An empty entry list deletes
// the collection.
func (s *Store) Rebuild(ctx context.Context, name string, dim int, entries []domain.IndexedEntry) error {
	if len(entries) == 0 {
		return s.Delete(ctx, name)
	}

	alias := s.alias(name)
	current, err := s.resolve(ctx, alias)
	if err != nil {
		return err
	}
	next := physicalName(alias, generationOf(alias, current)+1)

	// A crashed rebuild may have left the target behind.
	if err := s.dropIfExists(ctx, next); err != nil {
		return err
	}

	if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: next,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim), //nolint:gosec // dim is validated positive
			Distance: qdrant.Distance_Cosine,
		}),
	}); err != nil {
		return fmt.Errorf("create collection %s: %w", next, err)
	}

	if err := s.upsert(ctx, next, entries); err != nil {
		return errors.Join(err, s.client.DeleteCollection(ctx, next))
	}

	actions := make([]*qdrant.AliasOperations, 0, 2)
	if current != "" {
		actions = append(actions, &qdrant.AliasOperations{
			Action: &qdrant.AliasOperations_DeleteAlias{DeleteAlias: &qdrant.DeleteAlias{AliasName: alias}},
		})
	}
	actions = append(actions, &qdrant.AliasOperations{
		Action: &qdrant.AliasOperations_CreateAlias{CreateAlias: &qdrant.CreateAlias{
			CollectionName: next,
			AliasName:      alias,
		}},
	})
	if err := s.client.UpdateAliases(ctx, actions); err != nil {
		return errors.Join(fmt.Errorf("switch alias %s: %w", alias, err), s.client.DeleteCollection(ctx, next))
	}

	if err := s.sweep(ctx, alias, next); err != nil {
		s.logger.Warn("sweep stale generations failed", zap.String("collection", name), zap.Error(err))
	}
	return nil
}

// Delete removes the alias and every physical generation. Absent collections are a no-op.
func (s *Store) Delete(ctx context.Context, name string) error {
	alias := s.alias(name)
	current, err := s.resolve(ctx, alias)
	if err != nil {
		return err
	}
	if current != "" {
		if err := s.client.UpdateAliases(ctx, []*qdrant.AliasOperations{{
			Action: &qdrant.AliasOperations_DeleteAlias{DeleteAlias: &qdrant.DeleteAlias{AliasName: alias}},
		}}); err != nil {
			return fmt.Errorf("delete alias %s: %w", alias, err)
		}
	}
	return s.sweep(ctx, alias, "")
}

// Search queries the aliased collection. Scores are cosine distances.
func (s *Store) Search(ctx context.Context, name string, vector []float32, k int) ([]domain.QueryResult, error) {
	alias := s.alias(name)
	current, err := s.resolve(ctx, alias)
	if err != nil {
		return nil, err
	}
	if current == "" {
		return []domain.QueryResult{}, nil
	}

	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: alias,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)), //nolint:gosec // k is validated positive
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", alias, err)
	}

	out := make([]domain.QueryResult, 0, len(points))
	for _, p := range points {
		out = append(out, resultFromPoint(p))
	}
	return out, nil
}

func (s *Store) alias(name string) string {
	return s.ns + "_" + name
}

// resolve returns the physical collection behind alias, or "" when unset.
func (s *Store) resolve(ctx context.Context, alias string) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == alias {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

func (s *Store) upsert(ctx context.Context, collection string, entries []domain.IndexedEntry) error {
	wait := true
	for start := 0; start < len(entries); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(entries))
		points := make([]*qdrant.PointStruct, 0, end-start)
		for n := start; n < end; n++ {
			points = append(points, pointFromEntry(collection, n, entries[n]))
		}
		if _, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("upsert points %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (s *Store) dropIfExists(ctx context.Context, collection string) error {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, n := range names {
		if n == collection {
			if err := s.client.DeleteCollection(ctx, n); err != nil {
				return fmt.Errorf("delete collection %s: %w", n, err)
			}
		}
	}
	return nil
}

// sweep deletes every generation of alias except keep.
func (s *Store) sweep(ctx context.Context, alias, keep string) error {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	var errs []error
	for _, n := range names {
		if n == keep || generationOf(alias, n) == 0 {
			continue
		}
		if err := s.client.DeleteCollection(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("delete collection %s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

func physicalName(alias string, gen int) string {
	return alias + "__" + strconv.Itoa(gen)
}

// generationOf parses the generation of a physical collection of alias; 0 if it is not one.
func generationOf(alias, collection string) int {
	rest, ok := strings.CutPrefix(collection, alias+"__")
	if !ok {
		return 0
	}
	gen, err := strconv.Atoi(rest)
	if err != nil || gen < 0 {
		return 0
	}
	return gen
}

func pointFromEntry(collection string, n int, e domain.IndexedEntry) *qdrant.PointStruct {
	payload := map[string]any{
		payloadContent:  e.Chunk.Text,
		payloadDocument: e.Chunk.Document,
		payloadChunk:    e.Chunk.Index,
	}
	if len(e.Chunk.Metadata) > 0 {
		md := make(map[string]any, len(e.Chunk.Metadata))
		for k, v := range e.Chunk.Metadata {
			md[k] = v
		}
		payload[payloadMetadata] = md
	}
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+"/"+strconv.Itoa(n)))
	return &qdrant.PointStruct{
		Id:      qdrant.NewID(id.String()),
		Vectors: qdrant.NewVectorsDense(e.Vector),
		Payload: qdrant.NewValueMap(payload),
	}
}

func resultFromPoint(p *qdrant.ScoredPoint) domain.QueryResult {
	res := domain.QueryResult{
		Text:  p.GetPayload()[payloadContent].GetStringValue(),
		Score: 1 - float64(p.GetScore()),
	}
	if fields := p.GetPayload()[payloadMetadata].GetStructValue().GetFields(); len(fields) > 0 {
		res.Metadata = make(map[string]string, len(fields))
		for k, v := range fields {
			res.Metadata[k] = v.GetStringValue()
		}
	}
	return res
}
