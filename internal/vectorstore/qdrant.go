package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// TypeQdrant identifies the Qdrant backend in index structs.
const TypeQdrant = "qdrant"

// Tracer for OpenTelemetry instrumentation.
var tracer = otel.Tracer("retrievald.vectorstore")

// Hybrid fusion weights. The dense (semantic) leg dominates; the keyword
// leg breaks ties and surfaces exact-phrase matches the embedding missed.
const (
	denseWeight   = 0.7
	keywordWeight = 0.3
)

// QdrantConfig holds configuration for the Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port (NOT the HTTP REST port).
	// Default: 6334
	Port int

	// APIKey authenticates against a secured server. Empty for local
	// development instances.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// VectorSize is the dimensionality of embeddings. MUST match the
	// embedding provider's output.
	VectorSize uint64

	// MaxRetries is the maximum number of retry attempts for transient
	// failures. Default: 3
	MaxRetries int

	// RetryBackoff is the initial backoff duration for retries, doubling
	// on each attempt. Default: 100ms
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes.
	// Default: 50MB
	MaxMessageSize int

	// ConnectTimeout bounds the construction-time health check.
	// Default: 10s
	ConnectTimeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1536
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024 // 50MB
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return nil
}

// IsTransientError checks if an error is transient (should retry).
// Returns true for network timeouts and temporary unavailability.
// Returns false for invalid arguments, not found, permission denied.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == grpccodes.NotFound
}

// QdrantStore answers hybrid searches from an external Qdrant server over
// native gRPC.
//
// A hybrid search issues two requests in parallel: a dense vector query
// scored by cosine similarity, and a keyword scroll matching the query text
// against node content. The legs are fused per node as
// 0.7*dense + 0.3*keyword.
type QdrantStore struct {
	client     *qdrant.Client
	config     QdrantConfig
	collection string
	logger     *zap.Logger

	// collectionReady caches the ensure-collection check for AddTexts.
	collectionReady sync.Once
	collectionErr   error
}

var _ VectorStore = (*QdrantStore)(nil)

// NewQdrantStore creates a QdrantStore bound to one collection. The
// constructor connects eagerly and fails with ErrConnectionFailed when the
// server does not answer a health check within the connect timeout.
func NewQdrantStore(config QdrantConfig, collection string, logger *zap.Logger) (*QdrantStore, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if err := ValidateCollectionName(collection); err != nil {
		return nil, fmt.Errorf("validating collection name: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("vectorstore.qdrant")

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	s := &QdrantStore{
		client:     client,
		config:     config,
		collection: collection,
		logger:     logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := s.healthCheckWithRetry(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return s, nil
}

// healthCheckWithRetry probes the server with exponential backoff until the
// context expires.
func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.config.RetryBackoff
	bo.MaxElapsedTime = s.config.ConnectTimeout

	return backoff.Retry(func() error {
		_, err := s.client.HealthCheck(ctx)
		if err != nil {
			s.logger.Debug("qdrant health check failed, retrying", zap.Error(err))
		}
		return err
	}, backoff.WithContext(bo, ctx))
}

// Type returns the backend identifier.
func (s *QdrantStore) Type() string {
	return TypeQdrant
}

// retryOperation retries an operation with exponential backoff. Permanent
// errors abort immediately.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	wait := s.config.RetryBackoff
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(wait):
			wait *= 2
		}
	}
	return nil
}

// ensureCollection creates the collection on first write.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.collectionReady.Do(func() {
		exists, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			s.collectionErr = fmt.Errorf("checking collection %s: %w", s.collection, err)
			return
		}
		if exists {
			return
		}
		s.collectionErr = s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
	})
	return s.collectionErr
}

// AddTexts stores index nodes with their embeddings.
func (s *QdrantStore) AddTexts(ctx context.Context, docs []Document, vectors [][]float32) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.AddTexts")
	defer span.End()
	span.SetAttributes(
		attribute.Int("document_count", len(docs)),
		attribute.String("collection", s.collection),
	)

	if len(docs) == 0 {
		return ErrEmptyDocuments
	}
	if len(docs) != len(vectors) {
		return fmt.Errorf("%w: %d documents but %d vectors", ErrDimensionMismatch, len(docs), len(vectors))
	}
	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		if uint64(len(vectors[i])) != s.config.VectorSize {
			return fmt.Errorf("%w: node %s has dimension %d, collection has %d",
				ErrDimensionMismatch, doc.NodeID, len(vectors[i]), s.config.VectorSize)
		}

		// Qdrant point ids must be UUIDs; the node id rides in the payload.
		pointID := doc.NodeID
		if _, err := uuid.Parse(pointID); err != nil {
			pointID = uuid.NewString()
		}

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadContent:    doc.Content,
				payloadNodeID:     doc.NodeID,
				payloadDocumentID: doc.DocumentID,
				payloadDatasetID:  doc.DatasetID,
				payloadDocHash:    doc.Hash,
			}),
		}
	}

	err := s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upserting points to collection %s: %w", s.collection, err)
	}
	return nil
}

// SearchByHybrid runs the dense and keyword legs in parallel and fuses the
// scores. A missing collection yields zero hits rather than an error, so a
// dataset that was never indexed behaves as empty.
func (s *QdrantStore) SearchByHybrid(ctx context.Context, query string, vector []float32, opts SearchOptions) ([]HitDocument, error) {
	ctx, span := tracer.Start(ctx, "QdrantStore.SearchByHybrid")
	defer span.End()
	span.SetAttributes(
		attribute.String("collection", s.collection),
		attribute.Int("top_k", opts.TopK),
	)

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.MatchesNothing() {
		return []HitDocument{}, nil
	}
	if uint64(len(vector)) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query vector has dimension %d, collection has %d",
			ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	filter := documentFilter(opts.DocumentIDs)

	var (
		wg          sync.WaitGroup
		dense       []*qdrant.ScoredPoint
		keyword     []*qdrant.RetrievedPoint
		denseErr    error
		keywordErr  error
		fetchLimit  = uint64(opts.TopK)
		scrollLimit = uint32(opts.TopK)
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		denseErr = s.retryOperation(ctx, "dense_query", func() error {
			res, err := s.client.Query(ctx, &qdrant.QueryPoints{
				CollectionName: s.collection,
				Query:          qdrant.NewQuery(vector...),
				Limit:          qdrant.PtrOf(fetchLimit),
				WithPayload:    qdrant.NewWithPayload(true),
				Filter:         filter,
			})
			if err != nil {
				return err
			}
			dense = res
			return nil
		})
	}()
	go func() {
		defer wg.Done()
		keywordErr = s.retryOperation(ctx, "keyword_scroll", func() error {
			keywordFilter := &qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatchText(payloadContent, EscapeQuery(query)),
				},
			}
			if filter != nil {
				keywordFilter.Must = append(keywordFilter.Must, filter.Must...)
			}
			res, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
				CollectionName: s.collection,
				Filter:         keywordFilter,
				Limit:          qdrant.PtrOf(scrollLimit),
				WithPayload:    qdrant.NewWithPayload(true),
			})
			if err != nil {
				return err
			}
			keyword = res
			return nil
		})
	}()
	wg.Wait()

	for _, err := range []error{denseErr, keywordErr} {
		if err == nil {
			continue
		}
		if isNotFoundError(err) {
			s.logger.Debug("collection not found, returning no hits",
				zap.String("collection", s.collection))
			return []HitDocument{}, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.collection, err)
	}

	hits := fuseHybrid(dense, keyword, opts)
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

// fuseHybrid merges the two result legs. Each node scores
// denseWeight*similarity + keywordWeight*matched, keeping one entry per
// node id, then the threshold and limit apply to the fused score.
func fuseHybrid(dense []*qdrant.ScoredPoint, keyword []*qdrant.RetrievedPoint, opts SearchOptions) []HitDocument {
	fused := make(map[string]*HitDocument, len(dense)+len(keyword))

	for _, point := range dense {
		hit := hitFromPayload(point.Payload)
		hit.Score = denseWeight * float64(point.Score)
		fused[hit.NodeID] = &hit
	}
	for _, point := range keyword {
		hit := hitFromPayload(point.Payload)
		if existing, ok := fused[hit.NodeID]; ok {
			existing.Score += keywordWeight
			continue
		}
		hit.Score = keywordWeight
		fused[hit.NodeID] = &hit
	}

	hits := make([]HitDocument, 0, len(fused))
	for _, hit := range fused {
		if hit.Score <= opts.ScoreThreshold {
			continue
		}
		hits = append(hits, *hit)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > opts.TopK {
		hits = hits[:opts.TopK]
	}
	return hits
}

// hitFromPayload converts a Qdrant payload into a HitDocument sans score.
func hitFromPayload(payload map[string]*qdrant.Value) HitDocument {
	hit := HitDocument{
		NodeID:     payload[payloadNodeID].GetStringValue(),
		DocumentID: payload[payloadDocumentID].GetStringValue(),
		Content:    payload[payloadContent].GetStringValue(),
		Metadata:   make(map[string]any, len(payload)),
	}
	for key, value := range payload {
		if key == payloadContent {
			continue
		}
		switch v := value.GetKind().(type) {
		case *qdrant.Value_StringValue:
			hit.Metadata[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			hit.Metadata[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			hit.Metadata[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			hit.Metadata[key] = v.BoolValue
		}
	}
	return hit
}

// documentFilter builds the allow-list filter, or nil when unrestricted.
func documentFilter(documentIDs []string) *qdrant.Filter {
	if documentIDs == nil {
		return nil
	}
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatchKeywords(payloadDocumentID, documentIDs...),
		},
	}
}

// Delete drops the collection and all its vectors.
func (s *QdrantStore) Delete(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "QdrantStore.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("collection", s.collection))

	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, s.collection)
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", s.collection, err)
	}
	return nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
