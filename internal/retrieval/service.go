package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

// Service is the retrieval orchestrator: it validates the request, gates
// permissions, compiles the metadata filter, embeds the query, runs the
// hybrid search and assembles the ranked response.
type Service struct {
	store    *dataset.Store
	factory  *vectorstore.Factory
	embedder vectorstore.Embedder
	signer   *dataset.Signer
	logger   *logging.Logger
}

// NewService creates a retrieval service. All dependencies are required
// except the logger.
func NewService(store *dataset.Store, factory *vectorstore.Factory, embedder vectorstore.Embedder, signer *dataset.Signer, logger *logging.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: dataset store required", ErrInvalidArgument)
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: vectorstore factory required", ErrInvalidArgument)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidArgument)
	}
	if signer == nil {
		return nil, fmt.Errorf("%w: content signer required", ErrInvalidArgument)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:    store,
		factory:  factory,
		embedder: embedder,
		signer:   signer,
		logger:   logger.Named("retrieval"),
	}, nil
}

// Retrieve answers one query against one dataset: ranked, deduplicated
// segments whose score strictly exceeds the threshold, truncated to top_k.
// Successful calls bump the hit counter of every returned segment and
// append the query to the dataset's history.
func (s *Service) Retrieve(ctx context.Context, req RetrieveRequest) ([]Result, error) {
	ctx = logging.WithTenantID(ctx, req.Account.TenantID)
	ctx = logging.WithDatasetID(ctx, req.DatasetID)

	start := time.Now()
	results, err := s.retrieve(ctx, req)

	RetrievalDuration.Observe(time.Since(start).Seconds())
	RetrievalsTotal.WithLabelValues(resultLabel(err)).Inc()
	if err != nil {
		s.logger.Warn(ctx, "retrieval failed",
			zap.String("account_id", req.Account.ID),
			zap.Error(err))
		return nil, err
	}

	RetrievalRecords.Observe(float64(len(results)))
	s.logger.Info(ctx, "retrieval completed",
		zap.String("account_id", req.Account.ID),
		zap.Int("records", len(results)),
		zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

func (s *Service) retrieve(ctx context.Context, req RetrieveRequest) ([]Result, error) {
	setting, err := validateRequest(&req)
	if err != nil {
		return nil, err
	}

	ds, err := s.store.GetDataset(ctx, req.DatasetID)
	if errors.Is(err, dataset.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, req.DatasetID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: loading dataset: %v", ErrInternal, err)
	}

	if err := s.store.CheckDatasetAccess(ctx, ds, &req.Account); err != nil {
		if errors.Is(err, dataset.ErrNoPermission) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: checking dataset access: %v", ErrInternal, err)
	}

	documentIDs, err := s.store.FilterDocumentIDs(ctx, ds.ID, req.MetadataCondition)
	if err != nil {
		if errors.Is(err, dataset.ErrUnknownComparisonOperator) ||
			errors.Is(err, dataset.ErrUnknownLogicalOperator) ||
			errors.Is(err, dataset.ErrInvalidCondition) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return nil, fmt.Errorf("%w: compiling metadata filter: %v", ErrInternal, err)
	}
	// A condition that matches no documents must yield zero results, not
	// an unrestricted search.
	if documentIDs != nil && len(documentIDs) == 0 {
		return s.finish(ctx, ds, req, nil)
	}

	is, err := ds.IndexStructDict()
	if err != nil {
		return nil, fmt.Errorf("%w: parsing index struct: %v", ErrInternal, err)
	}
	if is == nil {
		return nil, ErrDatasetNotInitialized
	}

	vector, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, classifyEmbeddingError(err)
	}

	hits, err := s.search(ctx, ds, req.Query, vector, vectorstore.SearchOptions{
		TopK:           setting.TopK,
		ScoreThreshold: setting.ScoreThreshold,
		DocumentIDs:    documentIDs,
	})
	if err != nil {
		if errors.Is(err, vectorstore.ErrInvalidTopK) || errors.Is(err, vectorstore.ErrInvalidConfig) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		if errors.Is(err, vectorstore.ErrConnectionFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: hybrid search: %v", ErrInternal, err)
	}

	records, err := s.reconcile(ctx, ds, hits)
	if err != nil {
		return nil, fmt.Errorf("%w: reconciling hits: %v", ErrInternal, err)
	}

	return s.finish(ctx, ds, req, s.format(ds, records))
}

// search resolves the dataset's backend and runs the hybrid query. An
// empty query or missing dataset is a defined no-op, not a failure.
func (s *Service) search(ctx context.Context, ds *dataset.Dataset, query string, vector []float32, opts vectorstore.SearchOptions) ([]vectorstore.HitDocument, error) {
	if ds == nil || query == "" {
		return nil, nil
	}

	store, err := s.factory.ForDataset(ctx, ds)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			s.logger.Warn(ctx, "closing vector store", zap.Error(cerr))
		}
	}()

	return store.SearchByHybrid(ctx, query, vector, opts)
}

// finish applies the post-success side effects: hit-count bumps for every
// returned segment and one history row for the query.
func (s *Service) finish(ctx context.Context, ds *dataset.Dataset, req RetrieveRequest, results []Result) ([]Result, error) {
	if results == nil {
		results = []Result{}
	}

	if len(results) > 0 {
		segmentIDs := make([]string, 0, len(results))
		for _, r := range results {
			segmentIDs = append(segmentIDs, r.Metadata.SegmentID)
		}
		if err := s.store.IncrementHitCounts(ctx, segmentIDs); err != nil {
			return nil, fmt.Errorf("%w: incrementing hit counts: %v", ErrInternal, err)
		}
	}

	if err := s.store.RecordQuery(ctx, &dataset.Query{
		ID:        uuid.NewString(),
		DatasetID: ds.ID,
		Content:   req.Query,
		Source:    querySource,
		CreatedBy: req.Account.ID,
	}); err != nil {
		return nil, fmt.Errorf("%w: recording query: %v", ErrInternal, err)
	}

	return results, nil
}

// validateRequest rejects malformed input before any I/O and resolves
// setting defaults.
func validateRequest(req *RetrieveRequest) (RetrievalSetting, error) {
	setting := req.Setting

	if req.Query == "" || utf8.RuneCountInString(req.Query) > MaxQueryLength {
		return setting, fmt.Errorf("%w: Query is required and cannot exceed 500 characters", ErrInvalidArgument)
	}
	if req.DatasetID == "" {
		return setting, fmt.Errorf("%w: dataset id required", ErrInvalidArgument)
	}
	if req.Account.ID == "" || req.Account.TenantID == "" {
		return setting, fmt.Errorf("%w: account principal required", ErrInvalidArgument)
	}

	if setting.TopK == 0 {
		setting.TopK = DefaultTopK
	}
	if setting.TopK < 0 {
		return setting, fmt.Errorf("%w: top_k must be a positive integer", ErrInvalidArgument)
	}
	return setting, nil
}
