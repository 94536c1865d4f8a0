package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
	"github.com/fyrsmithlabs/retrievald/internal/vectorstore"
)

// reconcile maps raw index hits back onto canonical documents and serving
// segments. Hits whose document, chunk or segment has been disabled or
// deleted since indexing are dropped, so a stale index degrades to fewer
// results instead of an error. For hierarchical documents, hits on sibling
// child chunks collapse into one record per parent segment scored by the
// best child.
func (s *Service) reconcile(ctx context.Context, ds *dataset.Dataset, hits []vectorstore.HitDocument) ([]record, error) {
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.DocumentID]; ok {
			continue
		}
		seen[h.DocumentID] = struct{}{}
		ids = append(ids, h.DocumentID)
	}

	docs, err := s.store.GetEligibleDocumentsByIDs(ctx, ds.ID, ids)
	if err != nil {
		return nil, fmt.Errorf("loading documents: %w", err)
	}

	records := make([]record, 0, len(hits))
	bySegment := make(map[string]int, len(hits))

	for _, hit := range hits {
		doc, ok := docs[hit.DocumentID]
		if !ok {
			continue
		}

		switch doc.DocForm {
		case dataset.DocFormParentChild:
			chunk, err := s.store.GetChildChunkByNodeID(ctx, ds.ID, hit.NodeID)
			if errors.Is(err, dataset.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("loading child chunk %s: %w", hit.NodeID, err)
			}
			child := childHit{chunk: chunk, score: hit.Score}

			if i, ok := bySegment[chunk.SegmentID]; ok {
				records[i].children = append(records[i].children, child)
				if hit.Score > records[i].score {
					records[i].score = hit.Score
				}
				continue
			}

			segment, err := s.store.GetServingSegmentByID(ctx, ds.ID, chunk.SegmentID)
			if errors.Is(err, dataset.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("loading segment %s: %w", chunk.SegmentID, err)
			}
			bySegment[chunk.SegmentID] = len(records)
			records = append(records, record{
				document: doc,
				segment:  segment,
				children: []childHit{child},
				score:    hit.Score,
			})

		default:
			segment, err := s.store.GetServingSegmentByNodeID(ctx, ds.ID, hit.NodeID)
			if errors.Is(err, dataset.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("loading segment for node %s: %w", hit.NodeID, err)
			}
			records = append(records, record{
				document: doc,
				segment:  segment,
				score:    hit.Score,
			})
		}
	}

	return records, nil
}
