package retrieval

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/retrievald/internal/dataset"
)

// format projects reconciled records onto the external schema: ranked by
// score descending with 1-based positions, content signed so embedded file
// preview links stay fetchable, Q&A segments rendered as a question/answer
// pair.
func (s *Service) format(ds *dataset.Dataset, records []record) []Result {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].score > records[j].score
	})

	results := make([]Result, 0, len(records))
	for i, rec := range records {
		signed := s.signer.SignContent(rec.segment.Content)
		content := signed
		// Q&A rendering keys on answer presence, not the document form: a
		// qa_model segment with no answer falls back to plain content.
		if rec.segment.Answer != "" {
			content = fmt.Sprintf("question:%s \nanswer:%s", signed, rec.segment.Answer)
		}

		meta := ResultMetadata{
			Source:               "knowledge",
			DatasetID:            ds.ID,
			DatasetName:          ds.Name,
			DocumentID:           rec.document.ID,
			DocumentName:         rec.document.Name,
			DocumentDataSource:   rec.document.DataSourceType,
			SegmentID:            rec.segment.ID,
			RetrieverFrom:        "external",
			SegmentHitCount:      rec.segment.HitCount,
			SegmentWordCount:     rec.segment.WordCount,
			SegmentPosition:      rec.segment.Position,
			SegmentIndexNodeHash: rec.segment.IndexNodeHash,
			DocMetadata:          rec.document.DocMetadata,
			Position:             i + 1,
		}

		if len(rec.children) > 0 {
			chunks := make([]ChildChunkEntry, 0, len(rec.children))
			for _, ch := range rec.children {
				chunks = append(chunks, ChildChunkEntry{
					ID:       ch.chunk.ID,
					Content:  ch.chunk.Content,
					Position: ch.chunk.Position,
					Score:    ch.score,
				})
			}
			meta.ChildChunks = chunks
		}

		results = append(results, Result{
			Score:    rec.score,
			Title:    rec.document.Name,
			Content:  content,
			Metadata: meta,
		})
	}
	return results
}
