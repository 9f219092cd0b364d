package metadata

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/kozaktomas/lookalike/internal/index"
)

// maxReportedIDs caps the ids listed in a Report.
const maxReportedIDs = 10

// Report summarizes how index ids and metadata keys line up.
type Report struct {
	IndexCount    int        `json:"index_count"`
	MetadataCount int        `json:"metadata_count"`
	Missing       uint64     `json:"missing"`        // index ids without a record
	Extra         uint64     `json:"extra"`          // records no index id points at
	MissingSample []index.ID `json:"missing_sample"` // first missing ids, ascending
}

// CrossCheck verifies that every id an index of size indexCount can return
// (the dense range 0..indexCount-1) has a record. Extra records are reported but
// allowed. A non-nil error wraps ErrInconsistent.
func CrossCheck(indexCount int, s *Store) (Report, error) {
	expected := roaring.New()
	if indexCount > 0 {
		expected.AddRange(0, uint64(indexCount))
	}

	missing := roaring.AndNot(expected, s.ids)
	extra := roaring.AndNot(s.ids, expected)

	r := Report{
		IndexCount:    indexCount,
		MetadataCount: s.Len(),
		Missing:       missing.GetCardinality(),
		Extra:         extra.GetCardinality(),
	}
	it := missing.Iterator()
	for it.HasNext() && len(r.MissingSample) < maxReportedIDs {
		r.MissingSample = append(r.MissingSample, index.ID(it.Next()))
	}

	if r.Missing > 0 {
		return r, fmt.Errorf("%w: %d of %d index ids have no metadata (first: %v)",
			ErrInconsistent, r.Missing, indexCount, r.MissingSample)
	}
	return r, nil
}
