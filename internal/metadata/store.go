// Package metadata holds the per-face records joined to index query results.
//
// Records are keyed by the positional index id and loaded once at startup.
// A Store is immutable after construction and safe for concurrent readers.
package metadata

import (
	"errors"
	"sort"
	"strings"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/kozaktomas/lookalike/internal/index"
)

var (
	// ErrInvalidKey is returned when a persisted key is not a non-negative 32-bit integer.
	ErrInvalidKey = errors.New("invalid metadata key")

	// ErrUnsupportedFormat is returned for metadata files with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported metadata format")

	// ErrInconsistent is returned when the index can produce ids the store does not cover.
	ErrInconsistent = errors.New("index and metadata are inconsistent")
)

// Record describes one indexed face.
type Record struct {
	// FaceLocation is the face bounding box as (top, right, bottom, left) pixels.
	FaceLocation      [4]int         `json:"face_location" yaml:"face_location"`
	FullPhotoFilename string         `json:"full_photo_filename" yaml:"full_photo_filename"`
	Data              map[string]any `json:"data" yaml:"data"`
}

// Name returns the display name from Data["name"], or the photo filename.
func (r Record) Name() string {
	if name, ok := r.Data["name"].(string); ok && name != "" {
		return name
	}
	return r.FullPhotoFilename
}

// Store maps index ids to records.
type Store struct {
	records map[index.ID]Record
	ids     *roaring.Bitmap
	names   map[index.ID]string // normalized names for search
}

// NewStore builds a store over records. The map is owned by the store afterwards.
func NewStore(records map[index.ID]Record) *Store {
	s := &Store{
		records: records,
		ids:     roaring.New(),
		names:   make(map[index.ID]string, len(records)),
	}
	for id, rec := range records {
		s.ids.Add(uint32(id))
		s.names[id] = NormalizeName(rec.Name())
	}
	s.ids.RunOptimize()
	return s
}

// Lookup returns the record for id.
func (s *Store) Lookup(id index.ID) (Record, bool) {
	rec, ok := s.records[id]
	return rec, ok
}

// Has reports whether id has a record.
func (s *Store) Has(id index.ID) bool {
	return s.ids.Contains(uint32(id))
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.records)
}

// Hit is a search result.
type Hit struct {
	ID     index.ID `json:"id"`
	Record Record   `json:"record"`
}

// Search returns records whose name contains query, ignoring case and diacritics,
// ordered by id. A limit below 1 means no limit.
func (s *Store) Search(query string, limit int) []Hit {
	q := NormalizeName(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	var ids []index.ID
	for id, name := range s.names {
		if strings.Contains(name, q) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	hits := make([]Hit, len(ids))
	for i, id := range ids {
		hits[i] = Hit{ID: id, Record: s.records[id]}
	}
	return hits
}
