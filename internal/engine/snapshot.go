package engine

import (
	"time"
)

// AdapterMeta is the engine-cached slice of adapter metadata used for
// compatibility filtering, boosting, and explanations. Display fields shown
// to users are always re-read from the repository by the service layer; this
// cache only feeds ranking.
type AdapterMeta struct {
	Name        string
	Description string
	Tags        []string
	SDVersion   string
	Rating      float64
	Downloads   int64
	PublishedAt *time.Time
}

// Snapshot is one immutable generation of the similarity index: an ordered
// id list and three L2-row-normalized matrices aligned by row. Rebuilds and
// incremental appends publish a whole new Snapshot; readers always observe
// one complete generation.
type Snapshot struct {
	IDs       []int64
	Semantic  [][]float32
	Artistic  [][]float32
	Technical [][]float32
	Meta      map[int64]AdapterMeta
}

// Len returns the row count.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.IDs)
}

// rowIndex returns the row for an adapter id, or -1.
func (s *Snapshot) rowIndex(id int64) int {
	for i, v := range s.IDs {
		if v == id {
			return i
		}
	}
	return -1
}
