// Package ranking orders feeds by recency-decayed popularity.
package ranking

import (
	"bytes"
	"math"
	"sort"
	"time"

	"github.com/and161185/campus-board/internal/model"
)

// DefaultGravity is the decay exponent used when none is configured.
const DefaultGravity = 1.5

// Ranker computes hot scores. The zero value uses DefaultGravity.
type Ranker struct {
	Gravity float64
}

// New returns a Ranker with the given gravity; non-positive values fall back to DefaultGravity.
func New(gravity float64) Ranker {
	if gravity <= 0 {
		gravity = DefaultGravity
	}
	return Ranker{Gravity: gravity}
}

func (r Ranker) gravity() float64 {
	if r.Gravity <= 0 {
		return DefaultGravity
	}
	return r.Gravity
}

// Score returns net / (ageHours+2)^gravity. Age before createdAt is clamped to zero.
// The value is for ordering only and never persisted.
func (r Ranker) Score(net int64, createdAt, now time.Time) float64 {
	age := now.Sub(createdAt).Hours()
	if age < 0 {
		age = 0
	}
	return float64(net) / math.Pow(age+2, r.gravity())
}

// Sort orders posts by hot score desc, then createdAt desc, then id, and fills PostSummary.Hot.
func (r Ranker) Sort(posts []model.PostSummary, now time.Time) {
	for i := range posts {
		posts[i].Hot = r.Score(posts[i].Score, posts[i].CreatedAt, now)
	}
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if a.Hot != b.Hot {
			return a.Hot > b.Hot
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID.Bytes(), b.ID.Bytes()) < 0
	})
}

// SortNew orders posts by createdAt desc, then id.
func SortNew(posts []model.PostSummary) {
	sort.SliceStable(posts, func(i, j int) bool {
		a, b := posts[i], posts[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return bytes.Compare(a.ID.Bytes(), b.ID.Bytes()) < 0
	})
}
