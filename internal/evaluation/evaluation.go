// Package evaluation measures how often a recommender would have suggested
// the products users went on to interact with.
package evaluation

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/samber/lo"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/recommender"
)

// SplitOptions selects the held out events.
type SplitOptions struct {
	// Sessions with more than MinSessionSize events are sampled.
	MinSessionSize int
	// WindowSize adjacent events are held out from each sampled session.
	WindowSize int
	Seed       int64
}

// Split is a train/test partition of session events.
type Split struct {
	Train []dataset.Session
	Test  []dataset.Session
}

// SplitSessions holds out WindowSize adjacent events, starting at a random
// position, from every session longer than MinSessionSize. Everything else
// is training data. Event order inside a session is the input order.
func SplitSessions(events []dataset.Session, opts SplitOptions) (Split, error) {
	if opts.WindowSize < 1 || opts.MinSessionSize < opts.WindowSize {
		return Split{}, fmt.Errorf("invalid split: min_session_size=%d window_size=%d", opts.MinSessionSize, opts.WindowSize)
	}

	indexes := make(map[int64][]int)
	for i, e := range events {
		indexes[e.SessionID] = append(indexes[e.SessionID], i)
	}

	sessionIDs := lo.Keys(indexes)
	sort.Slice(sessionIDs, func(i, j int) bool { return sessionIDs[i] < sessionIDs[j] })

	rng := rand.New(rand.NewSource(opts.Seed))
	heldOut := make(map[int]struct{})
	for _, id := range sessionIDs {
		idx := indexes[id]
		if len(idx) <= opts.MinSessionSize {
			continue
		}
		start := rng.Intn(len(idx) - opts.WindowSize + 1)
		for _, i := range idx[start : start+opts.WindowSize] {
			heldOut[i] = struct{}{}
		}
	}

	var split Split
	for i, e := range events {
		if _, ok := heldOut[i]; ok {
			split.Test = append(split.Test, e)
		} else {
			split.Train = append(split.Train, e)
		}
	}
	return split, nil
}

// Result counts the outcome of an evaluation run.
type Result struct {
	Events        int     `json:"events"`
	Evaluated     int     `json:"evaluated"`
	Hits          int     `json:"hits"`
	UnknownUsers  int     `json:"unknown_users"`
	Uncategorized int     `json:"uncategorized"`
	HitRate       float64 `json:"hit_rate"`
}

// Evaluate asks rec for every test event's user and product category and
// counts a hit when the event's product is in the returned list. Events of
// users the model does not know, or of products without a category, are
// counted separately and excluded from the hit rate.
func Evaluate(rec recommender.Recommender, test []dataset.Session, categories map[int64]catalog.Category) (Result, error) {
	result := Result{Events: len(test)}

	for _, e := range test {
		category, ok := categories[e.ProductID]
		if !ok {
			result.Uncategorized++
			continue
		}

		products, err := rec.Recommend(e.UserID, category)
		if errors.Is(err, recommender.ErrUnknownUser) {
			result.UnknownUsers++
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("recommend for user %d: %w", e.UserID, err)
		}

		result.Evaluated++
		if lo.Contains(products, e.ProductID) {
			result.Hits++
		}
	}

	if result.Evaluated > 0 {
		result.HitRate = float64(result.Hits) / float64(result.Evaluated)
	}
	return result, nil
}
