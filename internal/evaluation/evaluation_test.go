package evaluation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/recommender"
)

func session(id int64, n int) []dataset.Session {
	out := make([]dataset.Session, n)
	for i := range out {
		out[i] = dataset.Session{SessionID: id, UserID: id, ProductID: id*100 + int64(i)}
	}
	return out
}

func TestSplitSessions(t *testing.T) {
	var events []dataset.Session
	events = append(events, session(1, 9)...)  // sampled
	events = append(events, session(2, 8)...)  // not longer than 8
	events = append(events, session(3, 12)...) // sampled

	split, err := SplitSessions(events, SplitOptions{MinSessionSize: 8, WindowSize: 3, Seed: 7})
	require.NoError(t, err)

	assert.Len(t, split.Test, 6)
	assert.Len(t, split.Train, len(events)-6)

	bySession := make(map[int64][]int64)
	for _, e := range split.Test {
		bySession[e.SessionID] = append(bySession[e.SessionID], e.ProductID)
	}
	assert.NotContains(t, bySession, int64(2))
	for id, products := range bySession {
		require.Len(t, products, 3, "session %d", id)
		assert.Equal(t, products[0]+1, products[1], "held out events are adjacent")
		assert.Equal(t, products[1]+1, products[2], "held out events are adjacent")
	}

	// Train and test partition the input.
	seen := make(map[int64]int)
	for _, e := range append(append([]dataset.Session{}, split.Train...), split.Test...) {
		seen[e.ProductID]++
	}
	assert.Len(t, seen, len(events))
	for product, n := range seen {
		assert.Equal(t, 1, n, "product %d", product)
	}
}

func TestSplitSessions_Deterministic(t *testing.T) {
	var events []dataset.Session
	for id := int64(1); id <= 20; id++ {
		events = append(events, session(id, 15)...)
	}
	opts := SplitOptions{MinSessionSize: 8, WindowSize: 3, Seed: 11}

	a, err := SplitSessions(events, opts)
	require.NoError(t, err)
	b, err := SplitSessions(events, opts)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitSessions_Invalid(t *testing.T) {
	_, err := SplitSessions(nil, SplitOptions{MinSessionSize: 2, WindowSize: 3})
	assert.Error(t, err)

	_, err = SplitSessions(nil, SplitOptions{MinSessionSize: 8, WindowSize: 0})
	assert.Error(t, err)
}

type stubRecommender map[int64][]int64

func (s stubRecommender) Recommend(userID int64, _ catalog.Category) ([]int64, error) {
	if userID < 0 {
		return nil, errors.New("backend down")
	}
	products, ok := s[userID]
	if !ok {
		return nil, recommender.ErrUnknownUser
	}
	return products, nil
}

func TestEvaluate(t *testing.T) {
	rec := stubRecommender{
		1: {10, 11},
		2: {20},
	}
	categories := map[int64]catalog.Category{10: "Komputery", 11: "Komputery", 20: "Komputery", 21: "Komputery"}
	test := []dataset.Session{
		{UserID: 1, ProductID: 10}, // hit
		{UserID: 1, ProductID: 11}, // hit
		{UserID: 2, ProductID: 21}, // miss
		{UserID: 3, ProductID: 10}, // unknown user
		{UserID: 1, ProductID: 99}, // uncategorized
	}

	result, err := Evaluate(rec, test, categories)
	require.NoError(t, err)

	assert.Equal(t, Result{
		Events:        5,
		Evaluated:     3,
		Hits:          2,
		UnknownUsers:  1,
		Uncategorized: 1,
		HitRate:       2.0 / 3.0,
	}, result)
}

func TestEvaluate_Error(t *testing.T) {
	_, err := Evaluate(stubRecommender{}, []dataset.Session{{UserID: -1, ProductID: 1}},
		map[int64]catalog.Category{1: "Komputery"})
	assert.Error(t, err)
}
