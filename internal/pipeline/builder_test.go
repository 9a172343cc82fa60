package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/recommender"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func defaultOptions() Options {
	return Options{Dimensions: 10, Clusters: 2, Restarts: 10, TopN: 10, Seed: 42}
}

func scenario() ([]dataset.Session, []dataset.Product) {
	sessions := []dataset.Session{
		{SessionID: 1, UserID: 1, ProductID: 100, EventType: "VIEW_PRODUCT"},
		{SessionID: 2, UserID: 2, ProductID: 100, EventType: "VIEW_PRODUCT"},
		{SessionID: 3, UserID: 3, ProductID: 100, EventType: "BUY_PRODUCT"},
		{SessionID: 4, UserID: 4, ProductID: 200, EventType: "VIEW_PRODUCT"},
	}
	products := []dataset.Product{
		{ProductID: 100, ProductName: "Gra", CategoryPath: "Gry i konsole;Gry na konsole;Gry Xbox"},
		{ProductID: 200, ProductName: "Laptop", CategoryPath: "Komputery;Laptopy i notebooki"},
	}
	return sessions, products
}

func TestBuilder_TwoGroupScenario(t *testing.T) {
	sessions, products := scenario()
	builder := NewBuilder(testTaxonomy(t), NewRandomizedSVD(10, 10), NewKMeans(300, 2), defaultOptions(), quietLogger())

	advanced, report, err := builder.Build(context.Background(), sessions, products)
	require.NoError(t, err)

	assert.Equal(t, 4, report.Users)
	assert.Equal(t, 2, report.Products)
	assert.Equal(t, 4, report.Events)
	assert.Equal(t, 2, report.Dimensions)
	assert.Equal(t, 2, report.Groups)

	g1, _ := advanced.GroupOf(1)
	g2, _ := advanced.GroupOf(2)
	g3, _ := advanced.GroupOf(3)
	g4, _ := advanced.GroupOf(4)
	assert.Equal(t, g1, g2)
	assert.Equal(t, g1, g3)
	assert.NotEqual(t, g1, g4)

	got, err := advanced.Recommend(4, "Komputery")
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, got)

	got, err = advanced.Recommend(1, "Gry na konsole")
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, got)

	got, err = advanced.Recommend(1, "Komputery")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = advanced.Recommend(99, "Komputery")
	assert.ErrorIs(t, err, recommender.ErrUnknownUser)
}

func TestBuilder_Deterministic(t *testing.T) {
	sessions, products := scenario()
	sessions = append(sessions,
		dataset.Session{UserID: 5, ProductID: 100},
		dataset.Session{UserID: 5, ProductID: 200},
		dataset.Session{UserID: 6, ProductID: 200},
	)
	tax := testTaxonomy(t)

	build := func() []byte {
		builder := NewBuilder(tax, NewRandomizedSVD(10, 10), NewKMeans(300, 4), defaultOptions(), quietLogger())
		advanced, _, err := builder.Build(context.Background(), sessions, products)
		require.NoError(t, err)
		data, err := advanced.MarshalUserToGroup()
		require.NoError(t, err)
		return data
	}

	assert.Equal(t, build(), build())
}

func TestBuilder_MalformedCategory(t *testing.T) {
	sessions, products := scenario()
	products[1].CategoryPath = "Komputery;Gry komputerowe"
	builder := NewBuilder(testTaxonomy(t), NewRandomizedSVD(10, 10), NewKMeans(300, 1), defaultOptions(), quietLogger())

	_, _, err := builder.Build(context.Background(), sessions, products)
	require.Error(t, err)
	assert.ErrorIs(t, err, catalog.ErrMalformedCategory)

	var malformed *catalog.MalformedCategoryError
	require.True(t, errors.As(err, &malformed))
	assert.Len(t, malformed.Matches, 2)
}

func TestBuilder_Degenerate(t *testing.T) {
	sessions := []dataset.Session{{UserID: 1, ProductID: 100}, {UserID: 1, ProductID: 200}}
	_, products := scenario()
	options := defaultOptions()
	options.Clusters = 1
	builder := NewBuilder(testTaxonomy(t), NewRandomizedSVD(10, 10), NewKMeans(300, 1), options, quietLogger())

	_, _, err := builder.Build(context.Background(), sessions, products)
	assert.ErrorIs(t, err, ErrDegenerateReduction)
}

func TestBuilder_TooManyClusters(t *testing.T) {
	sessions, products := scenario()
	options := defaultOptions()
	options.Clusters = 5
	builder := NewBuilder(testTaxonomy(t), NewRandomizedSVD(10, 10), NewKMeans(300, 1), options, quietLogger())

	_, _, err := builder.Build(context.Background(), sessions, products)
	assert.ErrorIs(t, err, ErrTooFewUsers)
}

func TestBuilder_InvalidOptions(t *testing.T) {
	sessions, products := scenario()
	options := defaultOptions()
	options.TopN = 0
	builder := NewBuilder(testTaxonomy(t), NewRandomizedSVD(10, 10), NewKMeans(300, 1), options, quietLogger())

	_, _, err := builder.Build(context.Background(), sessions, products)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuilder_Cancelled(t *testing.T) {
	sessions, products := scenario()
	builder := NewBuilder(testTaxonomy(t), NewRandomizedSVD(10, 10), NewKMeans(300, 1), defaultOptions(), quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := builder.Build(ctx, sessions, products)
	assert.ErrorIs(t, err, context.Canceled)
}

type fixedReducer struct {
	calls int
	dims  int
}

func (r *fixedReducer) Reduce(m *InteractionMatrix, dims int, _ int64) (*Embedding, error) {
	r.calls++
	r.dims = dims
	return NewRandomizedSVD(0, 0).Reduce(m, dims, 1)
}

type singleGroupClusterer struct {
	dropFirst bool
}

func (c singleGroupClusterer) Cluster(e *Embedding, _, _ int, _ int64) (map[int64]int, error) {
	assignment := make(map[int64]int)
	for i, u := range e.Users() {
		if c.dropFirst && i == 0 {
			continue
		}
		assignment[u] = 0
	}
	return assignment, nil
}

func TestBuilder_InjectedComponents(t *testing.T) {
	sessions, products := scenario()
	reducer := &fixedReducer{}
	builder := NewBuilder(testTaxonomy(t), reducer, singleGroupClusterer{}, defaultOptions(), quietLogger())

	advanced, report, err := builder.Build(context.Background(), sessions, products)
	require.NoError(t, err)

	assert.Equal(t, 1, reducer.calls)
	assert.Equal(t, 2, reducer.dims, "reducer receives the clamped dimensionality")
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, []int{0}, advanced.Groups())

	got, err := advanced.Recommend(4, "Gry na konsole")
	require.NoError(t, err)
	assert.Equal(t, []int64{100}, got)
}

func TestBuilder_PartialAssignmentRejected(t *testing.T) {
	sessions, products := scenario()
	builder := NewBuilder(testTaxonomy(t), &fixedReducer{}, singleGroupClusterer{dropFirst: true}, defaultOptions(), quietLogger())

	_, _, err := builder.Build(context.Background(), sessions, products)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assigned 3 of 4 users")
}
