package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/database"
	"github.com/temcen/shoprec/internal/recommender"
	"github.com/temcen/shoprec/internal/storage"
)

// MockStore is a mock implementation of storage.Store
type MockStore struct {
	mock.Mock
}

func (m *MockStore) SaveAdvanced(ctx context.Context, model *recommender.Advanced) error {
	return m.Called(ctx, model).Error(0)
}

func (m *MockStore) LoadAdvanced(ctx context.Context) (*recommender.Advanced, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recommender.Advanced), args.Error(1)
}

func (m *MockStore) SaveBasic(ctx context.Context, model *recommender.Basic) error {
	return m.Called(ctx, model).Error(0)
}

func (m *MockStore) LoadBasic(ctx context.Context) (*recommender.Basic, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recommender.Basic), args.Error(1)
}

var _ storage.Store = (*MockStore)(nil)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testTaxonomy(t *testing.T) *catalog.Taxonomy {
	t.Helper()
	tax, err := catalog.NewTaxonomy([]string{"Gry na konsole", "Komputery"}, ";")
	require.NoError(t, err)
	return tax
}

func advancedModel(t *testing.T, userToGroup map[int64]int, groups recommender.GroupRecommendations) *recommender.Advanced {
	t.Helper()
	a, err := recommender.NewAdvanced(userToGroup, groups, testTaxonomy(t))
	require.NoError(t, err)
	return a
}

func basicModel(t *testing.T, global ...int64) *recommender.Basic {
	t.Helper()
	b, err := recommender.NewBasic(global, nil, testTaxonomy(t))
	require.NoError(t, err)
	return b
}

func TestModelService_NotLoaded(t *testing.T) {
	service := NewModelService(new(MockStore), testTaxonomy(t), testLogger())

	assert.False(t, service.Ready())
	_, err := service.Recommend(ModelAdvanced, 1, "Komputery")
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	_, err = service.Recommend(ModelBasic, 1, "Komputery")
	assert.ErrorIs(t, err, ErrModelNotLoaded)
	assert.False(t, service.Status()[ModelAdvanced].Loaded)
}

func TestModelService_Reload(t *testing.T) {
	store := new(MockStore)
	store.On("LoadAdvanced", mock.Anything).Return(advancedModel(t,
		map[int64]int{1: 0, 4: 1},
		recommender.GroupRecommendations{0: {"Gry na konsole": {100}}, 1: {"Komputery": {200}}},
	), nil)
	store.On("LoadBasic", mock.Anything).Return(basicModel(t, 100, 200), nil)

	service := NewModelService(store, testTaxonomy(t), testLogger())
	require.NoError(t, service.Reload(context.Background()))
	assert.True(t, service.Ready())

	got, err := service.Recommend(ModelAdvanced, 4, "Komputery")
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, got)

	got, err = service.Recommend(ModelBasic, 999, "Komputery")
	require.NoError(t, err)
	assert.Equal(t, []int64{100, 200}, got)

	_, err = service.Recommend(ModelAdvanced, 999, "Komputery")
	assert.ErrorIs(t, err, recommender.ErrUnknownUser)

	_, err = service.Recommend("fancy", 1, "Komputery")
	assert.ErrorIs(t, err, ErrUnknownModel)

	status := service.Status()
	assert.True(t, status[ModelAdvanced].Loaded)
	assert.Equal(t, 2, status[ModelAdvanced].Users)
	assert.Equal(t, 2, status[ModelAdvanced].Groups)
	assert.True(t, status[ModelBasic].Loaded)
	assert.Equal(t, 2, status[ModelBasic].Products)

	store.AssertExpectations(t)
}

func TestModelService_FailedReloadKeepsModels(t *testing.T) {
	store := new(MockStore)
	store.On("LoadAdvanced", mock.Anything).Return(advancedModel(t,
		map[int64]int{1: 0},
		recommender.GroupRecommendations{0: {"Komputery": {200}}},
	), nil).Once()
	store.On("LoadBasic", mock.Anything).Return(basicModel(t, 200), nil).Once()

	service := NewModelService(store, testTaxonomy(t), testLogger())
	require.NoError(t, service.Reload(context.Background()))

	// Second reload: advanced loads, basic is corrupt. Neither is swapped.
	store.On("LoadAdvanced", mock.Anything).Return(advancedModel(t,
		map[int64]int{2: 0},
		recommender.GroupRecommendations{0: {"Komputery": {300}}},
	), nil).Once()
	store.On("LoadBasic", mock.Anything).Return(nil, storage.ErrCorruptArtifact).Once()

	err := service.Reload(context.Background())
	assert.ErrorIs(t, err, storage.ErrCorruptArtifact)

	got, err := service.Recommend(ModelAdvanced, 1, "Komputery")
	require.NoError(t, err)
	assert.Equal(t, []int64{200}, got)

	_, err = service.Recommend(ModelAdvanced, 2, "Komputery")
	assert.ErrorIs(t, err, recommender.ErrUnknownUser)

	store.AssertExpectations(t)
}

func TestModelService_InitialLoadFailure(t *testing.T) {
	store := new(MockStore)
	store.On("LoadAdvanced", mock.Anything).Return(nil, storage.ErrArtifactNotFound)

	service := NewModelService(store, testTaxonomy(t), testLogger())
	err := service.Reload(context.Background())
	assert.ErrorIs(t, err, storage.ErrArtifactNotFound)
	assert.False(t, service.Ready())
	store.AssertNotCalled(t, "LoadBasic", mock.Anything)
}

func TestModelService_ConcurrentLookupsDuringReload(t *testing.T) {
	store := new(MockStore)
	store.On("LoadAdvanced", mock.Anything).Return(advancedModel(t,
		map[int64]int{1: 0},
		recommender.GroupRecommendations{0: {"Komputery": {200}}},
	), nil)
	store.On("LoadBasic", mock.Anything).Return(basicModel(t, 200), nil)

	service := NewModelService(store, testTaxonomy(t), testLogger())
	require.NoError(t, service.Reload(context.Background()))

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := service.Reload(context.Background()); err != nil {
				errs <- err
			}
		}()
		go func() {
			defer wg.Done()
			got, err := service.Recommend(ModelAdvanced, 1, "Komputery")
			if err != nil {
				errs <- err
				return
			}
			if len(got) != 1 || got[0] != 200 {
				errs <- errors.New("unexpected recommendations")
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestHealthService_CheckHealth(t *testing.T) {
	store := new(MockStore)
	service := NewModelService(store, testTaxonomy(t), testLogger())
	health := NewHealthService(testLogger(), &database.Database{}, service)

	status := health.CheckHealth(context.Background())
	assert.Equal(t, "unhealthy", status.Status)
	assert.ElementsMatch(t, []string{"model_advanced", "model_basic"}, status.Critical)

	store.On("LoadAdvanced", mock.Anything).Return(advancedModel(t,
		map[int64]int{1: 0},
		recommender.GroupRecommendations{0: {}},
	), nil)
	store.On("LoadBasic", mock.Anything).Return(basicModel(t), nil)
	require.NoError(t, service.Reload(context.Background()))

	status = health.CheckHealth(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "healthy", status.Services["model_advanced"])
	assert.Empty(t, status.Critical)
}
