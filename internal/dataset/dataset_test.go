package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionsJSONL = `{"session_id": 124, "timestamp": "2021-06-11T13:12:51", "user_id": 102, "product_id": 1001, "event_type": "VIEW_PRODUCT", "offered_discount": 0, "purchase_id": null}
{"session_id": 124, "timestamp": "2021-06-11T13:14:02", "user_id": 102, "product_id": 1002, "event_type": "BUY_PRODUCT", "offered_discount": 5, "purchase_id": 20001}

{"session_id": 125, "timestamp": "2021-06-12T09:00:00", "user_id": 103, "product_id": 1001, "event_type": "VIEW_PRODUCT", "offered_discount": 0, "purchase_id": null}
`

const productsJSONL = `{"product_id": 1001, "product_name": "Kinect Joy Ride (Xbox 360)", "category_path": "Gry i konsole;Gry na konsole;Gry Xbox 360", "price": 49.99, "user_rating": 4.2}
{"product_id": 1002, "product_name": "Monitor 24\"", "category_path": "Komputery;Monitory;Monitory LCD", "price": 899.0, "user_rating": 3.1}
`

func TestReadSessionsJSONL(t *testing.T) {
	sessions, err := ReadSessionsJSONL(context.Background(), strings.NewReader(sessionsJSONL))
	require.NoError(t, err)
	require.Len(t, sessions, 3)

	assert.Equal(t, int64(124), sessions[0].SessionID)
	assert.Equal(t, int64(102), sessions[0].UserID)
	assert.Equal(t, int64(1001), sessions[0].ProductID)
	assert.Equal(t, "VIEW_PRODUCT", sessions[0].EventType)
	assert.Equal(t, "2021-06-11T13:12:51", sessions[0].Timestamp)
	assert.Equal(t, "BUY_PRODUCT", sessions[1].EventType)
	assert.Equal(t, int64(103), sessions[2].UserID)
}

func TestReadSessionsJSONL_BadLine(t *testing.T) {
	input := `{"session_id": 1, "user_id": 1, "product_id": 1}
{"session_id": 2, "user_id": "oops"}
`
	_, err := ReadSessionsJSONL(context.Background(), strings.NewReader(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadProductsJSONL(t *testing.T) {
	products, err := ReadProductsJSONL(context.Background(), strings.NewReader(productsJSONL))
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, int64(1001), products[0].ProductID)
	assert.Equal(t, "Gry i konsole;Gry na konsole;Gry Xbox 360", products[0].CategoryPath)
	assert.InDelta(t, 4.2, products[0].UserRating, 1e-9)
	assert.Equal(t, `Monitor 24"`, products[1].ProductName)
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	sessionsPath := filepath.Join(dir, "sessions.jsonl")
	productsPath := filepath.Join(dir, "products.jsonl")
	require.NoError(t, os.WriteFile(sessionsPath, []byte(sessionsJSONL), 0o644))
	require.NoError(t, os.WriteFile(productsPath, []byte(productsJSONL), 0o644))

	source := NewFileSource(sessionsPath, productsPath)

	sessions, err := source.Sessions(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 3)

	products, err := source.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)

	missing := NewFileSource(filepath.Join(dir, "nope.jsonl"), productsPath)
	_, err = missing.Sessions(context.Background())
	assert.Error(t, err)
}

func TestFileSource_Cancelled(t *testing.T) {
	dir := t.TempDir()
	sessionsPath := filepath.Join(dir, "sessions.jsonl")
	productsPath := filepath.Join(dir, "products.jsonl")
	require.NoError(t, os.WriteFile(sessionsPath, []byte(sessionsJSONL), 0o644))
	require.NoError(t, os.WriteFile(productsPath, []byte(productsJSONL), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	source := NewFileSource(sessionsPath, productsPath)
	_, err := source.Sessions(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = source.Products(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadSessionsJSONL_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lines := 0
	err := readJSONL(ctx, strings.NewReader(sessionsJSONL), func([]byte) error {
		lines++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, lines)
}

func TestPostgresSource_Sessions(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	source := NewPostgresSource(mockDB)

	t.Run("successful sessions query", func(t *testing.T) {
		rows := pgxmock.NewRows([]string{"session_id", "timestamp", "user_id", "product_id", "event_type", "category_path"}).
			AddRow(int64(1), "2021-06-11 13:12:51", int64(102), int64(1001), "VIEW_PRODUCT", "").
			AddRow(int64(1), "2021-06-11 13:14:02", int64(102), int64(1002), "BUY_PRODUCT", "Komputery;Monitory")

		mockDB.ExpectQuery("SELECT").WillReturnRows(rows)

		sessions, err := source.Sessions(context.Background())
		require.NoError(t, err)
		require.Len(t, sessions, 2)
		assert.Equal(t, int64(102), sessions[0].UserID)
		assert.Equal(t, int64(1002), sessions[1].ProductID)
		assert.Equal(t, "Komputery;Monitory", sessions[1].CategoryPath)

		require.NoError(t, mockDB.ExpectationsWereMet())
	})

	t.Run("query failure", func(t *testing.T) {
		mockDB.ExpectQuery("SELECT").WillReturnError(errors.New("connection reset"))

		_, err := source.Sessions(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sessions query failed")

		require.NoError(t, mockDB.ExpectationsWereMet())
	})
}

func TestPostgresSource_Products(t *testing.T) {
	mockDB, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockDB.Close()

	source := NewPostgresSource(mockDB)

	rows := pgxmock.NewRows([]string{"product_id", "product_name", "category_path", "price", "user_rating"}).
		AddRow(int64(1001), "Kinect Joy Ride", "Gry i konsole;Gry na konsole", 49.99, 4.2).
		AddRow(int64(1002), "Monitor", "Komputery;Monitory", 899.0, 3.1)

	mockDB.ExpectQuery("SELECT").WillReturnRows(rows)

	products, err := source.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Gry i konsole;Gry na konsole", products[0].CategoryPath)
	assert.InDelta(t, 3.1, products[1].UserRating, 1e-9)

	require.NoError(t, mockDB.ExpectationsWereMet())
}
