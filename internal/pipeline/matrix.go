package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/temcen/shoprec/internal/dataset"
)

var (
	ErrMissingField   = errors.New("session event is missing user_id or product_id")
	ErrNoInteractions = errors.New("no interaction events")
)

// InteractionMatrix is a dense user x product table of interaction counts.
// Rows follow Users() and columns follow Products(), both ascending by id.
type InteractionMatrix struct {
	users    []int64
	products []int64
	userRow  map[int64]int
	prodCol  map[int64]int
	counts   *mat.Dense
}

// BuildInteractionMatrix counts events per (user, product) pair over the
// union of all observed users and products. Unobserved pairs stay zero and
// no normalisation is applied, so the result does not depend on event order.
func BuildInteractionMatrix(events []dataset.Session) (*InteractionMatrix, error) {
	if len(events) == 0 {
		return nil, ErrNoInteractions
	}

	userSet := make(map[int64]struct{})
	productSet := make(map[int64]struct{})
	for i, e := range events {
		if e.UserID == 0 || e.ProductID == 0 {
			return nil, fmt.Errorf("event %d: %w", i, ErrMissingField)
		}
		userSet[e.UserID] = struct{}{}
		productSet[e.ProductID] = struct{}{}
	}

	m := &InteractionMatrix{
		users:    sortedIDs(userSet),
		products: sortedIDs(productSet),
	}
	m.userRow = indexOf(m.users)
	m.prodCol = indexOf(m.products)
	m.counts = mat.NewDense(len(m.users), len(m.products), nil)

	for _, e := range events {
		r, c := m.userRow[e.UserID], m.prodCol[e.ProductID]
		m.counts.Set(r, c, m.counts.At(r, c)+1)
	}

	return m, nil
}

// Users returns the row ids in row order.
func (m *InteractionMatrix) Users() []int64 {
	return append([]int64(nil), m.users...)
}

// Products returns the column ids in column order.
func (m *InteractionMatrix) Products() []int64 {
	return append([]int64(nil), m.products...)
}

// Dims returns the number of users and products.
func (m *InteractionMatrix) Dims() (users, products int) {
	return m.counts.Dims()
}

// Count returns the number of interactions between user and product; pairs
// outside the matrix count as zero.
func (m *InteractionMatrix) Count(user, product int64) int {
	r, ok := m.userRow[user]
	if !ok {
		return 0
	}
	c, ok := m.prodCol[product]
	if !ok {
		return 0
	}
	return int(m.counts.At(r, c))
}

// RowSum is the total number of events recorded for user.
func (m *InteractionMatrix) RowSum(user int64) int {
	r, ok := m.userRow[user]
	if !ok {
		return 0
	}
	return int(floats.Sum(m.counts.RawRowView(r)))
}

// Total is the sum of all cells, i.e. the number of events.
func (m *InteractionMatrix) Total() int {
	return int(mat.Sum(m.counts))
}

// Dense exposes the counts as a read-only matrix.
func (m *InteractionMatrix) Dense() mat.Matrix {
	return m.counts
}

// ColumnSums adds up the rows of the given users, producing one popularity
// value per product in column order. Unknown users are ignored.
func (m *InteractionMatrix) ColumnSums(users []int64) []float64 {
	_, cols := m.counts.Dims()
	sums := make([]float64, cols)
	for _, u := range users {
		r, ok := m.userRow[u]
		if !ok {
			continue
		}
		floats.Add(sums, m.counts.RawRowView(r))
	}
	return sums
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func indexOf(ids []int64) map[int64]int {
	idx := make(map[int64]int, len(ids))
	for i, id := range ids {
		idx[id] = i
	}
	return idx
}
