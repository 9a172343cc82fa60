package pipeline

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateReduction is returned when the matrix is too small to be
// projected onto at least one latent dimension.
var ErrDegenerateReduction = errors.New("degenerate reduction: not enough users or products")

// Embedding holds one latent vector per user, rows aligned with Users().
type Embedding struct {
	users   []int64
	vectors *mat.Dense
}

// NewEmbedding wraps precomputed vectors. Row i of vectors belongs to users[i].
func NewEmbedding(users []int64, vectors *mat.Dense) (*Embedding, error) {
	rows, _ := vectors.Dims()
	if rows != len(users) {
		return nil, fmt.Errorf("embedding has %d rows for %d users", rows, len(users))
	}
	return &Embedding{users: append([]int64(nil), users...), vectors: vectors}, nil
}

func (e *Embedding) Users() []int64 {
	return append([]int64(nil), e.users...)
}

// Dims returns the number of users and the latent dimensionality.
func (e *Embedding) Dims() (users, dims int) {
	return e.vectors.Dims()
}

// Row returns a copy of the i-th user vector.
func (e *Embedding) Row(i int) []float64 {
	return mat.Row(nil, i, e.vectors)
}

// Reducer projects an interaction matrix into a dense latent space.
type Reducer interface {
	Reduce(m *InteractionMatrix, dims int, seed int64) (*Embedding, error)
}

// EffectiveDimensions clamps the requested dimensionality to what a
// users x products matrix supports: min(dims, users-1, products).
func EffectiveDimensions(users, products, dims int) (int, error) {
	k := min(dims, users-1, products)
	if k < 1 {
		return 0, fmt.Errorf("%w: %d users, %d products, %d dimensions requested",
			ErrDegenerateReduction, users, products, dims)
	}
	return k, nil
}

// RandomizedSVD computes a truncated SVD with a seeded gaussian range finder
// refined by QR-normalised power iterations. The embedding is U_k * S_k.
type RandomizedSVD struct {
	Iterations  int
	Oversamples int
}

func NewRandomizedSVD(iterations, oversamples int) *RandomizedSVD {
	return &RandomizedSVD{Iterations: iterations, Oversamples: oversamples}
}

func (r *RandomizedSVD) Reduce(m *InteractionMatrix, dims int, seed int64) (*Embedding, error) {
	rows, cols := m.Dims()
	k, err := EffectiveDimensions(rows, cols, dims)
	if err != nil {
		return nil, err
	}
	l := min(k+r.Oversamples, rows, cols)

	a := m.Dense()
	rng := rand.New(rand.NewSource(seed))

	// Gaussian test matrix
	omega := mat.NewDense(cols, l, nil)
	for i := 0; i < cols; i++ {
		for j := 0; j < l; j++ {
			omega.Set(i, j, rng.NormFloat64())
		}
	}

	var y mat.Dense
	y.Mul(a, omega)
	q := orthonormalize(&y)

	// Power iterations sharpen the spectrum of the sampled range
	for i := 0; i < r.Iterations; i++ {
		var z mat.Dense
		z.Mul(a.T(), q)
		qz := orthonormalize(&z)

		var yy mat.Dense
		yy.Mul(a, qz)
		q = orthonormalize(&yy)
	}

	// Project onto the range and factorise the small matrix
	var b mat.Dense
	b.Mul(q.T(), a)

	var svd mat.SVD
	if ok := svd.Factorize(&b, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}

	var ub mat.Dense
	svd.UTo(&ub)
	values := svd.Values(nil)

	var u mat.Dense
	u.Mul(q, &ub)

	vectors := mat.NewDense(rows, k, nil)
	for j := 0; j < k; j++ {
		sign := columnSign(&u, j)
		for i := 0; i < rows; i++ {
			vectors.Set(i, j, sign*u.At(i, j)*values[j])
		}
	}

	return &Embedding{users: m.Users(), vectors: vectors}, nil
}

// orthonormalize returns an orthonormal basis of the column space of a,
// which must have at least as many rows as columns.
func orthonormalize(a *mat.Dense) *mat.Dense {
	rows, cols := a.Dims()

	var qr mat.QR
	qr.Factorize(a)

	var q mat.Dense
	qr.QTo(&q)

	return mat.DenseCopyOf(q.Slice(0, rows, 0, cols))
}

// columnSign makes the largest absolute entry of each singular vector
// positive so the decomposition is unique.
func columnSign(u *mat.Dense, j int) float64 {
	rows, _ := u.Dims()
	best, bestAbs := 0.0, -1.0
	for i := 0; i < rows; i++ {
		v := u.At(i, j)
		if math.Abs(v) > bestAbs {
			best, bestAbs = v, math.Abs(v)
		}
	}
	if best < 0 {
		return -1
	}
	return 1
}
