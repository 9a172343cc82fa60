package recommender

import (
	"encoding/json"
	"fmt"

	"github.com/temcen/shoprec/internal/catalog"
)

// Basic serves the popularity weighted ranking. It ignores the user: a
// category with its own ranking gets that list, anything else the global one.
type Basic struct {
	global     []int64
	byCategory map[catalog.Category][]int64
}

type basicDocument struct {
	Global     []int64                      `json:"global"`
	Categories map[catalog.Category][]int64 `json:"categories"`
}

func NewBasic(global []int64, byCategory map[catalog.Category][]int64, taxonomy *catalog.Taxonomy) (*Basic, error) {
	b := &Basic{
		global:     append([]int64{}, global...),
		byCategory: make(map[catalog.Category][]int64, len(byCategory)),
	}
	for c, products := range byCategory {
		if taxonomy != nil && !taxonomy.Contains(c) {
			return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidArtifact, c)
		}
		b.byCategory[c] = append([]int64{}, products...)
	}
	return b, nil
}

func (b *Basic) Recommend(_ int64, category catalog.Category) ([]int64, error) {
	if products, ok := b.byCategory[category]; ok {
		return append([]int64{}, products...), nil
	}
	return append([]int64{}, b.global...), nil
}

// Global returns the overall ranking.
func (b *Basic) Global() []int64 {
	return append([]int64{}, b.global...)
}

func (b *Basic) Marshal() ([]byte, error) {
	return json.MarshalIndent(basicDocument{Global: b.global, Categories: b.byCategory}, "", "    ")
}

func LoadBasic(data []byte, taxonomy *catalog.Taxonomy) (*Basic, error) {
	var doc basicDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: basic: %v", ErrInvalidArtifact, err)
	}
	return NewBasic(doc.Global, doc.Categories, taxonomy)
}
