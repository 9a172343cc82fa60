package pipeline

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/temcen/shoprec/internal/catalog"
	"github.com/temcen/shoprec/internal/dataset"
	"github.com/temcen/shoprec/internal/recommender"
)

// CategoryIndex casts the category of every known product. Catalog entries
// take precedence; sessions carrying a category path fill in products the
// catalog does not list. A path that does not resolve to exactly one
// category aborts the build.
func CategoryIndex(products []dataset.Product, sessions []dataset.Session, taxonomy *catalog.Taxonomy) (map[int64]catalog.Category, error) {
	index := make(map[int64]catalog.Category, len(products))
	for _, p := range products {
		c, err := taxonomy.Cast(p.CategoryPath)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", p.ProductID, err)
		}
		index[p.ProductID] = c
	}

	for _, s := range sessions {
		if s.CategoryPath == "" {
			continue
		}
		if _, known := index[s.ProductID]; known {
			continue
		}
		c, err := taxonomy.Cast(s.CategoryPath)
		if err != nil {
			return nil, fmt.Errorf("session %d product %d: %w", s.SessionID, s.ProductID, err)
		}
		index[s.ProductID] = c
	}

	return index, nil
}

type productScore struct {
	id    int64
	score float64
}

// AggregateStats reports what the aggregation had to leave out.
type AggregateStats struct {
	Groups             int
	UncategorizedItems int
}

// Aggregate ranks, for each group of the assignment, the products its users
// interacted with inside every category. Popularity is the sum of the group
// members' rows of the interaction matrix. Lists are sorted by popularity
// descending, then product id ascending, and cut to topN. Categories without
// activity in a group are absent from that group's map; every group of the
// assignment gets an entry.
func Aggregate(
	m *InteractionMatrix,
	assignment map[int64]int,
	categories map[int64]catalog.Category,
	topN int,
) (recommender.GroupRecommendations, AggregateStats, error) {
	if topN < 1 {
		return nil, AggregateStats{}, fmt.Errorf("%w: top_n=%d", ErrInvalidConfig, topN)
	}

	members := make(map[int][]int64)
	for user, group := range assignment {
		members[group] = append(members[group], user)
	}

	products := m.Products()
	uncategorized := make(map[int64]struct{})
	result := make(recommender.GroupRecommendations, len(members))

	groups := lo.Keys(members)
	sort.Ints(groups)

	for _, group := range groups {
		popularity := m.ColumnSums(members[group])

		byCategory := make(map[catalog.Category][]productScore)
		for col, score := range popularity {
			if score <= 0 {
				continue
			}
			id := products[col]
			c, ok := categories[id]
			if !ok {
				uncategorized[id] = struct{}{}
				continue
			}
			byCategory[c] = append(byCategory[c], productScore{id: id, score: score})
		}

		ranked := make(map[catalog.Category][]int64, len(byCategory))
		for c, scores := range byCategory {
			ranked[c] = topProducts(scores, topN)
		}
		result[group] = ranked
	}

	return result, AggregateStats{Groups: len(groups), UncategorizedItems: len(uncategorized)}, nil
}

func topProducts(scores []productScore, n int) []int64 {
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].score != scores[j].score {
			return scores[i].score > scores[j].score
		}
		return scores[i].id < scores[j].id
	})
	if len(scores) > n {
		scores = scores[:n]
	}
	return lo.Map(scores, func(s productScore, _ int) int64 { return s.id })
}
