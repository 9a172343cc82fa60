// Package recommender contains the immutable artifacts served at request
// time and their persisted JSON form.
package recommender

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/temcen/shoprec/internal/catalog"
)

var (
	// ErrUnknownUser means the user has no group assignment. It is a coverage
	// problem of the artifact, never answered with a default list.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidArtifact is returned when mappings are inconsistent or cannot
	// be decoded.
	ErrInvalidArtifact = errors.New("invalid recommender artifact")
)

// Recommender answers recommend(user, category) lookups.
type Recommender interface {
	Recommend(userID int64, category catalog.Category) ([]int64, error)
}

// GroupRecommendations maps group id -> category -> ranked product ids.
type GroupRecommendations map[int]map[catalog.Category][]int64

// Advanced is the group based recommender: a user -> group assignment and
// per-group, per-category product rankings. It is never mutated after
// construction, so concurrent lookups need no locking.
type Advanced struct {
	userToGroup map[int64]int
	groups      GroupRecommendations
}

// NewAdvanced validates and copies both mappings. Every category key must
// belong to taxonomy and every group a user is assigned to must have an
// entry, even if it is empty.
func NewAdvanced(userToGroup map[int64]int, groups GroupRecommendations, taxonomy *catalog.Taxonomy) (*Advanced, error) {
	a := &Advanced{
		userToGroup: make(map[int64]int, len(userToGroup)),
		groups:      make(GroupRecommendations, len(groups)),
	}

	for group, byCategory := range groups {
		if group < 0 {
			return nil, fmt.Errorf("%w: negative group id %d", ErrInvalidArtifact, group)
		}
		copied := make(map[catalog.Category][]int64, len(byCategory))
		for c, products := range byCategory {
			if taxonomy != nil && !taxonomy.Contains(c) {
				return nil, fmt.Errorf("%w: group %d has unknown category %q", ErrInvalidArtifact, group, c)
			}
			copied[c] = append([]int64{}, products...)
		}
		a.groups[group] = copied
	}

	for user, group := range userToGroup {
		if _, ok := a.groups[group]; !ok {
			return nil, fmt.Errorf("%w: user %d assigned to group %d without recommendations", ErrInvalidArtifact, user, group)
		}
		a.userToGroup[user] = group
	}

	return a, nil
}

// Recommend returns the ranked products of the user's group for category.
// An unknown user is an error; a group without data for the category yields
// an empty list.
func (a *Advanced) Recommend(userID int64, category catalog.Category) ([]int64, error) {
	group, ok := a.userToGroup[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownUser, userID)
	}
	return append([]int64{}, a.groups[group][category]...), nil
}

// GroupOf returns the group the user is assigned to.
func (a *Advanced) GroupOf(userID int64) (int, bool) {
	g, ok := a.userToGroup[userID]
	return g, ok
}

// Groups returns the group ids in ascending order.
func (a *Advanced) Groups() []int {
	ids := make([]int, 0, len(a.groups))
	for g := range a.groups {
		ids = append(ids, g)
	}
	sort.Ints(ids)
	return ids
}

// UserCount is the number of users with a group assignment.
func (a *Advanced) UserCount() int {
	return len(a.userToGroup)
}

// MarshalUserToGroup encodes the assignment with user ids as object keys.
func (a *Advanced) MarshalUserToGroup() ([]byte, error) {
	return json.MarshalIndent(a.userToGroup, "", "    ")
}

// MarshalGroupRecommendations encodes group id -> category -> products.
func (a *Advanced) MarshalGroupRecommendations() ([]byte, error) {
	return json.MarshalIndent(a.groups, "", "    ")
}

// LoadAdvanced rebuilds an Advanced recommender from the two documents
// written by MarshalUserToGroup and MarshalGroupRecommendations. Keys are
// decoded back into integers.
func LoadAdvanced(userToGroupJSON, groupsJSON []byte, taxonomy *catalog.Taxonomy) (*Advanced, error) {
	var userToGroup map[int64]int
	if err := json.Unmarshal(userToGroupJSON, &userToGroup); err != nil {
		return nil, fmt.Errorf("%w: user to group: %v", ErrInvalidArtifact, err)
	}

	var groups GroupRecommendations
	if err := json.Unmarshal(groupsJSON, &groups); err != nil {
		return nil, fmt.Errorf("%w: group recommendations: %v", ErrInvalidArtifact, err)
	}

	return NewAdvanced(userToGroup, groups, taxonomy)
}
