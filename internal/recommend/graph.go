package recommend

import (
	"github.com/lumapix/lumapix/internal/database/types"
)

// Graph is a sparse adjacency view of the directed follow graph, indexed
// both ways. Rows are followers, columns are followees; the column-normalized
// matrix product with its own transpose gives the item-item similarity used
// for collaborative filtering.
type Graph struct {
	following map[uint64]map[uint64]struct{}
	followers map[uint64]map[uint64]struct{}
}

// BuildGraph constructs the adjacency view from follow edges.
func BuildGraph(edges []*types.RelationshipEdge) *Graph {
	g := &Graph{
		following: make(map[uint64]map[uint64]struct{}),
		followers: make(map[uint64]map[uint64]struct{}),
	}

	for _, edge := range edges {
		if edge.Type != types.RelationshipFollow {
			continue
		}

		if g.following[edge.FromUserID] == nil {
			g.following[edge.FromUserID] = make(map[uint64]struct{})
		}

		if g.followers[edge.ToUserID] == nil {
			g.followers[edge.ToUserID] = make(map[uint64]struct{})
		}

		g.following[edge.FromUserID][edge.ToUserID] = struct{}{}
		g.followers[edge.ToUserID][edge.FromUserID] = struct{}{}
	}

	return g
}

// Following returns the set of users the given user follows.
func (g *Graph) Following(userID uint64) map[uint64]struct{} {
	return g.following[userID]
}

// Follows reports whether from follows to.
func (g *Graph) Follows(from, to uint64) bool {
	_, ok := g.following[from][to]
	return ok
}

// IsFriend reports whether two users follow each other. Friendship is
// derived from mutual follow edges, never stored.
func (g *Graph) IsFriend(a, b uint64) bool {
	return g.Follows(a, b) && g.Follows(b, a)
}

// intersectCount returns the size of the intersection of two sets,
// iterating the smaller one.
func intersectCount(a, b map[uint64]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}

	count := 0

	for id := range a {
		if _, ok := b[id]; ok {
			count++
		}
	}

	return count
}

// CommonFollowingCount returns how many users both a and b follow.
func (g *Graph) CommonFollowingCount(a, b uint64) int {
	return intersectCount(g.following[a], g.following[b])
}

// CommonFollowerCount returns how many users follow both a and b.
func (g *Graph) CommonFollowerCount(a, b uint64) int {
	return intersectCount(g.followers[a], g.followers[b])
}

// MutualFriendCount returns how many users are friends with both a and b.
func (g *Graph) MutualFriendCount(a, b uint64) int {
	candidates := g.following[a]
	if len(g.following[b]) < len(candidates) {
		candidates = g.following[b]
	}

	count := 0

	for id := range candidates {
		if id == a || id == b {
			continue
		}

		if g.IsFriend(a, id) && g.IsFriend(b, id) {
			count++
		}
	}

	return count
}

// ItemSimilarity returns the co-follow similarity between two users: the
// number of shared followers weighted by each user's column normalization.
// With each incoming-follow column summing to 1, the product of the
// normalized matrix with its transpose reduces to
// |common followers| / (indegree(a) * indegree(b)).
func (g *Graph) ItemSimilarity(a, b uint64) float64 {
	followersA := g.followers[a]
	followersB := g.followers[b]

	if len(followersA) == 0 || len(followersB) == 0 {
		return 0
	}

	common := intersectCount(followersA, followersB)
	if common == 0 {
		return 0
	}

	return float64(common) / (float64(len(followersA)) * float64(len(followersB)))
}

// BaseScores computes the collaborative-filtering base score for every
// candidate: the sum, over each user the requester already follows, of the
// co-follower item similarity plus the column-normalized weight of a direct
// follow path (a followee who follows the candidate contributes
// 1/indegree(candidate)). The path term keeps friend-of-friend candidates
// scorable even when their follower sets do not yet overlap the requester's
// neighborhood. Self and already-followed candidates are forced to zero by
// omission. Returns ok=false when the requester follows nobody, in which
// case the caller falls back to an activity-ranked baseline.
func (g *Graph) BaseScores(requester uint64) (map[uint64]float64, bool) {
	followed := g.following[requester]
	if len(followed) == 0 {
		return nil, false
	}

	// Only users reachable within two hops can score above zero, so walk
	// that neighborhood instead of the full candidate set.
	candidates := make(map[uint64]struct{})

	for followee := range followed {
		for candidate := range g.following[followee] {
			candidates[candidate] = struct{}{}
		}

		for follower := range g.followers[followee] {
			for candidate := range g.following[follower] {
				candidates[candidate] = struct{}{}
			}
		}
	}

	scores := make(map[uint64]float64)

	for candidate := range candidates {
		if candidate == requester {
			continue
		}

		if _, alreadyFollowed := followed[candidate]; alreadyFollowed {
			continue
		}

		var total float64

		for u := range followed {
			total += g.ItemSimilarity(candidate, u)

			if g.Follows(u, candidate) {
				total += 1 / float64(len(g.followers[candidate]))
			}
		}

		if total > 0 {
			scores[candidate] = total
		}
	}

	return scores, true
}
