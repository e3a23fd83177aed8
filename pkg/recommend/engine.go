package recommend

import (
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"bibliotrack/pkg/domain"
)

const (
	contentMaxFeatures = 5000
	maxClusterCount    = 10
	similarUserCount   = 10
	minSimilarity      = 0.1
)

// Item key kinds. Keys let catalog books and marketplace listings share one
// similarity space.
const (
	bookKeyPrefix    = "book:"
	listingKeyPrefix = "listing:"
)

// BookKey returns the similarity-space key of a catalog book.
func BookKey(id string) string { return bookKeyPrefix + id }

// ListingKey returns the similarity-space key of a marketplace listing.
func ListingKey(id string) string { return listingKeyPrefix + id }

// SplitKey breaks an item key into (bookID, listingID); exactly one is set.
func SplitKey(key string) (bookID, listingID string) {
	if id, ok := strings.CutPrefix(key, bookKeyPrefix); ok {
		return id, ""
	}
	if id, ok := strings.CutPrefix(key, listingKeyPrefix); ok {
		return "", id
	}
	return "", ""
}

// Scored is one recommendation candidate.
type Scored struct {
	Key    string
	Score  float64
	Source string // "collaborative" or "content"
}

// Model holds the content similarity space and the catalog cluster model.
type Model struct {
	keys    []string
	index   map[string]int
	vectors [][]float64

	clusterBookIDs []string
	clusters       []int
	clusterIndex   map[string]int
}

// BuildModel fits the content vector space over books plus available
// listings and clusters the catalog by its shorter feature text.
func BuildModel(books []domain.Book, listings []domain.UserBook) *Model {
	m := &Model{index: make(map[string]int), clusterIndex: make(map[string]int)}

	docs := make([]string, 0, len(books)+len(listings))
	for _, b := range books {
		m.index[BookKey(b.ID)] = len(m.keys)
		m.keys = append(m.keys, BookKey(b.ID))
		docs = append(docs, b.EmbeddingText())
	}
	for _, l := range listings {
		if !l.Available {
			continue
		}
		m.index[ListingKey(l.ID)] = len(m.keys)
		m.keys = append(m.keys, ListingKey(l.ID))
		docs = append(docs, l.EmbeddingText())
	}
	if len(docs) > 0 {
		m.vectors = NewVectorizer(contentMaxFeatures).FitTransform(docs)
	}

	if len(books) > 0 {
		clusterDocs := make([]string, len(books))
		for i, b := range books {
			m.clusterBookIDs = append(m.clusterBookIDs, b.ID)
			m.clusterIndex[b.ID] = i
			clusterDocs[i] = b.ContentText()
		}
		k := maxClusterCount
		if len(books) < k {
			k = len(books)
		}
		kmeans := NewKMeans(k)
		m.clusters = kmeans.Fit(NewVectorizer(0).FitTransform(clusterDocs))
	}
	return m
}

// ContentSimilar returns items similar to the given catalog book by TF-IDF
// cosine similarity, best first. Scores at or below the minimum are dropped.
func (m *Model) ContentSimilar(bookID string, topN int) []Scored {
	idx, ok := m.index[BookKey(bookID)]
	if !ok || topN <= 0 {
		return nil
	}
	base := m.vectors[idx]
	var hits []Scored
	for i, vec := range m.vectors {
		if i == idx {
			continue
		}
		score := Cosine(base, vec)
		if score <= minSimilarity {
			continue
		}
		hits = append(hits, Scored{Key: m.keys[i], Score: score, Source: "content"})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > topN {
		hits = hits[:topN]
	}
	return hits
}

// ClusterMates returns catalog books sharing the given book's cluster.
func (m *Model) ClusterMates(bookID string, topN int) []string {
	idx, ok := m.clusterIndex[bookID]
	if !ok || topN <= 0 {
		return nil
	}
	cluster := m.clusters[idx]
	var mates []string
	for i, id := range m.clusterBookIDs {
		if i == idx || m.clusters[i] != cluster {
			continue
		}
		mates = append(mates, id)
		if len(mates) >= topN {
			break
		}
	}
	return mates
}

// Interactions is the binary user-item purchase matrix.
type Interactions map[string]map[string]float64

// BuildInteractions derives the purchase matrix from confirmed and
// delivered orders.
func BuildInteractions(orders []domain.Order) Interactions {
	interactions := make(Interactions)
	for _, o := range orders {
		if o.Status != domain.OrderConfirmed && o.Status != domain.OrderDelivered {
			continue
		}
		var key string
		switch {
		case o.BookID != "":
			key = BookKey(o.BookID)
		case o.UserBookID != "":
			key = ListingKey(o.UserBookID)
		default:
			continue
		}
		if interactions[o.UserID] == nil {
			interactions[o.UserID] = make(map[string]float64)
		}
		interactions[o.UserID][key] = 1
	}
	return interactions
}

// CollaborativeScores scores unseen items for a user by the purchases of
// the most correlated other users.
func CollaborativeScores(interactions Interactions, userID string) map[string]float64 {
	mine, ok := interactions[userID]
	if !ok || len(mine) == 0 {
		return nil
	}

	// Item universe, stable order for deterministic correlations.
	itemSet := make(map[string]struct{})
	for _, items := range interactions {
		for key := range items {
			itemSet[key] = struct{}{}
		}
	}
	items := make([]string, 0, len(itemSet))
	for key := range itemSet {
		items = append(items, key)
	}
	sort.Strings(items)

	vector := func(user map[string]float64) []float64 {
		vec := make([]float64, len(items))
		for i, key := range items {
			vec[i] = user[key]
		}
		return vec
	}
	myVec := vector(mine)

	type neighbor struct {
		id   string
		corr float64
	}
	var neighbors []neighbor
	for otherID, other := range interactions {
		if otherID == userID {
			continue
		}
		corr := stat.Correlation(myVec, vector(other), nil)
		if corr > minSimilarity {
			neighbors = append(neighbors, neighbor{id: otherID, corr: corr})
		}
	}
	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].corr != neighbors[j].corr {
			return neighbors[i].corr > neighbors[j].corr
		}
		return neighbors[i].id < neighbors[j].id
	})
	if len(neighbors) > similarUserCount {
		neighbors = neighbors[:similarUserCount]
	}

	scores := make(map[string]float64)
	for _, n := range neighbors {
		for key, rating := range interactions[n.id] {
			if _, seen := mine[key]; seen {
				continue
			}
			scores[key] += n.corr * rating
		}
	}
	return scores
}

// Hybrid blends collaborative and content recommendations: half the slots
// go to each source, duplicates keep their first score.
func Hybrid(model *Model, interactions Interactions, userID, bookID string, topN int) []Scored {
	if topN <= 0 {
		return nil
	}
	var candidates []Scored

	if userID != "" {
		collab := CollaborativeScores(interactions, userID)
		keys := make([]string, 0, len(collab))
		for key := range collab {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool {
			if collab[keys[i]] != collab[keys[j]] {
				return collab[keys[i]] > collab[keys[j]]
			}
			return keys[i] < keys[j]
		})
		if len(keys) > topN/2 {
			keys = keys[:topN/2]
		}
		for _, key := range keys {
			candidates = append(candidates, Scored{Key: key, Score: collab[key], Source: "collaborative"})
		}
	}

	if bookID != "" {
		candidates = append(candidates, model.ContentSimilar(bookID, topN/2)...)
	}

	seen := make(map[string]struct{}, len(candidates))
	final := make([]Scored, 0, topN)
	for _, c := range candidates {
		if _, dup := seen[c.Key]; dup {
			continue
		}
		seen[c.Key] = struct{}{}
		final = append(final, c)
		if len(final) >= topN {
			break
		}
	}
	return final
}

// PopularBooks orders the catalog by order count, then average rating.
// It is the fallback when personalized signals are unavailable.
func PopularBooks(books []domain.Book, orderCounts map[string]int, topN int) []domain.Book {
	sorted := make([]domain.Book, len(books))
	copy(sorted, books)
	sort.SliceStable(sorted, func(i, j int) bool {
		ci, cj := orderCounts[sorted[i].ID], orderCounts[sorted[j].ID]
		if ci != cj {
			return ci > cj
		}
		return sorted[i].Rating > sorted[j].Rating
	})
	if topN > 0 && len(sorted) > topN {
		sorted = sorted[:topN]
	}
	return sorted
}
