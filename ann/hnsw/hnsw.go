// Package hnsw implements the Hierarchical Navigable Small World graph as an
// ann.Index.
//
// Points live at dense positions chosen by the caller. The node table is
// pre-sized to the index capacity; Resize grows it. The index is not
// internally synchronized: concurrent SearchNearest calls are safe, anything
// that mutates must be serialized by the caller.
package hnsw

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/barca7453/ContextMemory/ann"
	"github.com/barca7453/ContextMemory/distance"
	"github.com/barca7453/ContextMemory/persistence"
	"github.com/barca7453/ContextMemory/queue"
)

// maxLevel caps the randomly drawn node level.
const maxLevel = 31

// Options represents the options for configuring HNSW beyond ann.Config.
type Options struct {
	// Heuristic selects neighbours with the HNSW pruning heuristic (true) or
	// keeps the plain closest M (false).
	Heuristic bool

	// Seed seeds the level generator. Equal seeds and insertion orders build
	// equal graphs.
	Seed uint64

	// Compression is applied to the native form written by Save.
	Compression persistence.Compression
}

// DefaultOptions are used when no option functions are given.
var DefaultOptions = Options{
	Heuristic:   true,
	Seed:        0x5eed,
	Compression: persistence.CompressionNone,
}

type node struct {
	vector []float32
	level  int
	links  [][]uint64 // links[l] are the neighbours on layer l
}

// Index represents the Hierarchical Navigable Small World graph.
type Index struct {
	cfg   ann.Config
	opts  Options
	dist  distance.Func
	mmax  int     // max connections on layers above 0
	mmax0 int     // max connections on layer 0
	ml    float64 // level normalization factor
	ep    uint64  // entry point
	top   int     // highest layer in use, -1 when empty

	nodes    []*node
	occupied *roaring64.Bitmap

	rng *rand.Rand
}

// Compile time check to ensure Index satisfies ann.Index.
var _ ann.Index = (*Index)(nil)

// New creates an empty HNSW index for cfg.
func New(cfg ann.Config, optFns ...func(o *Options)) (*Index, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	dist, err := distance.Provider(cfg.Metric)
	if err != nil {
		return nil, err
	}

	if cfg.M < 2 {
		// M == 1 would make ml = 1/log(1) infinite.
		cfg.M = 2
	}
	if cfg.EFConstruction < cfg.M {
		cfg.EFConstruction = cfg.M
	}
	if cfg.EF < 1 {
		cfg.EF = 1
	}

	return &Index{
		cfg:      cfg,
		opts:     opts,
		dist:     dist,
		mmax:     cfg.M,
		mmax0:    2 * cfg.M,
		ml:       1 / math.Log(float64(cfg.M)),
		top:      -1,
		nodes:    make([]*node, cfg.Capacity),
		occupied: roaring64.New(),
		rng:      rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15)),
	}, nil
}

// Factory returns an ann.Factory building HNSW indexes with optFns.
func Factory(optFns ...func(o *Options)) ann.Factory {
	return func(cfg ann.Config) (ann.Index, error) {
		return New(cfg, optFns...)
	}
}

// AddPoint inserts vec at position pos.
func (h *Index) AddPoint(vec []float32, pos uint64) error {
	if len(vec) != h.cfg.Dimension {
		return &ann.ErrDimensionMismatch{Expected: h.cfg.Dimension, Actual: len(vec)}
	}
	if pos >= uint64(len(h.nodes)) {
		return fmt.Errorf("%w: position %d, capacity %d", ann.ErrCapacityExceeded, pos, len(h.nodes))
	}
	if h.occupied.Contains(pos) {
		return fmt.Errorf("%w: position %d", ann.ErrSlotOccupied, pos)
	}

	v := h.prepare(vec)
	n := &node{
		vector: v,
		level:  h.randomLevel(),
	}
	n.links = make([][]uint64, n.level+1)

	if h.top < 0 {
		h.nodes[pos] = n
		h.occupied.Add(pos)
		h.ep = pos
		h.top = n.level
		return nil
	}

	entry := queue.Item{Position: h.ep, Distance: h.dist(v, h.nodes[h.ep].vector)}
	entry = h.greedy(v, entry, h.top, n.level)

	for level := min(n.level, h.top); level >= 0; level-- {
		found := h.searchLayer(v, entry, h.cfg.EFConstruction, level)
		candidates := drainAscending(found)
		entry = candidates[0]

		selected := h.selectNeighbours(candidates, h.cfg.M)
		n.links[level] = make([]uint64, len(selected))
		for i, c := range selected {
			n.links[level][i] = c.Position
		}
	}

	// Make the node reachable only once its own links are in place.
	h.nodes[pos] = n
	h.occupied.Add(pos)

	for level := min(n.level, h.top); level >= 0; level-- {
		for _, nb := range n.links[level] {
			h.link(nb, pos, level)
		}
	}

	if n.level > h.top {
		h.ep = pos
		h.top = n.level
	}
	return nil
}

// SearchNearest performs a k-nearest neighbor search in the HNSW graph.
func (h *Index) SearchNearest(query []float32, k int) ([]ann.Neighbor, error) {
	if len(query) != h.cfg.Dimension {
		return nil, &ann.ErrDimensionMismatch{Expected: h.cfg.Dimension, Actual: len(query)}
	}
	if k <= 0 || h.top < 0 {
		return []ann.Neighbor{}, nil
	}

	q := h.prepare(query)
	entry := queue.Item{Position: h.ep, Distance: h.dist(q, h.nodes[h.ep].vector)}
	entry = h.greedy(q, entry, h.top, 0)

	found := h.searchLayer(q, entry, max(h.cfg.EF, k), 0)
	for found.Len() > k {
		found.PopItem()
	}

	items := drainAscending(found)
	res := make([]ann.Neighbor, len(items))
	for i, it := range items {
		res[i] = ann.Neighbor{Position: it.Position, Distance: it.Distance}
	}
	return res, nil
}

// Resize changes the maximum number of storable points.
func (h *Index) Resize(newCapacity int) error {
	if newCapacity < 0 {
		return fmt.Errorf("hnsw: invalid capacity %d", newCapacity)
	}
	if !h.occupied.IsEmpty() && h.occupied.Maximum() >= uint64(newCapacity) {
		return fmt.Errorf("%w: highest position %d, requested capacity %d", ann.ErrShrink, h.occupied.Maximum(), newCapacity)
	}
	if newCapacity <= len(h.nodes) {
		h.nodes = slices.Clip(h.nodes[:newCapacity])
	} else {
		h.nodes = append(h.nodes, make([]*node, newCapacity-len(h.nodes))...)
	}
	h.cfg.Capacity = newCapacity
	return nil
}

// SetEF sets the query search breadth.
func (h *Index) SetEF(ef int) {
	if ef < 1 {
		ef = 1
	}
	h.cfg.EF = ef
}

// EF returns the query search breadth.
func (h *Index) EF() int { return h.cfg.EF }

// Len returns the number of stored points.
func (h *Index) Len() int { return int(h.occupied.GetCardinality()) }

// Capacity returns the maximum number of storable points.
func (h *Index) Capacity() int { return len(h.nodes) }

// Config returns the effective configuration.
func (h *Index) Config() ann.Config { return h.cfg }

func (h *Index) prepare(vec []float32) []float32 {
	v := slices.Clone(vec)
	if h.cfg.Metric.NeedsNormalization() {
		distance.NormalizeL2InPlace(v)
	}
	return v
}

func (h *Index) randomLevel() int {
	// 1 - Float64() is in (0, 1], so the log is finite.
	l := int(math.Floor(-math.Log(1-h.rng.Float64()) * h.ml))
	return min(l, maxLevel)
}

// greedy walks from entry towards q on every layer in (to, from], one hop at
// a time, and returns the closest point found.
func (h *Index) greedy(q []float32, entry queue.Item, from, to int) queue.Item {
	cur := entry
	for level := from; level > to; level-- {
		changed := true
		for changed {
			changed = false
			n := h.nodes[cur.Position]
			if level >= len(n.links) {
				break
			}
			for _, nb := range n.links[level] {
				if d := h.dist(q, h.nodes[nb].vector); d < cur.Distance {
					cur = queue.Item{Position: nb, Distance: d}
					changed = true
				}
			}
		}
	}
	return cur
}

// searchLayer performs a beam search of width ef on one layer and returns
// the best candidates as a max-heap.
func (h *Index) searchLayer(q []float32, entry queue.Item, ef, level int) *queue.PriorityQueue {
	visited := acquireVisited(len(h.nodes))
	defer releaseVisited(visited)
	visited.Set(uint(entry.Position))

	candidates := queue.NewMin(ef)
	candidates.PushItem(entry)
	results := queue.NewMax(ef + 1)
	results.PushItem(entry)

	for candidates.Len() > 0 {
		c := candidates.PopItem()
		if results.Len() >= ef && c.Distance > results.Top().Distance {
			break
		}

		n := h.nodes[c.Position]
		if level >= len(n.links) {
			continue
		}
		for _, nb := range n.links[level] {
			if visited.Test(uint(nb)) {
				continue
			}
			visited.Set(uint(nb))

			d := h.dist(q, h.nodes[nb].vector)
			if results.Len() < ef || d < results.Top().Distance {
				item := queue.Item{Position: nb, Distance: d}
				candidates.PushItem(item)
				results.PushItem(item)
				if results.Len() > ef {
					results.PopItem()
				}
			}
		}
	}
	return results
}

// selectNeighbours picks up to m neighbours from candidates, which must be
// ordered closest first.
func (h *Index) selectNeighbours(candidates []queue.Item, m int) []queue.Item {
	if len(candidates) <= m {
		return candidates
	}
	if !h.opts.Heuristic {
		return candidates[:m]
	}

	selected := make([]queue.Item, 0, m)
	pruned := make([]queue.Item, 0, len(candidates))
	for _, c := range candidates {
		if len(selected) >= m {
			break
		}
		good := true
		for _, s := range selected {
			if h.dist(h.nodes[s.Position].vector, h.nodes[c.Position].vector) < c.Distance {
				good = false
				break
			}
		}
		if good {
			selected = append(selected, c)
		} else {
			pruned = append(pruned, c)
		}
	}

	// Keep pruned connections so sparse regions stay connected.
	for i := 0; len(selected) < m && i < len(pruned); i++ {
		selected = append(selected, pruned[i])
	}
	return selected
}

// link adds a directed edge from → to on level, pruning from's list when it
// exceeds the layer's connection budget.
func (h *Index) link(from, to uint64, level int) {
	n := h.nodes[from]
	n.links[level] = append(n.links[level], to)

	limit := h.mmax
	if level == 0 {
		limit = h.mmax0
	}
	if len(n.links[level]) <= limit {
		return
	}

	candidates := make([]queue.Item, len(n.links[level]))
	for i, nb := range n.links[level] {
		candidates[i] = queue.Item{Position: nb, Distance: h.dist(n.vector, h.nodes[nb].vector)}
	}
	slices.SortFunc(candidates, func(a, b queue.Item) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		default:
			return 0
		}
	})

	selected := h.selectNeighbours(candidates, limit)
	links := make([]uint64, len(selected))
	for i, s := range selected {
		links[i] = s.Position
	}
	n.links[level] = links
}

// drainAscending empties a max-heap into a slice ordered closest first.
func drainAscending(pq *queue.PriorityQueue) []queue.Item {
	out := make([]queue.Item, pq.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = pq.PopItem()
	}
	return out
}
