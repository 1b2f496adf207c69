package viola

import "sort"

// DisjointSet is a flat union-find over integer indices, used to group
// overlapping detections. Find compresses paths iteratively; with the
// handful of elements a frame produces no union by rank is needed.
type DisjointSet struct {
	parent []int
}

// NewDisjointSet creates a disjoint set of length singleton elements.
func NewDisjointSet(length int) *DisjointSet {
	parent := make([]int, length)
	for i := range parent {
		parent[i] = i
	}
	return &DisjointSet{parent: parent}
}

// Len returns the number of elements in the set.
func (d *DisjointSet) Len() int {
	return len(d.parent)
}

// Find returns the representative of i, pointing every node on the
// walked path directly at it.
func (d *DisjointSet) Find(i int) int {
	root := i
	for d.parent[root] != root {
		root = d.parent[root]
	}
	for d.parent[i] != root {
		d.parent[i], i = root, d.parent[i]
	}
	return root
}

// Union joins the subsets containing i and j.
func (d *DisjointSet) Union(i, j int) {
	iRep := d.Find(i)
	jRep := d.Find(j)
	d.parent[iRep] = jRep
}

// ClusterDetections merges overlapping detections into averaged
// regions. Two detections join the same cluster when their overlap
// area passes, for either ordering of the pair, the criterion
//
//	overlap/(a1*(a1/a2)) >= regionsOverlap && overlap/(a2*(a1/a2)) >= regionsOverlap
//
// kept as is for drop-in compatibility with other Viola-Jones
// implementations even though it is asymmetric in the two areas (the
// second term reduces to overlap*a2/a1^2; a symmetric variant would
// use overlap/min(a1, a2)). Each cluster
// becomes one Detection whose coordinates are the rounded means of its
// members and whose Total is the sum of the members' Total values (the
// member count when every input carries Total 1). Clusters are emitted in
// ascending order of their representative index, which makes the
// output deterministic for a fixed input.
func ClusterDetections(rects []Detection, regionsOverlap float64) []Detection {
	disjointSet := NewDisjointSet(len(rects))

	for i := 0; i < len(rects); i++ {
		r1 := rects[i]
		for j := 0; j < len(rects); j++ {
			r2 := rects[j]
			if !intersects(r1, r2) {
				continue
			}
			x1 := max(r1.X, r2.X)
			y1 := max(r1.Y, r2.Y)
			x2 := min(r1.X+r1.Width, r2.X+r2.Width)
			y2 := min(r1.Y+r1.Height, r2.Y+r2.Height)
			overlap := float64((x2 - x1) * (y2 - y1))
			area1 := float64(r1.Width * r1.Height)
			area2 := float64(r2.Width * r2.Height)

			if overlap/(area1*(area1/area2)) >= regionsOverlap &&
				overlap/(area2*(area1/area2)) >= regionsOverlap {
				disjointSet.Union(i, j)
			}
		}
	}

	type cluster struct {
		members int
		sum     Detection
	}
	groups := make(map[int]*cluster)
	for k := 0; k < disjointSet.Len(); k++ {
		rep := disjointSet.Find(k)
		group, ok := groups[rep]
		if !ok {
			group = &cluster{}
			groups[rep] = group
		}
		group.members++
		// Carrying the member totals forward instead of counting
		// members keeps re-merging an already merged list a no-op.
		group.sum.Total += rects[k].Total
		group.sum.X += rects[k].X
		group.sum.Y += rects[k].Y
		group.sum.Width += rects[k].Width
		group.sum.Height += rects[k].Height
	}

	reps := make([]int, 0, len(groups))
	for rep := range groups {
		reps = append(reps, rep)
	}
	sort.Ints(reps)

	result := make([]Detection, 0, len(reps))
	for _, rep := range reps {
		group := groups[rep]
		members := float64(group.members)
		result = append(result, Detection{
			X:      int(float64(group.sum.X)/members + 0.5),
			Y:      int(float64(group.sum.Y)/members + 0.5),
			Width:  int(float64(group.sum.Width)/members + 0.5),
			Height: int(float64(group.sum.Height)/members + 0.5),
			Total:  group.sum.Total,
		})
	}
	return result
}

func intersects(r1, r2 Detection) bool {
	return !(r2.X > r1.X+r1.Width || r2.X+r2.Width < r1.X ||
		r2.Y > r1.Y+r1.Height || r2.Y+r2.Height < r1.Y)
}
