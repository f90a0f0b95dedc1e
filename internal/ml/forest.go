package ml

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ForestParams sizes and seeds a random forest.
type ForestParams struct {
	Trees    int
	MaxDepth int
	MinLeaf  int
	Seed     int64
	Workers  int
}

func (p ForestParams) normalised() ForestParams {
	if p.Trees < 1 {
		p.Trees = 50
	}
	if p.MaxDepth < 1 {
		p.MaxDepth = 10
	}
	if p.MinLeaf < 1 {
		p.MinLeaf = 1
	}
	if p.Workers < 1 {
		p.Workers = runtime.NumCPU()
	}
	return p
}

// TreeNode is one node of a fitted decision tree. Exported for gob.
type TreeNode struct {
	Feature   int
	Threshold float64
	Left      *TreeNode
	Right     *TreeNode
	Leaf      bool
	// Dist holds the weighted class distribution at a leaf, aligned with
	// the forest's ClassSet. Sums to 1.
	Dist []float64
}

// RandomForest is a seeded, class-balanced random-forest classifier.
// Training is parallel across trees; each tree derives its own rng from the
// forest seed, so results are independent of scheduling order. A fitted
// forest is immutable and safe for concurrent Predict calls.
type RandomForest struct {
	Params   ForestParams
	ClassSet []int
	Roots    []*TreeNode
}

var _ Classifier = (*RandomForest)(nil)

// NewRandomForest constructs an unfitted forest.
func NewRandomForest(params ForestParams) *RandomForest {
	return &RandomForest{Params: params.normalised()}
}

// Classes returns the label set observed during training.
func (f *RandomForest) Classes() []int {
	return append([]int(nil), f.ClassSet...)
}

// Fit trains the forest. Sample weights are balanced per class
// (n / (k * n_c)) to counter label imbalance.
func (f *RandomForest) Fit(features [][]float64, labels []int) error {
	if len(features) == 0 {
		return fmt.Errorf("forest fit: empty training set")
	}
	if len(features) != len(labels) {
		return fmt.Errorf("forest fit: %d rows vs %d labels", len(features), len(labels))
	}
	width := len(features[0])
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("forest fit: ragged row %d", i)
		}
	}

	f.ClassSet = sortedClasses(labels)
	classIndex := make(map[int]int, len(f.ClassSet))
	for i, c := range f.ClassSet {
		classIndex[c] = i
	}

	weights := balancedWeights(labels, f.ClassSet, classIndex)
	y := make([]int, len(labels))
	for i, label := range labels {
		y[i] = classIndex[label]
	}

	mtry := int(math.Ceil(math.Sqrt(float64(width))))
	f.Roots = make([]*TreeNode, f.Params.Trees)

	var group errgroup.Group
	group.SetLimit(f.Params.Workers)
	for t := 0; t < f.Params.Trees; t++ {
		t := t
		group.Go(func() error {
			rng := rand.New(rand.NewSource(f.Params.Seed + int64(t)*7919))
			sample := bootstrap(rng, len(features))
			builder := &treeBuilder{
				features: features,
				y:        y,
				weights:  weights,
				classes:  len(f.ClassSet),
				maxDepth: f.Params.MaxDepth,
				minLeaf:  f.Params.MinLeaf,
				mtry:     mtry,
				rng:      rng,
			}
			f.Roots[t] = builder.build(sample, 0)
			return nil
		})
	}
	return group.Wait()
}

// Predict classifies one sample by averaging leaf distributions across trees.
// Ties break toward the lowest class id so results are deterministic.
func (f *RandomForest) Predict(sample []float64) (Prediction, error) {
	if len(f.Roots) == 0 {
		return Prediction{}, fmt.Errorf("forest predict: not fitted")
	}
	votes := make([]float64, len(f.ClassSet))
	for _, root := range f.Roots {
		dist := root.traverse(sample)
		for i, p := range dist {
			votes[i] += p
		}
	}

	total := 0.0
	for _, v := range votes {
		total += v
	}
	best := 0
	for i, v := range votes {
		if v > votes[best] {
			best = i
		}
	}

	probs := make(map[int]float64, len(f.ClassSet))
	for i, c := range f.ClassSet {
		probs[c] = votes[i] / total
	}
	return Prediction{
		Label:         f.ClassSet[best],
		Confidence:    votes[best] / total,
		Probabilities: probs,
	}, nil
}

// PredictBatch classifies a row-major matrix of samples.
func (f *RandomForest) PredictBatch(samples [][]float64) ([]Prediction, error) {
	out := make([]Prediction, len(samples))
	for i, sample := range samples {
		pred, err := f.Predict(sample)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

func (n *TreeNode) traverse(sample []float64) []float64 {
	node := n
	for !node.Leaf {
		if sample[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node.Dist
}

func sortedClasses(labels []int) []int {
	seen := make(map[int]struct{})
	classes := make([]int, 0, 8)
	for _, label := range labels {
		if _, ok := seen[label]; !ok {
			seen[label] = struct{}{}
			classes = append(classes, label)
		}
	}
	sort.Ints(classes)
	return classes
}

func balancedWeights(labels, classSet []int, classIndex map[int]int) []float64 {
	counts := make([]float64, len(classSet))
	for _, label := range labels {
		counts[classIndex[label]]++
	}
	n := float64(len(labels))
	k := float64(len(classSet))
	weights := make([]float64, len(labels))
	for i, label := range labels {
		weights[i] = n / (k * counts[classIndex[label]])
	}
	return weights
}

func bootstrap(rng *rand.Rand, n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = rng.Intn(n)
	}
	return indices
}

type treeBuilder struct {
	features [][]float64
	y        []int
	weights  []float64
	classes  int
	maxDepth int
	minLeaf  int
	mtry     int
	rng      *rand.Rand
}

func (b *treeBuilder) build(indices []int, depth int) *TreeNode {
	dist, pure := b.distribution(indices)
	if pure || depth >= b.maxDepth || len(indices) < 2*b.minLeaf {
		return &TreeNode{Leaf: true, Dist: dist}
	}

	feature, threshold, ok := b.bestSplit(indices)
	if !ok {
		return &TreeNode{Leaf: true, Dist: dist}
	}

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, idx := range indices {
		if b.features[idx][feature] <= threshold {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}
	if len(left) < b.minLeaf || len(right) < b.minLeaf {
		return &TreeNode{Leaf: true, Dist: dist}
	}

	return &TreeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      b.build(left, depth+1),
		Right:     b.build(right, depth+1),
	}
}

// distribution returns the normalised weighted class distribution of the
// index set and whether it is single-class.
func (b *treeBuilder) distribution(indices []int) ([]float64, bool) {
	dist := make([]float64, b.classes)
	first := b.y[indices[0]]
	pure := true
	total := 0.0
	for _, idx := range indices {
		dist[b.y[idx]] += b.weights[idx]
		total += b.weights[idx]
		if b.y[idx] != first {
			pure = false
		}
	}
	for i := range dist {
		dist[i] /= total
	}
	return dist, pure
}

func (b *treeBuilder) bestSplit(indices []int) (int, float64, bool) {
	width := len(b.features[0])
	candidates := b.rng.Perm(width)[:b.mtry]

	bestGini := math.Inf(1)
	bestFeature := -1
	bestThreshold := 0.0

	ordered := make([]int, len(indices))
	for _, feature := range candidates {
		copy(ordered, indices)
		sort.Slice(ordered, func(i, j int) bool {
			return b.features[ordered[i]][feature] < b.features[ordered[j]][feature]
		})

		totalDist := make([]float64, b.classes)
		total := 0.0
		for _, idx := range ordered {
			totalDist[b.y[idx]] += b.weights[idx]
			total += b.weights[idx]
		}

		leftDist := make([]float64, b.classes)
		leftTotal := 0.0
		for i := 0; i < len(ordered)-1; i++ {
			idx := ordered[i]
			leftDist[b.y[idx]] += b.weights[idx]
			leftTotal += b.weights[idx]

			value := b.features[idx][feature]
			next := b.features[ordered[i+1]][feature]
			if value == next {
				continue
			}

			rightTotal := total - leftTotal
			gini := (leftTotal*giniImpurity(leftDist, leftTotal) +
				rightTotal*giniRemainder(totalDist, leftDist, rightTotal)) / total
			if gini < bestGini {
				bestGini = gini
				bestFeature = feature
				bestThreshold = (value + next) / 2
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func giniImpurity(dist []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	impurity := 1.0
	for _, w := range dist {
		p := w / total
		impurity -= p * p
	}
	return impurity
}

func giniRemainder(totalDist, leftDist []float64, rightTotal float64) float64 {
	if rightTotal == 0 {
		return 0
	}
	impurity := 1.0
	for i := range totalDist {
		p := (totalDist[i] - leftDist[i]) / rightTotal
		impurity -= p * p
	}
	return impurity
}
