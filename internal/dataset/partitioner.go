package dataset

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/tepstack/tep-sentinel/internal/models"
	"github.com/tepstack/tep-sentinel/internal/utils"
)

// Partition splits runs into training and evaluation subsets. Every run goes
// wholly to one side, so no simulation ever contributes samples to both. The
// split is stratified per fault class, deterministic for a fixed seed, and
// independent of input ordering.
func Partition(runs []models.SimulationRun, evalFraction float64, seed int64) (train, eval []models.SimulationRun, err error) {
	const op = "dataset.Partition"
	if evalFraction <= 0 || evalFraction >= 1 {
		return nil, nil, utils.ConfigurationError(op, fmt.Sprintf("eval fraction must be in (0,1), got %g", evalFraction), nil)
	}
	if len(runs) == 0 {
		return nil, nil, utils.TrainingDataError(op, "empty dataset", nil)
	}

	byClass := make(map[int][]models.SimulationRun)
	for _, run := range runs {
		byClass[run.FaultID] = append(byClass[run.FaultID], run)
	}

	classes := make([]int, 0, len(byClass))
	for class := range byClass {
		classes = append(classes, class)
	}
	sort.Ints(classes)

	rng := rand.New(rand.NewSource(seed))
	for _, class := range classes {
		group := byClass[class]
		if len(group) < 2 {
			return nil, nil, utils.TrainingDataError(op,
				fmt.Sprintf("class %d has %d run(s); need at least 2 for a non-empty split", class, len(group)), nil)
		}

		// Key the shuffle on run identifiers, not slice order.
		sort.Slice(group, func(i, j int) bool { return group[i].ID < group[j].ID })
		rng.Shuffle(len(group), func(i, j int) { group[i], group[j] = group[j], group[i] })

		nEval := int(float64(len(group))*evalFraction + 0.5)
		if nEval < 1 {
			nEval = 1
		}
		if nEval >= len(group) {
			nEval = len(group) - 1
		}

		eval = append(eval, group[:nEval]...)
		train = append(train, group[nEval:]...)
	}

	return train, eval, nil
}

// Flatten extracts row-major feature vectors and per-sample labels from runs.
func Flatten(runs []models.SimulationRun) (features [][]float64, labels []int) {
	for _, run := range runs {
		for _, sample := range run.Samples {
			features = append(features, sample.Values)
			labels = append(labels, sample.Label)
		}
	}
	return features, labels
}
