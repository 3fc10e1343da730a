package finetune

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/crimson-sun/clinote/internal/model"
)

// Split defaults.
const (
	TestSize  = 0.2
	SplitSeed = 12
)

// Split divides notes into train and test sets, keeping each category's
// share of the data in both. The test set holds ceil(testSize*n) notes
// distributed over categories by largest remainder, and every category
// keeps at least one training note. The result is reproducible for a given
// seed and input order.
func Split(notes []model.Note, testSize float64, seed int64) (train, test []model.Note, err error) {
	if len(notes) == 0 {
		return nil, nil, errors.New("finetune: cannot split empty dataset")
	}
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("finetune: test size %v must be between 0 and 1", testSize)
	}

	byClass := make(map[int][]int)
	for i, n := range notes {
		byClass[n.CategoryLabel] = append(byClass[n.CategoryLabel], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	n := len(notes)
	nTest := int(math.Ceil(testSize * float64(n)))
	alloc := make([]int, len(classes))
	rem := make([]float64, len(classes))
	assigned := 0
	for i, c := range classes {
		exact := float64(nTest) * float64(len(byClass[c])) / float64(n)
		alloc[i] = min(int(exact), len(byClass[c])-1)
		rem[i] = exact - float64(alloc[i])
		assigned += alloc[i]
	}

	order := make([]int, len(classes))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return rem[order[a]] > rem[order[b]] })
	for assigned < nTest {
		progressed := false
		for _, i := range order {
			if assigned == nTest {
				break
			}
			if alloc[i] < len(byClass[classes[i]])-1 {
				alloc[i]++
				assigned++
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	if assigned == 0 {
		return nil, nil, errors.New("finetune: every category has a single note, nothing left to test on")
	}

	rng := rand.New(rand.NewSource(seed))
	for i, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		rng.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		for j, k := range idx {
			if j < alloc[i] {
				test = append(test, notes[k])
			} else {
				train = append(train, notes[k])
			}
		}
	}
	rng.Shuffle(len(train), func(a, b int) { train[a], train[b] = train[b], train[a] })
	rng.Shuffle(len(test), func(a, b int) { test[a], test[b] = test[b], test[a] })
	return train, test, nil
}
