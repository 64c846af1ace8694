package training

import "math/rand"

// stratifiedSplit partitions rows into train and test sets, sampling each
// label class independently so the test split preserves the positive rate.
// The shuffle is seeded for reproducible runs.
func stratifiedSplit(rows []labeledRow, testFraction float64, seed int64) (train, test []labeledRow) {
	if testFraction <= 0 || testFraction >= 1 {
		testFraction = 0.25
	}
	rng := rand.New(rand.NewSource(seed))

	var pos, neg []labeledRow
	for _, r := range rows {
		if r.label == 1 {
			pos = append(pos, r)
		} else {
			neg = append(neg, r)
		}
	}

	splitClass := func(class []labeledRow) {
		rng.Shuffle(len(class), func(i, j int) {
			class[i], class[j] = class[j], class[i]
		})
		cut := int(float64(len(class)) * testFraction)
		test = append(test, class[:cut]...)
		train = append(train, class[cut:]...)
	}
	splitClass(neg)
	splitClass(pos)

	// Interleave-free order is fine for GBDT, but shuffle the train split so
	// any order-sensitive consumer sees mixed classes.
	rng.Shuffle(len(train), func(i, j int) {
		train[i], train[j] = train[j], train[i]
	})
	return train, test
}
