package resolve

import (
	"github.com/Masterminds/semver/v3"
)

// versionLadder is the fixed set of representative versions used to
// approximate range intersection. True algebraic interval intersection is
// deliberately not implemented: two ranges are considered compatible when at
// least one ladder version satisfies both. The ladder spans a conservative
// 0.1 through 5.0, so the check errs toward reporting false conflicts for
// exotic ranges rather than missing real ones.
var versionLadder = buildLadder()

func buildLadder() []*semver.Version {
	var ladder []*semver.Version
	for major := 0; major <= 5; major++ {
		for _, minor := range []uint64{0, 1, 2, 5, 9} {
			for _, patch := range []uint64{0, 1, 5} {
				ladder = append(ladder, semver.New(
					uint64(major), minor, patch, "", "",
				))
			}
		}
	}

	return ladder
}

// rangesIntersect reports whether two declared ranges admit at least one
// common representative version. Ranges that fail to parse are treated as
// incompatible with everything, keeping the check fail-closed.
func rangesIntersect(rangeA, rangeB string) bool {
	constraintA, err := semver.NewConstraint(rangeA)
	if err != nil {
		return false
	}

	constraintB, err := semver.NewConstraint(rangeB)
	if err != nil {
		return false
	}

	for _, v := range versionLadder {
		if constraintA.Check(v) && constraintB.Check(v) {
			return true
		}
	}

	return false
}
