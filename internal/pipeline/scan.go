package pipeline

import (
	"fmt"
	"log"
	"path/filepath"

	"fisheye-stereo/internal/fsutil"
)

// Pair is one numbered stereo photograph pair.
type Pair struct {
	Index int
	Left  string
	Right string
}

// PairPaths returns the file names of pair n inside dir.
func PairPaths(dir string, n int) (string, string) {
	return filepath.Join(dir, fmt.Sprintf("left_%02d.png", n)), filepath.Join(dir, fmt.Sprintf("right_%02d.png", n))
}

// ScanPairs lists the pairs 1..maxPairs present in dir. Pairs with only one side are
// logged and left out; the returned skipped slice holds their indices.
func ScanPairs(fsys fsutil.FileSystem, dir string, maxPairs int, logger *log.Logger) (pairs []Pair, skipped []int) {
	if logger == nil {
		logger = log.Default()
	}
	for n := 1; n <= maxPairs; n++ {
		left, right := PairPaths(dir, n)
		hasLeft, hasRight := fsys.Exists(left), fsys.Exists(right)
		switch {
		case hasLeft && hasRight:
			pairs = append(pairs, Pair{Index: n, Left: left, Right: right})
		case hasLeft || hasRight:
			logger.Printf("calibrate: pair %02d has only one image (left=%v right=%v), skipping", n, hasLeft, hasRight)
			skipped = append(skipped, n)
		}
	}
	return pairs, skipped
}
