package utils

import (
	"context"
	"image"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// ParallelFactor caps the number of goroutines used by the parallel helpers. Tests may lower it.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
	// leave headroom on very large machines
	if quarter := ParallelFactor / 4; quarter > 8 {
		ParallelFactor = quarter
	}
}

type (
	// BeforeParallelGroupWorkFunc runs once with the number of groups before any group starts.
	BeforeParallelGroupWorkFunc func(numGroups int)
	// MemberWorkFunc runs for each work item (member) of a group.
	MemberWorkFunc func(memberNum, workNum int)
	// GroupWorkDoneFunc runs when a single group's work is done; helpful for merge stages.
	GroupWorkDoneFunc func()
	// GroupWorkFunc is called once per group with its contiguous range [from, to).
	GroupWorkFunc func(groupNum, groupSize, from, to int) (MemberWorkFunc, GroupWorkDoneFunc)
)

// groupBounds splits totalSize items into numGroups contiguous ranges; the last range also
// takes the remainder.
func groupBounds(totalSize, numGroups, groupNum int) (int, int) {
	size := totalSize / numGroups
	from := groupNum * size
	to := from + size
	if groupNum == numGroups-1 {
		to = totalSize
	}
	return from, to
}

// GroupWorkParallel spreads totalSize work items over at most ParallelFactor goroutines.
// Groups are numbered in ascending order of their ranges so callers can merge per-group state
// deterministically once this returns. A panic in any group is returned as an error, in which
// case the per-group state must be discarded.
func GroupWorkParallel(ctx context.Context, totalSize int, before BeforeParallelGroupWorkFunc, groupWork GroupWorkFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	numGroups := MinInt(ParallelFactor, totalSize)
	if numGroups <= 0 {
		numGroups = 1
	}
	before(numGroups)

	var (
		wg       sync.WaitGroup
		panicMu  sync.Mutex
		panicErr error
	)
	wg.Add(numGroups)
	for groupNum := 0; groupNum < numGroups; groupNum++ {
		from, to := groupBounds(totalSize, numGroups, groupNum)
		// wg.Done runs either at the end of the work or from the panic callback
		utils.PanicCapturingGoWithCallback(func() {
			memberWork, done := groupWork(groupNum, to-from, from, to)
			if memberWork != nil {
				for workNum := from; workNum < to; workNum++ {
					memberWork(workNum-from, workNum)
				}
			}
			if done != nil {
				done()
			}
			wg.Done()
		}, func(recovered interface{}) {
			defer wg.Done()
			panicMu.Lock()
			defer panicMu.Unlock()
			if panicErr == nil {
				panicErr = errors.Errorf("panic in parallel group %d: %v", groupNum, recovered)
			}
		})
	}
	wg.Wait()
	if panicErr != nil {
		return panicErr
	}
	return ctx.Err()
}

// ParallelForEachPixel calls f for every pixel of an image of the given size, one horizontal
// band of rows per goroutine.
func ParallelForEachPixel(size image.Point, f func(x, y int)) {
	numBands := MinInt(runtime.GOMAXPROCS(0), size.Y)
	if numBands <= 0 || size.X <= 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(numBands)
	for band := 0; band < numBands; band++ {
		fromY, toY := groupBounds(size.Y, numBands, band)
		utils.PanicCapturingGo(func() {
			defer wg.Done()
			for y := fromY; y < toY; y++ {
				for x := 0; x < size.X; x++ {
					f(x, y)
				}
			}
		})
	}
	wg.Wait()
}
