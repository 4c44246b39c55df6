//go:build test

package mem

import (
	"fmt"
	"math/rand"
	"os"
	"runtime"
	"runtime/pprof"
	"sync"
	"testing"

	"github.com/bastiangx/seqtree/pkg/seq"
	"github.com/bastiangx/seqtree/pkg/tree"
	"github.com/charmbracelet/log"
)

func init() {
	log.SetLevel(log.ErrorLevel)
}

var references = []string{
	"ATTACACA", "GATTACA", "CCGGTTAA", "ACGTACGTACGT",
	"TTTTGGGGCCCC", "AGCTTAGCTA", "CAGCAGCAGCAG",
}

func randomKey(rng *rand.Rand, n int) seq.Sequence {
	codes := make([]uint8, n)
	for i := range codes {
		codes[i] = uint8(rng.Intn(4))
	}
	s, _ := seq.FromCodes(seq.Nucleotide, codes)
	return s
}

func populated(keys int) *tree.ConcurrentMap[int] {
	rng := rand.New(rand.NewSource(1))
	m := tree.NewConcurrentMap[int](seq.Nucleotide)
	for i := 0; i < keys; i++ {
		_, _, _ = m.Put(randomKey(rng, 6+rng.Intn(8)), i)
	}
	return m
}

func TestMemoryLeakSearch(t *testing.T) {
	iterations := []int{100, 500, 1000}
	m := populated(20000)

	for _, iterCount := range iterations {
		t.Run(fmt.Sprintf("iterations_%d", iterCount), func(t *testing.T) {
			runSearchMemoryTest(t, m, iterCount)
		})
	}
}

func TestMemoryLeakChurn(t *testing.T) {
	configs := []struct {
		workers      int
		opsPerWorker int
	}{
		{workers: 1, opsPerWorker: 20000},
		{workers: 4, opsPerWorker: 5000},
		{workers: 8, opsPerWorker: 2500},
	}

	for _, config := range configs {
		t.Run(fmt.Sprintf("workers_%d_ops_%d", config.workers, config.opsPerWorker), func(t *testing.T) {
			runChurnMemoryTest(t, config.workers, config.opsPerWorker)
		})
	}
}

func runSearchMemoryTest(t *testing.T, m *tree.ConcurrentMap[int], iterations int) {
	params := tree.ParametersFor(tree.Fuzzy, 8, nil)

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)
	baselineGoroutines := runtime.NumGoroutine()

	for i := 0; i < iterations; i++ {
		for _, r := range references {
			hits, err := m.Search(seq.MustParse(seq.Nucleotide, r), params, 50)
			if err != nil {
				t.Fatalf("search failed: %v", err)
			}
			_ = hits
		}
	}

	var final runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&final)
	finalGoroutines := runtime.NumGoroutine()

	memDelta := int64(final.Alloc) - int64(baseline.Alloc)
	goroutineDelta := finalGoroutines - baselineGoroutines
	totalOps := iterations * len(references)
	memPerOp := float64(memDelta) / float64(totalOps)

	t.Logf("iterations=%d ops=%d mem_delta=%d bytes mem_per_op=%.2f goroutine_delta=%d",
		iterations, totalOps, memDelta, memPerOp, goroutineDelta)

	if memPerOp > 1000 {
		t.Errorf("excessive memory usage per operation: %.2f bytes", memPerOp)
	}

	if goroutineDelta > 2 {
		t.Errorf("goroutine leak detected: %d goroutines leaked", goroutineDelta)
	}
}

// runChurnMemoryTest creates and dirty-removes keys concurrently, then
// compacts. Every key ends removed, so only the root should survive.
func runChurnMemoryTest(t *testing.T, workers, opsPerWorker int) {
	memFile, err := os.Create("churn_memory.prof")
	if err != nil {
		t.Fatalf("profile file creation failed: %v", err)
	}
	defer func() {
		memFile.Close()
		os.Remove("churn_memory.prof")
	}()

	m := tree.NewConcurrentMap[int](seq.Nucleotide)

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)

	var wg sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(worker)))
			for op := 0; op < opsPerWorker; op++ {
				k := randomKey(rng, 8+rng.Intn(8))
				if _, err := m.GetOrCreate(k, func() int { return op }); err != nil {
					t.Errorf("create failed: %v", err)
					return
				}
				if _, err := m.RemoveDirty(k); err != nil {
					t.Errorf("remove failed: %v", err)
					return
				}
			}
		}(worker)
	}
	wg.Wait()

	removed := m.RemoveEmptyBranches()
	stats := m.Stats()

	var final runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&final)
	memDelta := int64(final.Alloc) - int64(baseline.Alloc)

	t.Logf("workers=%d ops_per_worker=%d pruned=%d live=%d lost_races=%d mem_delta=%d bytes",
		workers, opsPerWorker, removed, stats.LiveNodes(), stats.LostNodeRaces, memDelta)

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		t.Errorf("heap profile write failed: %v", err)
	}

	if stats.LiveNodes() != 0 {
		t.Errorf("compaction left %d nodes linked", stats.LiveNodes())
	}

	if memDelta > 1024*1024 {
		t.Errorf("compacted tree still holds %d bytes", memDelta)
	}
}
