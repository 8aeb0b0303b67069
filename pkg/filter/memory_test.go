//go:build test

package filter

import (
	"fmt"
	"runtime"
	"testing"

	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/pkg/pattern"
)

var typedPatterns = [][]string{
	{"a", "ab", "abc", "abcd", "abcde"},
	{"h", "he", "hel", "hell", "hello"},
	{"W", "WV", "WVi", "WVie"},
	{"p", "pr", "pro", "prog", "progr", "progra", "program"},
	{"t*", "t*r", "t*r?", "t*r?f"},
	{"C", "CS", "CSc", "CSci"},
	{"i", "in", "int", "inte", "inter", "intern", "interna", "internat", "internati", "internatio", "internation"},
	{">d", ">de", ">dev", ">deve", ">devel", ">develo", ">develop", ">developm", ">developme", ">development<"},
}

var memBases = []string{
	"alpha", "abacus", "Hello", "helium", "WorldView", "programFile",
	"ThereAfter", "ComputerScience", "International", "development",
}

func memSource(n int) SliceSource[item] {
	items := make([]item, n)
	for i := range items {
		items[i] = item{fmt.Sprintf("%s%d", memBases[i%len(memBases)], i), i}
	}
	return SliceSource[item](items)
}

func TestMemoryTyping(t *testing.T) {
	for _, rounds := range []int{10, 50, 200} {
		t.Run(fmt.Sprintf("rounds_%d", rounds), func(t *testing.T) {
			runTypingMemoryTest(t, rounds)
		})
	}
}

func runTypingMemoryTest(t *testing.T, rounds int) {
	src := memSource(20000)
	session := NewSession(itemName, WithLogger[item](logger.Discard()))
	searcher := NewSearcher(session, SearcherConfig[item]{
		Source:     src,
		Compare:    byID,
		Options:    pattern.DefaultOptions(),
		Duplicates: true,
		Logger:     logger.Discard(),
	})

	var baseline runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&baseline)
	baselineGoroutines := runtime.NumGoroutine()

	totalOps := 0
	for i := 0; i < rounds; i++ {
		for _, typed := range typedPatterns {
			var seq uint64
			for _, raw := range typed {
				seq = searcher.Search(raw)
				totalOps++
			}
			waitFinal(t, searcher, seq)
		}
	}

	searcher.Close()
	var final runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&final)
	finalGoroutines := runtime.NumGoroutine()

	memDelta := int64(final.Alloc) - int64(baseline.Alloc)
	goroutineDelta := finalGoroutines - baselineGoroutines
	memPerOp := float64(memDelta) / float64(totalOps)

	t.Logf("rounds=%d ops=%d mem_delta=%d bytes mem_per_op=%.2f goroutine_delta=%d",
		rounds, totalOps, memDelta, memPerOp, goroutineDelta)

	if memPerOp > 1000 {
		t.Errorf("excessive memory retained per search: %.2f bytes", memPerOp)
	}
	if goroutineDelta > 0 {
		t.Errorf("goroutine leak detected: %d goroutines leaked", goroutineDelta)
	}
}

func TestFastPathWhileTyping(t *testing.T) {
	src := memSource(5000)
	for _, typed := range typedPatterns {
		incremental := NewSession(itemName, WithLogger[item](logger.Discard()))
		for _, raw := range typed {
			q := pattern.Compile(raw)
			got, err := incremental.Submit(t.Context(), q, src, byID)
			if err != nil {
				t.Fatal(err)
			}
			fresh := NewSession(itemName, WithLogger[item](logger.Discard()))
			want, err := fresh.Submit(t.Context(), q, src, byID)
			if err != nil {
				t.Fatal(err)
			}
			if fmt.Sprint(got.Items()) != fmt.Sprint(want.Items()) {
				t.Errorf("%q: incremental result differs from a fresh scan", raw)
			}
		}
	}
}
