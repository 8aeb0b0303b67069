package dictionary

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bastiangx/pickserve/pkg/filter"
	"github.com/bastiangx/pickserve/pkg/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChunkFile(t *testing.T, dir string, id int, entries []Entry) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, entries))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ChunkFileName(id)), buf.Bytes(), 0o644))
}

func TestChunkRoundTrip(t *testing.T) {
	entries := []Entry{{"the", 1}, {"of", 2}, {"naïve", 300}}
	var buf bytes.Buffer
	require.NoError(t, WriteChunk(&buf, entries))

	got, err := ReadChunk(&buf)
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestReadChunkRejectsBadHeader(t *testing.T) {
	_, err := ReadChunk(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xff}))
	assert.Error(t, err)

	_, err = ReadChunk(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestReadText(t *testing.T) {
	input := `# common words
hello 5
world

goodbye
`
	entries, err := ReadText(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"hello", 5}, {"world", 2}, {"goodbye", 3}}, entries)

	_, err = ReadText(strings.NewReader("word notanumber\n"))
	assert.Error(t, err)
}

func TestDetectFileFormat(t *testing.T) {
	assert.Equal(t, FormatChunk, DetectFileFormat("/data/dict_0001.bin"))
	assert.Equal(t, FormatText, DetectFileFormat("words.TXT"))
	assert.Equal(t, FormatUnknown, DetectFileFormat("dict_abc.bin"))
	assert.Equal(t, FormatUnknown, DetectFileFormat("words.csv"))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []Entry{{"apple", 1}, {"banana", 2}})
	writeChunkFile(t, dir, 2, []Entry{{"cherry", 3}, {"apple", 9}})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dict_bad.bin"), []byte("x"), 0o644))

	l := NewLoader(dir, 0)
	require.NoError(t, l.LoadDir(context.Background()))

	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int{1, 2}, l.LoadedIDs())

	e, ok := l.Lookup("apple")
	require.True(t, ok)
	assert.EqualValues(t, 9, e.Rank, "later chunks update ranks")

	stats := l.Stats()
	assert.Equal(t, 3, stats.Words)
	assert.Equal(t, 2, stats.LoadedChunks)
	assert.Equal(t, 2, stats.AvailableChunks)
	assert.EqualValues(t, 2, stats.BestRank)
}

func TestLoadDirRespectsMaxWords(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []Entry{{"a", 1}, {"b", 2}})
	writeChunkFile(t, dir, 2, []Entry{{"c", 3}, {"d", 4}})
	writeChunkFile(t, dir, 3, []Entry{{"e", 5}})

	l := NewLoader(dir, 3)
	require.NoError(t, l.LoadDir(context.Background()))
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, []int{1, 2}, l.LoadedIDs())
}

func TestLoadDirEmpty(t *testing.T) {
	l := NewLoader(t.TempDir(), 0)
	assert.Error(t, l.LoadDir(context.Background()))
}

func TestLoadDirCancelled(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []Entry{{"a", 1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l := NewLoader(dir, 0)
	assert.ErrorIs(t, l.LoadDir(ctx), context.Canceled)
	assert.Zero(t, l.Len())
}

func TestEvict(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []Entry{{"alpha", 1}})
	writeChunkFile(t, dir, 2, []Entry{{"beta", 2}})

	l := NewLoader(dir, 0)
	require.NoError(t, l.LoadChunk(2))
	require.NoError(t, l.LoadChunk(2))
	assert.Equal(t, 1, l.Len())

	require.NoError(t, l.Evict(2))
	assert.Zero(t, l.Len())
	_, ok := l.Lookup("beta")
	assert.False(t, ok)
	assert.Error(t, l.Evict(2))
}

func TestEvictKeepsWordsSetByLaterChunks(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 1, []Entry{{"apple", 1}, {"banana", 2}})
	writeChunkFile(t, dir, 2, []Entry{{"apple", 9}, {"cherry", 3}})

	l := NewLoader(dir, 0)
	require.NoError(t, l.LoadChunk(1))
	require.NoError(t, l.LoadChunk(2))
	require.NoError(t, l.Evict(1))

	e, ok := l.Lookup("apple")
	require.True(t, ok, "apple was last set by chunk 2")
	assert.EqualValues(t, 9, e.Rank)
	_, ok = l.Lookup("banana")
	assert.False(t, ok)
	assert.Equal(t, 2, l.Len())
	assert.EqualValues(t, 3, l.Stats().BestRank)

	require.NoError(t, l.Evict(2))
	assert.Zero(t, l.Len())
	assert.Empty(t, collect(t, l))
}

func TestBestRankFollowsUpdates(t *testing.T) {
	l := NewLoader("", 0)
	_, err := l.LoadText(strings.NewReader("alpha 1\nbeta 4\n"))
	require.NoError(t, err)
	assert.EqualValues(t, 1, l.Stats().BestRank)

	l.Add(Entry{"alpha", 7})
	assert.EqualValues(t, 4, l.Stats().BestRank)
}

// Run with -race: walking the trie sorts its children in place.
func TestConcurrentStatsAndEnumerate(t *testing.T) {
	var words strings.Builder
	for i := range 300 {
		fmt.Fprintf(&words, "w%03dx %d\n", (i*7919)%1000, i+1)
	}

	for range 20 {
		l := NewLoader("", 0)
		_, err := l.LoadText(strings.NewReader(words.String()))
		require.NoError(t, err)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			<-start
			l.Enumerate(context.Background(), func(Entry) bool { return true }, filter.NopProgress{})
		}()
		go func() {
			defer wg.Done()
			<-start
			l.Stats()
		}()
		go func() {
			defer wg.Done()
			<-start
			l.Lookup("w000x")
		}()
		close(start)
		wg.Wait()

		assert.Len(t, collect(t, l), 300)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	writeChunkFile(t, dir, 7, []Entry{{"seven", 7}})
	text := filepath.Join(dir, "extra.txt")
	require.NoError(t, os.WriteFile(text, []byte("eight 8\n"), 0o644))

	l := NewLoader("", 0)
	require.NoError(t, l.LoadFile(filepath.Join(dir, ChunkFileName(7))))
	require.NoError(t, l.LoadFile(text))
	assert.Error(t, l.LoadFile(filepath.Join(dir, "nope.csv")))

	assert.Equal(t, 2, l.Len())
	assert.Equal(t, []int{7}, l.LoadedIDs())
}

func collect(t *testing.T, l *Loader) []Entry {
	t.Helper()
	var got []Entry
	err := l.Enumerate(context.Background(), func(e Entry) bool {
		got = append(got, e)
		return true
	}, filter.NopProgress{})
	require.NoError(t, err)
	return got
}

func TestEnumerateInLexicalOrder(t *testing.T) {
	l := NewLoader("", 0)
	_, err := l.LoadText(strings.NewReader("pear 3\napple 1\nfig 2\n"))
	require.NoError(t, err)
	l.Add(Entry{"banana", 4})

	assert.Equal(t, []Entry{{"apple", 1}, {"banana", 4}, {"fig", 2}, {"pear", 3}}, collect(t, l))
}

func TestEnumerateStopsEarly(t *testing.T) {
	l := NewLoader("", 0)
	_, err := l.LoadText(strings.NewReader("a\nb\nc\n"))
	require.NoError(t, err)

	n := 0
	err = l.Enumerate(context.Background(), func(Entry) bool {
		n++
		return n < 2
	}, filter.NopProgress{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = l.Enumerate(ctx, func(Entry) bool { return true }, filter.NopProgress{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoaderAsFilterSource(t *testing.T) {
	l := NewLoader("", 0)
	_, err := l.LoadText(strings.NewReader("foobar 3\nbarfoo 1\nfoo 2\nqux 4\n"))
	require.NoError(t, err)

	s := filter.NewSession(Name)
	rs, err := s.Submit(context.Background(), pattern.Compile("foo"), l, ByRank)
	require.NoError(t, err)

	var words []string
	for _, e := range rs.Items() {
		words = append(words, e.Word)
	}
	assert.Equal(t, []string{"foo", "barfoo", "foobar"}, words)
}

func TestBuildChunks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	entries := []Entry{{"e", 5}, {"a", 1}, {"c", 3}, {"b", 2}, {"d", 4}}

	paths, err := BuildChunks(dir, entries, 2)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	chunks, err := ListChunks(dir)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{2, 2, 1}, []int{chunks[0].WordCount, chunks[1].WordCount, chunks[2].WordCount})

	file, err := os.Open(paths[0])
	require.NoError(t, err)
	defer file.Close()
	first, err := ReadChunk(file)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{"a", 1}, {"b", 2}}, first)

	_, err = BuildChunks(dir, entries, 0)
	assert.Error(t, err)
}

func TestByRank(t *testing.T) {
	assert.Negative(t, ByRank(Entry{"b", 1}, Entry{"a", 2}))
	assert.Negative(t, ByRank(Entry{"a", 1}, Entry{"b", 1}))
	assert.Zero(t, ByRank(Entry{"a", 1}, Entry{"a", 1}))
	assert.Positive(t, ByRank(Entry{"a", 3}, Entry{"a", 1}))
}
