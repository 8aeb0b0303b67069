// Package dictionary loads ranked word lists into a patricia trie and serves them as a candidate source.
package dictionary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/bastiangx/pickserve/pkg/filter"
	"github.com/charmbracelet/log"
	"github.com/tchap/go-patricia/v2/patricia"
	"golang.org/x/sync/errgroup"
)

// Entry is one dictionary word. Lower ranks are more common.
type Entry struct {
	Word string
	Rank uint16
}

// Name returns the word, used as the display name when filtering.
func Name(e Entry) string { return e.Word }

// ByRank orders entries by ascending rank, then alphabetically.
func ByRank(a, b Entry) int {
	if a.Rank != b.Rank {
		if a.Rank < b.Rank {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Word, b.Word)
}

// textChunkID tracks words that did not come from a chunk file.
const textChunkID = 0

var errStopVisit = errors.New("stop visit")

// Loader holds dictionary words in a patricia trie.
//
// Walking the trie sorts its child lists in place, so Visit runs under the
// write lock. Get only reads and runs under the read lock.
type Loader struct {
	dirPath  string
	maxWords int

	mu         sync.RWMutex
	trie       *patricia.Trie
	chunkWords map[int]map[string]struct{}
	owner      map[string]int // chunk that last set each word
	ranks      map[uint16]int // words held per rank
	count      int
}

// LoaderStats provides statistics about the loading process
type LoaderStats struct {
	Words           int
	LoadedChunks    int
	AvailableChunks int
	BestRank        uint16
}

// NewLoader creates a loader for the chunk files in dirPath. maxWords stops
// LoadDir once that many words are loaded; zero means no limit.
func NewLoader(dirPath string, maxWords int) *Loader {
	return &Loader{
		dirPath:    dirPath,
		maxWords:   maxWords,
		trie:       patricia.NewTrie(),
		chunkWords: make(map[int]map[string]struct{}),
		owner:      make(map[string]int),
		ranks:      make(map[uint16]int),
	}
}

// Available lists the chunk files in the loader's directory.
func (l *Loader) Available() ([]ChunkInfo, error) {
	if l.dirPath == "" {
		return nil, nil
	}
	return ListChunks(l.dirPath)
}

// LoadDir reads chunk files in id order until maxWords is reached. Files are
// decoded in parallel and inserted in id order.
func (l *Loader) LoadDir(ctx context.Context) error {
	chunks, err := l.Available()
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("no chunk files found in %s", l.dirPath)
	}
	log.Debugf("Found %d chunk files", len(chunks))

	if l.maxWords > 0 {
		planned := 0
		for i, chunk := range chunks {
			if planned >= l.maxWords {
				chunks = chunks[:i]
				break
			}
			planned += chunk.WordCount
		}
	}

	decoded := make([][]Entry, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, chunk := range chunks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries, err := readChunkFile(chunk.Filename)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", chunk.ID, err)
			}
			decoded[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, chunk := range chunks {
		l.insert(chunk.ID, decoded[i])
		log.Debugf("Chunk %d loaded: %d words", chunk.ID, len(decoded[i]))
	}
	return nil
}

// LoadChunk loads a single chunk by id. Loading an already loaded chunk is a no-op.
func (l *Loader) LoadChunk(id int) error {
	l.mu.RLock()
	_, loaded := l.chunkWords[id]
	l.mu.RUnlock()
	if loaded {
		return nil
	}

	entries, err := readChunkFile(filepath.Join(l.dirPath, ChunkFileName(id)))
	if err != nil {
		return fmt.Errorf("chunk %d: %w", id, err)
	}
	l.insert(id, entries)
	return nil
}

func readChunkFile(filename string) ([]Entry, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk file %s: %w", filename, err)
	}
	defer file.Close()
	return ReadChunk(file)
}

// LoadText adds the words of a plain text list and returns how many were read.
func (l *Loader) LoadText(r io.Reader) (int, error) {
	entries, err := ReadText(r)
	if err != nil {
		return 0, err
	}
	l.insert(textChunkID, entries)
	return len(entries), nil
}

// LoadFile loads a single chunk or text file, chosen by its name.
func (l *Loader) LoadFile(path string) error {
	switch DetectFileFormat(path) {
	case FormatChunk:
		id, _ := parseChunkID(path)
		entries, err := readChunkFile(path)
		if err != nil {
			return err
		}
		l.insert(id, entries)
		return nil
	case FormatText:
		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open word list %s: %w", path, err)
		}
		defer file.Close()
		n, err := l.LoadText(file)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Debugf("Loaded %d words from %s", n, path)
		return nil
	default:
		return fmt.Errorf("unable to detect format for file %s", path)
	}
}

// Add inserts or updates a single word.
func (l *Loader) Add(e Entry) {
	l.insert(textChunkID, []Entry{e})
}

func (l *Loader) insert(chunkID int, entries []Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	words := l.chunkWords[chunkID]
	if words == nil {
		words = make(map[string]struct{})
		l.chunkWords[chunkID] = words
	}
	for _, e := range entries {
		if e.Word == "" {
			continue
		}
		key := patricia.Prefix(e.Word)
		if old := l.trie.Get(key); old != nil {
			l.trie.Set(key, e.Rank)
			l.dropRank(old.(uint16))
			l.ranks[e.Rank]++
			if prev := l.owner[e.Word]; prev != chunkID {
				delete(l.chunkWords[prev], e.Word)
				words[e.Word] = struct{}{}
				l.owner[e.Word] = chunkID
			}
			continue
		}
		if l.maxWords > 0 && l.count >= l.maxWords {
			log.Debugf("Word limit %d reached, skipping the rest of chunk %d", l.maxWords, chunkID)
			break
		}
		l.trie.Insert(key, e.Rank)
		l.count++
		l.ranks[e.Rank]++
		words[e.Word] = struct{}{}
		l.owner[e.Word] = chunkID
	}
}

func (l *Loader) dropRank(rank uint16) {
	if l.ranks[rank] <= 1 {
		delete(l.ranks, rank)
		return
	}
	l.ranks[rank]--
}

// Evict removes the words loaded from a chunk.
func (l *Loader) Evict(chunkID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	words, ok := l.chunkWords[chunkID]
	if !ok {
		return fmt.Errorf("chunk %d is not loaded", chunkID)
	}
	for word := range words {
		key := patricia.Prefix(word)
		if item := l.trie.Get(key); item != nil {
			l.trie.Delete(key)
			l.dropRank(item.(uint16))
			l.count--
		}
		delete(l.owner, word)
	}
	delete(l.chunkWords, chunkID)
	log.Debugf("Evicted chunk %d (%d words)", chunkID, len(words))
	return nil
}

// Lookup returns the entry for word.
func (l *Loader) Lookup(word string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	item := l.trie.Get(patricia.Prefix(word))
	if item == nil {
		return Entry{}, false
	}
	return Entry{Word: word, Rank: item.(uint16)}, true
}

// Len returns the number of words held.
func (l *Loader) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// LoadedIDs returns the ids of loaded chunk files, ascending.
func (l *Loader) LoadedIDs() []int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	ids := make([]int, 0, len(l.chunkWords))
	for id := range l.chunkWords {
		if id != textChunkID {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// Stats returns current loading statistics
func (l *Loader) Stats() LoaderStats {
	chunks, _ := l.Available()
	ids := l.LoadedIDs()

	l.mu.RLock()
	defer l.mu.RUnlock()
	stats := LoaderStats{
		Words:           l.count,
		LoadedChunks:    len(ids),
		AvailableChunks: len(chunks),
	}
	first := true
	for rank := range l.ranks {
		if first || rank < stats.BestRank {
			stats.BestRank = rank
			first = false
		}
	}
	return stats
}

// Enumerate yields every word in lexical order. It implements
// filter.Enumerator. yield must not call back into the loader.
func (l *Loader) Enumerate(ctx context.Context, yield func(Entry) bool, p filter.Progress) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p.Begin("dictionary", l.count)
	defer p.Done()

	err := l.trie.Visit(func(prefix patricia.Prefix, item patricia.Item) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !yield(Entry{Word: string(prefix), Rank: item.(uint16)}) {
			return errStopVisit
		}
		p.Worked(1)
		return nil
	})
	if errors.Is(err, errStopVisit) {
		return nil
	}
	return err
}

var _ filter.Enumerator[Entry] = (*Loader)(nil)
