package dictionary

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// FileFormat represents different dictionary file formats
type FileFormat int

const (
	FormatUnknown FileFormat = iota
	FormatChunk              // dict_NNNN.bin binary chunk
	FormatText               // one "word [rank]" per line
)

const (
	chunkPrefix = "dict_"
	chunkExt    = ".bin"
	textExt     = ".txt"

	// maxChunkEntries guards against reading a corrupt header as a huge count.
	maxChunkEntries = 1_000_000
)

// ChunkInfo contains metadata about a chunk file
type ChunkInfo struct {
	ID        int
	Filename  string
	WordCount int
}

// ChunkFileName returns the file name for a chunk id: dict_0001.bin for 1.
func ChunkFileName(id int) string {
	return fmt.Sprintf("%s%04d%s", chunkPrefix, id, chunkExt)
}

// parseChunkID extracts the id from a chunk file name.
func parseChunkID(filename string) (int, bool) {
	base := filepath.Base(filename)
	if !strings.HasPrefix(base, chunkPrefix) || !strings.HasSuffix(base, chunkExt) {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, chunkPrefix), chunkExt))
	if err != nil {
		return 0, false
	}
	return id, true
}

// ListChunks scans dir for chunk files, sorted by id.
func ListChunks(dir string) ([]ChunkInfo, error) {
	files, err := filepath.Glob(filepath.Join(dir, chunkPrefix+"*"+chunkExt))
	if err != nil {
		return nil, fmt.Errorf("failed to scan for chunk files: %w", err)
	}

	var chunks []ChunkInfo
	for _, file := range files {
		id, ok := parseChunkID(file)
		if !ok {
			continue
		}
		count, err := readChunkHeader(file)
		if err != nil {
			log.Warnf("Failed to get word count for chunk %s: %v", file, err)
			continue
		}
		chunks = append(chunks, ChunkInfo{ID: id, Filename: file, WordCount: count})
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ID < chunks[j].ID
	})
	return chunks, nil
}

func readChunkHeader(filename string) (int, error) {
	file, err := os.Open(filename)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	var count int32
	if err := binary.Read(file, binary.LittleEndian, &count); err != nil {
		return 0, err
	}
	if count < 0 || count > maxChunkEntries {
		return 0, fmt.Errorf("invalid word count %d", count)
	}
	return int(count), nil
}

// ReadChunk decodes a binary chunk: an int32 entry count followed by
// records of uint16 word length, word bytes and uint16 rank, all little-endian.
func ReadChunk(r io.Reader) ([]Entry, error) {
	reader := bufio.NewReader(r)

	var total int32
	if err := binary.Read(reader, binary.LittleEndian, &total); err != nil {
		return nil, fmt.Errorf("failed to read chunk header: %w", err)
	}
	if total < 0 || total > maxChunkEntries {
		return nil, fmt.Errorf("invalid word count in chunk header: %d", total)
	}

	entries := make([]Entry, 0, total)
	for len(entries) < int(total) {
		var wordLen uint16
		if err := binary.Read(reader, binary.LittleEndian, &wordLen); err != nil {
			if err == io.EOF {
				log.Warnf("Chunk ended after %d of %d words", len(entries), total)
				break
			}
			return nil, fmt.Errorf("failed to read word length: %w", err)
		}

		wordBytes := make([]byte, wordLen)
		if _, err := io.ReadFull(reader, wordBytes); err != nil {
			return nil, fmt.Errorf("failed to read word: %w", err)
		}

		var rank uint16
		if err := binary.Read(reader, binary.LittleEndian, &rank); err != nil {
			return nil, fmt.Errorf("failed to read rank: %w", err)
		}
		entries = append(entries, Entry{Word: string(wordBytes), Rank: rank})
	}
	return entries, nil
}

// WriteChunk encodes entries in the binary chunk format read by ReadChunk.
func WriteChunk(w io.Writer, entries []Entry) error {
	if len(entries) > maxChunkEntries {
		return fmt.Errorf("too many entries for one chunk: %d", len(entries))
	}
	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, int32(len(entries))); err != nil {
		return fmt.Errorf("failed to write chunk header: %w", err)
	}
	for _, e := range entries {
		if len(e.Word) > math.MaxUint16 {
			return fmt.Errorf("word too long: %d bytes", len(e.Word))
		}
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(e.Word))); err != nil {
			return fmt.Errorf("failed to write word length: %w", err)
		}
		if _, err := bw.WriteString(e.Word); err != nil {
			return fmt.Errorf("failed to write word: %w", err)
		}
		if err := binary.Write(bw, binary.LittleEndian, e.Rank); err != nil {
			return fmt.Errorf("failed to write rank: %w", err)
		}
	}
	return bw.Flush()
}

// BuildChunks sorts entries by rank and writes them to dir as chunk files of
// at most chunkSize words each, numbered from 1. It returns the written paths.
func BuildChunks(dir string, entries []Entry, chunkSize int) ([]string, error) {
	if chunkSize <= 0 || chunkSize > maxChunkEntries {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chunk directory: %w", err)
	}
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ByRank(sorted[i], sorted[j]) < 0
	})

	var paths []string
	for id, start := 1, 0; start < len(sorted); id, start = id+1, start+chunkSize {
		end := min(start+chunkSize, len(sorted))
		path := filepath.Join(dir, ChunkFileName(id))
		if err := createChunkFile(path, sorted[start:end]); err != nil {
			return paths, err
		}
		log.Debugf("Wrote chunk %d: %d words", id, end-start)
		paths = append(paths, path)
	}
	return paths, nil
}

func createChunkFile(path string, entries []Entry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chunk file %s: %w", path, err)
	}
	if err := WriteChunk(file, entries); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// ReadText parses a plain word list. Each non-empty line holds a word and an
// optional rank separated by whitespace; lines starting with '#' are
// skipped. Words without a rank are ranked by their line order.
func ReadText(r io.Reader) ([]Entry, error) {
	var entries []Entry
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Fields(text)
		e := Entry{Word: fields[0], Rank: uint16(min(len(entries)+1, math.MaxUint16))}
		if len(fields) > 1 {
			rank, err := strconv.ParseUint(fields[1], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("line %d: invalid rank %q: %w", line, fields[1], err)
			}
			e.Rank = uint16(rank)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read word list: %w", err)
	}
	return entries, nil
}

// DetectFileFormat attempts to detect the format of a file from its name
func DetectFileFormat(filename string) FileFormat {
	if _, ok := parseChunkID(filename); ok {
		return FormatChunk
	}
	if strings.EqualFold(filepath.Ext(filename), textExt) {
		return FormatText
	}
	return FormatUnknown
}
