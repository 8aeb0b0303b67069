package server

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/bastiangx/pickserve/pkg/dictionary"
	"github.com/bastiangx/pickserve/pkg/filter"
	"github.com/bastiangx/pickserve/pkg/history"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

type pendingQuery struct {
	id    string
	limit int
}

// Server handles the IPC for filtered selection.
type Server struct {
	loader      *dictionary.Loader
	session     *filter.Session[dictionary.Entry]
	searcher    *filter.Searcher[dictionary.Entry]
	config      *config.Config
	historyPath string
	log         *log.Logger

	reader io.Reader

	writeMu sync.Mutex
	encoder *msgpack.Encoder

	mu       sync.Mutex
	pending  map[uint64]pendingQuery
	inflight sync.WaitGroup
	delivery sync.WaitGroup

	requests atomic.Int64
}

// NewServer creates a server reading stdin and writing stdout. History is
// loaded from historyPath when it is set and saved there on shutdown.
func NewServer(loader *dictionary.Loader, cfg *config.Config, historyPath string) *Server {
	return NewServerWithIO(loader, cfg, historyPath, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server on the given streams.
func NewServerWithIO(loader *dictionary.Loader, cfg *config.Config, historyPath string, r io.Reader, w io.Writer) *Server {
	srvLog := logger.New("server")

	hist := history.New[dictionary.Entry](cfg.Engine.HistorySize)
	if historyPath != "" {
		if err := hist.LoadFile(historyPath); err != nil {
			srvLog.Warnf("Failed to load history, starting empty: %v", err)
			hist.Clear()
		}
	}

	session := filter.NewSession(dictionary.Name,
		filter.WithHistory(hist),
		filter.WithConsistency(func(e dictionary.Entry) bool {
			current, ok := loader.Lookup(e.Word)
			return ok && current == e
		}),
		filter.WithLogger[dictionary.Entry](logger.New("session")),
	)
	searcher := filter.NewSearcher(session, filter.SearcherConfig[dictionary.Entry]{
		Source:     loader,
		Compare:    dictionary.ByRank,
		Options:    cfg.PatternOptions(),
		Debounce:   cfg.Debounce(),
		Duplicates: cfg.Server.CheckDuplicates,
		Logger:     logger.New("searcher"),
	})

	return &Server{
		loader:      loader,
		session:     session,
		searcher:    searcher,
		config:      cfg,
		historyPath: historyPath,
		log:         srvLog,
		reader:      r,
		encoder:     msgpack.NewEncoder(w),
		pending:     make(map[uint64]pendingQuery),
	}
}

// Session returns the filtering session the server queries.
func (s *Server) Session() *filter.Session[dictionary.Entry] { return s.session }

// Start processes requests until the input stream ends. Queries still running
// at that point are allowed to finish before Start returns.
func (s *Server) Start() error {
	s.log.Debug("Starting Server.")

	s.delivery.Add(1)
	go s.deliver()
	defer s.shutdown()

	decoder := msgpack.NewDecoder(s.reader)
	for {
		var req Request
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Debug("Input closed, draining queries")
				s.inflight.Wait()
				return nil
			}
			s.log.Errorf("Decoding request: %v", err)
			s.sendError("", "invalid msgpack request", 400)
			return fmt.Errorf("failed to decode request: %w", err)
		}
		s.requests.Add(1)
		s.handleRequest(req)
	}
}

func (s *Server) shutdown() {
	s.searcher.Close()
	s.delivery.Wait()
	if s.historyPath == "" {
		return
	}
	if err := s.session.History().SaveFile(s.historyPath); err != nil {
		s.log.Errorf("Failed to save history: %v", err)
	}
}

// handleRequest dispatches on the request action
func (s *Server) handleRequest(req Request) {
	switch req.Action {
	case "", ActionQuery:
		s.handleQuery(req)
	case ActionSelect:
		s.handleSelect(req)
	case ActionForget:
		s.handleForget(req)
	case ActionHealth:
		s.sendResponse(StatusResponse{ID: req.ID, Status: "ok"})
	case ActionStats:
		stats := s.loader.Stats()
		s.sendResponse(StatsResponse{
			ID:              req.ID,
			Words:           stats.Words,
			LoadedChunks:    stats.LoadedChunks,
			AvailableChunks: stats.AvailableChunks,
			History:         s.session.History().Len(),
			Requests:        s.requests.Load(),
		})
	default:
		s.sendError(req.ID, fmt.Sprintf("Unknown action: %s", req.Action), 400)
	}
}

func (s *Server) handleQuery(req Request) {
	if n := utf8.RuneCountInString(req.Query); n > s.config.Server.MaxQuery {
		s.sendError(req.ID, fmt.Sprintf("Query exceeds maximum length of %d characters", s.config.Server.MaxQuery), 400)
		s.log.Debugf("Query too long: %d characters", n)
		return
	}
	limit := req.Limit
	if limit < 1 || limit > s.config.Server.MaxLimit {
		limit = s.config.Server.MaxLimit
	}

	// Registering under the lock keeps deliver from seeing the sequence
	// number before it is known.
	s.mu.Lock()
	defer s.mu.Unlock()
	seq := s.searcher.Search(req.Query)
	if seq == 0 {
		s.sendError(req.ID, "server is shutting down", 503)
		return
	}
	for old := range s.pending {
		delete(s.pending, old)
		s.inflight.Done()
	}
	s.pending[seq] = pendingQuery{id: req.ID, limit: limit}
	s.inflight.Add(1)
}

// deliver turns searcher updates into responses for the latest query.
func (s *Server) deliver() {
	defer s.delivery.Done()
	for u := range s.searcher.Updates() {
		s.mu.Lock()
		p, ok := s.pending[u.Seq]
		if ok && u.Final {
			delete(s.pending, u.Seq)
			s.inflight.Done()
		}
		s.mu.Unlock()
		if !ok || u.Cancelled {
			continue
		}
		if u.Err != nil {
			s.sendError(p.id, u.Err.Error(), 500)
			continue
		}
		s.sendResponse(buildResponse(p, u))
	}
}

func buildResponse(p pendingQuery, u filter.Update[dictionary.Entry]) QueryResponse {
	resp := QueryResponse{
		ID:          p.id,
		Suggestions: make([]Suggestion, 0, min(p.limit, u.Results.Len())),
		Total:       u.Results.Len(),
		TimeTaken:   u.Elapsed.Microseconds(),
		Stage:       int(u.Stage),
	}
	for _, e := range u.Entries {
		if len(resp.Suggestions) == p.limit {
			break
		}
		if e.Separator {
			resp.Separator = len(resp.Suggestions)
			continue
		}
		resp.Suggestions = append(resp.Suggestions, Suggestion{
			Word:      e.Item.Word,
			Rank:      e.Item.Rank,
			History:   e.History,
			Duplicate: e.Duplicate,
		})
	}
	resp.Count = len(resp.Suggestions)
	return resp
}

func (s *Server) handleSelect(req Request) {
	entry, ok := s.loader.Lookup(req.Item)
	if !ok {
		s.sendError(req.ID, fmt.Sprintf("Unknown item: %s", req.Item), 404)
		return
	}
	s.session.Accessed(entry)
	s.log.Debugf("Selected %q", entry.Word)
	s.sendResponse(StatusResponse{ID: req.ID, Status: "ok"})
}

func (s *Server) handleForget(req Request) {
	for _, entry := range s.session.History().Items() {
		if entry.Word == req.Item {
			s.session.Forget(entry)
			s.log.Debugf("Forgot %q", entry.Word)
			s.sendResponse(StatusResponse{ID: req.ID, Status: "ok"})
			return
		}
	}
	s.sendError(req.ID, fmt.Sprintf("Item not in history: %s", req.Item), 404)
}

// sendResponse encodes one msgpack message to the client.
func (s *Server) sendResponse(response any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.encoder.Encode(response); err != nil {
		s.log.Errorf("Encoding response: %v", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(id, message string, code int) {
	s.sendResponse(ErrorResponse{ID: id, Error: message, Code: code})
}
