package filter

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/pkg/pattern"
	"github.com/charmbracelet/log"
)

// Stage identifies which pass produced an Update.
type Stage int

const (
	// StageResults carries sorted matches without duplicate flags.
	StageResults Stage = iota + 1
	// StageDuplicates carries the same matches with duplicates flagged.
	StageDuplicates
)

// Update is what a Searcher reports for one search.
type Update[T comparable] struct {
	Seq     uint64
	Query   *pattern.Query
	Stage   Stage
	Results *ResultSet[T]
	Entries []Entry[T]
	// Final is set on the last update of a search.
	Final     bool
	Cancelled bool
	Err       error
	Elapsed   time.Duration
}

// SearcherConfig configures a Searcher.
type SearcherConfig[T comparable] struct {
	Source  Enumerator[T]
	Compare Comparator[T]
	Options pattern.Options
	// Debounce delays a search until no newer one arrived for this long.
	Debounce time.Duration
	// Duplicates enables the second pass that flags equal names.
	Duplicates bool
	// Buffer is the capacity of the updates channel.
	Buffer int
	Logger *log.Logger
}

type request struct {
	seq uint64
	raw string
}

// Searcher runs queries on a dedicated goroutine. Starting a search cancels
// the one in flight and waits for it to finish before the new one begins, so
// at most one scan touches the Session at any time.
type Searcher[T comparable] struct {
	session *Session[T]
	cfg     SearcherConfig[T]
	log     *log.Logger

	requests chan request
	updates  chan Update[T]
	quit     chan struct{}
	done     chan struct{}

	seq       atomic.Uint64
	closeOnce sync.Once
}

// NewSearcher starts a Searcher over session. Close must be called to stop it.
func NewSearcher[T comparable](session *Session[T], cfg SearcherConfig[T]) *Searcher[T] {
	if cfg.Buffer < 1 {
		cfg.Buffer = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.New("searcher")
	}
	s := &Searcher[T]{
		session:  session,
		cfg:      cfg,
		log:      cfg.Logger,
		requests: make(chan request),
		updates:  make(chan Update[T], cfg.Buffer),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

// Session returns the session the searcher filters with.
func (s *Searcher[T]) Session() *Session[T] { return s.session }

// Updates returns the channel results are delivered on. It is closed by Close.
// Updates for a superseded search may still arrive; compare Seq with the
// value returned by Search to discard them.
func (s *Searcher[T]) Updates() <-chan Update[T] { return s.updates }

// Search schedules a search for raw and returns its sequence number. It
// returns 0 once the searcher is closed.
func (s *Searcher[T]) Search(raw string) uint64 {
	req := request{seq: s.seq.Add(1), raw: raw}
	select {
	case s.requests <- req:
		return req.seq
	case <-s.quit:
		return 0
	}
}

// Latest returns the sequence number of the most recent Search call.
func (s *Searcher[T]) Latest() uint64 { return s.seq.Load() }

// Close cancels any running search, waits for the worker to exit and closes
// the updates channel.
func (s *Searcher[T]) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
	})
}

func (s *Searcher[T]) run() {
	defer close(s.done)
	defer close(s.updates)

	var (
		cancel  context.CancelFunc
		running chan struct{}
		pending *request
		timer   *time.Timer
		timerC  <-chan time.Time
	)

	stop := func() {
		if cancel != nil {
			cancel()
			<-running
			cancel, running = nil, nil
		}
	}
	start := func(req request) {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		running = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			s.search(ctx, req)
		}(running)
	}

	for {
		select {
		case req := <-s.requests:
			stop()
			if s.cfg.Debounce <= 0 {
				start(req)
				continue
			}
			pending = &req
			if timer == nil {
				timer = time.NewTimer(s.cfg.Debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(s.cfg.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if pending != nil {
				start(*pending)
				pending = nil
			}

		case <-s.quit:
			if timer != nil {
				timer.Stop()
			}
			stop()
			return
		}
	}
}

func (s *Searcher[T]) search(ctx context.Context, req request) {
	started := time.Now()
	q := pattern.CompileWith(req.raw, s.cfg.Options)

	rs, err := s.session.Submit(ctx, q, s.cfg.Source, s.cfg.Compare)
	if err != nil {
		s.fail(ctx, req, q, err, started)
		return
	}
	s.emit(ctx, Update[T]{
		Seq:     req.seq,
		Query:   q,
		Stage:   StageResults,
		Results: rs,
		Entries: rs.Entries(),
		Final:   !s.cfg.Duplicates,
		Elapsed: time.Since(started),
	})
	if !s.cfg.Duplicates {
		return
	}

	marked, err := s.session.MarkDuplicates(ctx, rs)
	if err != nil {
		s.fail(ctx, req, q, err, started)
		return
	}
	s.emit(ctx, Update[T]{
		Seq:     req.seq,
		Query:   q,
		Stage:   StageDuplicates,
		Results: marked,
		Entries: marked.Entries(),
		Final:   true,
		Elapsed: time.Since(started),
	})
}

func (s *Searcher[T]) fail(ctx context.Context, req request, q *pattern.Query, err error, started time.Time) {
	u := Update[T]{Seq: req.seq, Query: q, Final: true, Elapsed: time.Since(started)}
	if errors.Is(err, ErrCancelled) {
		s.log.Debugf("search #%d %s cancelled", req.seq, q)
		u.Cancelled = true
		// nobody waits on a superseded search
		select {
		case s.updates <- u:
		default:
		}
		return
	}
	s.log.Errorf("search #%d %s failed: %v", req.seq, q, err)
	u.Err = err
	s.emit(ctx, u)
}

// emit delivers u unless the search is superseded or the searcher closes
// while the consumer is behind.
func (s *Searcher[T]) emit(ctx context.Context, u Update[T]) {
	select {
	case s.updates <- u:
	case <-ctx.Done():
	case <-s.quit:
	}
}
