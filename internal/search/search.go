// Package search implements the incremental find overlay over a render
// buffer. It is a pure view: searching never touches network or stream state,
// and it only sees content already materialized in the buffer.
package search

import (
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultDebounce delays searches triggered by typing. Enter bypasses it.
const DefaultDebounce = 300 * time.Millisecond

// Snapshot supplies the lines to search, typically Buffer.Snapshot.
type Snapshot func() []string

// Result describes the outcome of one search pass.
type Result struct {
	Query string
	Found bool
	// Line is the matching line's index in the snapshot.
	Line int
	// Index is the ordinal of the active match, Total the match count.
	Index int
	Total int
	Err   error
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithRegex treats queries as regular expressions.
func WithRegex(on bool) Option {
	return func(s *Searcher) { s.useRegex = on }
}

// WithMatchCase makes matching case-sensitive.
func WithMatchCase(on bool) Option {
	return func(s *Searcher) { s.matchCase = on }
}

// WithDebounce overrides the typing debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(s *Searcher) { s.delay = d }
}

// Searcher holds the ephemeral search state for one open view.
type Searcher struct {
	snapshot  Snapshot
	onResult  func(Result)
	delay     time.Duration
	useRegex  bool
	matchCase bool

	mu         sync.Mutex
	query      string
	activeLine int
	hasActive  bool
	timer      *time.Timer
	closed     bool
}

// New returns a Searcher over the given snapshot source. onResult receives
// every completed pass, including debounced ones; it may be nil if the caller
// only uses the synchronous Enter path.
func New(snapshot Snapshot, onResult func(Result), opts ...Option) *Searcher {
	s := &Searcher{
		snapshot: snapshot,
		onResult: onResult,
		delay:    DefaultDebounce,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Type updates the query and schedules a debounced forward search.
func (s *Searcher) Type(query string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.query = query
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, func() {
		res := s.find(true)
		if s.onResult != nil {
			s.onResult(res)
		}
	})
	s.mu.Unlock()
}

// Enter runs an immediate forward search, bypassing any pending debounce.
func (s *Searcher) Enter() Result {
	return s.immediate(true)
}

// EnterBackward runs an immediate backward search (Shift+Enter).
func (s *Searcher) EnterBackward() Result {
	return s.immediate(false)
}

func (s *Searcher) immediate(forward bool) Result {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	res := s.find(forward)
	if s.onResult != nil {
		s.onResult(res)
	}
	return res
}

// Reset clears the query and the active match.
func (s *Searcher) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.query = ""
	s.hasActive = false
	s.activeLine = 0
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Close discards the searcher; pending debounced searches are dropped.
func (s *Searcher) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Searcher) find(forward bool) Result {
	s.mu.Lock()
	query := s.query
	activeLine := s.activeLine
	hasActive := s.hasActive
	closed := s.closed
	s.mu.Unlock()
	if closed || query == "" {
		return Result{Query: query}
	}

	match, err := s.matcher(query)
	if err != nil {
		return Result{Query: query, Err: err}
	}
	lines := s.snapshot()
	var matches []int
	for i, line := range lines {
		if match(line) {
			matches = append(matches, i)
		}
	}
	if len(matches) == 0 {
		return Result{Query: query, Total: 0}
	}

	picked := -1
	if forward {
		for i, line := range matches {
			if !hasActive || line > activeLine {
				picked = i
				break
			}
		}
		if picked == -1 {
			picked = 0 // wrap to the first match
		}
	} else {
		for i := len(matches) - 1; i >= 0; i-- {
			if !hasActive || matches[i] < activeLine {
				picked = i
				break
			}
		}
		if picked == -1 {
			picked = len(matches) - 1 // wrap to the last match
		}
	}

	s.mu.Lock()
	s.activeLine = matches[picked]
	s.hasActive = true
	s.mu.Unlock()
	return Result{
		Query: query,
		Found: true,
		Line:  matches[picked],
		Index: picked,
		Total: len(matches),
	}
}

func (s *Searcher) matcher(query string) (func(string) bool, error) {
	if s.useRegex {
		expr := query
		if !s.matchCase {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, err
		}
		return re.MatchString, nil
	}
	if s.matchCase {
		return func(line string) bool { return strings.Contains(line, query) }, nil
	}
	lowered := strings.ToLower(query)
	return func(line string) bool {
		return strings.Contains(strings.ToLower(line), lowered)
	}, nil
}
