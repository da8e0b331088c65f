package smartsearch

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Luchitomori/frostwire-desktop/internal/index"
)

// Session is one deep search over a live view.
type Session struct {
	ID    string
	Query string
	View  LiveView

	// Dispatcher overrides the coordinator's dispatcher for this view.
	Dispatcher Dispatcher
	// Filter, when set, must accept a file before it is surfaced.
	Filter func(Result, index.File) bool

	tokens []string
	round  atomic.Int32

	// directUsed marks backends that already had their direct fetch. Only
	// the scanner goroutine touches it.
	directUsed map[int]bool
}

func NewSession(query string, view LiveView) *Session {
	return &Session{
		ID:         uuid.NewString(),
		Query:      query,
		View:       view,
		tokens:     index.Tokens(query),
		directUsed: make(map[int]bool),
	}
}

// Tokens returns the sanitized query tokens.
func (s *Session) Tokens() []string {
	return s.tokens
}

// Round returns the round in progress, 0 before the first.
func (s *Session) Round() int {
	return int(s.round.Load())
}

func (s *Session) allows(r Result, f index.File) bool {
	return s.Filter == nil || s.Filter(r, f)
}
