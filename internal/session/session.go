// Package session holds per-browser UI state between requests.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// CookieName carries the session ID.
const CookieName = "csvbot_session"

// Upload is the file most recently uploaded in a session. Bytes stay in
// memory only.
type Upload struct {
	Name string
	Data []byte
}

// State is the explicit per-session context. The UI reads and writes it on
// every action; callers hold Lock for the duration of an action.
type State struct {
	mu sync.Mutex

	ID string
	// PasswordCorrect is nil until the first attempt.
	PasswordCorrect *bool
	File            *Upload
	Query           string
	Answer          string
	// Error is the last user-visible failure message.
	Error     string
	CreatedAt time.Time
}

func New() *State {
	return &State{ID: uuid.NewString(), CreatedAt: time.Now()}
}

func (s *State) Lock()   { s.mu.Lock() }
func (s *State) Unlock() { s.mu.Unlock() }

// SetPasswordCorrect records the outcome of the latest attempt.
func (s *State) SetPasswordCorrect(ok bool) {
	s.PasswordCorrect = &ok
}

// SetFile replaces the upload and clears results that belonged to the old one.
func (s *State) SetFile(name string, data []byte) {
	s.File = &Upload{Name: name, Data: data}
	s.ClearResult()
}

// ClearResult drops the last answer and error.
func (s *State) ClearResult() {
	s.Answer = ""
	s.Error = ""
}

func (s *State) HasFile() bool { return s.File != nil }

// Store keeps sessions in memory with a sliding TTL. Expiry stands in for
// the end of a browser session.
type Store struct {
	cache *cache.Cache
}

// NewStore creates a store whose entries expire after ttl without use.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = time.Hour
	}
	cleanup := ttl / 2
	if cleanup > 10*time.Minute {
		cleanup = 10 * time.Minute
	}
	return &Store{cache: cache.New(ttl, cleanup)}
}

// Get returns the session and refreshes its expiry.
func (s *Store) Get(id string) (*State, bool) {
	if id == "" {
		return nil, false
	}
	x, found := s.cache.Get(id)
	if !found {
		return nil, false
	}
	st := x.(*State)
	s.cache.Set(id, st, cache.DefaultExpiration)
	return st, true
}

// GetOrCreate returns the session for id, or a new one when id is unknown
// or expired. created reports whether a new ID was issued.
func (s *Store) GetOrCreate(id string) (st *State, created bool) {
	if st, ok := s.Get(id); ok {
		return st, false
	}
	st = New()
	s.cache.Set(st.ID, st, cache.DefaultExpiration)
	return st, true
}

func (s *Store) Delete(id string) {
	s.cache.Delete(id)
}

// Len reports live sessions, including expired ones not yet purged.
func (s *Store) Len() int {
	return s.cache.ItemCount()
}
