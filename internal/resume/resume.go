package resume

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/gofrs/flock"
	json "github.com/json-iterator/go"
)

// ErrLocked is returned by Acquire when another run holds the resume file.
var ErrLocked = errors.New("resume file is in use by another run")

// Item is a page waiting in the crawl frontier.
type Item struct {
	URL      string `json:"url"`
	Referrer string `json:"referrer,omitempty"`
	Depth    int    `json:"depth"`
}

// State tracks the progress of a crawl so it can be resumed after
// interruption: the pages already fetched and the frontier still to visit.
type State struct {
	URL       string   `json:"url"`
	RunID     string   `json:"run_id,omitempty"`
	Completed []string `json:"completed"`
	Pending   []Item   `json:"pending"`

	mu   sync.Mutex
	path string
	done map[string]struct{}
}

// New creates a new empty resume state that will be saved to the given path.
func New(path, url, runID string) *State {
	return &State{
		URL:   url,
		RunID: runID,
		path:  path,
		done:  make(map[string]struct{}),
	}
}

// Load reads an existing resume state from disk. Returns nil if the file
// does not exist.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading resume file: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing resume file: %w", err)
	}

	s.path = path
	s.done = make(map[string]struct{}, len(s.Completed))
	for _, u := range s.Completed {
		s.done[u] = struct{}{}
	}

	return &s, nil
}

// IsCompleted returns true if the given page was already fetched.
func (s *State) IsCompleted(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[url]
	return ok
}

// MarkCompleted records a page as done.
func (s *State) MarkCompleted(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.done[url]; !ok {
		s.done[url] = struct{}{}
		s.Completed = append(s.Completed, url)
	}
}

// SetPending replaces the saved frontier.
func (s *State) SetPending(items []Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Pending = append([]Item(nil), items...)
}

// Frontier returns the saved frontier minus pages completed since it was
// recorded.
func (s *State) Frontier() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	var remaining []Item
	for _, it := range s.Pending {
		if _, ok := s.done[it.URL]; !ok {
			remaining = append(remaining, it)
		}
	}
	return remaining
}

// Save writes the current state to disk. The file is replaced atomically so
// an interrupted save leaves the previous state intact.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("serializing resume state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Acquire takes an exclusive lock next to the resume file so two crawls
// cannot write the same state. The returned func releases it.
func Acquire(path string) (func() error, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking resume file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}
	return func() error {
		err := lock.Unlock()
		_ = os.Remove(lock.Path())
		return err
	}, nil
}

// Remove deletes the resume file (called on successful completion).
func (s *State) Remove() error {
	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
