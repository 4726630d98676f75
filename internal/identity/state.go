package identity

import "sync"

// State is the injectable auth-state holder: consumers receive it by
// reference instead of reading ambient globals. It delivers the current
// user (or nil when signed out) to every subscriber on each transition,
// and at least once at subscription time.
type State struct {
	mu      sync.Mutex
	current *UserRecord
	subs    map[int]func(*UserRecord)
	nextID  int
	stopped bool
}

func NewState() *State {
	return &State{subs: make(map[int]func(*UserRecord))}
}

// OnChange registers a callback and fires it immediately with the
// current user. The returned cancel is idempotent.
func (s *State) OnChange(fn func(*UserRecord)) (cancel func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current := s.current
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Set records an auth transition and notifies subscribers. nil means
// signed out.
func (s *State) Set(user *UserRecord) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.current = user
	subs := make([]func(*UserRecord), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(user)
	}
}

// Current returns the signed-in user, if any.
func (s *State) Current() (UserRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return UserRecord{}, false
	}
	return *s.current, true
}

// Stop tears the holder down: subscribers are dropped and further
// transitions are ignored. Safe to call multiple times.
func (s *State) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.subs = make(map[int]func(*UserRecord))
}
