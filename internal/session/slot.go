package session

import "sync"

// sessionSlot holds at most one SessionHandle. Replacing it closes the old
// handle before the new one is constructed, so two handles never coexist.
type sessionSlot struct {
	mu sync.Mutex
	h  SessionHandle
}

// Replace closes the current handle and stores the result of create.
// On create failure the slot is left empty.
func (s *sessionSlot) Replace(create func() (SessionHandle, error)) (SessionHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h != nil {
		_ = s.h.Close()
		s.h = nil
	}
	h, err := create()
	if err != nil {
		return nil, err
	}
	s.h = h
	return h, nil
}

// Current returns the held handle, or nil.
func (s *sessionSlot) Current() SessionHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

// Clear closes and drops the held handle.
func (s *sessionSlot) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h == nil {
		return nil
	}
	err := s.h.Close()
	s.h = nil
	return err
}

// ClearIf closes the held handle only if it is h.
func (s *sessionSlot) ClearIf(h SessionHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.h != nil && s.h == h {
		_ = s.h.Close()
		s.h = nil
	}
}
