package testutil

import (
	"context"
	"sync"
)

// CaptureSender records the last OTP sent to each phone instead of sending it.
type CaptureSender struct {
	mu    sync.Mutex
	codes map[string]string

	// Err, when set, is returned by every SendCode.
	Err error
}

// SendCode implements auth.Sender.
func (s *CaptureSender) SendCode(_ context.Context, phone, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if s.codes == nil {
		s.codes = map[string]string{}
	}
	s.codes[phone] = code
	return nil
}

// Last returns the last code sent to phone.
func (s *CaptureSender) Last(phone string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[phone]
}
