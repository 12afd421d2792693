// Package fake
// Author: momentics <momentics@gmail.com>
//
// Fake implementations for testing and development.
// Provides predictable, controllable failure injection around real components.

package fake

import (
	"errors"
	"sync"

	"github.com/momentics/hioload-coll/api"
)

// ErrInjected is the default injected failure.
var ErrInjected = errors.New("fake: injected transport failure")

// Sent records one PostSend call.
type Sent struct {
	Dest int
	Tag  api.Tag
	Data []byte
}

// Transport wraps an api.Transport and injects failures on demand.
type Transport struct {
	mu        sync.Mutex
	inner     api.Transport
	sent      []Sent
	sendError error
	recvError error
	pollError error
	failAfter int // sends allowed before sendAfterErr fires; <0 disables
	afterErr  error
	canceled  int
}

var (
	_ api.Transport     = (*Transport)(nil)
	_ api.TokenCanceler = (*Transport)(nil)
)

// NewTransport wraps inner.
func NewTransport(inner api.Transport) *Transport {
	return &Transport{inner: inner, failAfter: -1}
}

// PostSend implements api.Transport.
func (t *Transport) PostSend(dest int, tag api.Tag, data []byte) (api.Token, error) {
	t.mu.Lock()
	if t.sendError != nil {
		err := t.sendError
		t.mu.Unlock()
		return 0, err
	}
	if t.failAfter == 0 {
		err := t.afterErr
		t.mu.Unlock()
		return 0, err
	}
	if t.failAfter > 0 {
		t.failAfter--
	}
	t.sent = append(t.sent, Sent{Dest: dest, Tag: tag, Data: append([]byte(nil), data...)})
	t.mu.Unlock()
	return t.inner.PostSend(dest, tag, data)
}

// PostRecv implements api.Transport.
func (t *Transport) PostRecv(src int, tag api.Tag, buf []byte) (api.Token, error) {
	t.mu.Lock()
	err := t.recvError
	t.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return t.inner.PostRecv(src, tag, buf)
}

// Poll implements api.Transport. An armed poll error fires once.
func (t *Transport) Poll(tok api.Token) (bool, error) {
	t.mu.Lock()
	err := t.pollError
	t.pollError = nil
	t.mu.Unlock()
	if err != nil {
		return false, err
	}
	return t.inner.Poll(tok)
}

// CancelToken forwards to the wrapped transport when it supports cancellation.
func (t *Transport) CancelToken(tok api.Token) {
	t.mu.Lock()
	t.canceled++
	t.mu.Unlock()
	if c, ok := t.inner.(api.TokenCanceler); ok {
		c.CancelToken(tok)
	}
}

// SetSendError makes every PostSend fail with err; nil clears it.
func (t *Transport) SetSendError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sendError = err
}

// SetRecvError makes every PostRecv fail with err; nil clears it.
func (t *Transport) SetRecvError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.recvError = err
}

// SetPollError makes the next Poll fail with err.
func (t *Transport) SetPollError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pollError = err
}

// FailSendAfter lets n sends through and fails the rest with err.
func (t *Transport) FailSendAfter(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failAfter, t.afterErr = n, err
}

// GetSentData returns copies of everything sent so far.
func (t *Transport) GetSentData() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Sent(nil), t.sent...)
}

// Canceled counts CancelToken calls.
func (t *Transport) Canceled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}
