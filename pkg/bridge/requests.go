// Copyright 2025-2026 Mantene

package bridge

import (
	"strings"

	"github.com/google/uuid"
)

// requestKind distinguishes the one-shot request/response flows that
// suspend a command while the IRC side answers.
type requestKind int

const (
	kindNames requestKind = iota
	kindTopic
)

// pendingRequest is one registered completion. The deliver callback runs
// inside the event loop when a matching reply arrives, then the entry is
// removed.
type pendingRequest struct {
	ID      uuid.UUID
	Kind    requestKind
	Channel string
	deliver func(payload any)
}

type requestKey struct {
	kind    requestKind
	channel string
}

// requestTable correlates asynchronous IRC replies with the commands that
// requested them. Every pending request carries its own token and
// completion; a reply resolves all pending requests of its kind and
// channel, so two overlapping requests each independently receive the
// response instead of racing for a shared listener. Only touched from the
// bridge event loop, so no locking.
type requestTable struct {
	pending map[requestKey][]*pendingRequest
}

func newRequestTable() *requestTable {
	return &requestTable{pending: make(map[requestKey][]*pendingRequest)}
}

// Add registers a completion for the next matching reply and returns its
// token.
func (rt *requestTable) Add(kind requestKind, channel string, deliver func(payload any)) uuid.UUID {
	req := &pendingRequest{
		ID:      uuid.New(),
		Kind:    kind,
		Channel: strings.ToLower(channel),
		deliver: deliver,
	}
	key := requestKey{kind: kind, channel: req.Channel}
	rt.pending[key] = append(rt.pending[key], req)
	return req.ID
}

// Remove withdraws a single pending request by its token, reporting
// whether it was still pending. Used when sending the underlying network
// request failed; the entry must not linger to swallow an unrelated reply.
func (rt *requestTable) Remove(kind requestKind, channel string, id uuid.UUID) bool {
	key := requestKey{kind: kind, channel: strings.ToLower(channel)}
	reqs := rt.pending[key]
	for i, req := range reqs {
		if req.ID == id {
			rt.pending[key] = append(reqs[:i], reqs[i+1:]...)
			if len(rt.pending[key]) == 0 {
				delete(rt.pending, key)
			}
			return true
		}
	}
	return false
}

// Resolve delivers payload to every pending request of the given kind and
// channel, removes them, and returns how many were delivered.
func (rt *requestTable) Resolve(kind requestKind, channel string, payload any) int {
	key := requestKey{kind: kind, channel: strings.ToLower(channel)}
	reqs := rt.pending[key]
	if len(reqs) == 0 {
		return 0
	}
	delete(rt.pending, key)
	for _, req := range reqs {
		req.deliver(payload)
	}
	return len(reqs)
}
