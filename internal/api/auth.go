package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"
	"time"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
	now     func() time.Time
}

type ticketEntry struct {
	userID    string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{
		tickets: make(map[string]ticketEntry),
		now:     time.Now,
	}
}

// issue stores a new ticket for userID and returns it.
func (ts *ticketStore) issue(userID string) string {
	ticket := generateTicket()

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{userID: userID, expiresAt: ts.now().Add(ticketTTL)}
	ts.mu.Unlock()

	return ticket
}

// consume checks a ticket and removes it (single-use). It returns the user
// the ticket was issued to.
func (ts *ticketStore) consume(ticket string) (string, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return "", false
	}
	delete(ts.tickets, ticket)

	if !ts.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.userID, true
}

// cleanExpired removes expired tickets from the store.
func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := ts.now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

func (ts *ticketStore) size() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.tickets)
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the bearer token in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	ticket := s.tickets.issue(user.ID)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// handleMe returns the caller's user record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userFromContext(r.Context()))
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// cleanTicketsLoop removes expired tickets periodically until the context
// is cancelled.
func (s *Server) cleanTicketsLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickets.cleanExpired()
		}
	}
}
