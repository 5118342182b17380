package relay

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gfxrelay/internal/protocol"

	"github.com/google/uuid"
)

// ErrInvalidRole is returned by Register when the handshake role is absent or unknown.
var ErrInvalidRole = errors.New("invalid client type")

// Socket is the registry's view of one peer connection.
type Socket interface {
	Send(data []byte) error
	Close(code int, reason string) error
	IsOpen() bool
}

// ConnectedPeer is one registered connection. Role never changes after Register.
type ConnectedPeer struct {
	ID              string
	Role            protocol.Role
	Socket          Socket
	ConnectedAt     time.Time
	LastHeartbeatAt time.Time
}

// Registry is the authoritative set of live peers.
type Registry struct {
	mu      sync.RWMutex
	peers   map[string]*ConnectedPeer // peer ID -> peer
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

// NewRegistry creates a registry whose Sweep evicts peers silent for longer than timeout.
func NewRegistry(timeout time.Duration, logger *slog.Logger) *Registry {
	return &Registry{
		peers:   make(map[string]*ConnectedPeer),
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

// Register adds socket under role and returns the new peer ID.
// The caller owns closing the socket when registration is refused.
func (r *Registry) Register(socket Socket, role string) (string, error) {
	parsed, err := protocol.ParseRole(role)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	now := r.now()
	peer := &ConnectedPeer{
		ID:              newPeerID(parsed, now),
		Role:            parsed,
		Socket:          socket,
		ConnectedAt:     now,
		LastHeartbeatAt: now,
	}

	r.mu.Lock()
	r.peers[peer.ID] = peer
	r.mu.Unlock()

	r.logger.Info("peer_registered",
		"peer_id", peer.ID,
		"role", parsed,
	)
	return peer.ID, nil
}

// role + creation instant; the suffix keeps two registrations in the same millisecond apart
func newPeerID(role protocol.Role, at time.Time) string {
	return fmt.Sprintf("%s-%d-%s", role, at.UnixMilli(), uuid.NewString()[:8])
}

// Touch records a heartbeat from peerID.
func (r *Registry) Touch(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return false
	}
	peer.LastHeartbeatAt = r.now()
	return true
}

// Remove deregisters peerID. It is idempotent: only the first call reports true.
func (r *Registry) Remove(peerID string) bool {
	r.mu.Lock()
	peer, ok := r.peers[peerID]
	if ok {
		delete(r.peers, peerID)
	}
	r.mu.Unlock()

	if ok {
		r.logger.Info("peer_removed",
			"peer_id", peerID,
			"role", peer.Role,
		)
	}
	return ok
}

// Get returns a copy of the peer registered under peerID.
func (r *Registry) Get(peerID string) (ConnectedPeer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, ok := r.peers[peerID]
	if !ok {
		return ConnectedPeer{}, false
	}
	return *peer, true
}

// Sweep evicts every peer whose last heartbeat is older than the timeout,
// closes its socket and returns the evicted IDs.
func (r *Registry) Sweep(now time.Time) []string {
	var evicted []*ConnectedPeer

	r.mu.Lock()
	for id, peer := range r.peers {
		if now.Sub(peer.LastHeartbeatAt) > r.timeout {
			delete(r.peers, id)
			evicted = append(evicted, peer)
		}
	}
	r.mu.Unlock()

	ids := make([]string, 0, len(evicted))
	for _, peer := range evicted {
		r.logger.Warn("heartbeat_timeout",
			"peer_id", peer.ID,
			"role", peer.Role,
			"silent_for", now.Sub(peer.LastHeartbeatAt).String(),
		)
		if err := peer.Socket.Close(CloseNormalClosure, "Heartbeat timeout"); err != nil {
			r.logger.Debug("close_after_timeout_failed", "peer_id", peer.ID, "error", err)
		}
		ids = append(ids, peer.ID)
	}
	return ids
}

// Targets returns every peer of role whose socket is still open. The slice is
// a snapshot: later registry changes do not affect it.
func (r *Registry) Targets(role protocol.Role) []ConnectedPeer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make([]ConnectedPeer, 0, len(r.peers))
	for _, peer := range r.peers {
		if peer.Role == role && peer.Socket.IsOpen() {
			targets = append(targets, *peer)
		}
	}
	return targets
}

// Count returns the number of registered peers, optionally filtered by role.
// An empty role counts everything.
func (r *Registry) Count(role protocol.Role) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if role == "" {
		return len(r.peers)
	}
	n := 0
	for _, peer := range r.peers {
		if peer.Role == role {
			n++
		}
	}
	return n
}

// Peers returns a snapshot of all registered peers ordered by connection time.
func (r *Registry) Peers() []ConnectedPeer {
	r.mu.RLock()
	peers := make([]ConnectedPeer, 0, len(r.peers))
	for _, peer := range r.peers {
		peers = append(peers, *peer)
	}
	r.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool {
		return peers[i].ConnectedAt.Before(peers[j].ConnectedAt)
	})
	return peers
}

// CloseAll closes and deregisters every peer.
func (r *Registry) CloseAll(code int, reason string) {
	r.mu.Lock()
	peers := r.peers
	r.peers = make(map[string]*ConnectedPeer)
	r.mu.Unlock()

	for id, peer := range peers {
		peer.Socket.Close(code, reason)
		r.logger.Info("peer_connection_closed",
			"peer_id", id,
			"role", peer.Role,
		)
	}
}
