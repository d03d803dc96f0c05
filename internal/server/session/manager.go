package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chatwire/chatwire/internal/protocol"
)

// Info is the registry's view of one live session: the Session handle
// plus the display metadata the chat application layer attaches to it.
type Info struct {
	Session   *Session
	StartTime time.Time
	Name      string
}

// Manager is the thread-safe uid -> Session registry. Broadcast and
// SendTo always snapshot the registry under lock and perform all I/O
// after releasing it, so a slow or blocked peer can never stall every
// other session's traffic.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint32]*Info
	nextUID  atomic.Uint32
}

// NewManager constructs an empty registry. uids are allocated starting
// at 1.
func NewManager() *Manager {
	m := &Manager{sessions: make(map[uint32]*Info)}
	m.nextUID.Store(0)
	return m
}

// Add registers sess under its own UID with the default display name
// "guest". Add does not allocate a uid: the caller obtains one from
// NextUID before constructing the Session.
func (m *Manager) Add(sess *Session) *Info {
	info := &Info{Session: sess, StartTime: time.Now(), Name: "guest"}
	m.mu.Lock()
	m.sessions[sess.UID()] = info
	m.mu.Unlock()
	return info
}

// NextUID returns the next monotonically increasing uid, starting at 1.
func (m *Manager) NextUID() uint32 {
	return m.nextUID.Add(1)
}

// Remove is idempotent: removing an already-absent uid is a no-op.
func (m *Manager) Remove(uid uint32) {
	m.mu.Lock()
	delete(m.sessions, uid)
	m.mu.Unlock()
}

// Get returns the live session for uid, or nil if it is not registered.
func (m *Manager) Get(uid uint32) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.sessions[uid]
	if !ok {
		return nil
	}
	return info.Session
}

// SetName updates the display name associated with uid. A request for an
// unknown uid is silently ignored.
func (m *Manager) SetName(uid uint32, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if info, ok := m.sessions[uid]; ok {
		info.Name = name
	}
}

// GetName returns the display name for uid, or "Unknown" if uid is not
// registered.
func (m *Manager) GetName(uid uint32) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if info, ok := m.sessions[uid]; ok {
		return info.Name
	}
	return "Unknown"
}

// Count returns the number of currently registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ListIDs returns a snapshot of currently registered uids.
func (m *Manager) ListIDs() []uint32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uint32, 0, len(m.sessions))
	for uid := range m.sessions {
		ids = append(ids, uid)
	}
	return ids
}

// ClientEntry is one row of the snapshot returned by List, combining uid
// and display name for the client_list application method.
type ClientEntry struct {
	UID  uint32
	Name string
}

// List returns a snapshot of every registered session's uid and name.
func (m *Manager) List() []ClientEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ClientEntry, 0, len(m.sessions))
	for uid, info := range m.sessions {
		out = append(out, ClientEntry{UID: uid, Name: info.Name})
	}
	return out
}

// Broadcast pushes body to every currently registered session. The
// session set is snapshotted under the registry lock; the actual writes
// happen after the lock is released.
func (m *Manager) Broadcast(body []byte) {
	for _, sess := range m.snapshot() {
		sess.Send(protocol.Push, body)
	}
}

// SendTo pushes body to uid only, returning false if uid is not
// registered.
func (m *Manager) SendTo(uid uint32, body []byte) bool {
	sess := m.Get(uid)
	if sess == nil {
		return false
	}
	sess.Send(protocol.Push, body)
	return true
}

func (m *Manager) snapshot() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, info := range m.sessions {
		out = append(out, info.Session)
	}
	return out
}
