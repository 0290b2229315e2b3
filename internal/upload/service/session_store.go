package service

import (
	"sort"
	"sync"
	"time"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/domain"
	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	"github.com/spaolacci/murmur3"
)

const stripeCount = 16

// sessionEntry pairs a session with its lock. All reads and writes of the
// session's mutable fields happen with mu held; removed marks entries that
// lost a race with cancel or the reaper after lookup.
type sessionEntry struct {
	mu      sync.Mutex
	session *domain.UploadSession
	removed bool
}

type storeStripe struct {
	mu      sync.RWMutex
	entries map[string]*sessionEntry
}

// sessionStore is the in-memory session registry. Sessions are spread over
// murmur3-hashed stripes so unrelated sessions never contend; per-session
// mutation is serialized by the entry mutex. The store also keeps the
// aggregate resident-byte and session counters behind the capacity ceiling.
type sessionStore struct {
	stripes [stripeCount]*storeStripe
	clock   Clock

	maxSessions      int
	maxBufferedBytes int64

	capMu         sync.Mutex
	sessionCount  int
	bufferedBytes int64
}

func newSessionStore(clock Clock, maxSessions int, maxBufferedBytes int64) *sessionStore {
	s := &sessionStore{
		clock:            clock,
		maxSessions:      maxSessions,
		maxBufferedBytes: maxBufferedBytes,
	}
	for i := range s.stripes {
		s.stripes[i] = &storeStripe{entries: make(map[string]*sessionEntry)}
	}
	return s
}

func (s *sessionStore) stripeFor(id string) *storeStripe {
	return s.stripes[murmur3.Sum64([]byte(id))%stripeCount]
}

// insert registers a new session, enforcing the session-count ceiling.
func (s *sessionStore) insert(sess *domain.UploadSession) error {
	s.capMu.Lock()
	if s.maxSessions > 0 && s.sessionCount >= s.maxSessions {
		s.capMu.Unlock()
		return port.ErrCapacityExceeded
	}
	if s.maxBufferedBytes > 0 && s.bufferedBytes >= s.maxBufferedBytes {
		s.capMu.Unlock()
		return port.ErrCapacityExceeded
	}
	s.sessionCount++
	s.capMu.Unlock()

	st := s.stripeFor(sess.ID)
	st.mu.Lock()
	st.entries[sess.ID] = &sessionEntry{session: sess}
	st.mu.Unlock()
	return nil
}

// withSession runs fn with the session's lock held. fn sees a session that
// is guaranteed to still be registered.
func (s *sessionStore) withSession(id string, fn func(*domain.UploadSession) error) error {
	st := s.stripeFor(id)
	st.mu.RLock()
	entry, ok := st.entries[id]
	st.mu.RUnlock()
	if !ok {
		return port.ErrSessionNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.removed {
		return port.ErrSessionNotFound
	}
	return fn(entry.session)
}

// remove deletes the session and frees its buffers, returning the session
// that was held. Removing an unknown id reports ok=false.
func (s *sessionStore) remove(id string) (*domain.UploadSession, bool) {
	st := s.stripeFor(id)
	st.mu.Lock()
	entry, ok := st.entries[id]
	if ok {
		delete(st.entries, id)
	}
	st.mu.Unlock()
	if !ok {
		return nil, false
	}

	entry.mu.Lock()
	entry.removed = true
	sess := entry.session
	freed := sess.ReceivedBytes
	sess.Buffers = nil
	sess.ReceivedBytes = 0
	entry.mu.Unlock()

	s.capMu.Lock()
	s.sessionCount--
	s.bufferedBytes -= freed
	s.capMu.Unlock()
	return sess, true
}

// addBufferedBytes records n newly buffered bytes against the ceiling
// accounting. Negative n releases bytes.
func (s *sessionStore) addBufferedBytes(n int64) {
	s.capMu.Lock()
	s.bufferedBytes += n
	s.capMu.Unlock()
}

// stats returns the live session count and aggregate resident bytes.
func (s *sessionStore) stats() (sessions int, bytes int64) {
	s.capMu.Lock()
	defer s.capMu.Unlock()
	return s.sessionCount, s.bufferedBytes
}

// findResumable locates a non-terminal, non-expired session matching the
// file identity. Ownership is part of the match key: a session never
// resumes across owners.
func (s *sessionStore) findResumable(fileName string, fileSize int64, ownerID string) (string, bool) {
	now := s.clock.Now()
	for _, st := range s.stripes {
		st.mu.RLock()
		for id, entry := range st.entries {
			entry.mu.Lock()
			sess := entry.session
			match := !entry.removed &&
				!sess.Status.Terminal() &&
				now.Before(sess.ExpiresAt) &&
				sess.FileName == fileName &&
				sess.DeclaredFileSize == fileSize &&
				sess.OwnerID == ownerID
			entry.mu.Unlock()
			if match {
				st.mu.RUnlock()
				return id, true
			}
		}
		st.mu.RUnlock()
	}
	return "", false
}

// listOwner snapshots the owner's non-terminal sessions, oldest first.
func (s *sessionStore) listOwner(ownerID string) []domain.ProgressSnapshot {
	type aged struct {
		snap    domain.ProgressSnapshot
		created time.Time
	}
	var out []aged
	for _, st := range s.stripes {
		st.mu.RLock()
		for _, entry := range st.entries {
			entry.mu.Lock()
			if !entry.removed && entry.session.OwnerID == ownerID && !entry.session.Status.Terminal() {
				out = append(out, aged{entry.session.Progress(), entry.session.CreatedAt})
			}
			entry.mu.Unlock()
		}
		st.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].created.Before(out[j].created) })
	snaps := make([]domain.ProgressSnapshot, len(out))
	for i, a := range out {
		snaps[i] = a.snap
	}
	return snaps
}

// sweepCandidates lists ids that are expired or already completed.
func (s *sessionStore) sweepCandidates(now time.Time) []string {
	var ids []string
	for _, st := range s.stripes {
		st.mu.RLock()
		for id, entry := range st.entries {
			entry.mu.Lock()
			sess := entry.session
			if !entry.removed && (sess.Status == domain.StatusCompleted || now.After(sess.ExpiresAt)) {
				ids = append(ids, id)
			}
			entry.mu.Unlock()
		}
		st.mu.RUnlock()
	}
	return ids
}
