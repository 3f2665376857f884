package server

import "sync"

// Registry maps a user id to their single active connection. It is built once
// at startup and injected into every component that fans out frames; there is
// no ambient global. All operations are safe under arbitrary concurrency.
type Registry struct {
	conns sync.Map // int64 -> *Conn
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs the handle as the user's connection, evicting any
// previous handle. The later set wins: the evicted handle's own close cannot
// remove the new entry because Unregister checks handle identity.
func (r *Registry) Register(userID int64, c *Conn) {
	r.conns.Swap(userID, c)
}

// Unregister removes the entry only while the caller still owns it, so a
// delayed close from a stale connection never deletes a newer connection's
// mapping.
func (r *Registry) Unregister(userID int64, c *Conn) {
	r.conns.CompareAndDelete(userID, c)
}

// SendToUser delivers one frame to an online user. It reports false when the
// user has no registered handle or the write failed.
func (r *Registry) SendToUser(userID int64, frame []byte) bool {
	v, ok := r.conns.Load(userID)
	if !ok {
		return false
	}
	return v.(*Conn).WriteFrame(frame) == nil
}

// SendToMany is best-effort fan-out, skipping excludeID. A failed delivery to
// one recipient does not stop the rest.
func (r *Registry) SendToMany(userIDs []int64, frame []byte, excludeID int64) {
	for _, id := range userIDs {
		if id == excludeID {
			continue
		}
		r.SendToUser(id, frame)
	}
}

// Broadcast sends the frame to every registered handle. The recipient set is
// snapshotted first so concurrent register/unregister cannot disturb the
// iteration.
func (r *Registry) Broadcast(frame []byte) {
	var targets []*Conn
	r.conns.Range(func(_, v any) bool {
		targets = append(targets, v.(*Conn))
		return true
	})
	for _, c := range targets {
		c.WriteFrame(frame)
	}
}

func (r *Registry) Online(userID int64) bool {
	_, ok := r.conns.Load(userID)
	return ok
}

func (r *Registry) Count() int {
	n := 0
	r.conns.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (r *Registry) UserIDs() []int64 {
	var ids []int64
	r.conns.Range(func(k, _ any) bool {
		ids = append(ids, k.(int64))
		return true
	})
	return ids
}
