// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package websocket

import (
	"fmt"
	"sort"
	"sync"
)

// PageKey addresses the room of everyone viewing a page.
func PageKey(pageID int64) string {
	return fmt.Sprintf("page:%d", pageID)
}

// UserKey addresses the notification channel of one user.
func UserKey(userID int64) string {
	return fmt.Sprintf("user:%d", userID)
}

// group is the member set of one key. Its mutex also serializes fan-out
// for that key, so delivery order per session equals publish order.
type group struct {
	mu      sync.Mutex
	members map[*Session]struct{}
	// dead is set once the group has emptied and left the map. A Join that
	// raced with the removal retries against a fresh group.
	dead bool
}

// Registry maps room and user keys to their live sessions. Locking is per
// key; a busy room never blocks an unrelated one.
type Registry struct {
	groups sync.Map // string -> *group
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Join adds s to key. Joining twice is a no-op.
func (r *Registry) Join(key string, s *Session) {
	for {
		v, _ := r.groups.LoadOrStore(key, &group{members: make(map[*Session]struct{})})
		g := v.(*group)

		g.mu.Lock()
		if g.dead {
			g.mu.Unlock()
			continue
		}
		g.members[s] = struct{}{}
		g.mu.Unlock()
		return
	}
}

// Leave removes s from key. Leaving a key s never joined is a no-op.
func (r *Registry) Leave(key string, s *Session) {
	v, ok := r.groups.Load(key)
	if !ok {
		return
	}
	g := v.(*group)

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, s)
	if len(g.members) == 0 && !g.dead {
		g.dead = true
		r.groups.CompareAndDelete(key, g)
	}
}

// MembersOf returns a snapshot of the sessions joined to key, ordered by
// session id. The result may be empty.
func (r *Registry) MembersOf(key string) []*Session {
	var members []*Session
	r.withMembers(key, func(snapshot []*Session) {
		members = snapshot
	})
	return members
}

// Rooms returns the number of keys with at least one member.
func (r *Registry) Rooms() int {
	n := 0
	r.groups.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// withMembers runs fn with the sorted members of key while holding the
// key's lock. fn must not call Join or Leave for the same key.
func (r *Registry) withMembers(key string, fn func([]*Session)) {
	v, ok := r.groups.Load(key)
	if !ok {
		fn(nil)
		return
	}
	g := v.(*group)

	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]*Session, 0, len(g.members))
	for s := range g.members {
		members = append(members, s)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].id < members[j].id
	})
	fn(members)
}
