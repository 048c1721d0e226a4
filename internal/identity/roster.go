package identity

import (
	"strings"

	"github.com/kazz187/taskmirror/internal/target"
	"github.com/kazz187/taskmirror/internal/task"
)

type strength int

const (
	fragment strength = iota
	whole
)

type entry struct {
	id       task.UserID
	strength strength
}

// Roster maps normalized identifier variants to target user ids.
type Roster struct {
	variants map[string]entry
	members  int
}

// BuildRoster indexes username, email and email local-part of every member
// as whole variants. A username made of '.', '_' or '-' separated segments
// additionally contributes each segment and the space-joined segments as
// fragment variants. On collision a whole variant replaces a fragment; among
// equals the earlier member keeps the key.
func BuildRoster(members []*target.Member) *Roster {
	r := &Roster{variants: make(map[string]entry)}
	for _, m := range members {
		if m == nil {
			continue
		}
		r.members++
		username := Normalize(m.Username)
		email := Normalize(m.Email)

		r.add(username, m.ID, whole)
		r.add(email, m.ID, whole)
		r.add(localPart(email), m.ID, whole)

		if strings.ContainsFunc(username, isSeparator) {
			segments := strings.FieldsFunc(username, isSeparator)
			r.add(strings.Join(segments, " "), m.ID, fragment)
			for _, seg := range segments {
				r.add(seg, m.ID, fragment)
			}
		}
	}
	return r
}

func (r *Roster) add(key string, id task.UserID, s strength) {
	key = strings.TrimSpace(key)
	if key == "" {
		return
	}
	if cur, ok := r.variants[key]; ok && cur.strength >= s {
		return
	}
	r.variants[key] = entry{id: id, strength: s}
}

func (r *Roster) lookup(key string) (task.UserID, bool) {
	if key == "" {
		return 0, false
	}
	e, ok := r.variants[key]
	return e.id, ok
}

// Len returns the number of members the roster was built from.
func (r *Roster) Len() int {
	if r == nil {
		return 0
	}
	return r.members
}

// Match resolves one assignee: email, then email local-part, then the full
// display name, then any display-name token.
func (r *Roster) Match(name, email string) (task.UserID, bool) {
	if r == nil {
		return 0, false
	}
	email = Normalize(email)
	if id, ok := r.lookup(email); ok {
		return id, true
	}
	if id, ok := r.lookup(localPart(email)); ok {
		return id, true
	}
	name = Normalize(name)
	if id, ok := r.lookup(name); ok {
		return id, true
	}
	for _, token := range strings.Fields(name) {
		if id, ok := r.lookup(token); ok {
			return id, true
		}
	}
	return 0, false
}
