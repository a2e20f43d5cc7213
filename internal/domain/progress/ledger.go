package progress

import (
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// Standing pairs a member with their record.
type Standing struct {
	UserID shared.UserID
	Record Record
}

type guildLedger struct {
	order   []shared.UserID
	records map[shared.UserID]Record
}

// Ledger maps guild -> user -> Record. It remembers the order in which guilds
// and members first appeared, which leaderboards use to break ties.
// A Ledger is not safe for concurrent use; stores guard it.
type Ledger struct {
	order  []shared.GuildID
	guilds map[shared.GuildID]*guildLedger
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{guilds: make(map[shared.GuildID]*guildLedger)}
}

// Get returns the record of a member and whether it exists.
func (l *Ledger) Get(guild shared.GuildID, user shared.UserID) (Record, bool) {
	g, ok := l.guilds[guild]
	if !ok {
		return Record{}, false
	}
	r, ok := g.records[user]
	return r, ok
}

// Lookup returns the record of a member, or NewRecord when absent.
func (l *Ledger) Lookup(guild shared.GuildID, user shared.UserID) Record {
	if r, ok := l.Get(guild, user); ok {
		return r
	}
	return NewRecord()
}

// Set stores a record. New guilds and members are appended to the order.
func (l *Ledger) Set(guild shared.GuildID, user shared.UserID, r Record) {
	g, ok := l.guilds[guild]
	if !ok {
		g = &guildLedger{records: make(map[shared.UserID]Record)}
		l.guilds[guild] = g
		l.order = append(l.order, guild)
	}
	if _, exists := g.records[user]; !exists {
		g.order = append(g.order, user)
	}
	g.records[user] = r
}

// EnsureGuild registers a guild with no members.
func (l *Ledger) EnsureGuild(guild shared.GuildID) {
	if _, ok := l.guilds[guild]; ok {
		return
	}
	l.guilds[guild] = &guildLedger{records: make(map[shared.UserID]Record)}
	l.order = append(l.order, guild)
}

// Guilds returns guild ids in first-seen order.
func (l *Ledger) Guilds() []shared.GuildID {
	out := make([]shared.GuildID, len(l.order))
	copy(out, l.order)
	return out
}

// Standings returns every member of a guild in first-seen order.
func (l *Ledger) Standings(guild shared.GuildID) []Standing {
	g, ok := l.guilds[guild]
	if !ok {
		return []Standing{}
	}
	out := make([]Standing, 0, len(g.order))
	for _, u := range g.order {
		out = append(out, Standing{UserID: u, Record: g.records[u]})
	}
	return out
}

// Len returns the number of members across all guilds.
func (l *Ledger) Len() int {
	n := 0
	for _, g := range l.guilds {
		n += len(g.records)
	}
	return n
}

// Clone returns a deep copy.
func (l *Ledger) Clone() *Ledger {
	c := NewLedger()
	for _, guild := range l.order {
		c.EnsureGuild(guild)
		for _, s := range l.Standings(guild) {
			c.Set(guild, s.UserID, s.Record)
		}
	}
	return c
}

// Normalize re-derives every level from experience and reports whether any
// stored record changed.
func (l *Ledger) Normalize() bool {
	changed := false
	for _, g := range l.guilds {
		for u, r := range g.records {
			if n := r.Normalize(); n != r {
				g.records[u] = n
				changed = true
			}
		}
	}
	return changed
}
