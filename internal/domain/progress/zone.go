package progress

// Zone is a named, inclusive range of levels.
type Zone struct {
	Name     string
	MinLevel int
	MaxLevel int
}

// Contains reports whether level falls inside the zone.
func (z Zone) Contains(level int) bool {
	return level >= z.MinLevel && level <= z.MaxLevel
}

// TerminalZone is returned for every level above the last configured range.
const TerminalZone = "Eternal Zone"

var zoneTable = []Zone{
	{Name: "Awakened Zone", MinLevel: 0, MaxLevel: 10},
	{Name: "Essence Zone", MinLevel: 11, MaxLevel: 20},
	{Name: "Master Zone", MinLevel: 21, MaxLevel: 30},
	{Name: "Transcendence Zone", MinLevel: 31, MaxLevel: 40},
	{Name: "Supreme Zone", MinLevel: 41, MaxLevel: 50},
	{Name: "Sovereign Zone", MinLevel: 51, MaxLevel: 60},
	{Name: "Celestial Zone", MinLevel: 61, MaxLevel: 70},
	{Name: "Demi-God Zone", MinLevel: 71, MaxLevel: 80},
	{Name: "God Zone", MinLevel: 81, MaxLevel: 90},
	{Name: TerminalZone, MinLevel: 91, MaxLevel: 100},
}

// Zones returns a copy of the zone table in ascending order.
func Zones() []Zone {
	out := make([]Zone, len(zoneTable))
	copy(out, zoneTable)
	return out
}

// ZoneFor returns the name of the first zone containing level. Levels above
// the table map to TerminalZone, levels below it to the first zone.
func ZoneFor(level int) string {
	if level < zoneTable[0].MinLevel {
		return zoneTable[0].Name
	}
	for _, z := range zoneTable {
		if z.Contains(level) {
			return z.Name
		}
	}
	return TerminalZone
}
