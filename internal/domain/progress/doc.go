// Package progress contains the experience and leveling model of the Weaver bot.
//
// The package defines:
//
//   - Record: experience and level of one member of one guild
//   - Zone table: the fixed, ordered level ranges and ZoneFor
//   - Leveling rules: LevelFor and ApplyDelta
//   - Ledger: the in-memory form of every record, ordered by first appearance
//   - Repository: the contract of the progress store
//
// Level is never an independent fact. It is derived from experience with
// LevelFor on load and after every mutation:
//
//	rec := progress.NewRecord()           // {0, 1}
//	out := progress.ApplyDelta(rec, 105)  // out.Record == {105, 2}, out.LevelChanged
//
// Everything in this package is pure except RandomDelta, which draws the
// experience awarded for a single activity event.
package progress
