// Package jsonfile implements the progress store as a single JSON document:
//
//	{ "users": { "<guildId>": { "<userId>": { "exp": 120, "level": 2 } } } }
//
// Every mutation rewrites the whole file through a temp file and a rename.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// DecodeInfo describes repairs made while decoding.
type DecodeInfo struct {
	// MissingUsers is true when the document had no "users" object.
	MissingUsers bool

	// Skipped counts guild or member entries that were not objects.
	Skipped int

	// Relevelled is true when a stored level disagreed with its experience.
	Relevelled bool
}

// NeedsRewrite reports whether the file should be written back.
func (d DecodeInfo) NeedsRewrite() bool {
	return d.MissingUsers || d.Skipped > 0 || d.Relevelled
}

var prettyOptions = &pretty.Options{Width: 80, Prefix: "", Indent: "  ", SortKeys: false}

// Decode parses a ledger document. Guild and member order follow the
// document. Unparseable input returns shared.ErrCorruptData.
func Decode(data []byte) (*progress.Ledger, DecodeInfo, error) {
	var info DecodeInfo
	ledger := progress.NewLedger()

	if len(bytes.TrimSpace(data)) == 0 || !gjson.ValidBytes(data) {
		return nil, info, shared.WrapError("jsonfile", "Decode", shared.ErrCorruptData, "ledger is not valid JSON", nil)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, info, shared.WrapError("jsonfile", "Decode", shared.ErrCorruptData, "ledger root is not an object", nil)
	}

	users := root.Get("users")
	switch {
	case !users.Exists() || users.Type == gjson.Null:
		info.MissingUsers = true
		return ledger, info, nil
	case !users.IsObject():
		return nil, info, shared.WrapError("jsonfile", "Decode", shared.ErrCorruptData, "users is not an object", nil)
	}

	users.ForEach(func(guildKey, guildVal gjson.Result) bool {
		guild := shared.GuildID(guildKey.String())
		if !guildVal.IsObject() {
			info.Skipped++
			return true
		}
		ledger.EnsureGuild(guild)
		guildVal.ForEach(func(userKey, userVal gjson.Result) bool {
			if !userVal.IsObject() {
				info.Skipped++
				return true
			}
			rec := progress.Record{
				Exp:   userVal.Get("exp").Int(),
				Level: int(userVal.Get("level").Int()),
			}
			norm := rec.Normalize()
			if norm != rec {
				info.Relevelled = true
			}
			ledger.Set(guild, shared.UserID(userKey.String()), norm)
			return true
		})
		return true
	})

	return ledger, info, nil
}

// Encode renders a ledger with two-space indentation, keeping the ledger's
// guild and member order.
func Encode(l *progress.Ledger) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"users":{`)
	for gi, guild := range l.Guilds() {
		if gi > 0 {
			buf.WriteByte(',')
		}
		if err := writeKey(&buf, guild.String()); err != nil {
			return nil, err
		}
		buf.WriteByte('{')
		for ui, s := range l.Standings(guild) {
			if ui > 0 {
				buf.WriteByte(',')
			}
			if err := writeKey(&buf, s.UserID.String()); err != nil {
				return nil, err
			}
			buf.WriteString(`{"exp":`)
			buf.WriteString(strconv.FormatInt(s.Record.Exp, 10))
			buf.WriteString(`,"level":`)
			buf.WriteString(strconv.Itoa(s.Record.Level))
			buf.WriteByte('}')
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`}}`)

	return pretty.PrettyOptions(buf.Bytes(), prettyOptions), nil
}

func writeKey(buf *bytes.Buffer, key string) error {
	quoted, err := json.Marshal(key)
	if err != nil {
		return fmt.Errorf("encode key %q: %w", key, err)
	}
	buf.Write(quoted)
	buf.WriteByte(':')
	return nil
}
