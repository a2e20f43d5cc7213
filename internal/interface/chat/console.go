package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/realm-weaver/weaver-bot/internal/domain/notification"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONSOLE GATEWAY
// Newline-delimited JSON in, newline-delimited JSON out. Stands in for the
// platform gateway in local runs and tests.
// ══════════════════════════════════════════════════════════════════════════════

// Envelope types.
const (
	EnvelopeMessage    = "message"
	EnvelopeCommand    = "command"
	EnvelopeMemberJoin = "member_join"
)

// Output line types.
const (
	OutputReply        = "reply"
	OutputNotification = "notification"
	OutputError        = "error"
)

// maxLineSize bounds one inbound envelope.
const maxLineSize = 1 << 20

// Envelope is one inbound line.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	GuildID   string          `json:"guild_id"`
	UserID    string          `json:"user_id"`
	Username  string          `json:"username,omitempty"`
	Bot       bool            `json:"bot,omitempty"`
	Admin     bool            `json:"admin,omitempty"`
	Command   string          `json:"command,omitempty"`
	TargetID  string          `json:"target_id,omitempty"`
	Target    string          `json:"target_name,omitempty"`
	Amount    json.RawMessage `json:"amount,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Output is one outbound line.
type Output struct {
	Type    string         `json:"type"`
	ID      string         `json:"id,omitempty"`
	GuildID shared.GuildID `json:"guild_id,omitempty"`
	Channel string         `json:"channel,omitempty"`
	Result  *Result        `json:"result,omitempty"`
	Embed   *Embed         `json:"embed,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Console reads envelopes and writes replies and announcements. It is also
// the notification.Sink and the name Directory of the router it feeds.
type Console struct {
	out    io.Writer
	outMu  sync.Mutex
	router *Router
	logger *logger.Logger

	namesMu sync.RWMutex
	names   map[shared.GuildID]map[shared.UserID]string

	presenter *Presenter
}

// NewConsole creates a console writing to out. Attach a router with
// SetRouter before Run.
func NewConsole(out io.Writer, log *logger.Logger) *Console {
	if log == nil {
		log = logger.Nop()
	}
	c := &Console{
		out:    out,
		logger: log.With(logger.Component("console")),
		names:  make(map[shared.GuildID]map[shared.UserID]string),
	}
	c.presenter = NewPresenter(c)
	return c
}

// Presenter returns a presenter resolving names seen by the console.
func (c *Console) Presenter() *Presenter { return c.presenter }

// SetRouter attaches the router envelopes are dispatched to.
func (c *Console) SetRouter(r *Router) { c.router = r }

var (
	_ notification.Sink = (*Console)(nil)
	_ Directory         = (*Console)(nil)
)

// DisplayName implements Directory.
func (c *Console) DisplayName(guild shared.GuildID, user shared.UserID) string {
	c.namesMu.RLock()
	defer c.namesMu.RUnlock()
	if name, ok := c.names[guild][user]; ok {
		return name
	}
	return Mention(user)
}

func (c *Console) remember(guild, user, name string) {
	if guild == "" || user == "" || name == "" {
		return
	}
	c.namesMu.Lock()
	defer c.namesMu.Unlock()
	g, ok := c.names[shared.GuildID(guild)]
	if !ok {
		g = make(map[shared.UserID]string)
		c.names[shared.GuildID(guild)] = g
	}
	g[shared.UserID(user)] = name
}

// Deliver implements notification.Sink.
func (c *Console) Deliver(_ context.Context, n notification.Notification) error {
	embed := c.presenter.Announcement(n)
	return c.write(Output{
		Type:    OutputNotification,
		ID:      n.ID,
		GuildID: n.GuildID,
		Channel: n.Channel(),
		Embed:   &embed,
	})
}

// Run processes envelopes from in until EOF or ctx is cancelled. Malformed
// lines produce an error line and are skipped.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	if c.router == nil {
		return errors.New("console: no router attached")
	}

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
		for sc.Scan() {
			line := append([]byte(nil), sc.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					if err != nil {
						return fmt.Errorf("console: read input: %w", err)
					}
				default:
				}
				c.logger.Info("input closed")
				return nil
			}
			c.handleLine(ctx, line)
		}
	}
}

func (c *Console) handleLine(ctx context.Context, line []byte) {
	if len(bytes.TrimSpace(line)) == 0 {
		return
	}
	if !gjson.ValidBytes(line) {
		c.writeError("", "malformed envelope")
		return
	}

	typ := gjson.GetBytes(line, "type").String()
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		c.writeError(gjson.GetBytes(line, "id").String(), "invalid envelope: "+err.Error())
		return
	}
	c.remember(env.GuildID, env.UserID, env.Username)
	c.remember(env.GuildID, env.TargetID, env.Target)

	switch typ {
	case EnvelopeMessage:
		_ = c.router.HandleActivity(ctx, Activity{
			GuildID: env.GuildID,
			UserID:  env.UserID,
			IsBot:   env.Bot,
			At:      env.Timestamp,
		})

	case EnvelopeMemberJoin:
		_ = c.router.HandleJoin(ctx, Join{
			GuildID:     env.GuildID,
			UserID:      env.UserID,
			DisplayName: env.Username,
		})

	case EnvelopeCommand:
		res := c.router.HandleCommand(ctx, Request{
			Name:          env.Command,
			GuildID:       env.GuildID,
			CallerID:      env.UserID,
			TargetUserID:  env.TargetID,
			Amount:        amountOption(env.Amount),
			CallerIsAdmin: env.Admin,
		})
		if err := c.write(Output{Type: OutputReply, ID: env.ID, GuildID: shared.GuildID(env.GuildID), Result: &res}); err != nil {
			c.logger.Warn("reply not written", logger.Err(err))
		}

	default:
		c.writeError(env.ID, fmt.Sprintf("unknown envelope type %q", typ))
	}
}

// amountOption turns the raw amount value into the command option text.
// Strings are passed through unquoted, so "ten" reaches ParseAmount and is
// rejected there, after the admin check.
func amountOption(raw json.RawMessage) json.Number {
	v := gjson.ParseBytes(raw)
	switch v.Type {
	case gjson.Null:
		return ""
	case gjson.String:
		return json.Number(v.Str)
	default:
		return json.Number(v.Raw)
	}
}

func (c *Console) writeError(id, msg string) {
	if err := c.write(Output{Type: OutputError, ID: id, Error: msg}); err != nil {
		c.logger.Warn("error line not written", logger.Err(err))
	}
}

func (c *Console) write(o Output) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err = c.out.Write(data)
	return err
}
