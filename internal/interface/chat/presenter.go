package chat

import (
	"errors"
	"fmt"

	"github.com/realm-weaver/weaver-bot/internal/application/command"
	"github.com/realm-weaver/weaver-bot/internal/application/query"
	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/notification"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VIEW TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Embed colors, as 0xRRGGBB.
const (
	ColorInfo    = 0x0099ff
	ColorLevelUp = 0x00ff00
	ColorZone    = 0xff0000
)

// Field is one name/value row of an embed.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Embed is a titled card with optional rows.
type Embed struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color"`
	Fields      []Field `json:"fields,omitempty"`
}

// Result is the reply to one command. Ephemeral replies are shown to the
// caller only.
type Result struct {
	Success   bool   `json:"success"`
	Text      string `json:"text,omitempty"`
	Embed     *Embed `json:"embed,omitempty"`
	Ephemeral bool   `json:"ephemeral,omitempty"`
}

// Directory resolves display names of members. Implementations fall back to
// a mention when the name is unknown.
type Directory interface {
	DisplayName(guild shared.GuildID, user shared.UserID) string
}

// Mention renders the platform mention of a user.
func Mention(user shared.UserID) string {
	return "<@" + user.String() + ">"
}

type mentionDirectory struct{}

func (mentionDirectory) DisplayName(_ shared.GuildID, user shared.UserID) string {
	return Mention(user)
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTER
// ══════════════════════════════════════════════════════════════════════════════

// Reply texts.
const (
	TextNoExperience     = "You haven't earned any experience yet!"
	TextAdminOnly        = "Only administrators can use this command!"
	TextLeaderboardError = "There was an error while generating the leaderboard."
	TextUnknownCommand   = "Unknown command."
	TextTryAgain         = "Something went wrong. Please try again later."
	TitleLevelUp         = "Level Up!"
	TitleZone            = "🌟 New Zone Achievement! 🌟"
	TitleWelcome         = "Welcome to the Realm of Weaver"
)

// Presenter turns query and command results into replies and announcements.
type Presenter struct {
	names Directory
}

// NewPresenter creates a presenter. names may be nil.
func NewPresenter(names Directory) *Presenter {
	if names == nil {
		names = mentionDirectory{}
	}
	return &Presenter{names: names}
}

// Rank formats a rank card.
func (p *Presenter) Rank(guild shared.GuildID, res *query.GetRankResult) Result {
	if !res.HasExperience {
		return Result{Success: true, Text: TextNoExperience}
	}
	fields := []Field{
		{Name: "Level", Value: fmt.Sprint(res.Level)},
		{Name: "Experience", Value: fmt.Sprint(res.Exp)},
		{Name: "Zone", Value: res.Zone},
	}
	if res.Position != shared.Unranked {
		fields = append(fields, Field{Name: "Position", Value: fmt.Sprintf("#%d of %d", res.Position, res.Members)})
	}
	return Result{
		Success: true,
		Embed: &Embed{
			Title:  p.names.DisplayName(guild, res.UserID) + "'s Rank",
			Color:  ColorInfo,
			Fields: fields,
		},
	}
}

// LeaderboardTitle is the leaderboard heading for a board of limit rows.
func LeaderboardTitle(limit int) string {
	return fmt.Sprintf("Top %d Cultivators", limit)
}

// Leaderboard formats the top of a guild. The title names the requested
// limit; an empty board still renders it with no rows.
func (p *Presenter) Leaderboard(board *leaderboard.Board, limit int) Result {
	embed := &Embed{Title: LeaderboardTitle(limit), Color: ColorInfo}
	if board != nil {
		for _, e := range board.Entries {
			embed.Fields = append(embed.Fields, Field{
				Name:  fmt.Sprintf("%d. %s", e.Position, p.names.DisplayName(board.GuildID, e.UserID)),
				Value: fmt.Sprintf("Level: %d | EXP: %d | Zone: %s", e.Level, e.Exp, e.Zone),
			})
		}
	}
	return Result{Success: true, Embed: embed}
}

// Adjusted acknowledges an administrative change.
func (p *Presenter) Adjusted(guild shared.GuildID, res *command.AdjustExperienceResult) Result {
	name := p.names.DisplayName(guild, res.TargetUserID)
	text := fmt.Sprintf("Successfully added %d exp to %s", res.Amount, name)
	if res.Adjustment == command.AdjustmentRemove {
		text = fmt.Sprintf("Successfully removed %d exp from %s", res.Amount, name)
	}
	return Result{Success: true, Text: text}
}

// Failure maps a command error to an ephemeral reply.
func (p *Presenter) Failure(name string, err error) Result {
	r := Result{Ephemeral: true}
	switch {
	case shared.IsForbidden(err):
		r.Text = TextAdminOnly
	case errors.Is(err, shared.ErrUnknownCommand):
		r.Text = TextUnknownCommand
	case name == CommandLeaderboard:
		r.Text = TextLeaderboardError
	case shared.IsValidation(err):
		r.Text = validationText(err)
	default:
		r.Text = TextTryAgain
	}
	return r
}

// validationText returns the message of the innermost domain error.
func validationText(err error) string {
	var msg string
	for err != nil {
		var de *shared.DomainError
		if !errors.As(err, &de) {
			break
		}
		msg = de.Message
		err = de.Err
	}
	if msg == "" {
		return TextTryAgain
	}
	return upperFirst(msg) + "."
}

func upperFirst(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

// Announcement renders a notification as an embed.
func (p *Presenter) Announcement(n notification.Notification) Embed {
	who := Mention(n.UserID)
	switch n.Kind {
	case notification.KindZoneChange:
		return Embed{
			Title:       TitleZone,
			Description: fmt.Sprintf("%s has ascended to the %s!", who, n.NewZone),
			Color:       ColorZone,
		}
	case notification.KindWelcome:
		return Embed{
			Title:       TitleWelcome,
			Description: fmt.Sprintf("Destiny weaves a new tale today—welcome to the Realm, %s!", who),
			Color:       ColorInfo,
		}
	default:
		return Embed{
			Title:       TitleLevelUp,
			Description: fmt.Sprintf("%s has reached level %d!", who, n.NewLevel),
			Color:       ColorLevelUp,
		}
	}
}
