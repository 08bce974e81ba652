package chatplatform

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// DiscordClient wraps *discordgo.Session behind the Client contract. Kept
// deliberately thin per the explicit non-goal on the platform's own client
// library (§1): every method here is a direct, un-enriched pass-through.
type DiscordClient struct {
	Session *discordgo.Session
}

func NewDiscordClient(s *discordgo.Session) *DiscordClient {
	return &DiscordClient{Session: s}
}

func (c *DiscordClient) ResolveChannel(ctx context.Context, guildID, nameOrID string) (ChannelRef, error) {
	// ID path tried first.
	if ch, err := c.Session.Channel(nameOrID); err == nil && ch != nil {
		return &discordChannel{session: c.Session, ch: ch}, nil
	}

	guild, err := c.Session.State.Guild(guildID)
	if err != nil {
		guild, err = c.Session.Guild(guildID)
		if err != nil {
			return nil, fmt.Errorf("chatplatform: guild %s not found: %w", guildID, err)
		}
	}
	want := strings.ToLower(strings.TrimPrefix(nameOrID, "#"))
	for _, ch := range guild.Channels {
		if strings.ToLower(ch.Name) == want {
			return &discordChannel{session: c.Session, ch: ch}, nil
		}
	}
	return nil, fmt.Errorf("chatplatform: channel %q not found in guild %s", nameOrID, guildID)
}

func (c *DiscordClient) GetChannel(ctx context.Context, channelID string) (ChannelRef, error) {
	ch, err := c.Session.Channel(channelID)
	if err != nil {
		return nil, err
	}
	return &discordChannel{session: c.Session, ch: ch}, nil
}

func (c *DiscordClient) GetForumChannel(ctx context.Context, channelID string) (ForumChannel, error) {
	ch, err := c.Session.Channel(channelID)
	if err != nil {
		return nil, err
	}
	return &discordForum{session: c.Session, ch: ch}, nil
}

type discordChannel struct {
	session *discordgo.Session
	ch      *discordgo.Channel
}

func (c *discordChannel) ID() string   { return c.ch.ID }
func (c *discordChannel) Name() string { return c.ch.Name }

func (c *discordChannel) Send(ctx context.Context, opts SendOptions) (string, error) {
	parse := make([]discordgo.AllowedMentionType, 0, len(opts.AllowedMentions.Parse))
	for _, p := range opts.AllowedMentions.Parse {
		parse = append(parse, discordgo.AllowedMentionType(p))
	}
	send := &discordgo.MessageSend{
		Content:         opts.Content,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: parse},
	}
	for _, f := range opts.Files {
		send.Files = append(send.Files, &discordgo.File{
			Name:        f.Name,
			ContentType: f.ContentType,
			Reader:      bytes.NewReader(f.Data),
		})
	}
	msg, err := c.session.ChannelMessageSendComplex(c.ch.ID, send)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

type discordForum struct {
	session *discordgo.Session
	ch      *discordgo.Channel
}

func (f *discordForum) ID() string { return f.ch.ID }

func (f *discordForum) FetchActiveThreads(ctx context.Context) (map[string]Thread, error) {
	active, err := f.session.GuildThreadsActive(f.ch.GuildID)
	if err != nil {
		return nil, err
	}
	return f.filterParented(active.Threads), nil
}

func (f *discordForum) FetchArchivedThreads(ctx context.Context) (map[string]Thread, error) {
	archived, err := f.session.ThreadsArchived(f.ch.ID, nil, 0)
	if err != nil {
		return nil, err
	}
	return f.filterParented(archived.Threads), nil
}

func (f *discordForum) filterParented(threads []*discordgo.Channel) map[string]Thread {
	out := make(map[string]Thread, len(threads))
	for _, t := range threads {
		if t.ParentID != f.ch.ID {
			continue
		}
		out[t.ID] = &discordThread{session: f.session, ch: t}
	}
	return out
}

type discordThread struct {
	session *discordgo.Session
	ch      *discordgo.Channel
}

func (t *discordThread) ID() string              { return t.ch.ID }
func (t *discordThread) ParentID() string        { return t.ch.ParentID }
func (t *discordThread) Name() string             { return t.ch.Name }
func (t *discordThread) Archived() bool           { return t.ch.ThreadMetadata != nil && t.ch.ThreadMetadata.Archived }
func (t *discordThread) AppliedTags() []string    { return t.ch.AppliedTags }

func (t *discordThread) Edit(ctx context.Context, appliedTags []string) error {
	_, err := t.session.ChannelEditComplex(t.ch.ID, &discordgo.ChannelEdit{AppliedTags: &appliedTags})
	return err
}

func (t *discordThread) SetName(ctx context.Context, name string) error {
	_, err := t.session.ChannelEditComplex(t.ch.ID, &discordgo.ChannelEdit{Name: name})
	return err
}

func (t *discordThread) SetArchived(ctx context.Context, archived bool) error {
	_, err := t.session.ChannelEditComplex(t.ch.ID, &discordgo.ChannelEdit{Archived: &archived})
	return err
}

func (t *discordThread) FetchStarterMessage(ctx context.Context) (*Message, error) {
	msg, err := t.session.ChannelMessage(t.ch.ID, t.ch.ID)
	if err != nil {
		return nil, err
	}
	return &Message{ID: msg.ID, Content: msg.Content}, nil
}

func (t *discordThread) FetchMessage(ctx context.Context, messageID string) (*Message, error) {
	msg, err := t.session.ChannelMessage(t.ch.ID, messageID)
	if err != nil {
		return nil, err
	}
	return &Message{ID: msg.ID, Content: msg.Content}, nil
}

func (t *discordThread) FetchPinnedMessages(ctx context.Context) ([]Message, error) {
	pins, err := t.session.ChannelMessagesPinned(t.ch.ID)
	if err != nil {
		return nil, err
	}
	out := make([]Message, 0, len(pins))
	for _, m := range pins {
		out = append(out, Message{ID: m.ID, Content: m.Content})
	}
	return out, nil
}

func (t *discordThread) SendMessage(ctx context.Context, content string) (string, error) {
	msg, err := t.session.ChannelMessageSend(t.ch.ID, content)
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (t *discordThread) EditMessage(ctx context.Context, messageID, content string) error {
	_, err := t.session.ChannelMessageEdit(t.ch.ID, messageID, content)
	return err
}

func (t *discordThread) PinMessage(ctx context.Context, messageID string) error {
	return t.session.ChannelMessagePin(t.ch.ID, messageID)
}
