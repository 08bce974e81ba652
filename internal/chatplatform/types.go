// Package chatplatform declares the §6 external interface contract the
// cron executor, forum sync engine, and action dispatcher consume from the
// chat platform. The platform's own client library is an explicit
// non-goal of this spec; only the surface the core calls through is
// defined here, narrow enough that a thin discordgo-backed adapter
// (discord.go) and a no-op test double both satisfy it trivially.
package chatplatform

import "context"

// MentionPolicy mirrors the chat platform's allowed-mentions shape. The
// zero value is "mention nobody", which is the default every outbound
// Send uses per §6.
type MentionPolicy struct {
	Parse []string // e.g. "users", "roles", "everyone" — empty means none
}

// FileAttachment is a single file to attach to an outbound message.
type FileAttachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// SendOptions parameterizes ChannelRef.Send.
type SendOptions struct {
	Content         string
	AllowedMentions MentionPolicy
	Files           []FileAttachment
}

// ChannelRef is a resolved, sendable destination — a text channel or a
// forum thread.
type ChannelRef interface {
	ID() string
	Name() string
	Send(ctx context.Context, opts SendOptions) (messageID string, err error)
}

// Resolver resolves a channel by name or ID within a guild, case-insensitive
// on name, cache-then-fetch per §6. The ID path is tried first.
type Resolver interface {
	ResolveChannel(ctx context.Context, guildID, nameOrID string) (ChannelRef, error)
}

// Message is a minimal view of a fetched chat message.
type Message struct {
	ID      string
	Content string
}

// Thread is one forum thread: its tags, archived/pin state, and the
// message operations the sync engine and executor need.
type Thread interface {
	ID() string
	ParentID() string
	Name() string
	Archived() bool
	AppliedTags() []string

	Edit(ctx context.Context, appliedTags []string) error
	SetName(ctx context.Context, name string) error
	SetArchived(ctx context.Context, archived bool) error

	FetchStarterMessage(ctx context.Context) (*Message, error)
	FetchMessage(ctx context.Context, messageID string) (*Message, error)
	FetchPinnedMessages(ctx context.Context) ([]Message, error)
	SendMessage(ctx context.Context, content string) (messageID string, err error)
	EditMessage(ctx context.Context, messageID, content string) error
	PinMessage(ctx context.Context, messageID string) error
}

// ForumChannel is the parent container of threads, per §6
// ForumChannel.threads.{fetchActive, fetchArchived}.
type ForumChannel interface {
	ID() string
	FetchActiveThreads(ctx context.Context) (map[string]Thread, error)
	FetchArchivedThreads(ctx context.Context) (map[string]Thread, error)
}

// Client is the top-level chat platform handle: guild/channel lookup plus
// forum access, per §6 Client.channels.{cache.get, fetch} and
// Client.guilds.cache.get.
type Client interface {
	Resolver
	GetChannel(ctx context.Context, channelID string) (ChannelRef, error)
	GetForumChannel(ctx context.Context, channelID string) (ForumChannel, error)
}
