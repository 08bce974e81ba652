package actions

import (
	"context"
	"fmt"

	"github.com/nlbuilder/forgehost/internal/chatplatform"
)

// NewSendMessageHandler backs the "sendMessage" directive type, resolving
// a channel by name/ID within guildID and posting content to it. Grounded
// on mcp.go's payload-extraction-then-dispatch shape.
func NewSendMessageHandler(client chatplatform.Client, guildID string) Handler {
	return func(ctx context.Context, d Directive) Result {
		channelName, _ := d.Payload["channel"].(string)
		content, _ := d.Payload["content"].(string)
		if channelName == "" || content == "" {
			return ErrResult(fmt.Errorf("actions: sendMessage directive missing \"channel\" or \"content\""))
		}
		ch, err := client.ResolveChannel(ctx, guildID, channelName)
		if err != nil {
			return ErrResult(fmt.Errorf("actions: sendMessage: %w", err))
		}
		msgID, err := ch.Send(ctx, chatplatform.SendOptions{Content: content})
		if err != nil {
			return ErrResult(fmt.Errorf("actions: sendMessage: %w", err))
		}
		return OKResult(msgID)
	}
}

// NewEditMessageHandler backs the "editMessage" directive type. Editing a
// message is only meaningful within a thread, so this resolves the thread
// by treating "channel" as a thread ID against the configured forum.
func NewEditMessageHandler(forum chatplatform.ForumChannel) Handler {
	return func(ctx context.Context, d Directive) Result {
		threadID, _ := d.Payload["threadId"].(string)
		messageID, _ := d.Payload["messageId"].(string)
		content, _ := d.Payload["content"].(string)
		if threadID == "" || messageID == "" || content == "" {
			return ErrResult(fmt.Errorf("actions: editMessage directive missing \"threadId\", \"messageId\", or \"content\""))
		}
		th, err := resolveThread(ctx, forum, threadID)
		if err != nil {
			return ErrResult(err)
		}
		if err := th.EditMessage(ctx, messageID, content); err != nil {
			return ErrResult(fmt.Errorf("actions: editMessage: %w", err))
		}
		return OKResult(messageID)
	}
}

// NewPinMessageHandler backs the "pinMessage" directive type.
func NewPinMessageHandler(forum chatplatform.ForumChannel) Handler {
	return func(ctx context.Context, d Directive) Result {
		threadID, _ := d.Payload["threadId"].(string)
		messageID, _ := d.Payload["messageId"].(string)
		if threadID == "" || messageID == "" {
			return ErrResult(fmt.Errorf("actions: pinMessage directive missing \"threadId\" or \"messageId\""))
		}
		th, err := resolveThread(ctx, forum, threadID)
		if err != nil {
			return ErrResult(err)
		}
		if err := th.PinMessage(ctx, messageID); err != nil {
			return ErrResult(fmt.Errorf("actions: pinMessage: %w", err))
		}
		return OKResult(messageID)
	}
}

// NewArchiveThreadHandler backs the "archiveThread" directive type.
func NewArchiveThreadHandler(forum chatplatform.ForumChannel) Handler {
	return func(ctx context.Context, d Directive) Result {
		threadID, _ := d.Payload["threadId"].(string)
		archived, _ := d.Payload["archived"].(bool)
		if threadID == "" {
			return ErrResult(fmt.Errorf("actions: archiveThread directive missing \"threadId\""))
		}
		th, err := resolveThread(ctx, forum, threadID)
		if err != nil {
			return ErrResult(err)
		}
		if err := th.SetArchived(ctx, archived); err != nil {
			return ErrResult(fmt.Errorf("actions: archiveThread: %w", err))
		}
		return OKResult(threadID)
	}
}

// NewSetTagsHandler backs the "setTags" directive type, applying an
// explicit applied-tag-ID list supplied by the model.
func NewSetTagsHandler(forum chatplatform.ForumChannel) Handler {
	return func(ctx context.Context, d Directive) Result {
		threadID, _ := d.Payload["threadId"].(string)
		rawTags, _ := d.Payload["tags"].([]any)
		if threadID == "" {
			return ErrResult(fmt.Errorf("actions: setTags directive missing \"threadId\""))
		}
		tags := make([]string, 0, len(rawTags))
		for _, t := range rawTags {
			if s, ok := t.(string); ok {
				tags = append(tags, s)
			}
		}
		th, err := resolveThread(ctx, forum, threadID)
		if err != nil {
			return ErrResult(err)
		}
		if err := th.Edit(ctx, tags); err != nil {
			return ErrResult(fmt.Errorf("actions: setTags: %w", err))
		}
		return OKResult(threadID)
	}
}

func resolveThread(ctx context.Context, forum chatplatform.ForumChannel, threadID string) (chatplatform.Thread, error) {
	active, err := forum.FetchActiveThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("actions: fetch active threads: %w", err)
	}
	if th, ok := active[threadID]; ok {
		return th, nil
	}
	archived, err := forum.FetchArchivedThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("actions: fetch archived threads: %w", err)
	}
	if th, ok := archived[threadID]; ok {
		return th, nil
	}
	return nil, fmt.Errorf("actions: thread %q not found", threadID)
}
