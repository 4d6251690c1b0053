// Package preprocess implements pure, deterministic, source-specific
// normalization of raw adapter records into model.Document values with
// stable ids and previous/next links.
package preprocess

import (
	"fmt"
	"sort"
	"strings"

	"convoindex/internal/model"
)

// Preprocessor normalizes one source's raw records into documents.
// Implementations do no I/O and are deterministic for a given input.
type Preprocessor interface {
	Preprocess(raw []RawMessage) ([]model.Document, error)
	Source() model.Source
}

// RawMessage is the source-shaped record an adapter emits. Fields not
// relevant to a given source are left zero.
type RawMessage struct {
	ConversationID  string
	MessageID       string
	Author          string
	Text            string
	Caption         string
	Timestamp       int64 // source-native unit: seconds or milliseconds, per source
	ReplyToID       string
	QuotedMsgID     string
	IsGroup         bool
	Extra           map[string]string
}

// orderedMessage pairs a RawMessage with its normalized (seconds) timestamp
// for stable sorting and link derivation.
type orderedMessage struct {
	raw       RawMessage
	timestamp int64
}

// sortAndLink sorts messages by (conversation_id, timestamp) ascending and
// derives previous/next message id links restricted to the in-flight
// batch. previous/next ids are the comma-joined, oldest-to-newest list of
// every prior (resp. following) message in the same conversation, not
// just the immediate neighbor.
func sortAndLink(msgs []orderedMessage) (sorted []orderedMessage, prevIDs, nextIDs []string) {
	sorted = make([]orderedMessage, len(msgs))
	copy(sorted, msgs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].raw.ConversationID != sorted[j].raw.ConversationID {
			return sorted[i].raw.ConversationID < sorted[j].raw.ConversationID
		}
		return sorted[i].timestamp < sorted[j].timestamp
	})

	prevIDs = make([]string, len(sorted))
	nextIDs = make([]string, len(sorted))

	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].raw.ConversationID != sorted[start].raw.ConversationID {
			ids := make([]string, i-start)
			for j := start; j < i; j++ {
				ids[j-start] = sorted[j].raw.MessageID
			}
			for j := start; j < i; j++ {
				prevIDs[j] = strings.Join(ids[:j-start], ",")
				nextIDs[j] = strings.Join(ids[j-start+1:], ",")
			}
			start = i
		}
	}
	return sorted, prevIDs, nextIDs
}

// isBot flags a username ending in "bot", case-insensitive.
func isBot(author string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(author)), "bot")
}

// composeText picks the searchable body: the message text, or for
// media-only messages a caption, or a sentinel if neither is present.
func composeText(text, caption string) string {
	text = strings.TrimSpace(text)
	if text != "" {
		return text
	}
	caption = strings.TrimSpace(caption)
	if caption != "" {
		return caption
	}
	return "[media]"
}

// replyTo resolves the common reply_to_id field from either
// source-native name.
func replyTo(replyToID, quotedMsgID string) string {
	if replyToID != "" {
		return replyToID
	}
	return quotedMsgID
}

func baseMetadata(source model.Source, conversationID, messageID, author, replyToID string, isGroup bool) map[string]string {
	meta := map[string]string{
		model.MetaSource:         string(source),
		model.MetaConversationID: conversationID,
		model.MetaMessageID:      messageID,
		model.MetaAuthor:         author,
		model.MetaIsBot:          fmt.Sprintf("%t", isBot(author)),
		model.MetaIsGroup:        fmt.Sprintf("%t", isGroup),
	}
	if replyToID != "" {
		meta[model.MetaReplyToID] = replyToID
	}
	return meta
}
