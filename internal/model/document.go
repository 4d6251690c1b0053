// Package model holds the data types shared across every convoindex
// component: the Document written by ingestion and read by retrieval,
// and the per-ingestor state persisted between runs.
package model

import (
	"strconv"
	"strings"
	"time"
)

// Metadata keys recognized by downstream components. Source-specific
// preprocessors are free to add further keys; these are the ones the
// vector store, retrieval core, and prompt builder read by name.
const (
	MetaSource             = "source"
	MetaConversationID     = "conversation_id"
	MetaMessageID          = "message_id"
	MetaAuthor             = "author"
	MetaTimestamp          = "timestamp"
	MetaTimestampSec       = "timestamp_sec"
	MetaPreviousMessageIDs = "previous_message_ids"
	MetaNextMessageIDs     = "next_message_ids"
	MetaReplyToID          = "reply_to_id"
	MetaIsBot              = "is_bot"
	MetaIsGroup            = "is_group"
)

// Source enumerates the ingestion sources this module understands.
type Source string

const (
	SourceTelegram Source = "telegram"
	SourceWhatsApp Source = "whatsapp"
	SourceGitHub   Source = "github"
)

// Document is the unit of storage in the vector store.
// Metadata values are stored as strings; numeric/bool fields are encoded
// the way they would appear on the wire (decimal, "true"/"false") so that
// a single map type can carry every source's free-form fields.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
	Vector   []float32
}

// StableID builds the canonical "{source}_{conversation_id}_{message_id}" id.
func StableID(source Source, conversationID, messageID string) string {
	return string(source) + "_" + conversationID + "_" + messageID
}

// JoinIDs comma-joins message ids oldest->newest. An empty slice yields "".
func JoinIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// SplitIDs parses a comma-joined previous/next id list: the literal
// tokens "false" and "null" mean "absent" and are dropped.
func SplitIDs(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "false" || raw == "null" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "false" || p == "null" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseTimestamp accepts either a numeric epoch (seconds) or an ISO-8601
// string and returns epoch seconds, matching the dual representation
// allowed for metadata.timestamp.
func ParseTimestamp(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return NormalizeEpoch(n), true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return NormalizeEpoch(int64(f)), true
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// NormalizeEpoch converts an epoch value to seconds using the prompt
// builder's magnitude thresholds: numeric < 10^10 is already seconds,
// numeric >= 10^13 is milliseconds. Values in between are left
// untouched rather than guessed at.
func NormalizeEpoch(v int64) int64 {
	if v >= 10_000_000_000_000 {
		return v / 1000
	}
	return v
}
