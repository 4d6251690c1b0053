package promptbuilder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/config"
	"convoindex/internal/model"
)

func doc(source, conv, msgID, author, text, ts, prev, next string) model.Document {
	meta := map[string]string{
		model.MetaSource:             source,
		model.MetaConversationID:     conv,
		model.MetaMessageID:          msgID,
		model.MetaAuthor:             author,
		model.MetaTimestamp:          ts,
		model.MetaPreviousMessageIDs: prev,
		model.MetaNextMessageIDs:     next,
	}
	return model.Document{ID: source + "_" + conv + "_" + msgID, Text: text, Metadata: meta}
}

func TestBuildReturnsErrorTemplateForEmptyQuestion(t *testing.T) {
	b := NewBuilder(config.PromptBuilderConfig{})
	out := b.Build("   ", []model.Document{doc("telegram", "c1", "m1", "alice", "hi", "100", "", "")})
	assert.Contains(t, out, "Unable to process")
}

func TestBuildReturnsFallbackTemplateWhenNoDocuments(t *testing.T) {
	b := NewBuilder(config.PromptBuilderConfig{})
	out := b.Build("what happened?", nil)
	assert.Contains(t, out, "Answer based on general knowledge")
	assert.Contains(t, out, "what happened?")
}

func TestBuildRendersContextGroupedBySourceAndConversation(t *testing.T) {
	b := NewBuilder(config.PromptBuilderConfig{})
	docs := []model.Document{
		doc("telegram", "c1", "m2", "bob", "second", "200", "m1", ""),
		doc("telegram", "c1", "m1", "alice", "first", "100", "", "m2"),
	}
	out := b.Build("what was said?", docs)
	assert.Contains(t, out, "### Source: telegram")
	assert.Contains(t, out, "#### Conversation: c1")

	firstIdx := strings.Index(out, "Message ID: m1")
	secondIdx := strings.Index(out, "Message ID: m2")
	require.True(t, firstIdx >= 0 && secondIdx >= 0)
	assert.Less(t, firstIdx, secondIdx, "messages should render in ascending timestamp order")
}

func TestBuildAddsPartialContextBannerWhenPreviousMissing(t *testing.T) {
	b := NewBuilder(config.PromptBuilderConfig{})
	docs := []model.Document{
		doc("telegram", "c1", "m5", "alice", "middle of conversation", "100", "m4", ""),
	}
	out := b.Build("q", docs)
	assert.Contains(t, out, "earlier messages not shown")
}

func TestBuildFlagsGapOnLargeTimestampJump(t *testing.T) {
	b := NewBuilder(config.PromptBuilderConfig{})
	docs := []model.Document{
		doc("telegram", "c1", "m1", "alice", "first", "0", "", "m2"),
		doc("telegram", "c1", "m2", "bob", "much later", "10000", "m1", ""),
	}
	out := b.Build("q", docs)
	assert.Contains(t, out, "Some messages between these timestamps are not included")
}

func TestBuildUsesCustomTemplate(t *testing.T) {
	b := NewBuilder(config.PromptBuilderConfig{Template: "CTX: {{context}} Q: {{question}}"})
	docs := []model.Document{doc("telegram", "c1", "m1", "alice", "hi", "1", "", "")}
	out := b.Build("what?", docs)
	assert.True(t, strings.HasPrefix(out, "CTX:"))
	assert.Contains(t, out, "Q: what?")
}
