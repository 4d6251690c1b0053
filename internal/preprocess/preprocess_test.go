package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"convoindex/internal/model"
)

func TestTelegramPreprocessLinksAndIDs(t *testing.T) {
	raw := []RawMessage{
		{ConversationID: "c1", MessageID: "3", Author: "alice", Text: "third", Timestamp: 300},
		{ConversationID: "c1", MessageID: "1", Author: "alice", Text: "first", Timestamp: 100},
		{ConversationID: "c1", MessageID: "2", Author: "bot_helper", Text: "second", Timestamp: 200},
	}

	docs, err := Telegram{}.Preprocess(raw)
	require.NoError(t, err)
	require.Len(t, docs, 3)

	assert.Equal(t, "telegram_c1_1", docs[0].ID)
	assert.Equal(t, "telegram_c1_2", docs[1].ID)
	assert.Equal(t, "telegram_c1_3", docs[2].ID)

	assert.Empty(t, docs[0].Metadata[model.MetaPreviousMessageIDs])
	assert.Equal(t, "2,3", docs[0].Metadata[model.MetaNextMessageIDs])
	assert.Equal(t, "1", docs[1].Metadata[model.MetaPreviousMessageIDs])
	assert.Equal(t, "3", docs[1].Metadata[model.MetaNextMessageIDs])
	assert.Equal(t, "1,2", docs[2].Metadata[model.MetaPreviousMessageIDs])
	assert.Empty(t, docs[2].Metadata[model.MetaNextMessageIDs])

	assert.Equal(t, "true", docs[1].Metadata[model.MetaIsBot])
	assert.Equal(t, "false", docs[0].Metadata[model.MetaIsBot])
}

func TestWhatsAppNormalizesMillisecondsToSeconds(t *testing.T) {
	raw := []RawMessage{
		{ConversationID: "c1", MessageID: "m1", Author: "bob", Text: "hi", Timestamp: 1_700_000_000_000},
	}

	docs, err := WhatsApp{}.Preprocess(raw)
	require.NoError(t, err)
	require.Len(t, docs, 1)

	assert.Equal(t, "1700000000000", docs[0].Metadata[model.MetaTimestamp])
	assert.Equal(t, "1700000000", docs[0].Metadata[model.MetaTimestampSec])
}

func TestMediaOnlyMessageUsesCaptionOrSentinel(t *testing.T) {
	raw := []RawMessage{
		{ConversationID: "c1", MessageID: "m1", Author: "bob", Caption: "a photo", Timestamp: 1},
		{ConversationID: "c1", MessageID: "m2", Author: "bob", Timestamp: 2},
	}
	docs, err := Telegram{}.Preprocess(raw)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a photo", docs[0].Text)
	assert.Equal(t, "[media]", docs[1].Text)
}

func TestGitHubDocumentsAreAlwaysGroup(t *testing.T) {
	raw := []RawMessage{
		{ConversationID: "owner/repo#42", MessageID: "42", Author: "dev", Text: "root post", Timestamp: 1},
	}
	docs, err := GitHub{}.Preprocess(raw)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "true", docs[0].Metadata[model.MetaIsGroup])
}

func TestPreprocessRejectsNilBatch(t *testing.T) {
	_, err := Telegram{}.Preprocess(nil)
	require.Error(t, err)
}

func TestPreprocessSkipsStructurallyBadMessagesOnly(t *testing.T) {
	raw := []RawMessage{
		{ConversationID: "", MessageID: "m1", Text: "missing conversation id"},
		{ConversationID: "c1", MessageID: "m2", Text: "ok", Timestamp: 1},
	}
	docs, err := Telegram{}.Preprocess(raw)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "telegram_c1_m2", docs[0].ID)
}
