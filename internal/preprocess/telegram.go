package preprocess

import (
	"errors"
	"fmt"

	"convoindex/internal/model"
)

// Telegram implements Preprocessor for the Telegram-style source. Raw
// timestamps are epoch seconds already; both metadata.timestamp and
// metadata.timestamp_sec carry the same value.
type Telegram struct{}

var _ Preprocessor = Telegram{}

func (Telegram) Source() model.Source { return model.SourceTelegram }

func (Telegram) Preprocess(raw []RawMessage) ([]model.Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: telegram preprocess received nil batch", model.ErrPreprocessor)
	}

	ordered := make([]orderedMessage, 0, len(raw))
	var skipped int
	for _, m := range raw {
		if m.ConversationID == "" || m.MessageID == "" {
			skipped++
			continue
		}
		ordered = append(ordered, orderedMessage{raw: m, timestamp: m.Timestamp})
	}
	if len(ordered) == 0 {
		if skipped > 0 {
			return nil, nil
		}
		return nil, errors.New("telegram preprocess: empty batch")
	}

	sorted, prevIDs, nextIDs := sortAndLink(ordered)

	docs := make([]model.Document, 0, len(sorted))
	for i, om := range sorted {
		r := om.raw
		id := model.StableID(model.SourceTelegram, r.ConversationID, r.MessageID)
		meta := baseMetadata(model.SourceTelegram, r.ConversationID, r.MessageID, r.Author, replyTo(r.ReplyToID, r.QuotedMsgID), r.IsGroup)
		meta[model.MetaTimestamp] = fmt.Sprintf("%d", r.Timestamp)
		meta[model.MetaTimestampSec] = fmt.Sprintf("%d", r.Timestamp)
		if prevIDs[i] != "" {
			meta[model.MetaPreviousMessageIDs] = prevIDs[i]
		}
		if nextIDs[i] != "" {
			meta[model.MetaNextMessageIDs] = nextIDs[i]
		}
		for k, v := range r.Extra {
			meta[k] = v
		}

		docs = append(docs, model.Document{
			ID:       id,
			Text:     composeText(r.Text, r.Caption),
			Metadata: meta,
		})
	}
	return docs, nil
}
