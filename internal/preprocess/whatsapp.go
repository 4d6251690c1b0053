package preprocess

import (
	"errors"
	"fmt"

	"convoindex/internal/model"
)

// WhatsApp implements Preprocessor for the WhatsApp-style bridge
// source. Raw timestamps arrive as epoch milliseconds and must be
// normalized to seconds in metadata.timestamp_sec while the original
// millisecond value is preserved in metadata.timestamp.
type WhatsApp struct{}

var _ Preprocessor = WhatsApp{}

func (WhatsApp) Source() model.Source { return model.SourceWhatsApp }

func (WhatsApp) Preprocess(raw []RawMessage) ([]model.Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: whatsapp preprocess received nil batch", model.ErrPreprocessor)
	}

	ordered := make([]orderedMessage, 0, len(raw))
	var skipped int
	for _, m := range raw {
		if m.ConversationID == "" || m.MessageID == "" {
			skipped++
			continue
		}
		ordered = append(ordered, orderedMessage{raw: m, timestamp: m.Timestamp / 1000})
	}
	if len(ordered) == 0 {
		if skipped > 0 {
			return nil, nil
		}
		return nil, errors.New("whatsapp preprocess: empty batch")
	}

	sorted, prevIDs, nextIDs := sortAndLink(ordered)

	docs := make([]model.Document, 0, len(sorted))
	for i, om := range sorted {
		r := om.raw
		id := model.StableID(model.SourceWhatsApp, r.ConversationID, r.MessageID)
		meta := baseMetadata(model.SourceWhatsApp, r.ConversationID, r.MessageID, r.Author, replyTo(r.ReplyToID, r.QuotedMsgID), r.IsGroup)
		meta[model.MetaTimestamp] = fmt.Sprintf("%d", r.Timestamp)
		meta[model.MetaTimestampSec] = fmt.Sprintf("%d", om.timestamp)
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
