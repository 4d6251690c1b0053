package preprocess

import (
	"errors"
	"fmt"

	"convoindex/internal/model"
)

// GitHub implements Preprocessor for the repository-reader source:
// issues, PRs, and their comments. conversation_id
// is "{repo}#{issue_or_pr_number}"; message_id is the comment id, or the
// issue/PR id itself for the root post. GitHub has no private/group
// signal of its own, so every document is flagged is_group=true.
type GitHub struct{}

var _ Preprocessor = GitHub{}

func (GitHub) Source() model.Source { return model.SourceGitHub }

func (GitHub) Preprocess(raw []RawMessage) ([]model.Document, error) {
	if raw == nil {
		return nil, fmt.Errorf("%w: github preprocess received nil batch", model.ErrPreprocessor)
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
		return nil, errors.New("github preprocess: empty batch")
	}

	sorted, prevIDs, nextIDs := sortAndLink(ordered)

	docs := make([]model.Document, 0, len(sorted))
	for i, om := range sorted {
		r := om.raw
		id := model.StableID(model.SourceGitHub, r.ConversationID, r.MessageID)
		meta := baseMetadata(model.SourceGitHub, r.ConversationID, r.MessageID, r.Author, replyTo(r.ReplyToID, r.QuotedMsgID), true)
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
