package sourceadapter

import (
	"context"
	"time"

	"convoindex/internal/model"
	"convoindex/internal/preprocess"
)

// TelegramClient is the opaque MTProto-shaped external collaborator.
// fetchFull/fetchSince page through history with stateful offset ids;
// the real client lives outside this module's scope.
type TelegramClient interface {
	FetchHistory(ctx context.Context, offsetID int64) (msgs []preprocess.RawMessage, nextOffsetID int64, hasMore bool, err error)
	Healthcheck(ctx context.Context) error
}

// Telegram adapts a TelegramClient to the Adapter interface, paging
// through fetchFull/fetchSince results and applying the shared
// rate-limit backoff.
type Telegram struct {
	Client TelegramClient
}

var _ Adapter = Telegram{}

func (Telegram) SourceName() model.Source { return model.SourceTelegram }

func (t Telegram) Healthcheck(ctx context.Context) error { return t.Client.Healthcheck(ctx) }

func (t Telegram) FetchFull(ctx context.Context) ([]preprocess.RawMessage, error) {
	return t.pageAll(ctx, 0, nil)
}

func (t Telegram) FetchSince(ctx context.Context, since time.Time) ([]preprocess.RawMessage, error) {
	all, err := t.pageAll(ctx, 0, nil)
	if err != nil {
		return nil, err
	}
	sinceSec := since.Unix()
	out := make([]preprocess.RawMessage, 0, len(all))
	for _, m := range all {
		if m.Timestamp >= sinceSec {
			out = append(out, m)
		}
	}
	return out, nil
}

func (t Telegram) pageAll(ctx context.Context, offsetID int64, acc []preprocess.RawMessage) ([]preprocess.RawMessage, error) {
	for {
		page, err := withBackoff(ctx, func() (pageResult, error) {
			msgs, next, hasMore, err := t.Client.FetchHistory(ctx, offsetID)
			return pageResult{msgs: msgs, next: next, hasMore: hasMore}, err
		})
		if err != nil {
			return acc, err
		}
		acc = append(acc, page.msgs...)
		if !page.hasMore {
			return acc, nil
		}
		offsetID = page.next
	}
}

type pageResult struct {
	msgs    []preprocess.RawMessage
	next    int64
	hasMore bool
}
