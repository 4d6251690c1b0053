package sourceadapter

import (
	"context"
	"time"

	"convoindex/internal/model"
	"convoindex/internal/preprocess"
)

// WhatsAppClient is the opaque HTTP-bridge-shaped external collaborator.
// A bridge session may require interactive QR pairing before fetches
// succeed, signaled by IsAuthenticated returning false.
type WhatsAppClient interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	FetchAll(ctx context.Context) ([]preprocess.RawMessage, error)
	FetchSince(ctx context.Context, sinceMillis int64) ([]preprocess.RawMessage, error)
	Healthcheck(ctx context.Context) error
}

// WhatsApp adapts a WhatsAppClient to the Adapter interface and
// implements AuthRequired for the bridge's QR-pairing flow.
type WhatsApp struct {
	Client WhatsAppClient
}

var (
	_ Adapter      = WhatsApp{}
	_ AuthRequired = WhatsApp{}
)

func (WhatsApp) SourceName() model.Source { return model.SourceWhatsApp }

func (w WhatsApp) Healthcheck(ctx context.Context) error { return w.Client.Healthcheck(ctx) }

func (w WhatsApp) FetchFull(ctx context.Context) ([]preprocess.RawMessage, error) {
	return withBackoff(ctx, func() ([]preprocess.RawMessage, error) {
		return w.Client.FetchAll(ctx)
	})
}

func (w WhatsApp) FetchSince(ctx context.Context, since time.Time) ([]preprocess.RawMessage, error) {
	sinceMillis := since.UnixMilli()
	return withBackoff(ctx, func() ([]preprocess.RawMessage, error) {
		return w.Client.FetchSince(ctx, sinceMillis)
	})
}

// WaitForAuth polls IsAuthenticated until it reports true or timeout
// elapses.
func (w WhatsApp) WaitForAuth(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		ok, err := w.Client.IsAuthenticated(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return model.ErrAuthRequired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
