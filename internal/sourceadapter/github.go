package sourceadapter

import (
	"context"
	"time"

	"convoindex/internal/model"
	"convoindex/internal/preprocess"
)

// GitHubClient is the opaque repository-reader-shaped external
// collaborator: a paginated REST-shaped interface over issues, PRs,
// and commits.
type GitHubClient interface {
	FetchIssuesAndPRs(ctx context.Context, page int) (msgs []preprocess.RawMessage, hasMore bool, err error)
	Healthcheck(ctx context.Context) error
}

// GitHub adapts a GitHubClient to the Adapter interface.
type GitHub struct {
	Client GitHubClient
}

var _ Adapter = GitHub{}

func (GitHub) SourceName() model.Source { return model.SourceGitHub }

func (g GitHub) Healthcheck(ctx context.Context) error { return g.Client.Healthcheck(ctx) }

func (g GitHub) FetchFull(ctx context.Context) ([]preprocess.RawMessage, error) {
	var all []preprocess.RawMessage
	page := 1
	for {
		result, err := withBackoff(ctx, func() (ghPage, error) {
			msgs, hasMore, err := g.Client.FetchIssuesAndPRs(ctx, page)
			return ghPage{msgs: msgs, hasMore: hasMore}, err
		})
		if err != nil {
			return all, err
		}
		all = append(all, result.msgs...)
		if !result.hasMore {
			return all, nil
		}
		page++
	}
}

func (g GitHub) FetchSince(ctx context.Context, since time.Time) ([]preprocess.RawMessage, error) {
	all, err := g.FetchFull(ctx)
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

type ghPage struct {
	msgs    []preprocess.RawMessage
	hasMore bool
}
