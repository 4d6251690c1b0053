package retrieve

import (
	"context"
	"fmt"
	"strings"

	"convoindex/internal/generator"
)

const expansionPrompt = "Rewrite the following question as 3 alternative phrasings, one per line, no numbering or commentary:\n\n%s"

// LMExpander is a QueryExpander backed by an external language model:
// it asks for 3 rephrasings with a fixed prompt. Any error from the
// model leaves the original query to stand alone.
type LMExpander struct {
	Generator generator.Generator
}

func (e LMExpander) Expand(ctx context.Context, query string) ([]string, error) {
	text, err := e.Generator.Generate(ctx, fmt.Sprintf(expansionPrompt, query), generator.Options{})
	if err != nil {
		return nil, err
	}

	var variants []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			variants = append(variants, line)
		}
	}
	return variants, nil
}
