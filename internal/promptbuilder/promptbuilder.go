// Package promptbuilder implements pure, synchronous assembly of
// a structured Markdown prompt from retrieved documents and a
// question.
package promptbuilder

import (
	"strings"
	"time"

	"convoindex/internal/config"
	"convoindex/internal/model"
)

const gapThreshold = 5 * time.Minute

const defaultTemplate = `
# Retrieval-Augmented Response Instructions

## How to Understand This Prompt
{{understanding_instructions}}

## How to Read Context Messages
{{reading_instructions}}

## Message Direction Guidelines
{{direction_instructions}}

## Relevant Context
{{context}}

## Question
{{question}}
`

const defaultFallbackTemplate = "Answer based on general knowledge: {{question}}"
const defaultErrorTemplate = "Unable to process: {{error}}"

const defaultUnderstanding = "This prompt contains contextual information followed by a question. Your task is to answer the question based on the provided context. The context includes messages from various sources, structured by conversations and participants."

const defaultReading = `Each message follows this format:
- Source: The origin of the message (chat group, conversation)
- Author: Who wrote the message
- Timestamp: When the message was sent
- Previous Message ID: Reference to the message that came before (if available)
- Next Message ID: Reference to the message that follows (if available)
- Content: The actual message text

Messages are grouped under headings showing their Message ID for clarity.
When a message shows a Previous/Next Message ID that isn't included in the context, it indicates parts of the conversation are not shown.`

const defaultDirection = `Pay close attention to message recipients and authorship:
- Messages with author "Me" are written by me, the current user asking the question
- Messages with any other author are written by someone else
- Content may include tags like "@username" or "@userId" referencing specific users
- All of these terms refer to me, the current user: {{user_reference_terms}}
- If a message has tags that don't match any of these terms, the message is directed to someone else`

const defaultUserReferenceTemplate = "Note: In the context, the terms {{terms}} refer to you, the user."

// Builder assembles the final Markdown prompt.
type Builder struct {
	template         string
	fallbackTemplate string
	errorTemplate    string

	userReferenceEnabled  bool
	userReferenceTerms    []string
	userReferenceTemplate string
}

// NewBuilder constructs a Builder from config, filling in the
// original's default templates where config leaves a field empty.
func NewBuilder(cfg config.PromptBuilderConfig) *Builder {
	b := &Builder{
		template:              cfg.Template,
		fallbackTemplate:      cfg.FallbackTemplate,
		errorTemplate:         cfg.ErrorTemplate,
		userReferenceEnabled:  cfg.UserReference.Enabled,
		userReferenceTerms:    cfg.UserReference.Terms,
		userReferenceTemplate: cfg.UserReference.Template,
	}
	if b.template == "" {
		b.template = defaultTemplate
	}
	if b.fallbackTemplate == "" {
		b.fallbackTemplate = defaultFallbackTemplate
	}
	if b.errorTemplate == "" {
		b.errorTemplate = defaultErrorTemplate
	}
	if b.userReferenceTemplate == "" {
		b.userReferenceTemplate = defaultUserReferenceTemplate
	}
	return b
}

// Build renders the final prompt for question against docs.
func (b *Builder) Build(question string, docs []model.Document) string {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return substitute(b.errorTemplate, map[string]string{"error": "empty or non-textual question"})
	}
	if len(docs) == 0 {
		return substitute(b.fallbackTemplate, map[string]string{"question": question})
	}

	context := b.renderContext(docs)
	direction := substitute(defaultDirection, map[string]string{"user_reference_terms": b.referenceTermsExample()})

	return substitute(b.template, map[string]string{
		"understanding_instructions": defaultUnderstanding,
		"reading_instructions":       defaultReading,
		"direction_instructions":     direction,
		"context":                    context,
		"question":                   question,
	})
}

func (b *Builder) referenceTermsExample() string {
	if !b.userReferenceEnabled || len(b.userReferenceTerms) == 0 {
		return "@username, @userId"
	}
	examples := make([]string, 0, len(b.userReferenceTerms)*2)
	for _, term := range b.userReferenceTerms {
		if strings.HasPrefix(term, "@") {
			examples = append(examples, `"`+term+`"`)
		} else {
			examples = append(examples, `"@`+term+`"`, `"`+term+`"`)
		}
	}
	return strings.Join(examples, ", ")
}

type conversation struct {
	id   string
	docs []model.Document
}

type sourceGroup struct {
	name          string
	conversations []conversation
}

// renderContext groups by source then conversation, sorts each
// conversation by normalized timestamp, and renders the hierarchy
// with partial-context banners where a gap is detected.
func (b *Builder) renderContext(docs []model.Document) string {
	groups := groupBySourceThenConversation(docs)

	var out strings.Builder
	for si, src := range groups {
		out.WriteString("### Source: " + src.name + "\n")
		for ci, conv := range src.conversations {
			renderConversation(&out, conv)
			if ci < len(src.conversations)-1 {
				out.WriteString("\n---\n")
			}
		}
		if si < len(groups)-1 {
			out.WriteString("\n\n==========\n\n")
		}
	}
	return out.String()
}

func groupBySourceThenConversation(docs []model.Document) []sourceGroup {
	var order []string
	bySource := map[string][]model.Document{}
	for _, d := range docs {
		src := d.Metadata[model.MetaSource]
		if _, seen := bySource[src]; !seen {
			order = append(order, src)
		}
		bySource[src] = append(bySource[src], d)
	}

	groups := make([]sourceGroup, 0, len(order))
	for _, src := range order {
		groups = append(groups, sourceGroup{name: src, conversations: groupByConversation(bySource[src])})
	}
	return groups
}

func groupByConversation(docs []model.Document) []conversation {
	var order []string
	byConv := map[string][]model.Document{}
	for _, d := range docs {
		id := d.Metadata[model.MetaConversationID]
		if _, seen := byConv[id]; !seen {
			order = append(order, id)
		}
		byConv[id] = append(byConv[id], d)
	}

	convs := make([]conversation, 0, len(order))
	for _, id := range order {
		group := byConv[id]
		sortByTimestamp(group)
		convs = append(convs, conversation{id: id, docs: group})
	}
	return convs
}

func sortByTimestamp(docs []model.Document) {
	ts := make([]int64, len(docs))
	for i, d := range docs {
		ts[i], _ = model.ParseTimestamp(d.Metadata[model.MetaTimestamp])
	}
	// stable insertion sort: the document count per conversation is
	// small and this keeps equal-timestamp messages in arrival order.
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && ts[j] < ts[j-1]; j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}

func renderConversation(out *strings.Builder, conv conversation) {
	idMap := map[string]bool{}
	for _, d := range conv.docs {
		if id := d.Metadata[model.MetaMessageID]; id != "" {
			idMap[id] = true
		}
	}

	out.WriteString("\n#### Conversation: " + conv.id + "\n")

	if len(conv.docs) > 0 {
		if prev, ok := immediatePrev(conv.docs[0].Metadata[model.MetaPreviousMessageIDs]); ok && !idMap[prev] {
			out.WriteString("*Note: This conversation has earlier messages not shown here*\n")
		}
	}

	for i, d := range conv.docs {
		if i > 0 && hasGap(conv.docs[i-1], d, idMap) {
			out.WriteString("\n*Some messages between these timestamps are not included*\n\n")
		}
		renderMessage(out, d)
	}

	if len(conv.docs) > 0 {
		last := conv.docs[len(conv.docs)-1]
		if next, ok := immediateNext(last.Metadata[model.MetaNextMessageIDs]); ok && !idMap[next] {
			out.WriteString("*Note: This conversation has more recent messages not shown here*\n")
		}
	}
}

func renderMessage(out *strings.Builder, d model.Document) {
	meta := d.Metadata
	messageID := meta[model.MetaMessageID]
	out.WriteString("#### Message ID: " + messageID + "\n")
	out.WriteString("- Source: " + meta[model.MetaSource] + "\n")
	out.WriteString("- Author: " + authorOrUnknown(meta[model.MetaAuthor]) + "\n")
	out.WriteString("- Timestamp: " + formatTimestamp(meta[model.MetaTimestamp]) + "\n")
	if prev, ok := immediatePrev(meta[model.MetaPreviousMessageIDs]); ok {
		out.WriteString("- Previous Message ID: " + prev + "\n")
	}
	if next, ok := immediateNext(meta[model.MetaNextMessageIDs]); ok {
		out.WriteString("- Next Message ID: " + next + "\n")
	}
	out.WriteString("- Content: " + d.Text + "\n")
}

func authorOrUnknown(author string) string {
	if strings.TrimSpace(author) == "" {
		return "*Unknown Author*"
	}
	return author
}

func formatTimestamp(raw string) string {
	ts, ok := model.ParseTimestamp(raw)
	if !ok {
		return "*No timestamp*"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// hasGap implements the three gap-detection conditions.
func hasGap(prev, curr model.Document, idMap map[string]bool) bool {
	currMsgID := curr.Metadata[model.MetaMessageID]
	prevMsgID := prev.Metadata[model.MetaMessageID]

	if nextID, ok := immediateNext(prev.Metadata[model.MetaNextMessageIDs]); ok && nextID != currMsgID && !idMap[nextID] {
		return true
	}
	if prevID, ok := immediatePrev(curr.Metadata[model.MetaPreviousMessageIDs]); ok && prevID != prevMsgID && !idMap[prevID] {
		return true
	}

	tsPrev, okPrev := model.ParseTimestamp(prev.Metadata[model.MetaTimestamp])
	tsCurr, okCurr := model.ParseTimestamp(curr.Metadata[model.MetaTimestamp])
	if okPrev && okCurr && time.Duration(tsCurr-tsPrev)*time.Second > gapThreshold {
		return true
	}
	return false
}

// validID trims a metadata id field and rejects the "absent" sentinels.
func validID(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "false") || strings.EqualFold(raw, "null") {
		return "", false
	}
	return raw, true
}

// immediatePrev returns the closest preceding id from a comma-joined,
// oldest-to-newest previous_message_ids value.
func immediatePrev(raw string) (string, bool) {
	full, ok := validID(raw)
	if !ok {
		return "", false
	}
	ids := strings.Split(full, ",")
	return ids[len(ids)-1], true
}

// immediateNext returns the closest following id from a comma-joined,
// oldest-to-newest next_message_ids value.
func immediateNext(raw string) (string, bool) {
	full, ok := validID(raw)
	if !ok {
		return "", false
	}
	ids := strings.Split(full, ",")
	return ids[0], true
}

// substitute replaces {{key}} placeholders; unmatched keys are left
// untouched rather than erroring, since templates are user-configurable.
func substitute(template string, values map[string]string) string {
	out := template
	for k, v := range values {
		out = strings.ReplaceAll(out, "{{"+k+"}}", v)
	}
	return out
}
