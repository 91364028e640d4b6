package assistant

import (
	"encoding/json"
	"strings"
)

const roleAssistant = "assistant"

// blockMatcher recognizes one known shape of a text fragment. Matchers never
// fail; an unrecognized block is simply not text.
type blockMatcher func(ContentBlock) (string, bool)

var blockMatchers = []blockMatcher{
	typedTextBlock,
	rawTextObjectBlock,
	rawTextStringBlock,
}

// ExtractReply finds the most recent assistant-authored message and joins its
// text fragments with newlines. ok is false when there is no such text.
func ExtractReply(msgs []ThreadMessage) (string, bool) {
	latest := newestAssistantMessage(msgs)
	if latest == nil {
		return "", false
	}
	var parts []string
	for _, b := range latest.Content {
		if s, ok := blockText(b); ok {
			parts = append(parts, s)
		}
	}
	reply := strings.TrimSpace(strings.Join(parts, "\n"))
	return reply, reply != ""
}

// newestAssistantMessage picks by CreatedAt rather than list position, so it
// does not depend on the order the service returned.
func newestAssistantMessage(msgs []ThreadMessage) *ThreadMessage {
	ascending := len(msgs) > 1 && msgs[0].CreatedAt < msgs[len(msgs)-1].CreatedAt
	var best *ThreadMessage
	for i := range msgs {
		m := &msgs[i]
		if m.Role != roleAssistant {
			continue
		}
		switch {
		case best == nil, m.CreatedAt > best.CreatedAt:
			best = m
		case m.CreatedAt == best.CreatedAt && ascending:
			best = m
		}
	}
	return best
}

func blockText(b ContentBlock) (string, bool) {
	for _, match := range blockMatchers {
		if s, ok := match(b); ok {
			if strings.TrimSpace(s) == "" {
				return "", false
			}
			return s, true
		}
	}
	return "", false
}

func isTextType(t string) bool {
	return t == "text" || t == "output_text"
}

func typedTextBlock(b ContentBlock) (string, bool) {
	if !isTextType(b.Type) || b.Text == nil {
		return "", false
	}
	return *b.Text, true
}

// rawTextObjectBlock: {"type":"text","text":{"value":"..."}}
func rawTextObjectBlock(b ContentBlock) (string, bool) {
	var v struct {
		Type string `json:"type"`
		Text struct {
			Value *string `json:"value"`
		} `json:"text"`
	}
	if len(b.Raw) == 0 || json.Unmarshal(b.Raw, &v) != nil {
		return "", false
	}
	if !isTextType(v.Type) || v.Text.Value == nil {
		return "", false
	}
	return *v.Text.Value, true
}

// rawTextStringBlock: {"type":"text","text":"..."}
func rawTextStringBlock(b ContentBlock) (string, bool) {
	var v struct {
		Type string  `json:"type"`
		Text *string `json:"text"`
	}
	if len(b.Raw) == 0 || json.Unmarshal(b.Raw, &v) != nil {
		return "", false
	}
	if !isTextType(v.Type) || v.Text == nil {
		return "", false
	}
	return *v.Text, true
}
