// Package inbound normalizes webhook calls from chat widgets into a question
// and an optional conversation identifier. Widgets post JSON, form fields, raw
// text or query strings under a handful of field names, sometimes wrapped in a
// sub-object and sometimes serialized into a single form key.
package inbound

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"
)

const (
	// CookieName carries the conversation id for browser-embedded widgets.
	CookieName = "walter_conversation"
	// ConversationHeader is an explicit conversation id supplied by the caller.
	ConversationHeader = "X-Conversation-Id"

	maxBodyBytes  = 1 << 20
	maxIDLength   = 200
	rawQuestionKV = "question="
)

var (
	questionFields     = []string{"question", "visitor_question", "user_message", "message", "text", "query"}
	conversationFields = []string{"conversation_id", "conversationId", "chat_id", "chatId", "session_id", "sessionId", "visitor_id", "visitorId"}
	nestedKeys         = []string{"data", "visitor", "body", "payload"}
)

// Source names the strategy a question was found with.
type Source string

const (
	SourceJSON      Source = "json"
	SourceNested    Source = "nested"
	SourceForm      Source = "form"
	SourceRaw       Source = "raw"
	SourceRawJSON   Source = "raw_json"
	SourceSingleKey Source = "single_key"
	SourceQuery     Source = "query"
	SourceText      Source = "text"
)

// Question is the trimmed visitor text and where it came from.
type Question struct {
	Text   string
	Source Source
}

// Payload is a read-only view over every encoding a request may carry.
type Payload struct {
	raw         string
	contentType string
	body        map[string]any
	rawJSON     map[string]any
	form        url.Values
	query       url.Values
	header      string
	cookie      string
}

// Read buffers the request body and parses it once. It never fails: a body
// that cannot be read or parsed simply contributes nothing.
func Read(r *http.Request) *Payload {
	var raw []byte
	if r.Body != nil {
		raw, _ = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	p := Parse(raw, r.Header.Get("Content-Type"), r.URL.Query())
	p.header = strings.TrimSpace(r.Header.Get(ConversationHeader))
	if c, err := r.Cookie(CookieName); err == nil {
		p.cookie = strings.TrimSpace(c.Value)
	}
	return p
}

// Parse builds a Payload from already-read parts.
func Parse(raw []byte, contentType string, query url.Values) *Payload {
	mediaType, params, _ := mime.ParseMediaType(contentType)
	mediaType = strings.ToLower(mediaType)
	p := &Payload{
		raw:         strings.TrimSpace(string(raw)),
		contentType: mediaType,
		query:       query,
	}
	if p.raw == "" {
		return p
	}
	if mediaType == "" || strings.Contains(mediaType, "json") {
		p.body = decodeObject(raw)
	}
	switch mediaType {
	case "application/x-www-form-urlencoded":
		// ParseQuery returns every pair it could decode alongside the first error.
		p.form, _ = url.ParseQuery(p.raw)
	case "multipart/form-data":
		if form, err := multipart.NewReader(bytes.NewReader(raw), params["boundary"]).ReadForm(maxBodyBytes); err == nil {
			p.form = url.Values(form.Value)
			_ = form.RemoveAll()
		}
	}
	p.rawJSON = decodeObject(raw)
	return p
}

// Question runs the extraction strategies in precedence order and returns the
// first non-empty trimmed match.
func (p *Payload) Question() (Question, bool) {
	found := func(s string, src Source) (Question, bool) { return Question{Text: s, Source: src}, true }

	if s := stringField(p.body, questionFields); s != "" {
		return found(s, SourceJSON)
	}
	if s := nestedField(p.body, questionFields, stringValue); s != "" {
		return found(s, SourceNested)
	}
	if s := valuesField(p.form, questionFields); s != "" {
		return found(s, SourceForm)
	}
	if s := p.rawQuestion(); s != "" {
		return found(s, SourceRaw)
	}
	if s := stringField(p.rawJSON, questionFields); s != "" {
		return found(s, SourceRawJSON)
	}
	if s := nestedField(p.rawJSON, questionFields, stringValue); s != "" {
		return found(s, SourceRawJSON)
	}
	if inner := p.singleKeyObject(); inner != nil {
		if s := stringField(inner, questionFields); s != "" {
			return found(s, SourceSingleKey)
		}
		if s := nestedField(inner, questionFields, stringValue); s != "" {
			return found(s, SourceSingleKey)
		}
	}
	if s := valuesField(p.query, questionFields); s != "" {
		return found(s, SourceQuery)
	}
	if p.isPlainText() {
		return found(p.raw, SourceText)
	}
	return Question{}, false
}

// ConversationID returns the caller's conversation identifier, or "" when the
// call is anonymous.
func (p *Payload) ConversationID() string {
	candidates := []func() string{
		func() string { return field(p.body, conversationFields, idValue) },
		func() string { return nestedField(p.body, conversationFields, idValue) },
		func() string { return valuesField(p.form, conversationFields) },
		func() string { return field(p.rawJSON, conversationFields, idValue) },
		func() string { return nestedField(p.rawJSON, conversationFields, idValue) },
		func() string { return field(p.singleKeyObject(), conversationFields, idValue) },
		func() string { return p.header },
		func() string { return valuesField(p.query, conversationFields) },
		func() string { return p.cookie },
	}
	for _, c := range candidates {
		if id := strings.TrimSpace(c()); id != "" {
			return truncateID(id)
		}
	}
	return ""
}

// rawQuestion handles bodies of the literal form "question=<value>".
func (p *Payload) rawQuestion() string {
	if !p.hasRawQuestionKey() {
		return ""
	}
	v := p.raw[len(rawQuestionKV):]
	// PathUnescape keeps a literal "+" ("question=1+1").
	if unescaped, err := url.PathUnescape(v); err == nil {
		v = unescaped
	}
	return strings.TrimSpace(v)
}

// isPlainText reports whether the whole body is the question: a text/* body,
// or one sent without a content type that is not JSON.
func (p *Payload) isPlainText() bool {
	if p.raw == "" || p.rawJSON != nil || p.hasRawQuestionKey() {
		return false
	}
	switch {
	case strings.HasPrefix(p.contentType, "text/"):
		return true
	case p.contentType == "":
		return !json.Valid([]byte(p.raw))
	}
	return false
}

// truncateID cuts id to maxIDLength bytes without splitting a rune.
func truncateID(id string) string {
	if len(id) <= maxIDLength {
		return id
	}
	n := maxIDLength
	for n > 0 && !utf8.RuneStart(id[n]) {
		n--
	}
	return id[:n]
}

func (p *Payload) hasRawQuestionKey() bool {
	return len(p.raw) >= len(rawQuestionKV) && strings.EqualFold(p.raw[:len(rawQuestionKV)], rawQuestionKV)
}

// singleKeyObject covers widgets that post a JSON document as a form key, or a
// JSON object whose only key is itself serialized JSON.
func (p *Payload) singleKeyObject() map[string]any {
	if len(p.form) == 1 {
		for k := range p.form {
			if obj := decodeObject([]byte(k)); obj != nil {
				return obj
			}
		}
	}
	for _, obj := range []map[string]any{p.body, p.rawJSON} {
		if len(obj) != 1 {
			continue
		}
		for k := range obj {
			if inner := decodeObject([]byte(k)); inner != nil {
				return inner
			}
		}
	}
	return nil
}

// decodeObject returns the JSON object in b, unwrapping one level of string
// encoding ("{\"question\":...}"). Anything else yields nil.
func decodeObject(b []byte) map[string]any {
	var v any
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return nil
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil
	}
	switch t := v.(type) {
	case map[string]any:
		return t
	case string:
		var inner map[string]any
		dec := json.NewDecoder(strings.NewReader(t))
		dec.UseNumber()
		if err := dec.Decode(&inner); err == nil {
			return inner
		}
	}
	return nil
}

func field(obj map[string]any, names []string, value func(any) string) string {
	for _, n := range names {
		if v, ok := obj[n]; ok {
			if s := strings.TrimSpace(value(v)); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringField(obj map[string]any, names []string) string {
	return field(obj, names, stringValue)
}

func nestedField(obj map[string]any, names []string, value func(any) string) string {
	for _, k := range nestedKeys {
		switch sub := obj[k].(type) {
		case map[string]any:
			if s := field(sub, names, value); s != "" {
				return s
			}
		case string:
			if s := field(decodeObject([]byte(sub)), names, value); s != "" {
				return s
			}
		}
	}
	return ""
}

func valuesField(vals url.Values, names []string) string {
	for _, n := range names {
		for _, v := range vals[n] {
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func idValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	}
	return ""
}
