package types

// StatusResponse is the body of liveness and operator endpoints.
type StatusResponse struct {
	Status string `json:"status"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// AnswerField is always populated, whatever the configured field list says.
const AnswerField = "answer"

// AnswerResponse maps one answer onto every configured output key so widgets
// reading "reply", "message" or "text" all find it.
func AnswerResponse(answer string, fields []string, conversationID string) map[string]any {
	out := map[string]any{AnswerField: answer}
	for _, f := range fields {
		if f != "" {
			out[f] = answer
		}
	}
	if conversationID != "" {
		out["conversation_id"] = conversationID
	}
	return out
}
