package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"walter-bridge/internal/assistant"
	"walter-bridge/internal/inbound"
	"walter-bridge/internal/types"
)

const requestIDHeader = "X-Request-Id"

// Visitor-facing texts. Internal causes are only logged.
const (
	NoQuestionText    = "I didn't receive a question to answer."
	NotConfiguredText = "Sorry, I'm not fully configured yet. Please try again later."
	TroubleText       = "I'm sorry, I'm having trouble answering right now. Please try again in a moment."
	SomethingWrong    = "I'm sorry, something went wrong while processing your request."
	NoReplyText       = "I'm sorry, I couldn't generate a response."
	ResetText         = "Okay, let's start over. What can I help you with?"
)

// Outcomes label webhook calls in logs and metrics.
const (
	outcomeAnswered      = "answered"
	outcomeNoQuestion    = "no_question"
	outcomeReset         = "reset"
	outcomeNotConfigured = "not_configured"
	outcomeTrouble       = "trouble"
	outcomeRunFailed     = "run_failed"
	outcomeTimeout       = "timeout"
	outcomeNoReply       = "no_reply"
	outcomePanic         = "panic"
)

// handleWebhook always answers 200 with a JSON body; every failure becomes a
// fallback text.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get(requestIDHeader)
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, reqID)
	log := s.logger.With(zap.String("request_id", reqID))

	var (
		answer         string
		outcome        string
		conversationID string
	)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("webhook panic", zap.Any("panic", rec), zap.Stack("stack"))
			answer, outcome = TroubleText, outcomePanic
		}
		s.metrics.ObserveWebhook(outcome, time.Since(start))
		log.Info("webhook handled",
			zap.String("outcome", outcome),
			zap.String("conversation_id", conversationID),
			zap.Duration("duration", time.Since(start)))
		writeJSON(w, http.StatusOK, types.AnswerResponse(answer, s.cfg.ResponseFields, conversationID))
	}()

	payload := inbound.Read(r)
	conversationID = payload.ConversationID()
	if conversationID != "" {
		SetConversationCookie(w, r, conversationID)
	}
	q, ok := payload.Question()
	if !ok {
		answer, outcome = NoQuestionText, outcomeNoQuestion
		return
	}
	log = log.With(zap.String("source", string(q.Source)))

	if s.sessions != nil && s.sessions.IsReset(q.Text) {
		answer, outcome = s.reset(r.Context(), conversationID, log)
		return
	}

	answer, outcome = s.answer(r.Context(), conversationID, q.Text, log)
}

func (s *Server) reset(ctx context.Context, conversationID string, log *zap.Logger) (string, string) {
	if err := s.sessions.Reset(ctx, conversationID); err != nil {
		log.Error("reset failed", zap.Error(err))
		return TroubleText, outcomeTrouble
	}
	return ResetText, outcomeReset
}

func (s *Server) answer(ctx context.Context, conversationID, question string, log *zap.Logger) (string, string) {
	if s.answerer == nil {
		err := fmt.Errorf("%w: %v", assistant.ErrNotConfigured, s.configErr)
		log.Error("cannot answer", zap.Error(err))
		return NotConfiguredText, outcomeNotConfigured
	}

	text, enriched := s.enricher.Enrich(ctx, question)
	if enriched.LookedUp {
		log.Info("vehicle lookup",
			zap.String("year", enriched.Attributes.Year),
			zap.String("make", enriched.Attributes.Make),
			zap.String("model", enriched.Attributes.Model),
			zap.Bool("matched", enriched.Result.Matched),
			zap.String("diagnostic", enriched.Result.Diagnostic))
	}

	reply, err := s.answerer.Answer(ctx, conversationID, text)
	if err != nil {
		answer, outcome := classify(err)
		log.Error("assistant call failed", zap.String("outcome", outcome), zap.Error(err))
		return answer, outcome
	}
	return reply, outcomeAnswered
}

// classify maps a pipeline error to the visitor text and outcome label.
func classify(err error) (string, string) {
	var failed *assistant.RunFailedError
	switch {
	case errors.Is(err, assistant.ErrNotConfigured):
		return NotConfiguredText, outcomeNotConfigured
	case errors.Is(err, assistant.ErrRunTimedOut):
		return SomethingWrong, outcomeTimeout
	case errors.As(err, &failed):
		return SomethingWrong, outcomeRunFailed
	case errors.Is(err, assistant.ErrNoReply):
		return NoReplyText, outcomeNoReply
	}
	return TroubleText, outcomeTrouble
}
