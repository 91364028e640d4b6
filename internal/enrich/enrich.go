// Package enrich resolves vehicle details in a question before it reaches the
// assistant and appends what was found as a bracketed context block.
package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"walter-bridge/internal/lookup"
	"walter-bridge/internal/vehicle"
)

type Lookuper interface {
	Lookup(ctx context.Context, attrs vehicle.Attributes) lookup.Result
}

// Outcome reports what enrichment did for one question.
type Outcome struct {
	Attributes vehicle.Attributes
	LookedUp   bool
	Result     lookup.Result
}

type Enricher struct {
	extractor *vehicle.Extractor
	lookup    Lookuper
	logger    *zap.Logger
}

// New returns an Enricher. A nil lookup disables record lookups; questions
// are then forwarded unchanged.
func New(extractor *vehicle.Extractor, lk Lookuper, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{extractor: extractor, lookup: lk, logger: logger}
}

// Enrich returns the text to send to the assistant. The lookup runs at most
// once and only when year, make and model were all extracted.
func (e *Enricher) Enrich(ctx context.Context, question string) (string, Outcome) {
	var out Outcome
	if e == nil || e.extractor == nil {
		return question, out
	}
	out.Attributes = e.extractor.Extract(question)
	if !out.Attributes.Empty() {
		e.logger.Debug("extracted vehicle attributes",
			zap.String("year", out.Attributes.Year),
			zap.String("make", out.Attributes.Make),
			zap.String("model", out.Attributes.Model),
			zap.String("ignition", string(out.Attributes.Ignition)))
	}
	if e.lookup == nil || !out.Attributes.Complete() {
		return question, out
	}
	out.LookedUp = true
	out.Result = e.lookup.Lookup(ctx, out.Attributes)
	return question + "\n\n" + ContextBlock(out.Attributes, out.Result), out
}

// ContextBlock renders the extracted attributes and the lookup outcome.
func ContextBlock(attrs vehicle.Attributes, res lookup.Result) string {
	var b strings.Builder
	b.WriteString("[Vehicle context]\n")
	fmt.Fprintf(&b, "Year: %s\nMake: %s\nModel: %s\n", attrs.Year, attrs.Make, attrs.Model)
	if l := attrs.Ignition.Label(); l != "" {
		fmt.Fprintf(&b, "Ignition: %s\n", l)
	}
	switch {
	case res.Matched && res.Record != nil:
		fmt.Fprintf(&b, "Record: %s\n", res.Record.DiagramName)
		if res.Record.DiagramURL != "" {
			fmt.Fprintf(&b, "Diagram: %s\n", res.Record.DiagramURL)
		}
		if res.Record.Notes != "" {
			fmt.Fprintf(&b, "Notes: %s\n", res.Record.Notes)
		}
	case res.Diagnostic != "":
		fmt.Fprintf(&b, "Record: no record found (lookup failed: %s)\n", res.Diagnostic)
	default:
		b.WriteString("Record: no record found\n")
	}
	b.WriteString("[/Vehicle context]")
	return b.String()
}
