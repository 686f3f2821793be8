// Package repair implements the Repair Driver: given a rejected plan and
// the errors that rejected it, ask the model for a wholesale replacement
// plan. It never patches a plan in place and never revalidates its own
// output — that's the caller's job.
package repair

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lhxgrid/text2sql/internal/kb"
	"github.com/lhxgrid/text2sql/internal/llmclient"
	"github.com/lhxgrid/text2sql/internal/plandsl"
	"github.com/lhxgrid/text2sql/internal/semval"
)

// Driver repairs rejected plans using an LLM client.
type Driver struct {
	Client llmclient.Client
}

// New returns a Driver backed by client.
func New(client llmclient.Client) *Driver {
	return &Driver{Client: client}
}

// Repair asks the model to replace original wholesale, given the errors
// that rejected it and the evidence bundle it must stay within.
func (d *Driver) Repair(ctx context.Context, original plandsl.RawPlan, errs []semval.ValidationError, evidence kb.EvidenceBundle) (plandsl.RawPlan, error) {
	payload := map[string]any{
		"original_plan":     original,
		"validation_errors": errs,
		"evidence":          evidence,
		"plan_dsl_schema":   json.RawMessage(plandsl.SchemaDocument()),
	}
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("repair: marshal payload: %w", err)
	}

	var prompt strings.Builder
	prompt.WriteString("The following plan failed validation. Produce a corrected plan as a single JSON object ")
	prompt.WriteString("using only the fields, tables, metrics, and join paths present in the evidence below.\n\n")
	prompt.WriteString("<INPUTS>\n")
	prompt.Write(buf)
	prompt.WriteString("\n</INPUTS>\n")

	fixed, err := d.Client.GenerateJSON(ctx, prompt.String())
	if err != nil {
		return nil, fmt.Errorf("repair: generate replacement plan: %w", err)
	}
	return fixed, nil
}
