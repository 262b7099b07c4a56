package models

import "strings"

// VerdictKind tags a reflection gate's routing decision.
type VerdictKind string

const (
	VerdictProceed VerdictKind = "proceed"
	VerdictRetry   VerdictKind = "retry"
	VerdictAbort   VerdictKind = "abort"
)

// Verdict is the structured outcome of a reflection gate. Routing in the
// controller switches on Kind exhaustively; Reasons and Improvement are
// replayed into the conversation so the decision-maker sees what to fix.
type Verdict struct {
	Kind        VerdictKind `json:"kind"`
	Reasons     []string    `json:"reasons,omitempty"`
	Improvement string      `json:"improvement,omitempty"`
}

func Proceed(reasons ...string) Verdict {
	return Verdict{Kind: VerdictProceed, Reasons: reasons}
}

func Retry(improvement string, reasons ...string) Verdict {
	return Verdict{Kind: VerdictRetry, Reasons: reasons, Improvement: improvement}
}

func Abort(reasons ...string) Verdict {
	return Verdict{Kind: VerdictAbort, Reasons: reasons}
}

// RejectionText renders the gate feedback replayed to a stage on retry.
func (v Verdict) RejectionText() string {
	var b strings.Builder
	b.WriteString("Result needs improvement:\n")
	for _, r := range v.Reasons {
		b.WriteString("- ")
		b.WriteString(r)
		b.WriteString("\n")
	}
	if v.Improvement != "" {
		b.WriteString(v.Improvement)
	}
	return b.String()
}
