package pipeline

import (
	"fmt"
	"strings"
)

// Kind tags the shape carried by a Result.
type Kind int

const (
	// KindText is a plain answer string.
	KindText Kind = iota
	// KindRaw is an object exposing a raw text field.
	KindRaw
	// KindStages is the ordered list of stage outputs of a run.
	KindStages
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindRaw:
		return "raw"
	case KindStages:
		return "stages"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// StageOutput is the text produced by one task.
type StageOutput struct {
	TaskID TaskID
	Role   Role
	Raw    string
}

// Result is the tagged union returned by the engine.
type Result struct {
	Kind   Kind
	text   string
	stages []StageOutput
	// Degraded is set when the result was recovered after a stage failure.
	Degraded bool
}

// Text wraps a plain answer.
func Text(s string) Result { return Result{Kind: KindText, text: s} }

// Raw wraps an object's raw field.
func Raw(s string) Result { return Result{Kind: KindRaw, text: s} }

// Stages wraps stage outputs in execution order.
func Stages(outs ...StageOutput) Result {
	return Result{Kind: KindStages, stages: append([]StageOutput(nil), outs...)}
}

// StageOutputs returns the stage outputs of a KindStages result.
func (r Result) StageOutputs() []StageOutput {
	return append([]StageOutput(nil), r.stages...)
}

// Normalize collapses a result to its final answer string.
func Normalize(r Result) string {
	switch r.Kind {
	case KindText, KindRaw:
		return strings.TrimSpace(r.text)
	case KindStages:
		if len(r.stages) == 0 {
			return ""
		}
		return strings.TrimSpace(r.stages[len(r.stages)-1].Raw)
	default:
		return ""
	}
}

// FromAny adapts untyped values decoded at a JSON boundary: a string, an
// object with a "raw" field, or a list whose last element is one of those.
func FromAny(v any) Result {
	switch t := v.(type) {
	case nil:
		return Text("")
	case string:
		return Text(t)
	case Result:
		return t
	case map[string]any:
		if raw, ok := t["raw"]; ok {
			return Raw(fmt.Sprint(raw))
		}
		if out, ok := t["output"].(string); ok {
			return Raw(out)
		}
		return Text("")
	case []any:
		outs := make([]StageOutput, 0, len(t))
		for _, item := range t {
			outs = append(outs, StageOutput{Raw: Normalize(FromAny(item))})
		}
		return Stages(outs...)
	default:
		return Text(fmt.Sprint(t))
	}
}
