package approvals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Knetic/govaluate"
)

// Expression returns a Decider approving the tool calls for which expr
// evaluates to true. The expression sees tool_name, tool_call_id and the
// tool input fields flattened under "input" with underscores, so
// {"command":"ls"} is input_command. Unknown names evaluate to nil.
func Expression(expr string) (Decider, error) {
	compiled, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return nil, fmt.Errorf("approval expression: %w", err)
	}

	return func(_ context.Context, req Request) (Status, error) {
		result, err := compiled.Eval(requestParams(req))
		if err != nil {
			return Status{}, fmt.Errorf("evaluate approval expression: %w", err)
		}
		allowed, ok := result.(bool)
		if !ok {
			return Status{}, errors.New("approval expression did not evaluate to a boolean")
		}
		if allowed {
			return Approve(), nil
		}
		return Deny("tool " + req.ToolName + " rejected by approval expression"), nil
	}, nil
}

// params resolves missing names to nil so a comparison against a field the
// tool did not send is simply false.
type params map[string]any

func (p params) Get(name string) (any, error) {
	return p[name], nil
}

func requestParams(req Request) params {
	out := params{
		"tool_name":    req.ToolName,
		"tool_call_id": req.ToolCallID,
	}
	if len(req.ToolInput) == 0 {
		return out
	}
	var input map[string]any
	if err := json.Unmarshal(req.ToolInput, &input); err != nil {
		return out
	}
	flatten("input", input, out)
	return out
}

func flatten(prefix string, m map[string]any, out params) {
	for k, v := range m {
		key := prefix + "_" + k
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}
