package approvals

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpressionDecider(t *testing.T) {
	decide, err := Expression(`tool_name == 'Read' || (tool_name == 'Bash' && input_command == 'ls')`)
	require.NoError(t, err)

	cases := []struct {
		name  string
		req   Request
		wantK Kind
	}{
		{name: "read", req: Request{ToolName: "Read"}, wantK: KindApproved},
		{name: "bash ls", req: Request{ToolName: "Bash", ToolInput: json.RawMessage(`{"command":"ls"}`)}, wantK: KindApproved},
		{name: "bash rm", req: Request{ToolName: "Bash", ToolInput: json.RawMessage(`{"command":"rm -rf /"}`)}, wantK: KindDenied},
		{name: "bash no input", req: Request{ToolName: "Bash"}, wantK: KindDenied},
		{name: "write", req: Request{ToolName: "Write"}, wantK: KindDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, err := decide(context.Background(), tc.req)
			require.NoError(t, err)
			assert.Equal(t, tc.wantK, status.Kind)
		})
	}
}

func TestExpressionNestedInput(t *testing.T) {
	decide, err := Expression(`input_options_timeout < 30`)
	require.NoError(t, err)

	status, err := decide(context.Background(), Request{
		ToolName:  "Bash",
		ToolInput: json.RawMessage(`{"options":{"timeout":10}}`),
	})
	require.NoError(t, err)
	assert.True(t, status.Approved())
}

func TestExpressionErrors(t *testing.T) {
	_, err := Expression(`(((`)
	assert.Error(t, err)

	decide, err := Expression(`tool_name`)
	require.NoError(t, err)
	_, err = decide(context.Background(), Request{ToolName: "Read"})
	assert.ErrorContains(t, err, "boolean")
}

func TestExpressionThroughTracker(t *testing.T) {
	decide, err := Expression(`tool_name != 'Bash'`)
	require.NoError(t, err)
	tr := NewTracker(decide, nil)

	for _, tool := range []string{"Read", "Bash", "Grep"} {
		_, err := tr.RequestToolApproval(context.Background(), Request{ToolName: tool})
		require.NoError(t, err)
	}
	stats := tr.Stats()
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 2, stats.Approved)
	assert.Equal(t, 1, stats.Denied)
}
