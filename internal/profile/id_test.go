package profile

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    ID
		wantErr bool
	}{
		{in: "claude/default", want: ID{Executor: AgentClaude, Variant: "default"}},
		{in: "claude", want: ID{Executor: AgentClaude, Variant: "default"}},
		{in: "claude/", want: ID{Executor: AgentClaude, Variant: "default"}},
		{in: " codex/high ", want: ID{Executor: AgentCodex, Variant: "high"}},
		{in: "", wantErr: true},
		{in: "/plan", wantErr: true},
		{in: "claude/plan/extra", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIDStringAndEquality(t *testing.T) {
	assert.Equal(t, "claude/default", NewID(AgentClaude, "").String())
	assert.Equal(t, "claude/default", ID{Executor: AgentClaude}.String())
	assert.Equal(t, NewID(AgentClaude, ""), NewID(AgentClaude, "default"))
	assert.NotEqual(t, NewID(AgentClaude, "plan"), NewID(AgentCodex, "plan"))

	m := map[ID]int{NewID(AgentClaude, "plan"): 1}
	assert.Equal(t, 1, m[ID{Executor: "claude", Variant: "plan"}])
}

func TestIDJSON(t *testing.T) {
	want := NewID(AgentClaude, "plan")

	data, err := json.Marshal(want)
	require.NoError(t, err)
	assert.JSONEq(t, `{"executor":"claude","variant":"plan"}`, string(data))

	inputs := []string{
		`{"executor":"claude","variant":"plan"}`,
		`{"profile":"claude","variant":"plan"}`,
		`"claude/plan"`,
	}
	for _, in := range inputs {
		var got ID
		require.NoError(t, json.Unmarshal([]byte(in), &got), in)
		assert.Equal(t, want, got, in)
	}

	var def ID
	require.NoError(t, json.Unmarshal([]byte(`{"executor":"codex","variant":null}`), &def))
	assert.Equal(t, NewID(AgentCodex, DefaultVariant), def)

	var bad ID
	assert.Error(t, json.Unmarshal([]byte(`{"variant":"plan"}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, NewID(AgentClaude, DefaultVariant), ID{Executor: AgentClaude}.Canonical())
	assert.Equal(t, NewID(AgentCodex, "high"), ID{Executor: " codex ", Variant: " high "}.Canonical())
}
