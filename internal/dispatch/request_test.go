package dispatch

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/agentgw/internal/profile"
)

func TestRequestLegacyAliasDecodesIdentically(t *testing.T) {
	want := Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentClaude, "plan")}

	inputs := map[string]string{
		"current object":       `{"prompt":"fix bug","executor_profile_id":{"executor":"claude","variant":"plan"}}`,
		"legacy object":        `{"prompt":"fix bug","profile_variant_label":{"executor":"claude","variant":"plan"}}`,
		"legacy profile key":   `{"prompt":"fix bug","profile_variant_label":{"profile":"claude","variant":"plan"}}`,
		"current string":       `{"prompt":"fix bug","executor_profile_id":"claude/plan"}`,
		"legacy string":        `{"prompt":"fix bug","profile_variant_label":"claude/plan"}`,
		"current null":         `{"prompt":"fix bug","executor_profile_id":null,"profile_variant_label":"claude/plan"}`,
		"current wins":         `{"prompt":"fix bug","executor_profile_id":"claude/plan","profile_variant_label":"codex/high"}`,
		"whitespace tolerated": "{\"prompt\":\"fix bug\",\n \"profile_variant_label\" : \"claude/plan\" }",
	}
	for name, in := range inputs {
		t.Run(name, func(t *testing.T) {
			var got Request
			require.NoError(t, json.Unmarshal([]byte(in), &got))
			assert.Equal(t, want, got)
		})
	}
}

func TestRequestNullVariantIsDefault(t *testing.T) {
	var got Request
	require.NoError(t, json.Unmarshal([]byte(`{"prompt":"p","profile_variant_label":{"profile":"codex","variant":null}}`), &got))
	assert.Equal(t, profile.NewID(profile.AgentCodex, profile.DefaultVariant), got.ExecutorProfileID)
	assert.Equal(t, profile.AgentCodex, got.BaseExecutor())
}

func TestRequestMissingProfile(t *testing.T) {
	for _, in := range []string{
		`{"prompt":"p"}`,
		`{"prompt":"p","executor_profile_id":null}`,
	} {
		var got Request
		assert.Error(t, json.Unmarshal([]byte(in), &got), in)
	}

	var bad Request
	assert.Error(t, json.Unmarshal([]byte(`{"prompt":"p","executor_profile_id":{"variant":"x"}}`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`[]`), &bad))
}

func TestRequestMarshalUsesCurrentField(t *testing.T) {
	req := Request{Prompt: "fix bug", ExecutorProfileID: profile.NewID(profile.AgentOpencode, "")}

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"prompt":"fix bug","executor_profile_id":{"executor":"opencode","variant":"default"}}`,
		string(data))

	var back Request
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, req, back)
}

func TestRequestFieldNamesAreCaseSensitive(t *testing.T) {
	var got Request
	err := json.Unmarshal([]byte(`{"prompt":"p","Executor_Profile_ID":"claude/plan"}`), &got)
	assert.Error(t, err)

	require.NoError(t, json.Unmarshal([]byte(`{"Prompt":"ignored","prompt":"p","PROFILE_VARIANT_LABEL":"codex/high","profile_variant_label":"claude/plan"}`), &got))
	assert.Equal(t, Request{Prompt: "p", ExecutorProfileID: profile.NewID(profile.AgentClaude, "plan")}, got)
}

func TestRequestRejectsNonStringPrompt(t *testing.T) {
	var got Request
	assert.Error(t, json.Unmarshal([]byte(`{"prompt":42,"executor_profile_id":"claude/plan"}`), &got))
}
