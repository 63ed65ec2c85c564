package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headlineResult struct {
	Headline string   `json:"headline"`
	Facts    []string `json:"facts"`
}

func TestExtractJSONWholeString(t *testing.T) {
	var got headlineResult
	err := ExtractJSON(`{"headline": "Fed holds rates", "facts": ["No change in March"]}`, &got)
	require.NoError(t, err)
	assert.Equal(t, "Fed holds rates", got.Headline)
	assert.Equal(t, []string{"No change in March"}, got.Facts)
}

func TestExtractJSONCodeFence(t *testing.T) {
	response := "Here is the result:\n```json\n{\"headline\": \"Quake hits coast\", \"facts\": []}\n```\nLet me know if you need anything else."
	var got headlineResult
	require.NoError(t, ExtractJSON(response, &got))
	assert.Equal(t, "Quake hits coast", got.Headline)
}

func TestExtractJSONBareFence(t *testing.T) {
	response := "```\n{\"headline\": \"Launch delayed\"}\n```"
	var got headlineResult
	require.NoError(t, ExtractJSON(response, &got))
	assert.Equal(t, "Launch delayed", got.Headline)
}

func TestExtractJSONBraceSubstring(t *testing.T) {
	response := `The extracted object is {"headline": "Merger approved", "facts": ["Deal closes Q3"]} as requested.`
	var got headlineResult
	require.NoError(t, ExtractJSON(response, &got))
	assert.Equal(t, "Merger approved", got.Headline)
}

func TestExtractJSONFailures(t *testing.T) {
	var got headlineResult
	assert.Error(t, ExtractJSON("", &got))
	assert.Error(t, ExtractJSON("   \n ", &got))
	assert.Error(t, ExtractJSON("no json here at all", &got))
	assert.Error(t, ExtractJSON("{broken", &got))
}

func TestExtractJSONPrefersOuterObject(t *testing.T) {
	// Brace-substring spans first '{' to last '}', covering nested objects.
	response := `prefix {"headline": "A", "facts": ["x"], "extra": {"nested": true}} suffix`
	var got map[string]any
	require.NoError(t, ExtractJSON(response, &got))
	assert.Equal(t, "A", got["headline"])
}
