package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestScoreCommand(t *testing.T) {
	out := runCLI(t, "score", "--novelty", "89", "--citations", "156", "--peer-reviews", "7", "--jif", "32.4", "--amount", "2")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.InDelta(t, 5.84, body["score"], 1e-9)
	assert.Equal(t, false, body["eligible_for_tokenization"])
	assert.Equal(t, float64(0), body["token_amount"])
}

func TestSearchCommand(t *testing.T) {
	out := runCLI(t, "search", "climate")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &body))
	assert.Equal(t, float64(1), body["total_results"])
	pubs := body["publications"].([]interface{})
	require.Len(t, pubs, 1)
	assert.Equal(t, "2", pubs[0].(map[string]interface{})["id"])
}

func TestVersionCommand(t *testing.T) {
	assert.Equal(t, "research-token dev\n", runCLI(t, "version"))
}
