package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/retrieva/internal/rag"
)

// isolateEnv keeps the developer's environment from reaching real services.
func isolateEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "DATABASE_URL", "REDIS_ADDR", "QUEUE_ENABLED",
		"EMBEDDING_BACKEND", "EMBEDDING_PREWARM", "LLM_DEFAULT_PROVIDER",
		"LLM_FALLBACK_PROVIDER", "GEMINI_API_KEY", "GEMINI_BASE_URL",
		"RAG_CHUNK_SIZE", "RAG_CHUNK_OVERLAP",
	} {
		t.Setenv(key, "")
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	configFile, logLevel = "", ""
	cmd := NewRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["ask"])
	assert.True(t, names["mcp"])
	assert.True(t, names["version"])
}

func TestVersionCmd(t *testing.T) {
	original := versionInfo
	defer func() { versionInfo = original }()

	SetVersion("1.2.3", "abc123", "2026-01-31")
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "retrieva 1.2.3")
	assert.Contains(t, out, "Commit: abc123")
}

func TestAskCmd_AnswerFailureIsReported(t *testing.T) {
	isolateEnv(t)
	t.Setenv("RAG_CHUNK_SIZE", "20")
	t.Setenv("RAG_CHUNK_OVERLAP", "5")

	path := filepath.Join(t.TempDir(), "sky.txt")
	require.NoError(t, os.WriteFile(path, []byte("The sky is blue. The grass is green."), 0o600))

	out, stderr, err := execute(t, "ask", path, "-q", "What color is the sky?", "-q", "And the grass?")
	require.NoError(t, err)

	// No Gemini key is configured, so each answer carries the failure text.
	assert.Contains(t, out, "Q: What color is the sky?\nA: "+rag.ErrorAnswerPrefix)
	assert.Contains(t, out, "Q: And the grass?\n")
	assert.Contains(t, stderr, "Indexed sky.txt: 3 chunks")
	assert.Contains(t, stderr, "Embedding chunks: 100%")
}

func TestAskCmd_Errors(t *testing.T) {
	isolateEnv(t)

	_, _, err := execute(t, "ask", "missing.txt", "-q", "x")
	assert.Error(t, err)

	_, _, err = execute(t, "ask", "only-file.txt")
	assert.Error(t, err, "--question is required")

	path := filepath.Join(t.TempDir(), "tool.exe")
	require.NoError(t, os.WriteFile(path, []byte("MZ"), 0o600))
	_, _, err = execute(t, "ask", path, "-q", "x")
	assert.Error(t, err)
}
