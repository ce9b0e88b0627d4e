package engine

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/conductor/sandbox"
	"github.com/martinemde/conductor/tools"
)

func TestBuildSystemPromptContainsEnvironment(t *testing.T) {
	tc := TurnContext{
		Cwd:            t.TempDir(),
		ApprovalPolicy: tools.ApprovalManual,
		SandboxPolicy:  sandbox.PolicyReadOnly,
		Model:          "test-model",
		SystemPrompt:   "You are a careful engineer.",
	}
	prompt := BuildSystemPrompt(tc)

	assert.True(t, strings.HasPrefix(prompt, "You are a careful engineer."))
	assert.Contains(t, prompt, "<environment>")
	assert.Contains(t, prompt, "Working directory: "+tc.Cwd)
	assert.Contains(t, prompt, "Sandbox policy: read-only")
	assert.Contains(t, prompt, "Approval policy: manual")
	assert.Contains(t, prompt, "Model: test-model")
}

func TestDiscoverProjectDocs(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	root := t.TempDir()
	sub := filepath.Join(root, "pkg", "api")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	// The walk starts at the git root, so the hierarchy needs one.
	init := exec.Command("git", "init")
	init.Dir = root
	require.NoError(t, init.Run())

	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte("root rules"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "AGENTS.md"), []byte("api rules"), 0o644))

	docs := DiscoverProjectDocs(sub)
	assert.Contains(t, docs, "root rules")
	assert.Contains(t, docs, "api rules")
	// Outer docs come before inner ones.
	assert.Less(t, strings.Index(docs, "root rules"), strings.Index(docs, "api rules"))
}

func TestDiscoverProjectDocsNone(t *testing.T) {
	assert.Empty(t, DiscoverProjectDocs(t.TempDir()))
}

func TestDiscoverProjectDocsCap(t *testing.T) {
	root := t.TempDir()
	big := strings.Repeat("x", maxProjectDocBytes+1000)
	require.NoError(t, os.WriteFile(filepath.Join(root, "AGENTS.md"), []byte(big), 0o644))

	docs := DiscoverProjectDocs(root)
	assert.Contains(t, docs, "truncated at 32KB")
	assert.Less(t, len(docs), maxProjectDocBytes+200)
}

func TestCollectPathHierarchy(t *testing.T) {
	dirs := collectPathHierarchy("/a", "/a/b/c")
	assert.Equal(t, []string{"/a", "/a/b", "/a/b/c"}, dirs)

	assert.Equal(t, []string{"/a"}, collectPathHierarchy("/a", "/a"))
}

func TestTurnContextMerge(t *testing.T) {
	tc := TurnContext{
		Cwd:            "/work",
		ApprovalPolicy: tools.ApprovalAuto,
		SandboxPolicy:  sandbox.PolicyWorkspaceWrite,
		Model:          "m1",
	}

	assert.Equal(t, tc, tc.Merge(nil))

	model := "m2"
	never := tools.ApprovalNever
	merged := tc.Merge(&ContextOverrides{Model: &model, ApprovalPolicy: &never})
	assert.Equal(t, "m2", merged.Model)
	assert.Equal(t, tools.ApprovalNever, merged.ApprovalPolicy)
	assert.Equal(t, "/work", merged.Cwd, "unset overrides keep prior values")
	// The original is untouched.
	assert.Equal(t, "m1", tc.Model)
}
