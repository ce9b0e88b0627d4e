package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/martinemde/conductor/sandbox"
)

func gate(approval ApprovalPolicy, sb sandbox.Policy) *Gate {
	return &Gate{Approval: approval, Sandbox: sb, Root: "/work"}
}

func TestCheckShell(t *testing.T) {
	tests := []struct {
		name    string
		gate    *Gate
		command []string
		want    Decision
	}{
		{"safe command auto under auto", gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite), []string{"pwd"}, DecideAuto},
		{"safe command auto under manual", gate(ApprovalManual, sandbox.PolicyWorkspaceWrite), []string{"ls", "-la"}, DecideAuto},
		{"safe command auto under never", gate(ApprovalNever, sandbox.PolicyWorkspaceWrite), []string{"cat", "go.mod"}, DecideAuto},
		{"safe git subcommand", gate(ApprovalManual, sandbox.PolicyWorkspaceWrite), []string{"git", "status"}, DecideAuto},
		{"safe bash wrapper", gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite), []string{"bash", "-lc", "echo hello"}, DecideAuto},
		{"pipeline in wrapper not safe under manual", gate(ApprovalManual, sandbox.PolicyWorkspaceWrite), []string{"bash", "-c", "cat x | tee y"}, DecideAsk},
		{"destructive asks under auto", gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite), []string{"rm", "-rf", "build"}, DecideAsk},
		{"network asks under auto", gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite), []string{"curl", "https://example.com"}, DecideAsk},
		{"destructive denied under never", gate(ApprovalNever, sandbox.PolicyWorkspaceWrite), []string{"rm", "-rf", "build"}, DecideDeny},
		{"write denied under read-only", gate(ApprovalAuto, sandbox.PolicyReadOnly), []string{"rm", "file"}, DecideDeny},
		{"touch denied under read-only", gate(ApprovalManual, sandbox.PolicyReadOnly), []string{"touch", "x"}, DecideDeny},
		{"unexceptional auto under auto", gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite), []string{"go", "test", "./..."}, DecideAuto},
		{"unexceptional asks under manual", gate(ApprovalManual, sandbox.PolicyWorkspaceWrite), []string{"go", "test", "./..."}, DecideAsk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.gate.CheckShell(&ShellRequest{Command: tt.command})
			assert.Equal(t, tt.want, v.Decision, "reason: %s", v.Reason)
		})
	}
}

func TestCheckPatchOutsideRoot(t *testing.T) {
	// Categorical denial takes precedence over asking, even under manual
	// policy.
	g := gate(ApprovalManual, sandbox.PolicyWorkspaceWrite)
	p := &Patch{Ops: []PatchOp{{Kind: PatchAdd, Path: "/etc/evil.txt", Content: "x"}}}
	v := g.CheckPatch(p)
	require.Equal(t, DecideDeny, v.Decision)
	assert.Contains(t, v.Reason, "outside the workspace root")
}

func TestCheckPatchTraversalOutsideRoot(t *testing.T) {
	g := gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite)
	p := &Patch{Ops: []PatchOp{{Kind: PatchUpdate, Path: "../outside.txt"}}}
	assert.Equal(t, DecideDeny, g.CheckPatch(p).Decision)
}

func TestCheckPatchInsideRoot(t *testing.T) {
	g := gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite)
	p := &Patch{Ops: []PatchOp{{Kind: PatchAdd, Path: "pkg/file.go", Content: "x"}}}
	assert.Equal(t, DecideAuto, g.CheckPatch(p).Decision)

	g = gate(ApprovalManual, sandbox.PolicyWorkspaceWrite)
	assert.Equal(t, DecideAsk, g.CheckPatch(p).Decision)
}

func TestCheckPatchReadOnly(t *testing.T) {
	g := gate(ApprovalAuto, sandbox.PolicyReadOnly)
	p := &Patch{Ops: []PatchOp{{Kind: PatchAdd, Path: "file.go", Content: "x"}}}
	assert.Equal(t, DecideDeny, g.CheckPatch(p).Decision)
}

func TestCheckPatchFullAccessSkipsRootCheck(t *testing.T) {
	g := gate(ApprovalAuto, sandbox.PolicyDangerFullAccess)
	p := &Patch{Ops: []PatchOp{{Kind: PatchAdd, Path: "/anywhere/file.txt", Content: "x"}}}
	assert.Equal(t, DecideAuto, g.CheckPatch(p).Decision)
}

func TestCheckMcp(t *testing.T) {
	call := Call{Kind: KindMcp, Server: "db", Tool: "query"}
	assert.Equal(t, DecideAuto, gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite).CheckMcp(call).Decision)
	assert.Equal(t, DecideAsk, gate(ApprovalManual, sandbox.PolicyWorkspaceWrite).CheckMcp(call).Decision)
	assert.Equal(t, DecideAuto, gate(ApprovalNever, sandbox.PolicyWorkspaceWrite).CheckMcp(call).Decision)
}

func TestAllowsUnsandboxedRetry(t *testing.T) {
	assert.True(t, gate(ApprovalAuto, sandbox.PolicyWorkspaceWrite).AllowsUnsandboxedRetry())
	assert.True(t, gate(ApprovalManual, sandbox.PolicyWorkspaceWrite).AllowsUnsandboxedRetry())
	assert.False(t, gate(ApprovalNever, sandbox.PolicyWorkspaceWrite).AllowsUnsandboxedRetry())
}

func TestCommandProgram(t *testing.T) {
	assert.Equal(t, "rm", commandProgram([]string{"rm", "-rf", "x"}))
	assert.Equal(t, "rm", commandProgram([]string{"/bin/rm", "x"}))
	assert.Equal(t, "curl", commandProgram([]string{"bash", "-lc", "curl https://example.com"}))
	assert.Equal(t, "bash", commandProgram([]string{"bash"}))
}

func TestPathWithinRoot(t *testing.T) {
	assert.True(t, pathWithinRoot("/work", "sub/file.go"))
	assert.True(t, pathWithinRoot("/work", "/work/file.go"))
	assert.True(t, pathWithinRoot("/work", "."))
	assert.False(t, pathWithinRoot("/work", "/etc/passwd"))
	assert.False(t, pathWithinRoot("/work", "../outside"))
	assert.False(t, pathWithinRoot("/work", "/work/../etc"))
}
