package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/martinemde/conductor/sandbox"
)

// ApprovalPolicy controls when a tool call needs a human decision.
type ApprovalPolicy string

const (
	// ApprovalAuto approves everything the rule set considers safe;
	// dangerous actions still ask.
	ApprovalAuto ApprovalPolicy = "auto"
	// ApprovalManual asks for anything that is not known-safe.
	ApprovalManual ApprovalPolicy = "manual"
	// ApprovalNever never asks: actions that would need approval are
	// denied outright, and the no-sandbox retry is forbidden.
	ApprovalNever ApprovalPolicy = "never"
)

// ParseApprovalPolicy converts a configuration string into a policy.
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch ApprovalPolicy(s) {
	case ApprovalAuto, ApprovalManual, ApprovalNever:
		return ApprovalPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown approval policy %q", s)
	}
}

// Decision is the gate's classification of one proposed action.
type Decision string

const (
	DecideAuto Decision = "auto"
	DecideAsk  Decision = "ask"
	DecideDeny Decision = "deny"
)

// Verdict carries the decision plus a human-readable reason, used in
// approval prompts and refusal events.
type Verdict struct {
	Decision Decision
	Reason   string
}

// Gate classifies proposed actions against the turn's policies. It never
// executes side effects; it only decides auto-approve, ask, or deny.
type Gate struct {
	Approval ApprovalPolicy
	Sandbox  sandbox.Policy
	// Root is the workspace root that bounds patch targets.
	Root string
}

// safeCommands are read-only commands that auto-approve under every policy.
var safeCommands = map[string]bool{
	"cat": true, "ls": true, "pwd": true, "echo": true, "head": true,
	"tail": true, "wc": true, "which": true, "whoami": true, "date": true,
	"env": true, "printenv": true, "uname": true, "find": true, "grep": true,
	"rg": true, "sed": true, "awk": true, "sort": true, "uniq": true,
	"diff": true, "file": true, "stat": true, "du": true, "df": true,
	"basename": true, "dirname": true, "realpath": true, "readlink": true,
	"tr": true, "cut": true, "nl": true, "true": true, "false": true,
}

// safeGitSubcommands are git operations with no write or network effect.
var safeGitSubcommands = map[string]bool{
	"status": true, "log": true, "diff": true, "show": true, "branch": true,
	"blame": true, "rev-parse": true, "ls-files": true, "remote": true,
}

// destructiveCommands always require a human decision.
var destructiveCommands = map[string]bool{
	"rm": true, "rmdir": true, "dd": true, "mkfs": true, "shred": true,
	"shutdown": true, "reboot": true, "halt": true, "kill": true,
	"killall": true, "pkill": true, "chown": true, "chmod": true,
	"sudo": true, "su": true,
}

// networkCommands reach outside the host and require a human decision.
var networkCommands = map[string]bool{
	"curl": true, "wget": true, "ssh": true, "scp": true, "rsync": true,
	"nc": true, "ncat": true, "telnet": true, "ftp": true, "sftp": true,
}

// writingCommands mutate the filesystem; categorically denied under a
// read-only sandbox.
var writingCommands = map[string]bool{
	"rm": true, "rmdir": true, "mv": true, "cp": true, "mkdir": true,
	"touch": true, "tee": true, "dd": true, "ln": true, "truncate": true,
	"chmod": true, "chown": true, "install": true,
}

// CheckShell classifies a decoded shell request.
func (g *Gate) CheckShell(req *ShellRequest) Verdict {
	prog := commandProgram(req.Command)

	if g.Sandbox == sandbox.PolicyReadOnly && writingCommands[prog] {
		return Verdict{
			Decision: DecideDeny,
			Reason:   fmt.Sprintf("sandbox policy is read-only; %q writes to the filesystem", prog),
		}
	}

	if isKnownSafe(req.Command) {
		return Verdict{Decision: DecideAuto, Reason: "known-safe command"}
	}

	if destructiveCommands[prog] || networkCommands[prog] {
		reason := fmt.Sprintf("%q is potentially destructive", prog)
		if networkCommands[prog] {
			reason = fmt.Sprintf("%q accesses the network", prog)
		}
		if g.Approval == ApprovalNever {
			return Verdict{Decision: DecideDeny, Reason: reason + "; approval policy forbids asking"}
		}
		return Verdict{Decision: DecideAsk, Reason: reason}
	}

	switch g.Approval {
	case ApprovalManual:
		return Verdict{Decision: DecideAsk, Reason: "approval policy requires confirmation for " + prog}
	default:
		// auto and never both run unexceptional commands without asking;
		// the sandbox still bounds them.
		return Verdict{Decision: DecideAuto, Reason: "permitted by approval policy"}
	}
}

// CheckPatch classifies a parsed patch. A target outside the workspace
// root is a categorical denial; it takes precedence over asking.
func (g *Gate) CheckPatch(p *Patch) Verdict {
	if g.Sandbox == sandbox.PolicyReadOnly {
		return Verdict{Decision: DecideDeny, Reason: "sandbox policy is read-only; patches write to the filesystem"}
	}

	if g.Sandbox != sandbox.PolicyDangerFullAccess {
		for _, path := range p.AffectedPaths() {
			if !pathWithinRoot(g.Root, path) {
				return Verdict{
					Decision: DecideDeny,
					Reason:   fmt.Sprintf("patch target %s is outside the workspace root %s", path, g.Root),
				}
			}
		}
	}

	switch g.Approval {
	case ApprovalManual:
		return Verdict{Decision: DecideAsk, Reason: "approval policy requires confirmation for file changes"}
	default:
		return Verdict{Decision: DecideAuto, Reason: "patch targets are within the workspace root"}
	}
}

// CheckMcp classifies a delegated MCP call. Configured servers are
// operator-trusted; only manual policy interposes.
func (g *Gate) CheckMcp(c Call) Verdict {
	if g.Approval == ApprovalManual {
		return Verdict{
			Decision: DecideAsk,
			Reason:   fmt.Sprintf("approval policy requires confirmation for MCP tool %s on server %s", c.Tool, c.Server),
		}
	}
	return Verdict{Decision: DecideAuto, Reason: "configured MCP server"}
}

// AllowsUnsandboxedRetry reports whether a sandbox-denied command may be
// re-run without isolation after approval clearance.
func (g *Gate) AllowsUnsandboxedRetry() bool {
	return g.Approval != ApprovalNever
}

// commandProgram extracts the effective program name, looking through a
// bash -c / bash -lc wrapper to the first word of the wrapped script.
func commandProgram(argv []string) string {
	if len(argv) == 0 {
		return ""
	}
	prog := filepath.Base(argv[0])
	if (prog == "bash" || prog == "sh" || prog == "zsh") && len(argv) >= 3 {
		flag := argv[1]
		if flag == "-c" || flag == "-lc" || flag == "-cl" {
			fields := strings.Fields(argv[2])
			if len(fields) > 0 {
				return filepath.Base(fields[0])
			}
		}
	}
	return prog
}

// isKnownSafe reports whether the whole command is read-only. Shell
// metacharacters in a wrapped script disqualify it: a pipeline may chain
// into something unsafe.
func isKnownSafe(argv []string) bool {
	if len(argv) == 0 {
		return false
	}
	prog := filepath.Base(argv[0])
	if (prog == "bash" || prog == "sh" || prog == "zsh") && len(argv) >= 3 {
		script := argv[2]
		if strings.ContainsAny(script, "|&;<>$`") {
			return false
		}
		fields := strings.Fields(script)
		if len(fields) == 0 {
			return false
		}
		return wordIsSafe(fields)
	}
	return wordIsSafe(argv)
}

func wordIsSafe(argv []string) bool {
	prog := filepath.Base(argv[0])
	if safeCommands[prog] {
		return true
	}
	if prog == "git" && len(argv) >= 2 {
		return safeGitSubcommands[argv[1]]
	}
	return false
}

// pathWithinRoot reports whether path resolves inside root.
func pathWithinRoot(root, path string) bool {
	if root == "" {
		return false
	}
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, path)
	}
	abs = filepath.Clean(abs)
	rootAbs := filepath.Clean(root)
	rel, err := filepath.Rel(rootAbs, abs)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "..")
}
