package engine

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const maxProjectDocBytes = 32 * 1024 // 32KB

// BuildSystemPrompt assembles the effective system prompt for a turn:
// the configured base instructions, an environment context block, and any
// discovered project instruction files.
func BuildSystemPrompt(tc TurnContext) string {
	var parts []string
	if tc.SystemPrompt != "" {
		parts = append(parts, tc.SystemPrompt)
	}
	parts = append(parts, buildEnvironmentContext(tc))
	if docs := DiscoverProjectDocs(tc.Cwd); docs != "" {
		parts = append(parts, docs)
	}
	return strings.Join(parts, "\n\n")
}

// buildEnvironmentContext generates the structured environment block.
func buildEnvironmentContext(tc TurnContext) string {
	isRepo := isGitRepository(tc.Cwd)

	var sb strings.Builder
	sb.WriteString("<environment>\n")
	fmt.Fprintf(&sb, "Working directory: %s\n", tc.Cwd)
	fmt.Fprintf(&sb, "Is git repository: %v\n", isRepo)
	if isRepo {
		if branch := gitBranch(tc.Cwd); branch != "" {
			fmt.Fprintf(&sb, "Git branch: %s\n", branch)
		}
	}
	fmt.Fprintf(&sb, "Platform: %s\n", runtime.GOOS)
	fmt.Fprintf(&sb, "Sandbox policy: %s\n", tc.SandboxPolicy)
	fmt.Fprintf(&sb, "Approval policy: %s\n", tc.ApprovalPolicy)
	fmt.Fprintf(&sb, "Today's date: %s\n", time.Now().Format("2006-01-02"))
	if tc.Model != "" {
		fmt.Fprintf(&sb, "Model: %s\n", tc.Model)
	}
	sb.WriteString("</environment>")
	return sb.String()
}

// DiscoverProjectDocs loads AGENTS.md instruction files from the git root
// down to the working directory, bounded at 32KB total.
func DiscoverProjectDocs(workingDir string) string {
	root := gitRoot(workingDir)
	if root == "" {
		root = workingDir
	}

	var docs []string
	totalBytes := 0

	for _, dir := range collectPathHierarchy(root, workingDir) {
		path := filepath.Join(dir, "AGENTS.md")
		content, err := os.ReadFile(path)
		if err != nil {
			continue
		}

		remaining := maxProjectDocBytes - totalBytes
		if remaining <= 0 {
			docs = append(docs, "[Project instructions truncated at 32KB]")
			break
		}

		text := string(content)
		if len(text) > remaining {
			text = text[:remaining] + "\n[Project instructions truncated at 32KB]"
		}

		docs = append(docs, fmt.Sprintf("# AGENTS.md (from %s)\n\n%s", dir, text))
		totalBytes += len(text)
	}

	if len(docs) == 0 {
		return ""
	}
	return strings.Join(docs, "\n\n---\n\n")
}

// collectPathHierarchy returns directories from root to target, inclusive.
func collectPathHierarchy(root, target string) []string {
	root = filepath.Clean(root)
	target = filepath.Clean(target)

	if root == target {
		return []string{root}
	}

	dirs := []string{root}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return dirs
	}

	current := root
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if part == "." || part == ".." {
			continue
		}
		current = filepath.Join(current, part)
		dirs = append(dirs, current)
	}
	return dirs
}

func isGitRepository(dir string) bool {
	cmd := exec.Command("git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = dir
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

func gitRoot(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--show-toplevel")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

func gitBranch(dir string) string {
	cmd := exec.Command("git", "rev-parse", "--abbrev-ref", "HEAD")
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
