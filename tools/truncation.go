package tools

import (
	"fmt"
	"strings"
)

// TruncationMode specifies which part of oversized output is kept.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Default character limits per tool. Overridable via configuration.
var defaultCharLimits = map[string]int{
	"shell":       30000,
	"local_shell": 30000,
	"apply_patch": 10000,
	"mcp":         20000,
}

var defaultModes = map[string]TruncationMode{
	"shell":       TruncateHeadTail,
	"local_shell": TruncateHeadTail,
	"apply_patch": TruncateTail,
	"mcp":         TruncateTail,
}

// Line limits applied after character truncation.
var defaultLineLimits = map[string]int{
	"shell":       256,
	"local_shell": 256,
}

// TruncateOutput applies character-based truncation to output.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars
	switch mode {
	case TruncateTail:
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	default:
		half := maxChars / 2
		return output[:half] +
			fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
				"Re-run the tool with more targeted parameters to see specific parts.]\n\n", removed) +
			output[len(output)-half:]
	}
}

// TruncateLines applies line-based truncation using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}
	headCount := maxLines / 2
	tailCount := maxLines - headCount
	omitted := len(lines) - headCount - tailCount
	return strings.Join(lines[:headCount], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tailCount:], "\n")
}

// TruncateForTool applies the full pipeline for a tool: character bound
// first (handles pathological cases), then line bound for readability.
// charOverrides may come from configuration and takes precedence.
func TruncateForTool(output, toolName string, charOverrides map[string]int) string {
	maxChars, ok := charOverrides[toolName]
	if !ok {
		maxChars, ok = defaultCharLimits[toolName]
		if !ok {
			maxChars = 30000
		}
	}
	mode, ok := defaultModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)
	if maxLines, ok := defaultLineLimits[toolName]; ok {
		result = TruncateLines(result, maxLines)
	}
	return result
}
