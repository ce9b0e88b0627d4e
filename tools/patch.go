package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// patchExample is the corrective shape included in decode errors for the
// apply_patch function tool.
const patchExample = `{"patch": "*** Begin Patch\n*** Update File: path/to/file\n@@ context\n-old line\n+new line\n*** End Patch"}`

// PatchOpKind is one of the three file operations a patch may contain.
type PatchOpKind string

const (
	PatchAdd    PatchOpKind = "add"
	PatchDelete PatchOpKind = "delete"
	PatchUpdate PatchOpKind = "update"
)

// hunkLine is a single line-level operation within an update hunk.
type hunkLine struct {
	op   byte // ' ' context, '-' delete, '+' add
	text string
}

// Hunk is one contiguous change block within a file update.
type Hunk struct {
	lines []hunkLine
}

// PatchOp is one file-level operation.
type PatchOp struct {
	Kind PatchOpKind
	Path string
	// MovePath renames the file as part of an update, when set.
	MovePath string
	// Content is the full new file body for PatchAdd.
	Content string
	Hunks   []Hunk
}

// Patch is a parsed multi-file change set. Application is atomic: either
// every operation lands or the workspace is restored to its prior state.
type Patch struct {
	Ops []PatchOp
}

// DecodePatchText extracts the patch body from tool arguments. Custom
// (freeform) calls carry the body directly; function calls wrap it in a
// JSON object.
func DecodePatchText(raw json.RawMessage, kind Kind) (string, error) {
	if kind == KindCustom {
		return string(raw), nil
	}
	var args struct {
		Patch string `json:"patch"`
	}
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", &DecodeError{
			Tool:    "apply_patch",
			Reason:  fmt.Sprintf("arguments are not valid JSON: %v", err),
			Example: patchExample,
		}
	}
	if args.Patch == "" {
		return "", &DecodeError{
			Tool:    "apply_patch",
			Reason:  "missing required field \"patch\"",
			Example: patchExample,
		}
	}
	return args.Patch, nil
}

// ParsePatch parses a v4a-format patch into its operations without touching
// the filesystem.
func ParsePatch(text string) (*Patch, error) {
	lines := strings.Split(text, "\n")
	if len(lines) < 2 || strings.TrimSpace(lines[0]) != "*** Begin Patch" {
		return nil, &DecodeError{
			Tool:    "apply_patch",
			Reason:  "missing '*** Begin Patch' header",
			Example: patchExample,
		}
	}

	p := &Patch{}
	i := 1
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		switch {
		case line == "" || line == "*** End Patch":
			i++

		case strings.HasPrefix(line, "*** Add File: "):
			path := strings.TrimPrefix(line, "*** Add File: ")
			i++
			var content []string
			for i < len(lines) && !strings.HasPrefix(lines[i], "*** ") {
				if strings.HasPrefix(lines[i], "+") {
					content = append(content, lines[i][1:])
				}
				i++
			}
			p.Ops = append(p.Ops, PatchOp{
				Kind:    PatchAdd,
				Path:    path,
				Content: strings.Join(content, "\n"),
			})

		case strings.HasPrefix(line, "*** Delete File: "):
			p.Ops = append(p.Ops, PatchOp{
				Kind: PatchDelete,
				Path: strings.TrimPrefix(line, "*** Delete File: "),
			})
			i++

		case strings.HasPrefix(line, "*** Update File: "):
			op := PatchOp{
				Kind: PatchUpdate,
				Path: strings.TrimPrefix(line, "*** Update File: "),
			}
			i++
			if i < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[i]), "*** Move to: ") {
				op.MovePath = strings.TrimPrefix(strings.TrimSpace(lines[i]), "*** Move to: ")
				i++
			}
			for i < len(lines) {
				trimmed := strings.TrimSpace(lines[i])
				if trimmed == "*** End of File" {
					i++
					continue
				}
				if strings.HasPrefix(trimmed, "*** ") {
					break
				}
				if !strings.HasPrefix(trimmed, "@@") {
					i++
					continue
				}
				i++
				var h Hunk
				for i < len(lines) {
					raw := lines[i]
					if raw == "" {
						h.lines = append(h.lines, hunkLine{op: ' ', text: ""})
						i++
						continue
					}
					switch raw[0] {
					case ' ', '-', '+':
						h.lines = append(h.lines, hunkLine{op: raw[0], text: raw[1:]})
						i++
					default:
						goto hunkDone
					}
				}
			hunkDone:
				if len(h.lines) > 0 {
					op.Hunks = append(op.Hunks, h)
				}
			}
			p.Ops = append(p.Ops, op)

		default:
			return nil, &DecodeError{
				Tool:    "apply_patch",
				Reason:  fmt.Sprintf("unrecognized patch directive %q", line),
				Example: patchExample,
			}
		}
	}

	if len(p.Ops) == 0 {
		return nil, &DecodeError{
			Tool:    "apply_patch",
			Reason:  "patch contains no operations",
			Example: patchExample,
		}
	}
	return p, nil
}

// AffectedPaths lists every path the patch touches, including move targets.
func (p *Patch) AffectedPaths() []string {
	var paths []string
	for _, op := range p.Ops {
		paths = append(paths, op.Path)
		if op.MovePath != "" {
			paths = append(paths, op.MovePath)
		}
	}
	return paths
}

// fileSnapshot records a file's prior state for rollback.
type fileSnapshot struct {
	path    string
	existed bool
	content []byte
	mode    os.FileMode
}

// Apply performs the patch against root. All new file contents are computed
// before any write; if a write fails, earlier writes are rolled back from
// snapshots so a partial patch never lands.
func (p *Patch) Apply(root string) (string, error) {
	type pendingWrite struct {
		path    string
		content string
	}
	var writes []pendingWrite
	var removals []string
	var results []string

	resolve := func(path string) string {
		if filepath.IsAbs(path) {
			return filepath.Clean(path)
		}
		return filepath.Join(root, path)
	}

	for _, op := range p.Ops {
		target := resolve(op.Path)
		switch op.Kind {
		case PatchAdd:
			if _, err := os.Stat(target); err == nil {
				return "", &ExecutionError{
					Tool:   "apply_patch",
					Detail: fmt.Sprintf("cannot add %s: file already exists", op.Path),
				}
			}
			writes = append(writes, pendingWrite{path: target, content: op.Content})
			results = append(results, "Created: "+op.Path)

		case PatchDelete:
			if _, err := os.Stat(target); err != nil {
				return "", &ExecutionError{
					Tool:   "apply_patch",
					Detail: fmt.Sprintf("cannot delete %s: %v", op.Path, err),
				}
			}
			removals = append(removals, target)
			results = append(results, "Deleted: "+op.Path)

		case PatchUpdate:
			raw, err := os.ReadFile(target)
			if err != nil {
				return "", &ExecutionError{
					Tool:   "apply_patch",
					Detail: fmt.Sprintf("cannot read %s for update: %v", op.Path, err),
				}
			}
			fileLines := strings.Split(string(raw), "\n")
			cursor := 0
			for hi, h := range op.Hunks {
				fileLines, cursor, err = applyHunk(fileLines, h, cursor)
				if err != nil {
					return "", &ExecutionError{
						Tool:   "apply_patch",
						Detail: fmt.Sprintf("hunk %d does not apply to %s: %v", hi+1, op.Path, err),
					}
				}
			}
			writeTarget := target
			label := "Updated: " + op.Path
			if op.MovePath != "" {
				writeTarget = resolve(op.MovePath)
				removals = append(removals, target)
				label = fmt.Sprintf("Updated and moved: %s -> %s", op.Path, op.MovePath)
			}
			writes = append(writes, pendingWrite{path: writeTarget, content: strings.Join(fileLines, "\n")})
			results = append(results, label)
		}
	}

	// Snapshot everything that will change, then commit.
	var snapshots []fileSnapshot
	snapshot := func(path string) error {
		snap := fileSnapshot{path: path}
		if info, err := os.Stat(path); err == nil {
			content, rerr := os.ReadFile(path)
			if rerr != nil {
				return rerr
			}
			snap.existed = true
			snap.content = content
			snap.mode = info.Mode()
		}
		snapshots = append(snapshots, snap)
		return nil
	}
	for _, w := range writes {
		if err := snapshot(w.path); err != nil {
			return "", &ExecutionError{Tool: "apply_patch", Detail: err.Error()}
		}
	}
	for _, r := range removals {
		if err := snapshot(r); err != nil {
			return "", &ExecutionError{Tool: "apply_patch", Detail: err.Error()}
		}
	}

	rollback := func() {
		for _, snap := range snapshots {
			if snap.existed {
				_ = os.WriteFile(snap.path, snap.content, snap.mode)
			} else {
				_ = os.Remove(snap.path)
			}
		}
	}

	for _, w := range writes {
		if err := os.MkdirAll(filepath.Dir(w.path), 0o755); err != nil {
			rollback()
			return "", &ExecutionError{Tool: "apply_patch", Detail: err.Error()}
		}
		if err := os.WriteFile(w.path, []byte(w.content), 0o644); err != nil {
			rollback()
			return "", &ExecutionError{Tool: "apply_patch", Detail: err.Error()}
		}
	}
	for _, r := range removals {
		if err := os.Remove(r); err != nil {
			rollback()
			return "", &ExecutionError{Tool: "apply_patch", Detail: err.Error()}
		}
	}

	return strings.Join(results, "\n"), nil
}

// applyHunk locates the hunk by its context-and-delete prefix, searching
// forward from the given cursor, and applies the line operations. It
// returns the rewritten file and the cursor just past the applied hunk,
// so successive hunks with identical context anchor at successive
// positions. A hunk whose context cannot be found is an error, not a
// silent no-op.
func applyHunk(fileLines []string, h Hunk, from int) ([]string, int, error) {
	if from > len(fileLines) {
		from = len(fileLines)
	}

	var prefix []string
	for _, hl := range h.lines {
		if hl.op == ' ' || hl.op == '-' {
			prefix = append(prefix, hl.text)
		} else {
			break
		}
	}
	if len(prefix) == 0 {
		// Pure insertion with no anchor appends at end of file.
		out := append([]string{}, fileLines...)
		for _, hl := range h.lines {
			if hl.op == '+' {
				out = append(out, hl.text)
			}
		}
		return out, len(out), nil
	}

	matchPos := -1
	for i := from; i <= len(fileLines)-len(prefix); i++ {
		match := true
		for j, ctx := range prefix {
			if strings.TrimRight(fileLines[i+j], " \t") != strings.TrimRight(ctx, " \t") {
				match = false
				break
			}
		}
		if match {
			matchPos = i
			break
		}
	}
	if matchPos < 0 {
		return nil, 0, fmt.Errorf("context not found: %q", prefix[0])
	}

	var out []string
	out = append(out, fileLines[:matchPos]...)
	pos := matchPos
	for _, hl := range h.lines {
		switch hl.op {
		case ' ':
			if pos < len(fileLines) {
				out = append(out, fileLines[pos])
				pos++
			}
		case '-':
			pos++
		case '+':
			out = append(out, hl.text)
		}
	}
	next := len(out)
	out = append(out, fileLines[pos:]...)
	return out, next, nil
}
