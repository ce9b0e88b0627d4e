package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePatchText(t *testing.T) {
	text, err := DecodePatchText(json.RawMessage(`{"patch": "*** Begin Patch\n*** End Patch"}`), KindFunction)
	require.NoError(t, err)
	assert.Equal(t, "*** Begin Patch\n*** End Patch", text)

	// Custom calls carry the body directly.
	body := "*** Begin Patch\n*** End Patch"
	text, err = DecodePatchText(json.RawMessage(body), KindCustom)
	require.NoError(t, err)
	assert.Equal(t, body, text)

	_, err = DecodePatchText(json.RawMessage(`{}`), KindFunction)
	require.Error(t, err)
}

func TestParsePatchAddFile(t *testing.T) {
	p, err := ParsePatch("*** Begin Patch\n*** Add File: pkg/hello.go\n+package pkg\n+\n+var Hello = \"world\"\n*** End Patch")
	require.NoError(t, err)
	require.Len(t, p.Ops, 1)
	assert.Equal(t, PatchAdd, p.Ops[0].Kind)
	assert.Equal(t, "pkg/hello.go", p.Ops[0].Path)
	assert.Equal(t, "package pkg\n\nvar Hello = \"world\"", p.Ops[0].Content)
}

func TestParsePatchMissingHeader(t *testing.T) {
	_, err := ParsePatch("*** Add File: x\n+y")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Begin Patch")
}

func TestParsePatchUnknownDirective(t *testing.T) {
	_, err := ParsePatch("*** Begin Patch\n*** Explode File: x\n*** End Patch")
	require.Error(t, err)
}

func TestAffectedPaths(t *testing.T) {
	p := &Patch{Ops: []PatchOp{
		{Kind: PatchAdd, Path: "a.txt"},
		{Kind: PatchUpdate, Path: "b.txt", MovePath: "c.txt"},
		{Kind: PatchDelete, Path: "d.txt"},
	}}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt", "d.txt"}, p.AffectedPaths())
}

func TestApplyAddUpdateDelete(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.txt"), []byte("line one\nhello world\nline three"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "old.txt"), []byte("obsolete"), 0o644))

	patch := "*** Begin Patch\n" +
		"*** Add File: sub/new.txt\n" +
		"+created\n" +
		"*** Update File: greet.txt\n" +
		"@@ line one\n" +
		" line one\n" +
		"-hello world\n" +
		"+hello patch\n" +
		"*** Delete File: old.txt\n" +
		"*** End Patch"

	p, err := ParsePatch(patch)
	require.NoError(t, err)

	result, err := p.Apply(root)
	require.NoError(t, err)
	assert.Contains(t, result, "Created: sub/new.txt")
	assert.Contains(t, result, "Updated: greet.txt")
	assert.Contains(t, result, "Deleted: old.txt")

	created, err := os.ReadFile(filepath.Join(root, "sub", "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, "created", string(created))

	updated, err := os.ReadFile(filepath.Join(root, "greet.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nhello patch\nline three", string(updated))

	_, err = os.Stat(filepath.Join(root, "old.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyMove(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "before.txt"), []byte("alpha\nbeta"), 0o644))

	patch := "*** Begin Patch\n" +
		"*** Update File: before.txt\n" +
		"*** Move to: after.txt\n" +
		"@@ alpha\n" +
		" alpha\n" +
		"-beta\n" +
		"+gamma\n" +
		"*** End Patch"

	p, err := ParsePatch(patch)
	require.NoError(t, err)
	_, err = p.Apply(root)
	require.NoError(t, err)

	moved, err := os.ReadFile(filepath.Join(root, "after.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha\ngamma", string(moved))
	_, err = os.Stat(filepath.Join(root, "before.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestApplyIsAtomic(t *testing.T) {
	root := t.TempDir()

	// The second operation targets a missing file, so the first must not
	// land either.
	patch := "*** Begin Patch\n" +
		"*** Add File: a.txt\n" +
		"+content\n" +
		"*** Update File: missing.txt\n" +
		"@@ x\n" +
		"-x\n" +
		"+y\n" +
		"*** End Patch"

	p, err := ParsePatch(patch)
	require.NoError(t, err)

	_, err = p.Apply(root)
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "a.txt"))
	assert.True(t, os.IsNotExist(statErr), "no partial patch may land")
}

func TestApplyAddExistingFileFails(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "present.txt"), []byte("keep me"), 0o644))

	p, err := ParsePatch("*** Begin Patch\n*** Add File: present.txt\n+overwrite\n*** End Patch")
	require.NoError(t, err)

	_, err = p.Apply(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	content, _ := os.ReadFile(filepath.Join(root, "present.txt"))
	assert.Equal(t, "keep me", string(content))
}

func TestApplyRepeatedContextAnchorsForward(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("dup\ntail\ndup\ntail"), 0o644))

	// Both hunks carry identical context; the second must anchor past the
	// first, at the second occurrence.
	patch := "*** Begin Patch\n" +
		"*** Update File: f.txt\n" +
		"@@ dup\n" +
		" dup\n" +
		" tail\n" +
		"+one\n" +
		"@@ dup\n" +
		" dup\n" +
		" tail\n" +
		"+two\n" +
		"*** End Patch"

	p, err := ParsePatch(patch)
	require.NoError(t, err)
	_, err = p.Apply(root)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dup\ntail\none\ndup\ntail\ntwo", string(content))
}

func TestApplyHunkContextNotFound(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("actual content"), 0o644))

	patch := "*** Begin Patch\n" +
		"*** Update File: f.txt\n" +
		"@@ context\n" +
		"-does not exist\n" +
		"+replacement\n" +
		"*** End Patch"

	p, err := ParsePatch(patch)
	require.NoError(t, err)
	_, err = p.Apply(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not apply")

	// Original untouched.
	content, _ := os.ReadFile(filepath.Join(root, "f.txt"))
	assert.Equal(t, "actual content", string(content))
}
