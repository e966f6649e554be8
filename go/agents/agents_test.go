package agents

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/infolead/router/go/tier"
	"github.com/stretchr/testify/require"
)

const analystDoc = `---
name: mid-analyst
description: Analysis and design work.
model: mid
tools:
  - Read
  - Grep
---

You analyze codebases and propose designs.
`

const editorDoc = `---
name: cheap-general
description: Mechanical edits.
model: cheap
tools: [Read, Edit, Write]
permissionMode: acceptEdits
---

Apply the requested edit.
`

func TestParseFrontMatter(t *testing.T) {
	var def, err = Parse([]byte(analystDoc))
	require.NoError(t, err)
	require.Equal(t, "mid-analyst", def.Name)
	require.Equal(t, []string{"Read", "Grep"}, def.Tools)
	require.Equal(t, "You analyze codebases and propose designs.\n", def.Body)

	tr, err := def.Tier()
	require.NoError(t, err)
	require.Equal(t, tier.Mid, tr)
}

func TestParseRejectsMissingFrontMatter(t *testing.T) {
	_, err := Parse([]byte("just markdown"))
	require.Error(t, err)

	_, err = Parse([]byte("---\nname: x\nno terminator"))
	require.Error(t, err)
}

func TestValidatePermissionMode(t *testing.T) {
	var cases = []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"write tools with acceptEdits", Definition{
			Name: "a", Model: "cheap", Tools: []string{"Edit"}, PermissionMode: "acceptEdits",
		}, false},
		{"write tools without acceptEdits", Definition{
			Name: "a", Model: "cheap", Tools: []string{"Edit"},
		}, true},
		{"read-only with acceptEdits", Definition{
			Name: "a", Model: "cheap", Tools: []string{"Read"}, PermissionMode: "acceptEdits",
		}, true},
		{"read-only without mode", Definition{
			Name: "a", Model: "mid", Tools: []string{"Read", "Grep"},
		}, false},
		{"unknown model", Definition{
			Name: "a", Model: "gpt-17", Tools: []string{"Read"},
		}, true},
		{"missing name", Definition{Model: "cheap"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var err = tc.def.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoadDirSkipsInvalid(t *testing.T) {
	var dir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "analyst.md"), []byte(analystDoc), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "editor.md"), []byte(editorDoc), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.md"), []byte("no front-matter"), 0600))

	var defs, err = LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	require.Contains(t, defs, "mid-analyst")
	require.Contains(t, defs, "cheap-general")

	var grouped = ByTier(defs)
	require.Equal(t, []string{"cheap-general"}, grouped[tier.Cheap])
	require.Equal(t, []string{"mid-analyst"}, grouped[tier.Mid])
}
