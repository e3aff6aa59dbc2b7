package skills

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcanvas/flowrefine/internal/core"
)

func writeSkill(t *testing.T, root, dir, content string) string {
	t.Helper()
	path := filepath.Join(root, dir, SkillFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func manifest(name, desc string) string {
	return "---\nname: " + name + "\ndescription: " + desc + "\n---\n\n# " + name + "\n\nBody text.\n"
}

func TestParseSkill(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    core.SkillReference
		wantErr bool
	}{
		{"basic", manifest("pdf-extract", "Extract PDFs"), core.SkillReference{Name: "pdf-extract", Description: "Extract PDFs"}, false},
		{"leading blank lines", "\n\n" + manifest("a", "b"), core.SkillReference{Name: "a", Description: "b"}, false},
		{"crlf", "---\r\nname: win\r\ndescription: d\r\n---\r\nbody", core.SkillReference{Name: "win", Description: "d"}, false},
		{"no frontmatter", "# Title\n", core.SkillReference{}, true},
		{"unclosed", "---\nname: x\n", core.SkillReference{}, true},
		{"no name", "---\ndescription: only\n---\n", core.SkillReference{}, true},
		{"bad yaml", "---\nname: [unclosed\n---\n", core.SkillReference{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSkill([]byte(tt.content))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScanner_Scan(t *testing.T) {
	personal := t.TempDir()
	project := t.TempDir()

	gitPath := writeSkill(t, personal, "git-commit", manifest("git-commit", "Commit messages"))
	writeSkill(t, personal, "broken", "no frontmatter here")
	writeSkill(t, project, "a/pdf", manifest("pdf-extract", "first"))
	writeSkill(t, project, "b/pdf", manifest("pdf-extract", "second"))
	require.NoError(t, os.WriteFile(filepath.Join(project, "README.md"), []byte("x"), 0o644))

	cat, err := NewScanner(personal, project).Scan(context.Background())
	require.NoError(t, err)

	require.Len(t, cat.Personal, 1)
	assert.Equal(t, core.SkillReference{
		Name:        "git-commit",
		Description: "Commit messages",
		Scope:       core.SkillScopePersonal,
		Path:        gitPath,
		Status:      core.SkillStatusValid,
	}, cat.Personal[0])

	require.Len(t, cat.Project, 1)
	assert.Equal(t, "first", cat.Project[0].Description)
	assert.Equal(t, core.SkillScopeProject, cat.Project[0].Scope)
}

func TestScanner_MissingRoots(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	cat, err := NewScanner(missing, "").Scan(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cat.Len())
}

func TestScanner_CancelledContext(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root, "x", manifest("x", "y"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(root, "").Scan(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_Roots(t *testing.T) {
	assert.Equal(t, []string{"/p"}, NewScanner("", "/p").Roots())
	assert.Equal(t, []string{"/a", "/p"}, NewScanner("/a", "/p").Roots())
}
