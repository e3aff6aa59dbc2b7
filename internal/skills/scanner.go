package skills

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flowcanvas/flowrefine/internal/core"
	"github.com/flowcanvas/flowrefine/internal/logging"
)

// SkillFileName is the manifest file that marks a skill directory.
const SkillFileName = "SKILL.md"

const frontmatterDelimiter = "---"

// Scanner discovers skills under a personal and a project root.
type Scanner struct {
	personalDir string
	projectDir  string
	logger      *logging.Logger
}

// ScannerOption configures a Scanner.
type ScannerOption func(*Scanner)

// WithScannerLogger sets the logger used for skipped skill files.
func WithScannerLogger(l *logging.Logger) ScannerOption {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewScanner creates a scanner. Either root may be empty.
func NewScanner(personalDir, projectDir string, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		personalDir: personalDir,
		projectDir:  projectDir,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Roots returns the configured roots, personal first.
func (s *Scanner) Roots() []string {
	var roots []string
	for _, r := range []string{s.personalDir, s.projectDir} {
		if r != "" {
			roots = append(roots, r)
		}
	}
	return roots
}

// Scan walks both roots. Missing roots yield no skills. A skill file that
// cannot be parsed is logged and skipped. Within a scope the first skill
// with a given name wins.
func (s *Scanner) Scan(ctx context.Context) (core.SkillCatalogue, error) {
	var cat core.SkillCatalogue
	var err error

	if cat.Personal, err = s.scanRoot(ctx, s.personalDir, core.SkillScopePersonal); err != nil {
		return core.SkillCatalogue{}, err
	}
	if cat.Project, err = s.scanRoot(ctx, s.projectDir, core.SkillScopeProject); err != nil {
		return core.SkillCatalogue{}, err
	}
	return cat, nil
}

func (s *Scanner) scanRoot(ctx context.Context, root string, scope core.SkillScope) ([]core.SkillReference, error) {
	if root == "" {
		return nil, nil
	}
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return nil, nil
	}

	var refs []core.SkillReference
	seen := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.logger.Warn("skipping unreadable skill path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Name() != SkillFileName {
			return nil
		}

		ref, err := ParseSkillFile(path)
		if err != nil {
			s.logger.Warn("skipping invalid skill", "path", path, "error", err)
			return nil
		}
		if seen[ref.Name] {
			s.logger.Debug("duplicate skill name ignored", "name", ref.Name, "path", path, "scope", scope)
			return nil
		}
		seen[ref.Name] = true

		ref.Scope = scope
		refs = append(refs, ref)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s skills in %s: %w", scope, root, err)
	}
	return refs, nil
}

// ParseSkillFile reads a SKILL.md manifest and returns its catalogue entry.
func ParseSkillFile(path string) (core.SkillReference, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return core.SkillReference{}, fmt.Errorf("reading skill file: %w", err)
	}
	ref, err := ParseSkill(content)
	if err != nil {
		return core.SkillReference{}, err
	}
	ref.Path = path
	ref.Status = core.SkillStatusValid
	return ref, nil
}

// ParseSkill parses the YAML frontmatter of a skill manifest.
func ParseSkill(content []byte) (core.SkillReference, error) {
	front, err := splitFrontmatter(content)
	if err != nil {
		return core.SkillReference{}, err
	}

	var ref core.SkillReference
	if err := yaml.Unmarshal(front, &ref); err != nil {
		return core.SkillReference{}, fmt.Errorf("parsing frontmatter: %w", err)
	}
	ref.Name = strings.TrimSpace(ref.Name)
	ref.Description = strings.TrimSpace(ref.Description)
	if ref.Name == "" {
		return core.SkillReference{}, errors.New("skill name is required")
	}
	return ref, nil
}

// splitFrontmatter returns the YAML block between the leading and closing
// "---" lines.
func splitFrontmatter(content []byte) ([]byte, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	content = bytes.TrimLeft(content, " \t\r\n")
	if !bytes.HasPrefix(content, []byte(frontmatterDelimiter)) {
		return nil, errors.New("missing frontmatter: file must start with ---")
	}

	rest := skipLine(content)
	for offset := 0; offset < len(rest); {
		line := rest[offset:]
		end := bytes.IndexByte(line, '\n')
		if end < 0 {
			end = len(line)
		}
		if strings.TrimSpace(string(line[:end])) == frontmatterDelimiter {
			return rest[:offset], nil
		}
		offset += end + 1
	}
	return nil, errors.New("missing closing frontmatter delimiter ---")
}

func skipLine(b []byte) []byte {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		return b[i+1:]
	}
	return nil
}
