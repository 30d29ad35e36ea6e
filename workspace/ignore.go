package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/denormal/go-gitignore"
)

// Matcher decides whether a path takes part in workspace discovery. It
// combines a fixed skip list for VCS and tooling directories, .gitignore
// rules from the workspace root, and user-supplied exclude globs.
type Matcher struct {
	rootDir          string
	gitIgnore        gitignore.GitIgnore
	excludePatterns  []string
	maxFileSizeBytes int64
}

// MatcherOptions configures the matcher.
type MatcherOptions struct {
	RootDir          string
	ExcludePatterns  []string // doublestar globs matched against relative paths
	MaxFileSizeBytes int64
}

// NewMatcher creates a matcher for the given workspace root. Invalid exclude
// patterns are dropped rather than failing discovery.
func NewMatcher(options MatcherOptions) *Matcher {
	m := &Matcher{
		rootDir:          options.RootDir,
		maxFileSizeBytes: options.MaxFileSizeBytes,
	}
	if m.maxFileSizeBytes <= 0 {
		m.maxFileSizeBytes = 1024 * 1024 // 1MB default
	}

	for _, pattern := range options.ExcludePatterns {
		pattern = strings.ReplaceAll(pattern, "\\", "/")
		if doublestar.ValidatePattern(pattern) {
			m.excludePatterns = append(m.excludePatterns, pattern)
		}
	}

	m.gitIgnore = loadIgnoreFile(filepath.Join(options.RootDir, ".gitignore"), options.RootDir)
	return m
}

// ShouldIgnore returns true if the file at absolutePath is excluded from
// discovery.
func (m *Matcher) ShouldIgnore(absolutePath string) bool {
	relativePath, err := filepath.Rel(m.rootDir, absolutePath)
	if err != nil {
		relativePath = absolutePath
	}
	relativePath = filepath.ToSlash(relativePath)

	for _, pattern := range m.excludePatterns {
		if matched, err := doublestar.Match(pattern, relativePath); err == nil && matched {
			return true
		}
		base := relativePath
		if i := strings.LastIndexByte(base, '/'); i >= 0 {
			base = base[i+1:]
		}
		if matched, err := doublestar.Match(pattern, base); err == nil && matched {
			return true
		}
	}

	if m.gitIgnore != nil {
		isDir := false
		if info, err := os.Stat(absolutePath); err == nil {
			isDir = info.IsDir()
		}
		if match := m.gitIgnore.Relative(relativePath, isDir); match != nil && match.Ignore() {
			return true
		}
	}

	return false
}

// ShouldIgnoreDir returns true if a directory is skipped entirely during
// traversal.
func (m *Matcher) ShouldIgnoreDir(absolutePath string) bool {
	switch filepath.Base(absolutePath) {
	case ".git", ".svn", ".hg", "node_modules", ".idea", ".vscode", ".cache":
		return true
	}
	return m.ShouldIgnore(absolutePath)
}

// IsFileTooLarge returns true if the file exceeds the configured size cap.
func (m *Matcher) IsFileTooLarge(fileSize int64) bool {
	return fileSize > m.maxFileSizeBytes
}

// loadIgnoreFile reads an ignore file and creates a GitIgnore matcher from
// it. A missing file yields a nil matcher, which matches nothing.
func loadIgnoreFile(filePath string, baseDir string) gitignore.GitIgnore {
	f, err := os.Open(filePath)
	if err != nil {
		return nil
	}
	defer f.Close()

	return gitignore.New(f, baseDir, nil)
}
