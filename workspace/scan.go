// Package workspace discovers and loads the .x files under a workspace root.
// Discovery returns a deterministic sorted path list; loading lexes and
// parses files on a bounded worker pool, so index contents never depend on
// filesystem walk order or worker scheduling.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/drebelsky/xdr-ls/parser"
)

// Discover walks the root directory and returns the absolute paths of all
// eligible .x files, sorted. Walk errors on individual entries are skipped;
// an unreadable root is an error.
func Discover(rootDir string, matcher *Matcher) ([]string, error) {
	if info, err := os.Stat(rootDir); err != nil {
		return nil, fmt.Errorf("reading workspace root: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", rootDir)
	}

	var paths []string
	filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != rootDir && matcher.ShouldIgnoreDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(path), ".x") {
			return nil
		}
		if matcher.ShouldIgnore(path) {
			return nil
		}
		if info, err := d.Info(); err != nil || matcher.IsFileTooLarge(info.Size()) {
			return nil
		}
		paths = append(paths, filepath.Clean(path))
		return nil
	})

	sort.Strings(paths)
	return paths, nil
}

// Load reads and parses every path with a bounded worker pool. Results keep
// the order of the input paths. Files that cannot be read or do not decode
// as single-byte text are skipped; a skip never affects other files.
func Load(paths []string, logger *slog.Logger) []*parser.File {
	const workerCount = 8

	results := make([]*parser.File, len(paths))
	jobs := make(chan int, len(paths))

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				file, err := loadFile(paths[i])
				if err != nil {
					logger.Debug("skipped file", "path", paths[i], "error", err)
					continue
				}
				results[i] = file
			}
		}()
	}
	for i := range paths {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	loaded := make([]*parser.File, 0, len(results))
	for _, file := range results {
		if file != nil {
			loaded = append(loaded, file)
		}
	}
	return loaded
}

func loadFile(path string) (*parser.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	if !isTextContent(data) {
		return nil, fmt.Errorf("binary content")
	}
	return parser.Parse(path, string(data)), nil
}

// isTextContent checks the first 512 bytes for null bytes, which indicate
// content that is not single-byte text.
func isTextContent(data []byte) bool {
	checkSize := 512
	if len(data) < checkSize {
		checkSize = len(data)
	}
	for i := 0; i < checkSize; i++ {
		if data[i] == 0 {
			return false
		}
	}
	return true
}
