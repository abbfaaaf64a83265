package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotAScript marks paths that resolve to something other than a
// loadable script file, such as a directory with no entry point.
var ErrNotAScript = errors.New("not a script")

// Loader reads and parses script files, caching parsed scripts by
// canonical path. Parsed scripts are immutable and owned by the loader,
// so concurrent invocations share them freely; the cache is invalidated
// by file mtime. The loader is explicitly constructed and injected
// rather than being process-wide state.
type Loader struct {
	mu    sync.Mutex
	cache map[string]cachedScript
	log   *logrus.Entry
}

type cachedScript struct {
	script  *Script
	modTime time.Time
}

// NewLoader creates an empty loader.
func NewLoader() *Loader {
	return &Loader{
		cache: make(map[string]cachedScript),
		log:   logrus.WithField("component", "script-loader"),
	}
}

// Load reads and parses the script at path. A directory resolves to the
// entry point <dirname>.ai.yaml inside it; a path without the script
// extension gets it appended when the bare path does not exist.
func (l *Loader) Load(path string) (*Script, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return nil, err
	}
	canonical, err := filepath.Abs(resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving script path: %w", err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("script not found: %w", err)
	}

	l.mu.Lock()
	if entry, ok := l.cache[canonical]; ok && entry.modTime.Equal(info.ModTime()) {
		l.mu.Unlock()
		return entry.script, nil
	}
	l.mu.Unlock()

	content, err := os.ReadFile(canonical)
	if err != nil {
		return nil, fmt.Errorf("reading script: %w", err)
	}
	parsed := Parse(content, canonical)
	l.log.WithFields(logrus.Fields{
		"script": canonical,
		"turns":  len(parsed.Turns),
	}).Debug("parsed script")

	l.mu.Lock()
	l.cache[canonical] = cachedScript{script: parsed, modTime: info.ModTime()}
	l.mu.Unlock()
	return parsed, nil
}

// LoadRelative resolves a sub-script name relative to the directory of
// the referencing script and loads it. Used for <<script:...>>
// replacements and -> chain targets.
func (l *Loader) LoadRelative(name, sourcePath string) (*Script, error) {
	if name == "" {
		return nil, fmt.Errorf("empty script name")
	}
	path := name
	if !filepath.IsAbs(path) && sourcePath != "" {
		path = filepath.Join(filepath.Dir(sourcePath), name)
	}
	return l.Load(path)
}

// resolvePath applies the extension and directory-entry-point
// conventions.
func resolvePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty script path")
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		entry := filepath.Join(path, filepath.Base(path)+Extension)
		if _, err := os.Stat(entry); err != nil {
			return "", fmt.Errorf("%w: directory %s has no %s entry point", ErrNotAScript, path, filepath.Base(entry))
		}
		return entry, nil
	}
	if strings.HasSuffix(path, Extension) {
		return path, nil
	}
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return path + Extension, nil
}
