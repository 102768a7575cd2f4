package scanner

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/filter"
)

const (
	// DefaultMaxAncestorDepth bounds the upward walk for ancestor node_modules
	DefaultMaxAncestorDepth = 32

	nodeModulesDir = "node_modules"
)

// DefaultExtensions are the implementation file extensions picked up from
// flat unit directories
var DefaultExtensions = []string{".lua", ".node"}

// Roots are the filesystem locations a full scan covers
type Roots struct {
	// CoreDir holds the host's own units
	CoreDir string
	// UserDir contains node_modules/ for user-installed modules and an
	// optional flat nodes/ directory
	UserDir string
	// NodesDirs are additional flat unit directories
	NodesDirs []string
	// InstallDir is where the upward walk for ancestor node_modules starts
	InstallDir string
}

// Options configures a Scanner
type Options struct {
	HostName         string
	HostVersion      string
	Roots            Roots
	Filter           *filter.Filter
	Extensions       []string
	MaxAncestorDepth int
	Logger           *logrus.Logger
}

// Scanner discovers module descriptors on disk. It never touches registry
// state: every call returns fresh descriptors.
type Scanner struct {
	opts Options
	log  *logrus.Logger
}

// New creates a scanner
func New(opts Options) *Scanner {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = DefaultExtensions
	}
	if opts.MaxAncestorDepth <= 0 {
		opts.MaxAncestorDepth = DefaultMaxAncestorDepth
	}
	if opts.Filter == nil {
		opts.Filter = filter.New(nil, nil)
	}

	return &Scanner{
		opts: opts,
		log:  opts.Logger,
	}
}

// HostName returns the name of the synthetic host module
func (s *Scanner) HostName() string {
	return s.opts.HostName
}

// Scan enumerates every module under the configured roots. Modules whose
// declared dependencies are not among the admitted set are rejected.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewResult()

	if host := s.scanHostModule(); host != nil {
		result.Add(host)
	}

	for _, dir := range s.moduleDirs() {
		for _, m := range s.scanNodeModulesDir(dir.path, dir.local, "") {
			if !result.Add(m) {
				s.log.WithFields(logrus.Fields{
					"module": m.Name,
					"path":   m.Path,
				}).Debug("Module shadowed by an earlier copy")
			}
		}
	}

	s.rejectMissingDependencies(result)

	s.log.WithFields(logrus.Fields{
		"modules":  len(result.Order),
		"rejected": len(result.Rejected),
	}).Debug("Scan complete")

	return result, nil
}

// ScanModule looks for a single module by name across the module roots.
// Dependencies are not checked: the caller resolves them against the
// registry.
func (s *Scanner) ScanModule(ctx context.Context, name string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewResult()
	for _, dir := range s.moduleDirs() {
		for _, m := range s.scanNodeModulesDir(dir.path, dir.local, name) {
			result.Add(m)
		}
	}
	return result, nil
}

// ScanPath reads a single module from an explicit package directory
func (s *Scanner) ScanPath(ctx context.Context, dir string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := NewResult()
	m, err := s.readModule(dir, true)
	if err != nil {
		return nil, err
	}
	if m != nil && s.opts.Filter.Admits(m.Name) {
		result.Add(m)
	}
	return result, nil
}

type moduleDir struct {
	path  string
	local bool
}

// moduleDirs lists node_modules directories in precedence order: the user
// directory first, then configured node dirs, then ancestors of the install
// directory up to the filesystem root.
func (s *Scanner) moduleDirs() []moduleDir {
	var dirs []moduleDir
	seen := make(map[string]bool)

	push := func(path string, local bool) {
		if path == "" {
			return
		}
		path = filepath.Clean(path)
		if seen[path] {
			return
		}
		seen[path] = true
		dirs = append(dirs, moduleDir{path: path, local: local})
	}

	if s.opts.Roots.UserDir != "" {
		push(filepath.Join(s.opts.Roots.UserDir, nodeModulesDir), true)
	}
	for _, d := range s.opts.Roots.NodesDirs {
		push(filepath.Join(d, nodeModulesDir), false)
	}

	if s.opts.Roots.InstallDir != "" {
		dir, err := filepath.Abs(s.opts.Roots.InstallDir)
		if err != nil {
			dir = filepath.Clean(s.opts.Roots.InstallDir)
		}
		for i := 0; i < s.opts.MaxAncestorDepth; i++ {
			push(filepath.Join(dir, nodeModulesDir), false)
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	return dirs
}

// readDir lists a directory, treating unreadable ones as empty
func (s *Scanner) readDir(dir string) []os.DirEntry {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.WithField("path", dir).WithError(err).Debug("Skipping unreadable directory")
		}
		return nil
	}
	return entries
}

func (s *Scanner) rejectMissingDependencies(result *Result) {
	for changed := true; changed; {
		changed = false
		for _, name := range result.Order {
			m := result.Modules[name]
			for _, dep := range m.Dependencies {
				if _, ok := result.Modules[dep]; ok {
					continue
				}
				err := descriptor.MissingDependencyError(m.Name, dep)
				s.log.WithFields(logrus.Fields{
					"module":     m.Name,
					"dependency": dep,
				}).Warn("Module excluded: missing dependency")
				result.Reject(m, err)
				changed = true
				break
			}
			if changed {
				break
			}
		}
	}
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
