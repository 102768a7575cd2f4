package scanner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
	"github.com/platinummonkey/noderegistry/pkg/manifest"
)

// scanNodeModulesDir returns the node modules directly inside a
// node_modules directory. Scoped @scope directories are searched one level
// deep before plain packages. When only is set, just that module is read.
func (s *Scanner) scanNodeModulesDir(dir string, local bool, only string) []*descriptor.Module {
	entries := s.readDir(dir)
	if len(entries) == 0 {
		return nil
	}

	var scoped, plain []string
	for _, e := range entries {
		if !e.IsDir() && e.Type()&os.ModeSymlink == 0 {
			continue
		}
		if strings.HasPrefix(e.Name(), "@") {
			scoped = append(scoped, e.Name())
		} else if !strings.HasPrefix(e.Name(), ".") {
			plain = append(plain, e.Name())
		}
	}

	var candidates []string
	for _, scope := range scoped {
		if only != "" && !strings.HasPrefix(only, scope+"/") {
			continue
		}
		for _, e := range s.readDir(filepath.Join(dir, scope)) {
			if e.IsDir() || e.Type()&os.ModeSymlink != 0 {
				candidates = append(candidates, scope+"/"+e.Name())
			}
		}
	}
	candidates = append(candidates, plain...)

	var modules []*descriptor.Module
	for _, name := range candidates {
		if only != "" && name != only {
			continue
		}
		m, err := s.readModule(filepath.Join(dir, filepath.FromSlash(name)), local)
		if err != nil {
			s.log.WithFields(logrus.Fields{
				"path": filepath.Join(dir, name),
			}).WithError(err).Debug("Skipping package with unusable manifest")
			continue
		}
		if m == nil {
			continue
		}
		if !s.opts.Filter.Admits(m.Name) {
			s.log.WithField("module", m.Name).Debug("Module excluded by filter")
			continue
		}
		modules = append(modules, m)
	}

	return modules
}

// readModule builds a module descriptor from a package directory. It
// returns nil without error for packages that are not node modules.
func (s *Scanner) readModule(dir string, local bool) (*descriptor.Module, error) {
	mf, err := manifest.LoadFromDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	if !mf.IsNodeModule() {
		return nil, nil
	}

	m := &descriptor.Module{
		Name:         mf.Name,
		Version:      mf.Version,
		Path:         dir,
		Local:        local,
		Dependencies: append([]string(nil), mf.Red.Dependencies...),
		RedVersion:   mf.Red.Version,
	}

	iconDirs := make(map[string]bool)
	addIcons := func(path string) {
		if iconDirs[path] {
			return
		}
		iconDirs[path] = true
		if icon := s.iconDir(path); icon != nil {
			m.Icons = append(m.Icons, *icon)
		}
	}
	addIcons(filepath.Join(dir, "icons"))

	addUnits := func(entries manifest.OrderedMap, kind descriptor.Kind) {
		for _, e := range entries {
			file := filepath.Join(dir, filepath.FromSlash(e.File))
			if !s.admitsFile(filepath.Base(file), e.Name) {
				s.log.WithField("unit", descriptor.UnitID(m.Name, e.Name)).Debug("Unit excluded by filter")
				continue
			}
			u := descriptor.NewUnit(m.Name, e.Name, kind, file)
			u.Template = templateFor(file)
			m.Units = append(m.Units, u)
			addIcons(filepath.Join(filepath.Dir(file), "icons"))
		}
	}
	addUnits(mf.Red.Plugins, descriptor.KindPlugin)
	addUnits(mf.Red.Nodes, descriptor.KindNode)

	if p := filepath.Join(dir, "examples"); isDir(p) {
		m.ExamplesPath = p
	}
	if p := filepath.Join(dir, "resources"); isDir(p) {
		m.ResourcesPath = p
	}

	return m, nil
}
