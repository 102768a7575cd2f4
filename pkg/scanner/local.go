package scanner

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/noderegistry/pkg/descriptor"
)

var orderPrefix = regexp.MustCompile(`^\d+-`)

// skippedDirs are never descended into when scanning flat unit directories
var skippedDirs = map[string]bool{
	"lib":          true,
	"icons":        true,
	"node_modules": true,
	"test":         true,
	"locales":      true,
}

// scanHostModule builds the synthetic module for the host's own units: the
// core directory, the user's flat nodes directory and any extra node dirs.
func (s *Scanner) scanHostModule() *descriptor.Module {
	var dirs []string
	if s.opts.Roots.CoreDir != "" {
		dirs = append(dirs, s.opts.Roots.CoreDir)
	}
	if s.opts.Roots.UserDir != "" {
		dirs = append(dirs, filepath.Join(s.opts.Roots.UserDir, "nodes"))
	}
	dirs = append(dirs, s.opts.Roots.NodesDirs...)
	if len(dirs) == 0 {
		return nil
	}

	host := &descriptor.Module{
		Name:    s.opts.HostName,
		Version: s.opts.HostVersion,
		Path:    s.opts.Roots.CoreDir,
	}

	for _, dir := range dirs {
		units, icons := s.scanLocalDir(dir)
		host.Icons = append(host.Icons, icons...)
		for _, u := range units {
			if existing := host.Unit(u.Name); existing != nil {
				s.log.WithFields(logrus.Fields{
					"unit":     u.Name,
					"file":     u.File,
					"existing": existing.File,
				}).Warn("Duplicate unit name, keeping the first")
				continue
			}
			host.Units = append(host.Units, u)
		}
	}

	if s.opts.Roots.CoreDir == "" && len(host.Units) == 0 {
		return nil
	}
	return host
}

// scanLocalDir collects implementation files under dir, descending into
// subdirectories except the skipped ones
func (s *Scanner) scanLocalDir(dir string) ([]*descriptor.Unit, []descriptor.IconDir) {
	var units []*descriptor.Unit
	var icons []descriptor.IconDir

	for _, entry := range s.readDir(dir) {
		path := filepath.Join(dir, entry.Name())

		if entry.IsDir() {
			if entry.Name() == "icons" {
				if icon := s.iconDir(path); icon != nil {
					icons = append(icons, *icon)
				}
			}
			if skippedDirs[entry.Name()] {
				continue
			}
			subUnits, subIcons := s.scanLocalDir(path)
			units = append(units, subUnits...)
			icons = append(icons, subIcons...)
			continue
		}

		if !s.isImplementation(entry.Name()) {
			continue
		}
		if u := s.localUnit(path); u != nil {
			units = append(units, u)
		}
	}

	return units, icons
}

// localUnit describes a single implementation file as a node unit named by
// its base name with any NN- ordering prefix removed
func (s *Scanner) localUnit(file string) *descriptor.Unit {
	base := filepath.Base(file)
	name := UnitName(base)
	if !s.admitsFile(base, name) {
		s.log.WithField("file", file).Debug("Unit excluded by filter")
		return nil
	}

	u := descriptor.NewUnit(s.opts.HostName, name, descriptor.KindNode, file)
	u.Template = templateFor(file)
	return u
}

// UnitName derives a unit name from an implementation file name
func UnitName(fileName string) string {
	name := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	return orderPrefix.ReplaceAllString(name, "")
}

func (s *Scanner) isImplementation(name string) bool {
	ext := filepath.Ext(name)
	for _, e := range s.opts.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Scanner) admitsFile(base, unitName string) bool {
	f := s.opts.Filter
	included := f.IsIncluded(base) || f.IsIncluded(unitName)
	excluded := f.IsExcluded(base) || f.IsExcluded(unitName)
	return included && !excluded
}

// templateFor returns the sibling .html template of an implementation file,
// or "" when there is none
func templateFor(file string) string {
	tmpl := strings.TrimSuffix(file, filepath.Ext(file)) + ".html"
	if isFile(tmpl) {
		return tmpl
	}
	return ""
}

func (s *Scanner) iconDir(path string) *descriptor.IconDir {
	var names []string
	for _, e := range s.readDir(path) {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &descriptor.IconDir{Path: path, Icons: names}
}
