package loader

import (
	"path/filepath"
	"regexp"
	"strconv"
)

var (
	// path/to/file.lua:12: message
	colonLine = regexp.MustCompile(`(\S+?):(\d+):`)
	// path/to/file.lua line:12(column:3) near ...
	wordLine = regexp.MustCompile(`(\S+) line:(\d+)`)
)

// sourceLine finds the line a failure points at in file. Locations in other
// files are ignored; 0 means unknown.
func sourceLine(msg, file string) int {
	if file == "" {
		return 0
	}
	base := filepath.Base(file)

	for _, re := range []*regexp.Regexp{colonLine, wordLine} {
		for _, m := range re.FindAllStringSubmatch(msg, -1) {
			if m[1] != file && filepath.Base(m[1]) != base {
				continue
			}
			if n, err := strconv.Atoi(m[2]); err == nil && n > 0 {
				return n
			}
		}
	}
	return 0
}
