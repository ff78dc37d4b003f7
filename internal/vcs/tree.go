// Package vcs implements the in-memory, single-tree version control
// protocol: PUT stores a new revision of a file only when its content
// differs from the latest, GET fetches a revision, LIST lists a directory.
package vcs

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// IsValidPath reports whether path is an absolute path built only from
// alphanumerics and "/.-_", with no empty path components.
func IsValidPath(path string) bool {
	if !strings.HasPrefix(path, "/") || strings.Contains(path, "//") {
		return false
	}
	for _, c := range path {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && !strings.ContainsRune("/.-_", c) {
			return false
		}
	}
	return true
}

type file struct {
	name      string
	revisions []string
}

type dir struct {
	name    string
	subdirs []*dir
	files   []*file
}

func newDir(name string) *dir {
	return &dir{name: name}
}

// putFile stores data at path (relative to d, no leading slash), creating
// intermediate directories as needed, and returns the resulting revision
// number. A revision is only appended when data differs from the file's
// current latest revision.
func (d *dir) putFile(path string, data string) int {
	if dirName, rest, ok := strings.Cut(path, "/"); ok {
		for _, sd := range d.subdirs {
			if sd.name == dirName {
				return sd.putFile(rest, data)
			}
		}
		sd := newDir(dirName)
		rev := sd.putFile(rest, data)
		d.subdirs = append(d.subdirs, sd)
		return rev
	}

	for _, f := range d.files {
		if f.name == path {
			if data != f.revisions[len(f.revisions)-1] {
				f.revisions = append(f.revisions, data)
			}
			return len(f.revisions)
		}
	}
	d.files = append(d.files, &file{name: path, revisions: []string{data}})
	return 1
}

func (d *dir) getFile(path string) (*file, bool) {
	dirName, rest, ok := strings.Cut(path, "/")
	if !ok {
		for _, f := range d.files {
			if f.name == path {
				return f, true
			}
		}
		return nil, false
	}
	for _, sd := range d.subdirs {
		if sd.name == dirName {
			return sd.getFile(rest)
		}
	}
	return nil, false
}

// getList lists the immediate contents of the directory at path (relative
// to d), sorted by name: "name/ DIR" for subdirectories with no same-named
// file, "name rN" for files.
func (d *dir) getList(path string) []string {
	if path != "" {
		dirName, rest, ok := strings.Cut(path, "/")
		if !ok {
			dirName, rest = path, ""
		}
		for _, sd := range d.subdirs {
			if sd.name == dirName {
				return sd.getList(rest)
			}
		}
		return nil
	}

	fileNames := make(map[string]bool, len(d.files))
	for _, f := range d.files {
		fileNames[f.name] = true
	}

	var names []string
	for _, sd := range d.subdirs {
		if !fileNames[sd.name] {
			names = append(names, sd.name+"/ DIR")
		}
	}
	for _, f := range d.files {
		names = append(names, fmt.Sprintf("%s r%d", f.name, len(f.revisions)))
	}
	sort.Strings(names)
	return names
}
