package optimizer

import (
	"io/fs"
	"os"
	"path/filepath"

	apperrors "ioptimizer-go/internal/errors"
)

// Enumerate lists the files under dir whose base name matches the glob filter.
// Matching uses filepath.Match and is case-sensitive on every platform.
// Results are in lexical order, so the same tree always yields the same order.
func Enumerate(dir, filter string, recursive bool) ([]Candidate, error) {
	if filter == "" {
		return nil, apperrors.New(apperrors.Validation, "enumerate", dir,
			"when specifying a directory, the filter argument is mandatory: -f <glob>")
	}
	if _, err := filepath.Match(filter, ""); err != nil {
		return nil, apperrors.Wrap(apperrors.Enumeration, "enumerate", filter, err)
	}

	if !recursive {
		return listDir(dir, filter)
	}

	var files []Candidate
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		c, ok, err := match(path, d, filter)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, c)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Enumeration, "enumerate", dir, err)
	}
	return files, nil
}

func listDir(dir, filter string) ([]Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Enumeration, "enumerate", dir, err)
	}

	var files []Candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		c, ok, err := match(filepath.Join(dir, entry.Name()), entry, filter)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.Enumeration, "enumerate", dir, err)
		}
		if ok {
			files = append(files, c)
		}
	}
	return files, nil
}

// match applies the filter and drops symlinks that point at directories.
func match(path string, d fs.DirEntry, filter string) (Candidate, bool, error) {
	ok, err := filepath.Match(filter, d.Name())
	if err != nil || !ok {
		return Candidate{}, false, err
	}

	info, err := d.Info()
	if err != nil {
		return Candidate{}, false, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		info, err = os.Stat(path)
		if err != nil || info.IsDir() {
			return Candidate{}, false, nil
		}
	}
	return NewCandidate(path, info.Size()), true, nil
}
