package filtering

import (
	"fmt"
	"os"
	"path/filepath"
)

// File is a local CV file queued for upload.
type File struct {
	Path string
	Name string
	Size int64
}

type Files struct {
	Items []*File
}

// Collect stats every path. Directories are rejected.
func Collect(paths []string) (*Files, error) {
	files := &Files{Items: make([]*File, 0, len(paths))}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", p)
		}

		files.Items = append(files.Items, &File{
			Path: p,
			Name: filepath.Base(p),
			Size: info.Size(),
		})
	}

	return files, nil
}

func (f *Files) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Items)
}

func (f *Files) Names() []string {
	names := make([]string, 0, f.Len())
	if f == nil {
		return names
	}
	for _, file := range f.Items {
		names = append(names, file.Name)
	}
	return names
}

// Exclude removes files matching drop and returns the removed names.
func (f *Files) Exclude(drop func(*File) bool) []string {
	if f == nil {
		return nil
	}

	var removed []string
	kept := f.Items[:0]
	for _, file := range f.Items {
		if drop(file) {
			removed = append(removed, file.Name)
			continue
		}
		kept = append(kept, file)
	}
	f.Items = kept

	return removed
}
