package dataset

import (
	"os"
	"path/filepath"
	"sort"
)

// classFile is one candidate sample on disk.
type classFile struct {
	// Path is the path to the image file.
	Path string
	// Class is the label index of the directory the file was found in.
	Class int
}

// listClassFiles returns every non-directory entry of dir sorted by name.
//
// Arguments:
//   - dir: Directory holding the images of one class.
//   - class: Label index assigned to every file.
//
// Returns:
//   - []classFile: The files in name order.
//   - error: Error if the directory cannot be read.
func listClassFiles(dir string, class int) ([]classFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]classFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, classFile{
			Path:  filepath.Join(dir, entry.Name()),
			Class: class,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})

	return files, nil
}
