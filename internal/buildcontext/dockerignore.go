package buildcontext

import (
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher/ignorefile"
)

// ignoreFileNames are the possible names for a build context's ignore file:
// .dockerignore is the Docker standard, .containerignore the Podman one.
var ignoreFileNames = []string{
	".dockerignore",
	".containerignore",
}

// LoadDockerignore reads ignore patterns from a build context root,
// returning an empty slice if neither ignore file exists.
func LoadDockerignore(root string) ([]string, error) {
	for _, name := range ignoreFileNames {
		patterns, err := loadIgnoreFile(filepath.Join(root, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if len(patterns) > 0 {
			return patterns, nil
		}
	}
	return nil, nil
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ignorefile.ReadAll(f)
}
