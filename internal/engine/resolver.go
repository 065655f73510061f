package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

type DestinationResolver interface {
	Resolve(dest DestinationInfo) (string, error)
}

var fileNameRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-\. ]+`)

// DirResolver places files under Root/Dirs.../FileName. An existing file is
// never overwritten; the name is renewed as "name-(N).ext" instead.
type DirResolver struct {
	Root string
}

func (r DirResolver) Resolve(dest DestinationInfo) (string, error) {
	name := SanitizeFileName(dest.FileName)
	if name == "" {
		return "", errors.New("destination file name is empty")
	}
	parts := []string{r.Root}
	for _, d := range dest.Dirs {
		d = SanitizeFileName(d)
		if d == "" {
			continue
		}
		parts = append(parts, d)
	}
	parts = append(parts, name)
	path := filepath.Join(parts...)
	if _, err := os.Stat(path); err == nil {
		path = RenewOutputPath(path)
	}
	return path, nil
}

// SanitizeFileName strips path separators and anything outside a
// conservative character set; "." and ".." collapse to "".
func SanitizeFileName(name string) string {
	name = filepath.Base(filepath.Clean("/" + strings.TrimSpace(name)))
	if name == "/" || name == "." {
		return ""
	}
	name = fileNameRegex.ReplaceAllString(name, "_")
	if strings.Trim(name, "_. ") == "" {
		return ""
	}
	return name
}

func RenewOutputPath(outputPath string) string {
	for index := 1; ; index++ {
		renewed := renewedPath(outputPath, index)
		if _, err := os.Stat(renewed); os.IsNotExist(err) {
			return renewed
		}
	}
}

// renewedPath turns "dir/name.ext" into "dir/name-(index).ext".
func renewedPath(outputPath string, index int) string {
	dir := filepath.Dir(outputPath)
	base := filepath.Base(outputPath)
	ext := filepath.Ext(base)
	return filepath.Join(dir, fmt.Sprintf("%s-(%d)%s", base[:len(base)-len(ext)], index, ext))
}
