package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func GetRandomUserAgent() string {
	return userAgents[time.Now().UnixNano()%int64(len(userAgents))]
}

func ParseHeaderArgs(headers []string) map[string]string {
	result := make(map[string]string)
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) == 2 {
			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])
			if key != "" {
				result[key] = value
			}
		}
	}
	return result
}

func FormatBytes(bytes uint64) string {
	return humanize.IBytes(bytes)
}

func FormatSpeed(bytes int64, elapsed float64) string {
	if elapsed <= 0 || bytes <= 0 {
		return "0 B/s"
	}
	return FormatBytes(uint64(float64(bytes)/elapsed)) + "/s"
}

// CleanLocal removes the whole temp directory below dir.
func CleanLocal(dir, tempDirName string) error {
	tempDir := filepath.Join(dir, tempDirName)
	_, err := os.Stat(tempDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return os.RemoveAll(tempDir)
}

// CleanFunction removes leftover chunk and merge files belonging to
// outputPath, and the temp directory once it is empty. It returns the number
// of files removed.
func CleanFunction(outputPath, tempDirName string) (int, error) {
	tempDir := filepath.Join(filepath.Dir(outputPath), tempDirName)
	files, err := os.ReadDir(tempDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	prefix := filepath.Base(outputPath) + "."
	removed := 0
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || !strings.HasPrefix(name, prefix) || !TempFileRegex.MatchString(strings.TrimPrefix(name, prefix)) {
			continue
		}
		if err := os.Remove(filepath.Join(tempDir, name)); err != nil {
			return removed, fmt.Errorf("error removing %s: %w", name, err)
		}
		removed++
	}
	remainingFiles, err := os.ReadDir(tempDir)
	if err != nil {
		return removed, err
	}
	if len(remainingFiles) == 0 {
		if err := os.Remove(tempDir); err != nil {
			return removed, err
		}
	}
	return removed, nil
}
