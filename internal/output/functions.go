package output

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/k1rakishou/chanfetch/internal/utils"
	"golang.org/x/term"
)

func PrintProgressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	if total <= 0 {
		total = 1
	}
	current = max(0, min(current, total))
	percent := float64(current) / float64(total)
	filled := max(0, min(int(percent*float64(width)), width))
	bar := StyleSymbols["bullet"] + strings.Repeat(StyleSymbols["hline"], filled) + strings.Repeat(" ", width-filled) + StyleSymbols["bullet"]
	return debugStyle.Render(fmt.Sprintf("%s %.1f%% %s ", bar, percent*100, StyleSymbols["bullet"]))
}

// progressLine renders a bar when the total is known and a byte counter
// otherwise.
func progressLine(downloaded, total int64, elapsed time.Duration) string {
	speed := utils.FormatSpeed(downloaded, elapsed.Seconds())
	if total > 0 {
		sizes := fmt.Sprintf("%s / %s", utils.FormatBytes(uint64(max(downloaded, 0))), utils.FormatBytes(uint64(total)))
		return fmt.Sprintf("%s%s %s %s", PrintProgressBar(downloaded, total, 30), debugStyle.Render(sizes), StyleSymbols["bullet"], debugStyle.Render(speed))
	}
	return debugStyle.Render(fmt.Sprintf("%s %s %s", utils.FormatBytes(uint64(max(downloaded, 0))), StyleSymbols["bullet"], speed))
}

func getTerminalHeight() int {
	_, height, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || height <= 0 {
		return 24
	}
	return height
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
