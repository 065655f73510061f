package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"
)

// DownloadOutput is the display state of one download.
type DownloadOutput struct {
	ID          int
	Label       string
	Status      string
	Message     string
	Progress    string
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Error       error
}

type ErrorReport struct {
	Label string
	Error error
	Time  time.Time
}

// Manager draws a live status block for concurrent downloads. When out is not
// a terminal nothing is redrawn and only the summary is written.
type Manager struct {
	out         io.Writer
	interactive bool
	outputs     map[int]*DownloadOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	nextID      int
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
}

func NewManager(out io.Writer) *Manager {
	interactive := false
	if f, ok := out.(*os.File); ok {
		interactive = isTerminal(f)
	}
	return &Manager{
		out:         out,
		interactive: interactive,
		outputs:     make(map[int]*DownloadOutput),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
	}
}

func (m *Manager) Register(label string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.nextID++
	now := time.Now()
	m.outputs[m.nextID] = &DownloadOutput{
		ID:          m.nextID,
		Label:       label,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
	}
	return m.nextID
}

func (m *Manager) update(id int, fn func(info *DownloadOutput)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if info, exists := m.outputs[id]; exists && !info.Complete {
		fn(info)
		info.LastUpdated = time.Now()
	}
}

func (m *Manager) SetMessage(id int, message string) {
	m.update(id, func(info *DownloadOutput) { info.Message = message })
}

func (m *Manager) SetStatus(id int, status string) {
	m.update(id, func(info *DownloadOutput) { info.Status = status })
}

func (m *Manager) GetStatus(id int) string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if info, exists := m.outputs[id]; exists {
		return info.Status
	}
	return "unknown"
}

// SetProgress replaces the progress line of a download; total < 0 means the
// size is not known yet.
func (m *Manager) SetProgress(id int, downloaded, total int64) {
	m.update(id, func(info *DownloadOutput) {
		info.Status = StatusActive
		info.Progress = progressLine(downloaded, total, time.Since(info.StartTime))
	})
}

func (m *Manager) Complete(id int, message string) {
	m.update(id, func(info *DownloadOutput) {
		if message == "" {
			message = fmt.Sprintf("Completed %s", info.Label)
		}
		info.Message = message
		info.Progress = ""
		info.Complete = true
		info.Status = StatusSuccess
	})
}

// Warn finishes a download that stopped without failing, e.g. on cancel.
func (m *Manager) Warn(id int, message string) {
	m.update(id, func(info *DownloadOutput) {
		info.Message = message
		info.Progress = ""
		info.Complete = true
		info.Status = StatusWarning
	})
}

func (m *Manager) ReportError(id int, err error) {
	m.update(id, func(info *DownloadOutput) {
		info.Message = fmt.Sprintf("Failed %s", info.Label)
		info.Progress = ""
		info.Complete = true
		info.Status = StatusError
		info.Error = err
		m.errors = append(m.errors, ErrorReport{Label: info.Label, Error: err, Time: time.Now()})
	})
}

// Counts returns how many downloads succeeded and failed so far.
func (m *Manager) Counts() (succeeded, failed int) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	for _, info := range m.outputs {
		switch info.Status {
		case StatusSuccess:
			succeeded++
		case StatusError:
			failed++
		}
	}
	return succeeded, failed
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case StatusSuccess:
		return successStyle.Render(StyleSymbols["pass"])
	case StatusError:
		return errorStyle.Render(StyleSymbols["fail"])
	case StatusWarning:
		return warningStyle.Render(StyleSymbols["warning"])
	case StatusPending:
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

// sorted returns running downloads first, then finished ones, each in
// registration order.
func (m *Manager) sorted() (running, finished []*DownloadOutput) {
	all := make([]*DownloadOutput, 0, len(m.outputs))
	for _, info := range m.outputs {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for _, info := range all {
		if info.Complete {
			finished = append(finished, info)
		} else {
			running = append(running, info)
		}
	}
	return running, finished
}

func (m *Manager) render(info *DownloadOutput) []string {
	elapsed := time.Since(info.StartTime).Round(time.Second)
	if info.Complete {
		elapsed = info.LastUpdated.Sub(info.StartTime).Round(time.Second)
	}
	message := info.Message
	if message == "" {
		message = info.Label
	}
	lines := []string{fmt.Sprintf("  %s %s %s", m.GetStatusIndicator(info.Status), debugStyle.Render(elapsed.String()), styleFor(info.Status).Render(message))}
	if info.Progress != "" {
		lines = append(lines, "      "+info.Progress)
	}
	return lines
}

func (m *Manager) updateDisplay() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	availableLines := getTerminalHeight() - 3
	if m.numLines > 0 {
		fmt.Fprintf(m.out, "\033[%dA\033[J", m.numLines)
	}
	running, finished := m.sorted()
	var lines []string
	for _, info := range running {
		lines = append(lines, m.render(info)...)
	}
	// keep the newest finished entries when space runs out
	var done []string
	for _, info := range finished {
		done = append(done, m.render(info)...)
	}
	if room := availableLines - len(lines); len(done) > room {
		hidden := len(done) - max(room-1, 0)
		done = done[hidden:]
		if room > 0 {
			lines = append(lines, streamStyle.Render(fmt.Sprintf("  %d earlier lines hidden ...", hidden)))
		}
	}
	lines = append(lines, done...)
	if len(lines) > availableLines {
		lines = lines[:max(availableLines, 0)]
	}
	for _, line := range lines {
		fmt.Fprintln(m.out, line)
	}
	m.numLines = len(lines)
}

func (m *Manager) StartDisplay() {
	if !m.interactive {
		return
	}
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.ShowSummary()
}

func (m *Manager) ShowSummary() {
	succeeded, failed := m.Counts()
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if !m.interactive {
		_, finished := m.sorted()
		for _, info := range finished {
			for _, line := range m.render(info) {
				fmt.Fprintln(m.out, line)
			}
		}
	}
	fmt.Fprintln(m.out)
	fmt.Fprintln(m.out, "  "+success2Style.Render(fmt.Sprintf("Completed %d of %d", succeeded, len(m.outputs))))
	if failed > 0 {
		fmt.Fprintln(m.out, "  "+errorStyle.Render(fmt.Sprintf("Failed %d of %d", failed, len(m.outputs))))
	}
	if len(m.errors) > 0 {
		fmt.Fprintln(m.out)
		fmt.Fprintln(m.out, "  "+errorStyle.Bold(true).Render("Errors:"))
		for i, report := range m.errors {
			fmt.Fprintf(m.out, "    %s %s %s\n",
				errorStyle.Render(fmt.Sprintf("%d.", i+1)),
				debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
				errorStyle.Render(report.Label))
			fmt.Fprintf(m.out, "      %s\n", errorStyle.Render(fmt.Sprintf("Error: %v", report.Error)))
		}
	}
	fmt.Fprintln(m.out)
}
