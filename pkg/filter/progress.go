package filter

import (
	"github.com/charmbracelet/log"
)

// Progress receives work reports from an Enumerator.
type Progress interface {
	// Begin starts a task of total units. A total below one means unknown.
	Begin(task string, total int)
	Worked(n int)
	Done()
}

// NopProgress discards all reports.
type NopProgress struct{}

func (NopProgress) Begin(string, int) {}
func (NopProgress) Worked(int)        {}
func (NopProgress) Done()             {}

// LogProgress logs a debug line every time another tenth of the task is done.
// It is not safe for concurrent use.
type LogProgress struct {
	log     *log.Logger
	task    string
	total   int
	worked  int
	reached int // tenths already reported
}

// NewLogProgress creates a LogProgress writing to l.
func NewLogProgress(l *log.Logger) *LogProgress {
	return &LogProgress{log: l}
}

func (p *LogProgress) Begin(task string, total int) {
	p.task = task
	p.total = total
	p.worked = 0
	p.reached = 0
	p.log.Debugf("%s: started (%d units)", task, total)
}

func (p *LogProgress) Worked(n int) {
	p.worked += n
	if p.total < 1 {
		return
	}
	tenths := p.worked * 10 / p.total
	if tenths > p.reached && tenths <= 10 {
		p.reached = tenths
		p.log.Debugf("%s: %d%%", p.task, tenths*10)
	}
}

func (p *LogProgress) Done() {
	p.log.Debugf("%s: done (%d units)", p.task, p.worked)
}

// Reached returns how many tenths of the task have been reported.
func (p *LogProgress) Reached() int {
	return p.reached
}
