package main

import (
	"path/filepath"
	"sync"

	"github.com/backmassage/clipmaster/internal/display"
	"github.com/backmassage/clipmaster/internal/engine"
	"github.com/backmassage/clipmaster/internal/jobs"
	"github.com/backmassage/clipmaster/internal/logging"
)

// progressStep is the percentage between two progress lines for a clip.
const progressStep = 10

// progressLog throttles engine progress into one RENDER line per step.
type progressLog struct {
	log  *logging.Logger
	mu   sync.Mutex
	last map[string]int // task id -> last step logged
}

func newProgressLog(log *logging.Logger) *progressLog {
	return &progressLog{log: log, last: make(map[string]int)}
}

func (p *progressLog) update(t *jobs.Task, pr engine.Progress) {
	if pr.Percent < 0 {
		return
	}
	step := int(pr.Percent) / progressStep
	p.mu.Lock()
	prev, seen := p.last[t.ID]
	if seen && step <= prev {
		p.mu.Unlock()
		return
	}
	p.last[t.ID] = step
	p.mu.Unlock()
	p.log.Render("%s%s", filepath.Base(t.SourcePath), display.FormatProgress(pr.Percent, pr.ETASeconds, pr.Speed))
}
