// Package procstat samples CPU and memory usage of a runner process tree.
package procstat

import (
	"fmt"

	"github.com/bennhub/playwright-command-center/model"
	"github.com/shirou/gopsutil/v4/process"
)

// Sampler reads usage of a process and all of its descendants, so the
// browsers a runner spawns are counted against it.
type Sampler struct{}

func NewSampler() *Sampler {
	return &Sampler{}
}

// Sample returns the summed CPU percentage and resident memory of pid and
// its children.
func (s *Sampler) Sample(pid int) (*model.ProcessStats, error) {
	root, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	stats := &model.ProcessStats{}
	seen := map[int32]bool{}
	queue := []*process.Process{root}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		if seen[p.Pid] {
			continue
		}
		seen[p.Pid] = true

		// Descendants can exit between listing and sampling; skip them.
		if cpu, err := p.CPUPercent(); err == nil {
			stats.CPUPercent += cpu
		} else if p == root {
			return nil, fmt.Errorf("failed to read cpu of process %d: %w", pid, err)
		}
		if mem, err := p.MemoryInfo(); err == nil && mem != nil {
			stats.RSSBytes += mem.RSS
		}

		if children, err := p.Children(); err == nil {
			queue = append(queue, children...)
		}
	}
	return stats, nil
}
