package main

import (
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gosuri/uiprogress"

	"github.com/emberon/emberon"
)

var stageTitles = map[emberon.Stage]string{
	emberon.StageCompress:   "Compressing",
	emberon.StageStore:      "Copying",
	emberon.StageDecompress: "Decompressing",
}

// barProgress renders each codec stage as a uiprogress bar in bytes.
type barProgress struct {
	progress *uiprogress.Progress
	bar      *uiprogress.Bar
	current  atomic.Int64
	total    int64
}

func newBarProgress() *barProgress {
	return &barProgress{}
}

func (p *barProgress) Begin(stage emberon.Stage, total int64) {
	p.current.Store(0)
	p.total = total
	p.progress = uiprogress.New()
	p.progress.Start()

	// uiprogress counts in ints.
	bar := p.progress.AddBar(int(max(total, 1))).AppendCompleted().PrependElapsed()
	title := stageTitles[stage]
	bar.PrependFunc(func(*uiprogress.Bar) string {
		return title
	})
	bar.AppendFunc(func(*uiprogress.Bar) string {
		return fmt.Sprintf("%s/%s", humanize.IBytes(uint64(p.current.Load())), humanize.IBytes(uint64(p.total)))
	})
	p.bar = bar
}

func (p *barProgress) Advance(n int64) {
	cur := p.current.Add(n)
	if p.bar != nil {
		p.bar.Set(int(min(cur, int64(p.bar.Total))))
	}
}

func (p *barProgress) End() {
	if p.bar == nil {
		return
	}
	p.bar.Set(p.bar.Total)
	p.progress.Stop()
	p.bar = nil
}
