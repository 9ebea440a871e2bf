package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/schollz/progressbar/v3"

	"github.com/msageha/dropzone/internal/batch"
	"github.com/msageha/dropzone/internal/events"
	"github.com/msageha/dropzone/internal/staging"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// logPresenter streams staging log lines to w.
type logPresenter struct {
	w io.Writer
}

func (p *logPresenter) Present(s *staging.Staging) {
	var mu sync.Mutex
	printed := 0
	fmt.Fprintf(p.w, "==> %s\n", s.Descriptor().Title)

	unwatch := s.Watch(func(snap staging.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if printed > len(snap.Log) {
			return
		}
		for _, line := range snap.Log[printed:] {
			fmt.Fprintf(p.w, "    %s\n", line)
		}
		printed = len(snap.Log)
	})
	s.Subscribe(func(*staging.Staging) { unwatch() })
}

// attachEventPrinter prints user-facing events to w.
func attachEventPrinter(bus *events.Bus, w io.Writer) func() {
	var mu sync.Mutex
	printEvent := func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		if e.Message != "" {
			fmt.Fprintf(w, "[%s] %s: %s\n", e.Variant, e.Title, e.Message)
		} else {
			fmt.Fprintf(w, "[%s] %s\n", e.Variant, e.Title)
		}
	}

	unsubs := make([]func(), 0, len(userEvents))
	for _, t := range userEvents {
		unsubs = append(unsubs, bus.Subscribe(t, printEvent))
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// attachProgress drives a progress bar on w from b until the returned
// function is called.
func attachProgress(b *batch.Batch, w io.Writer, description string) func() {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	var mu sync.Mutex
	unsub := b.Subscribe(func(s batch.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		bar.ChangeMax(len(s.Items))
		_ = bar.Set(s.Index)
	})
	return func() {
		unsub()
		mu.Lock()
		defer mu.Unlock()
		_ = bar.Finish()
	}
}
