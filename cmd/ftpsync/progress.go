package main

import (
	"context"
	"fmt"
	"io"

	"github.com/cheggaaa/pb/v3"

	"github.com/chmdznr/ftpsync/internal/notify"
)

const transferTemplate = `{{string . "op"}} {{string . "path"}} {{counters . }} {{bar . }} {{percent . }} {{speed . }}`

// progressView renders engine notifications: one bar per running transfer
// and a line for everything else.
type progressView struct {
	out  io.Writer
	bars map[string]*pb.ProgressBar
}

func newProgressView(out io.Writer) *progressView {
	return &progressView{
		out:  out,
		bars: make(map[string]*pb.ProgressBar),
	}
}

// run consumes the bus until ctx is done.
func (v *progressView) run(ctx context.Context, bus *notify.Bus) {
	for {
		select {
		case <-ctx.Done():
			v.drain(bus)
			return
		case n := <-bus.C():
			v.show(n)
		}
	}
}

// drain shows whatever is still buffered without waiting.
func (v *progressView) drain(bus *notify.Bus) {
	for {
		select {
		case n := <-bus.C():
			v.show(n)
		default:
			return
		}
	}
}

func (v *progressView) show(n notify.Notification) {
	switch n.Kind {
	case notify.KindProgress:
		v.progress(n)
	case notify.KindIOError:
		fmt.Fprintf(v.out, "Error: %s\n", n)
	case notify.KindBadFilename:
		fmt.Fprintf(v.out, "Warning: %s\n", n)
	case notify.KindLogin:
		if n.Err != nil {
			fmt.Fprintf(v.out, "Login failed: %v\n", n.Err)
			return
		}
		fmt.Fprintln(v.out, n.Message)
	default:
		fmt.Fprintln(v.out, n.Message)
	}
}

func (v *progressView) progress(n notify.Notification) {
	key := n.Op + " " + n.Path
	bar, ok := v.bars[key]
	if !ok {
		bar = pb.New64(n.Total)
		bar.Set(pb.Bytes, true)
		bar.SetTemplateString(transferTemplate)
		bar.Set("op", n.Op)
		bar.Set("path", n.Path)
		bar.SetWriter(v.out)
		bar.Start()
		v.bars[key] = bar
	}
	bar.SetCurrent(n.Done)
	if n.Total > 0 && n.Done >= n.Total {
		bar.Finish()
		delete(v.bars, key)
	}
}

// finish closes bars of transfers that never reported completion.
func (v *progressView) finish() {
	for key, bar := range v.bars {
		bar.Finish()
		delete(v.bars, key)
	}
}
