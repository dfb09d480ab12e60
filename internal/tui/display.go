package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"github.com/smileynet/qrcard/internal/batch"
)

// DisplayEvent is an event sent to a Display via the update channel.
// Implemented by BatchStartMsg, ProgressMsg, BatchDoneMsg, and BatchErrorMsg.
type DisplayEvent interface {
	isDisplayEvent()
}

// Verify at compile time that message types implement DisplayEvent.
var (
	_ DisplayEvent = BatchStartMsg{}
	_ DisplayEvent = ProgressMsg{}
	_ DisplayEvent = BatchDoneMsg{}
	_ DisplayEvent = BatchErrorMsg{}
)

// Display renders batch progress.
type Display interface {
	Run(ctx context.Context, events <-chan DisplayEvent) error
}

// DisplayOptions configures display creation.
type DisplayOptions struct {
	Writer     io.Writer          // Output destination (default: os.Stdout).
	ForcePlain bool               // Force plain text even if TTY.
	CancelFunc context.CancelFunc // Called by TUI on abort keypress (ignored by PlainDisplay).
}

// NewDisplay returns a TUI display when the writer is a TTY, or a plain text
// display otherwise. ForcePlain overrides TTY detection.
func NewDisplay(opts DisplayOptions) Display {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	if opts.ForcePlain || !isTTY(opts.Writer) {
		return &PlainDisplay{w: opts.Writer}
	}

	return &TUIDisplay{w: opts.Writer, cancelFunc: opts.CancelFunc}
}

// isTTY reports whether w is connected to a terminal.
func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Bridge manages the channel between the batch runner and a Display consumer.
type Bridge struct {
	ch chan DisplayEvent
}

// NewBridge creates a Bridge with a buffered event channel.
func NewBridge() *Bridge {
	return &Bridge{ch: make(chan DisplayEvent, 16)}
}

// Events returns the read-only channel for Display.Run() to consume.
func (b *Bridge) Events() <-chan DisplayEvent {
	return b.ch
}

// Send delivers an event to the display.
// It blocks if the channel buffer (16) is full.
func (b *Bridge) Send(ev DisplayEvent) {
	b.ch <- ev
}

// Done signals batch completion and closes the channel.
func (b *Bridge) Done(r batch.Report) {
	b.ch <- BatchDoneMsg{Report: r}
	close(b.ch)
}

// Error signals a fatal batch error and closes the channel.
func (b *Bridge) Error(err error) {
	b.ch <- BatchErrorMsg{Err: err}
	close(b.ch)
}

// PlainDisplay renders progress as timestamped text lines.
type PlainDisplay struct {
	w     io.Writer
	total int
}

// Run loops over events, printing one line per finished record.
// Returns the batch error if the batch failed, or context error if cancelled.
func (d *PlainDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch msg := ev.(type) {
			case BatchStartMsg:
				d.total = msg.Total
				_, _ = fmt.Fprintf(d.w, "[%s] generating %d contact cards\n", timestamp(), msg.Total)
			case ProgressMsg:
				d.renderProgress(msg)
			case BatchDoneMsg:
				return nil
			case BatchErrorMsg:
				return msg.Err
			}
		}
	}
}

func (d *PlainDisplay) renderProgress(p ProgressMsg) {
	progress := fmt.Sprintf("%d/%d", p.Index+1, d.total)
	switch p.Status {
	case StatusWritten:
		_, _ = fmt.Fprintf(d.w, "[%s] [%s] %s written: %s\n", timestamp(), progress, p.Identity, p.Location)
	case StatusFailed:
		_, _ = fmt.Fprintf(d.w, "[%s] [%s] %s failed (%s): %s\n", timestamp(), progress, p.Identity, p.Stage, p.Reason)
	}
}

func timestamp() string { return time.Now().Format("15:04:05") }

// TUIDisplay renders progress using a Bubble Tea terminal UI.
// Falls back to PlainDisplay if the TUI program fails to start.
type TUIDisplay struct {
	w          io.Writer
	cancelFunc context.CancelFunc
}

// Run starts the Bubble Tea program and feeds events from the channel.
// If the TUI fails to initialize, it falls back to plain text output.
func (d *TUIDisplay) Run(ctx context.Context, events <-chan DisplayEvent) error {
	var opts []ModelOption
	if d.cancelFunc != nil {
		opts = append(opts, WithCancelFunc(d.cancelFunc))
	}
	p := tea.NewProgram(NewModel(opts...), tea.WithOutput(d.w))

	// Forward events through an intermediate channel so we can stop
	// the goroutine cleanly on TUI failure before falling back.
	fwd := make(chan DisplayEvent, 16)
	stop := make(chan struct{})

	go func() {
		defer close(fwd)
		for ev := range events {
			select {
			case fwd <- ev:
			case <-stop:
				return
			}
		}
	}()

	go func() {
		for ev := range fwd {
			p.Send(ev)
		}
	}()

	final, err := p.Run()
	if err != nil {
		close(stop)
		// Fall back to plain text for remaining events from the original channel.
		plain := &PlainDisplay{w: d.w}
		return plain.Run(ctx, events)
	}

	if m, ok := final.(Model); ok && m.err != nil {
		return m.err
	}
	return nil
}
