package tui

import "github.com/smileynet/qrcard/internal/batch"

// Compile-time check: bridgeCallback satisfies batch.Callback.
var _ batch.Callback = (*bridgeCallback)(nil)

// bridgeCallback forwards batch lifecycle events to a Bridge.
type bridgeCallback struct {
	bridge *Bridge
}

// NewCallback returns a batch.Callback that sends progress events through b.
// Completion is signaled separately with Bridge.Done or Bridge.Error once
// the runner returns, so fatal errors reach the display too.
func NewCallback(b *Bridge) batch.Callback {
	return &bridgeCallback{bridge: b}
}

func (c *bridgeCallback) OnBatchStart(total int) {
	c.bridge.Send(BatchStartMsg{Total: total})
}

func (c *bridgeCallback) OnRecordStart(index int, identity string) {
	c.bridge.Send(ProgressMsg{Index: index, Identity: identity, Status: StatusRunning})
}

func (c *bridgeCallback) OnRecordDone(index int, identity, location string) {
	c.bridge.Send(ProgressMsg{Index: index, Identity: identity, Status: StatusWritten, Location: location})
}

func (c *bridgeCallback) OnRecordFail(index int, f batch.Failure) {
	c.bridge.Send(ProgressMsg{
		Index:    index,
		Identity: f.Identity,
		Status:   StatusFailed,
		Stage:    f.Stage,
		Reason:   f.Reason,
	})
}

func (c *bridgeCallback) OnBatchComplete(batch.Report) {}
