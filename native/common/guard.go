package common

import "errors"

// ErrPaused is returned when an operation is attempted while the sale is
// paused, either by an administrator or by the automatic full-cap pause.
var ErrPaused = errors.New("sale paused")

// PauseView exposes the pause toggle consulted by deposit entry points.
type PauseView interface {
	IsPaused() bool
}

// Guard rejects the operation when the view reports a paused sale.
func Guard(p PauseView) error {
	if p == nil {
		return nil
	}
	if p.IsPaused() {
		return ErrPaused
	}
	return nil
}
