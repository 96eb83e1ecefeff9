package evo

import "context"

type Command string

const (
	CommandPause    Command = "pause"
	CommandContinue Command = "continue"
	CommandStop     Command = "stop"
)

// awaitControl drains pending commands at a generation boundary. While paused it
// blocks until continue, stop, channel close or context cancellation.
func (e *Engine) awaitControl(ctx context.Context) (bool, error) {
	control := e.cfg.Control
	if control == nil {
		return false, nil
	}
	paused := false
	for {
		if paused {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case cmd, ok := <-control:
				if !ok {
					return false, nil
				}
				switch cmd {
				case CommandContinue:
					paused = false
				case CommandStop:
					return true, nil
				}
			}
			continue
		}

		select {
		case cmd, ok := <-control:
			if !ok {
				return false, nil
			}
			switch cmd {
			case CommandPause:
				paused = true
			case CommandStop:
				return true, nil
			}
		default:
			return false, nil
		}
	}
}
