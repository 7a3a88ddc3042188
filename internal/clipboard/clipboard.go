// Package clipboard delivers finished transcripts to the system clipboard and
// optionally auto-pastes them into the focused application by synthesizing the
// platform paste chord.
package clipboard

import (
	"fmt"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

// settleDelay gives the window manager time to observe the clipboard write
// before the paste chord fires, and the target application time to consume
// the paste before the clipboard is restored.
const settleDelay = 80 * time.Millisecond

// Deliverer places a transcript where the user expects it. The session
// pipeline depends on this interface; tests substitute fakes.
type Deliverer interface {
	// Deliver writes text to the clipboard and, when paste is set, sends the
	// platform paste chord to the focused application.
	Deliver(text string, paste bool) error
}

// System delivers through the OS clipboard and synthesized keyboard input.
type System struct{}

// NewSystem creates the production [Deliverer].
func NewSystem() *System { return &System{} }

var _ Deliverer = (*System)(nil)

// Deliver writes text to the clipboard. With paste set it additionally sends
// the paste chord and then restores the previous clipboard contents, so a
// pasted transcript does not clobber what the user had copied.
func (s *System) Deliver(text string, paste bool) error {
	if !paste {
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("clipboard: write: %w", err)
		}
		return nil
	}

	orig, _ := clipboard.ReadAll()
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: write: %w", err)
	}
	time.Sleep(settleDelay)

	if err := sendPasteChord(); err != nil {
		return fmt.Errorf("clipboard: paste: %w", err)
	}
	time.Sleep(settleDelay)
	_ = clipboard.WriteAll(orig)
	return nil
}

// sendPasteChord synthesizes Ctrl+V (Cmd+V on macOS).
func sendPasteChord() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return err
	}
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}
