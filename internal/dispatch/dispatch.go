// Package dispatch delivers final session text to its destination. The
// delivery method is a hint chosen per mode; hosts that can synthesize
// keystrokes implement their own Dispatcher, the CLI uses Standard.
package dispatch

import (
	"context"
	"fmt"
	"io"

	"github.com/atotto/clipboard"
)

// Method names how the final text should reach the user.
type Method string

const (
	// MethodTyped asks the host to type the text at the cursor. Standard
	// approximates this by writing to its output stream.
	MethodTyped Method = "typed"
	// MethodClipboard places the text on the system clipboard.
	MethodClipboard Method = "clipboard"
	// MethodHistoryOnly records the text without delivering it anywhere.
	MethodHistoryOnly Method = "history"
)

// Dispatcher hands the final text to the user.
type Dispatcher interface {
	Deliver(ctx context.Context, text string, method Method) error
}

// Standard is the CLI dispatcher: typed output goes to a writer, clipboard
// delivery uses the system clipboard.
type Standard struct {
	out io.Writer
}

func NewStandard(out io.Writer) *Standard {
	return &Standard{out: out}
}

func (d *Standard) Deliver(_ context.Context, text string, method Method) error {
	switch method {
	case MethodClipboard:
		if err := clipboard.WriteAll(text); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		return nil
	case MethodHistoryOnly:
		return nil
	default:
		// MethodTyped and unrecognized hints fall back to the writer.
		if _, err := fmt.Fprintln(d.out, text); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
}
