package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"

	"github.com/jmelis/sotto/internal/jsonval"
	"github.com/jmelis/sotto/internal/toolexec"
)

// hostTools registers the small set of actions the CLI itself can perform on
// behalf of Command Mode. Desktop hosts supply their own registry with
// window, keystroke, and application control.
func hostTools() *toolexec.Registry {
	reg := toolexec.NewRegistry()

	reg.Register(toolexec.Tool{
		Name:        "get_time",
		Description: "Get the current local date and time",
		Parameters:  mustSchema(`{"type":"object","properties":{}}`),
		Run: func(ctx context.Context, args jsonval.Value) (string, error) {
			return time.Now().Format("Monday, 2 January 2006, 15:04"), nil
		},
	})

	reg.Register(toolexec.Tool{
		Name:        "clipboard_read",
		Description: "Read the current contents of the system clipboard",
		Parameters:  mustSchema(`{"type":"object","properties":{}}`),
		Run: func(ctx context.Context, args jsonval.Value) (string, error) {
			text, err := clipboard.ReadAll()
			if err != nil {
				return "", fmt.Errorf("read clipboard: %w", err)
			}
			if strings.TrimSpace(text) == "" {
				return "the clipboard is empty", nil
			}
			return text, nil
		},
	})

	reg.Register(toolexec.Tool{
		Name:        "clipboard_write",
		Description: "Replace the system clipboard contents with the given text",
		Parameters: mustSchema(`{
			"type": "object",
			"properties": {
				"text": {"type": "string", "description": "Text to place on the clipboard"}
			},
			"required": ["text"],
			"additionalProperties": false
		}`),
		Run: func(ctx context.Context, args jsonval.Value) (string, error) {
			text, _ := args.Field("text")
			if err := clipboard.WriteAll(text.Str()); err != nil {
				return "", fmt.Errorf("write clipboard: %w", err)
			}
			return "copied to clipboard", nil
		},
	})

	return reg
}

func mustSchema(src string) jsonval.Value {
	v, err := jsonval.Parse([]byte(src))
	if err != nil {
		panic(fmt.Sprintf("invalid tool schema: %s", err))
	}
	return v
}
