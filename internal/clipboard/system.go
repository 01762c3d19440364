// Package clipboard copies the finished transcript to the host clipboard.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
)

// ErrUnsupported is returned when the host has no clipboard utility.
var ErrUnsupported = errors.New("clipboard unsupported on this host")

// System implements ports.Clipboard with the host clipboard.
type System struct {
	write       func(string) error
	unsupported bool
}

func NewSystem() *System {
	return &System{write: clipboard.WriteAll, unsupported: clipboard.Unsupported}
}

func (s *System) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if s.unsupported {
		return ErrUnsupported
	}
	if err := s.write(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}
