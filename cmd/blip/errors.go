package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blip/btle"
	"github.com/srg/blip/internal/transport"
)

// Command-level errors
var (
	// errInterrupted ends a command after Ctrl+C; main exits quietly on it.
	errInterrupted = errors.New("interrupted")
	// ErrConnectionLost indicates the link dropped while a command was using it.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns stack errors into a one-line message with a hint
func FormatUserError(err error) string {
	var exitErr *transport.ExitError
	if errors.As(err, &exitErr) {
		msg := "bluepy-helper exited unexpectedly"
		if len(exitErr.Stderr) > 0 {
			msg += ": " + strings.Join(exitErr.Stderr, " | ")
		}
		return msg
	}

	var bErr *btle.Error
	if !errors.As(err, &bErr) {
		return err.Error()
	}

	switch bErr.Kind {
	case btle.KindManagement:
		return fmt.Sprintf("%s (the helper needs CAP_NET_ADMIN: run it with sudo or setcap)", err)
	case btle.KindDisconnected:
		if errors.Is(err, ErrConnectionLost) {
			return err.Error()
		}
		return fmt.Sprintf("%s (is the device powered and in range?)", err)
	case btle.KindInternal:
		return fmt.Sprintf("%s (check --helper and that bluepy-helper is installed)", err)
	default:
		return err.Error()
	}
}
