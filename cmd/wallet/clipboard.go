package main

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/baharkarakas/insider-wallet/internal/notify"
)

var ErrClipboardUnavailable = fmt.Errorf("clipboard unavailable: %w", notify.ErrCapability)

// clipboardCommands are tried in order; the first one on PATH wins.
var clipboardCommands = [][]string{
	{"pbcopy"},
	{"wl-copy"},
	{"xclip", "-selection", "clipboard"},
	{"clip.exe"},
}

func copyToClipboard(text string) error {
	for _, c := range clipboardCommands {
		path, err := exec.LookPath(c[0])
		if err != nil {
			continue
		}
		cmd := exec.Command(path, c[1:]...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err != nil {
			return errors.Join(ErrClipboardUnavailable, err)
		}
		return nil
	}
	return ErrClipboardUnavailable
}
