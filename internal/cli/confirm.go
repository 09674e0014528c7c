// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// confirm asks a yes/no question on stderr and reads the answer from stdin.
// yes (the --yes flag) skips the prompt. A terminal-less stdin cannot be
// prompted, so the action is refused.
func (a *App) confirm(question string, yes bool) (bool, error) {
	if yes {
		return true, nil
	}
	if f, ok := a.Stdin.(*os.File); ok && !isTerminal(f) {
		return false, errors.New("stdin is not a terminal; pass --yes to confirm")
	}

	fmt.Fprintf(a.Stderr, "%s [y/N]: ", question)
	line, err := bufio.NewReader(a.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read answer: %w", err)
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
