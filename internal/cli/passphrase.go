// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

var errPassphraseMismatch = errors.New("passphrases do not match")

// readPassphrase returns the passphrase from the variable named by envVar,
// or prompts on the terminal. Piped stdin is read one line at a time.
func (c *Config) readPassphrase(envVar, prompt string) (string, error) {
	if envVar != "" {
		value, ok := os.LookupEnv(envVar)
		if !ok || value == "" {
			return "", fmt.Errorf("environment variable %s is not set", envVar)
		}
		return value, nil
	}

	if f, ok := c.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(c.Stderr, prompt)
		passphrase, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(c.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read passphrase: %w", err)
		}
		return string(passphrase), nil
	}

	line, err := c.input().ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// input returns a reader over Stdin shared by every read in a command.
func (c *Config) input() *bufio.Reader {
	if c.stdin == nil {
		c.stdin = bufio.NewReader(c.Stdin)
	}
	return c.stdin
}

// readNewPassphrase reads a passphrase and, when prompting interactively,
// asks for it a second time.
func (c *Config) readNewPassphrase(envVar, prompt string) (string, error) {
	passphrase, err := c.readPassphrase(envVar, prompt)
	if err != nil || envVar != "" {
		return passphrase, err
	}
	if f, ok := c.Stdin.(*os.File); !ok || !term.IsTerminal(int(f.Fd())) {
		return passphrase, nil
	}

	confirm, err := c.readPassphrase("", "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if confirm != passphrase {
		return "", errPassphraseMismatch
	}
	return passphrase, nil
}
