// Copyright Contributors to the KubeTask project

// Package cliio provides the concrete FileSystem and Prompter collaborators
// used by the jobexpand CLI entrypoint (cmd/jobexpand): reading files from
// the local disk and prompting on stdin/stderr.
package cliio

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/kubetask/jobexpander/pkg/jexerr"
)

// OSFileSystem reads files from local disk.
type OSFileSystem struct{}

// ReadFile implements the fs.readFile collaborator.
func (OSFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, jexerr.Wrap(jexerr.IO, err, "failed to read %q", path)
	}
	return b, nil
}

// StdinPrompter prompts on stderr and reads one line from stdin.
type StdinPrompter struct {
	reader *bufio.Reader
}

// NewStdinPrompter returns a Prompter backed by os.Stdin/os.Stderr.
func NewStdinPrompter() *StdinPrompter {
	return &StdinPrompter{reader: bufio.NewReader(os.Stdin)}
}

// Prompt implements the prompt collaborator.
func (p *StdinPrompter) Prompt(message string) (string, error) {
	fmt.Fprint(os.Stderr, message)
	line, err := p.reader.ReadString('\n')
	if err != nil {
		return "", jexerr.Wrap(jexerr.IO, err, "failed to read prompt response")
	}
	return strings.TrimSpace(line), nil
}
