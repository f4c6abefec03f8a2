// Copyright Contributors to the KubeTask project

package cliio

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kubetask/jobexpander/pkg/jexerr"
)

func TestOSFileSystem_ReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "template.json")
	if err := os.WriteFile(path, []byte(`{"a":1}`), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	fs := OSFileSystem{}
	data, err := fs.ReadFile(context.Background(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != `{"a":1}` {
		t.Errorf("data = %q", data)
	}
}

func TestOSFileSystem_ReadFile_MissingFile(t *testing.T) {
	fs := OSFileSystem{}
	_, err := fs.ReadFile(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	je, ok := err.(*jexerr.Error)
	if !ok || je.Kind != jexerr.IO {
		t.Fatalf("expected IO, got %v", err)
	}
}

func TestStdinPrompter_Prompt(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	origStdin := os.Stdin
	os.Stdin = r
	defer func() { os.Stdin = origStdin }()

	p := NewStdinPrompter()
	go func() {
		w.WriteString("yes please\n")
		w.Close()
	}()

	got, err := p.Prompt("confirm: ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "yes please" {
		t.Errorf("Prompt() = %q, want %q", got, "yes please")
	}
}
