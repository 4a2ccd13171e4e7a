package terraform

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/go-logr/logr"
)

// fakeBinary writes a shell script that records its argv and exits with the
// given code, standing in for the real terraform binary.
func fakeBinary(t *testing.T, exitCode int, stderr string) (binary, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	binary = filepath.Join(dir, "terraform")
	argsFile = filepath.Join(dir, "args")

	script := "#!/bin/sh\n" +
		"echo \"$@\" >> " + argsFile + "\n"
	if stderr != "" {
		script += "echo '" + stderr + "' >&2\n"
	}
	script += "exit " + strconv.Itoa(exitCode) + "\n"

	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write fake binary: %v", err)
	}
	return binary, argsFile
}

func recordedArgs(t *testing.T, argsFile string) []string {
	t.Helper()
	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("Failed to read recorded args: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestApply_PassesVarsAndExtraArgs(t *testing.T) {
	t.Parallel()
	binary, argsFile := fakeBinary(t, 0, "")

	r, err := New(binary, t.TempDir(), `-parallelism=4 -var-file="prod.tfvars"`, logr.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if err := r.Apply(context.Background(), map[string]string{"project_id": "acme-vision-prod"}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	lines := recordedArgs(t, argsFile)
	if len(lines) != 1 {
		t.Fatalf("Expected 1 invocation, got %d", len(lines))
	}
	for _, want := range []string{
		"apply", "-auto-approve",
		"-var=project_id=acme-vision-prod",
		"-parallelism=4", "-var-file=prod.tfvars",
	} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("Expected apply args to contain %q, got %q", want, lines[0])
		}
	}
}

func TestRun_NonZeroExitCarriesOutput(t *testing.T) {
	t.Parallel()
	binary, _ := fakeBinary(t, 1, "Error: provider produced inconsistent result")

	r, err := New(binary, t.TempDir(), "", logr.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	err = r.Init(context.Background())
	if err == nil {
		t.Fatal("Expected init to fail")
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Expected *ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode != 1 {
		t.Errorf("Expected exit code 1, got %d", exitErr.ExitCode)
	}
	if !strings.Contains(exitErr.Stderr, "inconsistent result") {
		t.Errorf("Expected stderr to carry the provider message, got %q", exitErr.Stderr)
	}
	if !strings.Contains(err.Error(), "inconsistent result") {
		t.Errorf("Expected error text to surface stderr, got %q", err.Error())
	}
}

func TestNew_RejectsUnparsableExtraArgs(t *testing.T) {
	t.Parallel()
	_, err := New("terraform", t.TempDir(), `-var-file="unterminated`, logr.Discard())
	if err == nil {
		t.Fatal("Expected parse error for unterminated quote")
	}
}

func TestOutput_TrimsValue(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	binary := filepath.Join(dir, "terraform")
	script := "#!/bin/sh\necho 'projects/123/providers/acme'\n"
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("Failed to write fake binary: %v", err)
	}

	r, err := New(binary, dir, "", logr.Discard())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	got, err := r.Output(context.Background(), "provider_name")
	if err != nil {
		t.Fatalf("Output failed: %v", err)
	}
	if got != "projects/123/providers/acme" {
		t.Errorf("Expected trimmed output value, got %q", got)
	}
}
