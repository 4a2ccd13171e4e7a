// Package terraform shells out to the terraform binary for the resources
// that are only expressible as composite IaC modules, most notably the
// workload identity provider.
package terraform

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-logr/logr"
	"github.com/kballard/go-shellquote"
)

// Runner executes terraform commands in a fixed working directory.
type Runner struct {
	binary    string
	workDir   string
	extraArgs []string
	log       logr.Logger
}

// New builds a Runner. extraArgs is a shell-quoted string appended to every
// apply invocation, e.g. `-var-file="prod.tfvars" -parallelism=4`.
func New(binary, workDir, extraArgs string, log logr.Logger) (*Runner, error) {
	if binary == "" {
		binary = "terraform"
	}
	parsed, err := shellquote.Split(extraArgs)
	if err != nil {
		return nil, fmt.Errorf("failed to parse terraform extra args %q: %w", extraArgs, err)
	}
	return &Runner{
		binary:    binary,
		workDir:   workDir,
		extraArgs: parsed,
		log:       log,
	}, nil
}

// ExitError is returned when terraform exits non-zero. It carries both
// output streams verbatim so the operator sees the provider's own message.
type ExitError struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("terraform %s exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Init runs terraform init in the working directory.
func (r *Runner) Init(ctx context.Context) error {
	_, err := r.run(ctx, "init", "-input=false", "-no-color")
	return err
}

// Apply runs terraform apply with -auto-approve, passing vars as -var flags.
// Init must have been run first.
func (r *Runner) Apply(ctx context.Context, vars map[string]string) error {
	args := []string{"apply", "-auto-approve", "-input=false", "-no-color"}
	for k, v := range vars {
		args = append(args, fmt.Sprintf("-var=%s=%s", k, v))
	}
	args = append(args, r.extraArgs...)
	_, err := r.run(ctx, args...)
	return err
}

// Output returns the value of a single terraform output variable.
func (r *Runner) Output(ctx context.Context, name string) (string, error) {
	out, err := r.run(ctx, "output", "-raw", name)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	r.log.V(1).Info("running terraform", "args", args, "dir", r.workDir)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), "TF_IN_AUTOMATION=1")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return stdout.String(), &ExitError{
				Args:     args,
				ExitCode: exitErr.ExitCode(),
				Stdout:   stdout.String(),
				Stderr:   stderr.String(),
			}
		}
		return stdout.String(), fmt.Errorf("failed to run %s: %w", r.binary, err)
	}
	return stdout.String(), nil
}
