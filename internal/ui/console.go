package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/vantage-deploy/vantage/internal/provisioning"
	"github.com/vantage-deploy/vantage/internal/state"
)

// ConsoleObserver renders pipeline events for a human operator. On a TTY it
// rewrites the progress line in place; otherwise it prints plain lines so
// logs captured from CI stay readable.
type ConsoleObserver struct {
	mu       sync.Mutex
	out      io.Writer
	tty      bool
	progress bool // a progress line is currently displayed
}

// NewConsoleObserver writes to stdout, detecting whether it is a terminal.
func NewConsoleObserver() *ConsoleObserver {
	return &ConsoleObserver{
		out: os.Stdout,
		tty: isatty.IsTerminal(os.Stdout.Fd()),
	}
}

func (c *ConsoleObserver) Event(e provisioning.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearProgress()

	switch e.Type {
	case provisioning.EventStepStarted:
		fmt.Fprintf(c.out, "%s %s %s\n", runMark, stepStyle.Render(e.Step), dimStyle.Render(e.Message))
	case provisioning.EventStepCompleted:
		fmt.Fprintf(c.out, "%s %s %s\n", okStyle.Render(checkMark), stepStyle.Render(e.Step), e.Message)
	case provisioning.EventStepFailed:
		fmt.Fprintf(c.out, "%s %s %s\n", failStyle.Render(crossMark), stepStyle.Render(e.Step), failStyle.Render(e.Message))
	case provisioning.EventStepSkipped:
		fmt.Fprintf(c.out, "%s %s %s\n", dimStyle.Render(skipMark), stepStyle.Render(e.Step), dimStyle.Render(e.Message))
	case provisioning.EventRunPaused:
		fmt.Fprintf(c.out, "%s %s\n", warnStyle.Render("paused"), e.Message)
	case provisioning.EventRunCompleted:
		fmt.Fprintf(c.out, "\n%s %s\n", okStyle.Render(checkMark), titleStyle.Render(e.Message))
	case provisioning.EventResourceCreated, provisioning.EventResourceExists:
		fmt.Fprintf(c.out, "    %s %s\n", dimStyle.Render("-"), e.Message+": "+e.Resource)
	default:
		// resource.creating and friends stay quiet on the console; the log
		// sink keeps the full stream.
	}
}

func (c *ConsoleObserver) Progress(step string, current, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.tty {
		// Plain output only reports completion to avoid line spam.
		if current == total && total > 0 {
			fmt.Fprintf(c.out, "    %s %d/%d\n", step, current, total)
		}
		return
	}

	c.clearProgress()
	pct := 0
	if total > 0 {
		pct = current * 100 / total
	}
	fmt.Fprintf(c.out, "\r    %s %d/%d (%d%%)", dimStyle.Render(step), current, total, pct)
	c.progress = true
	if current == total {
		fmt.Fprintln(c.out)
		c.progress = false
	}
}

func (c *ConsoleObserver) clearProgress() {
	if c.progress {
		fmt.Fprint(c.out, "\r\033[K")
		c.progress = false
	}
}

// PrintSummary renders the end-of-run report for a deployment record.
func PrintSummary(out io.Writer, d *state.Deployment) {
	fmt.Fprintf(out, "\n%s\n", titleStyle.Render("Deployment "+d.ID))
	fmt.Fprintf(out, "%s\n", dimStyle.Render("project "+d.ProjectID+", region "+d.Region))

	for _, name := range []string{
		"preflight", "apis-enabled", "service-accounts", "iam-bindings",
		"compute-identity", "storage", "api-keys", "identity-provider",
		"api-gateway", "discover-devices", "configure-devices", "activate-licenses",
	} {
		st, ok := d.Steps[name]
		if !ok {
			fmt.Fprintf(out, "  %s %s\n", skipMark, name)
			continue
		}
		switch st.State {
		case state.StepCompleted:
			fmt.Fprintf(out, "  %s %s\n", okStyle.Render(checkMark), name)
		case state.StepFailed:
			fmt.Fprintf(out, "  %s %s  %s\n", failStyle.Render(crossMark), name, failStyle.Render(st.Error))
		case state.StepInProgress:
			fmt.Fprintf(out, "  %s %s\n", warnStyle.Render(runMark), name)
		default:
			fmt.Fprintf(out, "  %s %s\n", skipMark, name)
		}
	}

	if url, ok := d.Resource("gatewayURL"); ok {
		fmt.Fprintf(out, "\nGateway: %s\n", url)
	}
	if bucket, ok := d.Resource("bucket"); ok {
		fmt.Fprintf(out, "Bucket:  %s\n", bucket)
	}
	if count, ok := d.Resource("configuredCount"); ok {
		fmt.Fprintf(out, "Cameras configured: %s\n", count)
	}
}
