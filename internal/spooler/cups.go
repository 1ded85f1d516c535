package spooler

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CUPSAdapter drives the CUPS command line tools (lpstat, lp, cancel,
// cupsdisable, cupsenable). Every invocation runs under a bounded timeout so
// a wedged spooler cannot stall the poll loop indefinitely.
type CUPSAdapter struct {
	timeout time.Duration
	logger  *slog.Logger

	// run executes a command and returns its stdout. Overridable in tests.
	run func(ctx context.Context, name string, args ...string) (string, error)
}

// NewCUPSAdapter creates an adapter for the local CUPS scheduler. A zero
// timeout defaults to 5 seconds per command.
func NewCUPSAdapter(timeout time.Duration, logger *slog.Logger) *CUPSAdapter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := &CUPSAdapter{
		timeout: timeout,
		logger:  logger.With("component", "spooler.CUPSAdapter"),
	}
	a.run = a.execCommand
	return a
}

func (a *CUPSAdapter) execCommand(ctx context.Context, name string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	out, err := exec.CommandContext(cctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return string(out), nil
}

// ListPrinters parses `lpstat -p` output. Failure degrades to an empty list.
func (a *CUPSAdapter) ListPrinters(ctx context.Context) []string {
	out, err := a.run(ctx, "lpstat", "-p")
	if err != nil {
		a.logger.Warn("printer enumeration failed", "error", err)
		return nil
	}
	return parsePrinterList(out)
}

// ListJobs parses `lpstat -o <printer>` output. Failure degrades to an
// empty list. CUPS does not expose page counts through lpstat, so
// Job.TotalPages is 0 (unknown) and the monitor's minimum-one-page rule
// applies.
func (a *CUPSAdapter) ListJobs(ctx context.Context, printer string) []Job {
	out, err := a.run(ctx, "lpstat", "-o", printer)
	if err != nil {
		a.logger.Warn("job enumeration failed", "printer", printer, "error", err)
		return nil
	}
	return parseJobList(out, printer)
}

func (a *CUPSAdapter) PauseJob(ctx context.Context, printer string, jobID int) error {
	_, err := a.run(ctx, "lp", "-i", jobRef(printer, jobID), "-H", "hold")
	return err
}

func (a *CUPSAdapter) ResumeJob(ctx context.Context, printer string, jobID int) error {
	_, err := a.run(ctx, "lp", "-i", jobRef(printer, jobID), "-H", "resume")
	return err
}

func (a *CUPSAdapter) CancelJob(ctx context.Context, printer string, jobID int) error {
	_, err := a.run(ctx, "cancel", jobRef(printer, jobID))
	return err
}

func (a *CUPSAdapter) PausePrinter(ctx context.Context, printer string) error {
	_, err := a.run(ctx, "cupsdisable", printer)
	return err
}

func (a *CUPSAdapter) ResumePrinter(ctx context.Context, printer string) error {
	_, err := a.run(ctx, "cupsenable", printer)
	return err
}

func jobRef(printer string, jobID int) string {
	return printer + "-" + strconv.Itoa(jobID)
}

// parsePrinterList extracts queue names from lpstat -p output, which looks
// like:
//
//	printer HP_LaserJet is idle.  enabled since ...
//	printer Front_Desk disabled since ...
func parsePrinterList(out string) []string {
	var printers []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "printer" {
			printers = append(printers, fields[1])
		}
	}
	return printers
}

// parseJobList extracts jobs from lpstat -o output, which looks like:
//
//	HP_LaserJet-417  alice  15360  Sat 30 Aug 2026 10:02:11 AM
//
// The first field is "<queue>-<job id>". lpstat carries no document title,
// so the title defaults to the job reference.
func parseJobList(out, printer string) []Job {
	var jobs []Job
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		ref := fields[0]
		dash := strings.LastIndex(ref, "-")
		if dash <= 0 || dash == len(ref)-1 {
			continue
		}
		id, err := strconv.Atoi(ref[dash+1:])
		if err != nil {
			continue
		}
		job := Job{
			ID:       id,
			Printer:  printer,
			Document: ref,
		}
		if len(fields) >= 2 {
			job.Owner = fields[1]
		}
		jobs = append(jobs, job)
	}
	return jobs
}
