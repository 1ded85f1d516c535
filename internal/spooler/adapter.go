// Package spooler wraps the OS print subsystem behind a small adapter
// interface: enumerate printers and jobs, and pause/resume/cancel at both
// the job and the printer level. Adapters never panic; enumeration failures
// degrade to empty results and control failures are returned as errors for
// the caller to log and act on.
package spooler

import "context"

// Adapter is the contract the print monitor depends on. Implementations must
// be safe to call from a single goroutine at a time; they are not required to
// be concurrency-safe.
type Adapter interface {
	// ListPrinters enumerates local and connected printer queues. On
	// enumeration failure it returns an empty slice, never an error -- a
	// transient spooler outage should look like "no printers this tick".
	ListPrinters(ctx context.Context) []string

	// ListJobs enumerates the jobs currently queued on a printer. Same
	// degradation contract as ListPrinters.
	ListJobs(ctx context.Context, printer string) []Job

	// PauseJob holds a single job so it cannot reach the device. A nil
	// return means the job is confirmed held.
	PauseJob(ctx context.Context, printer string, jobID int) error

	// ResumeJob releases a previously held job.
	ResumeJob(ctx context.Context, printer string, jobID int) error

	// CancelJob permanently removes a job from the queue.
	CancelJob(ctx context.Context, printer string, jobID int) error

	// PausePrinter stops the whole queue from feeding the device. Used as a
	// crash-safety net while a batch of new jobs is being admitted.
	PausePrinter(ctx context.Context, printer string) error

	// ResumePrinter restarts a paused queue.
	ResumePrinter(ctx context.Context, printer string) error
}
