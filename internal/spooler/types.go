package spooler

// Job is a snapshot of a queued print job at detection time. Fields are
// whatever the OS spooler reported when the job was enumerated; they are not
// refreshed afterwards.
type Job struct {
	// ID is the spooler-assigned job number. Unique per printer queue at a
	// point in time; the OS may reuse it after the job leaves the queue.
	ID int

	// Printer is the queue the job was submitted to.
	Printer string

	// Document is the user-visible document title, best effort.
	Document string

	// TotalPages is the page count reported by the spooler. Zero means
	// unknown -- spoolers often report 0 before rendering completes.
	TotalPages int

	// Color reports whether the job was detected as a color job. Color
	// detection is not implemented; this is always false in the current
	// adapters and exists so the cost path does not need changing later.
	Color bool

	// Owner is the OS user that submitted the job, when known.
	Owner string
}
