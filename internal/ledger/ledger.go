// Package ledger tracks which print jobs the monitor has already evaluated.
// Once a job id is recorded for a printer, that job is never evaluated
// again, even if its spooler status changes across polls.
package ledger

// Ledger maps printer name to the set of job ids already seen there. It is
// owned by the poll goroutine and deliberately carries no lock: normal
// operation never touches it from anywhere else.
type Ledger struct {
	known map[string]map[int]struct{}
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{known: make(map[string]map[int]struct{})}
}

// Seed records every id in current as already seen on printer. Called at
// monitoring start so jobs queued before the session began are never
// admitted or charged.
func (l *Ledger) Seed(printer string, current []int) {
	set := make(map[int]struct{}, len(current))
	for _, id := range current {
		set[id] = struct{}{}
	}
	l.known[printer] = set
}

// Diff returns the ids in current that have not been seen on printer, in
// the order they appear in current.
func (l *Ledger) Diff(printer string, current []int) []int {
	seen := l.known[printer]
	var fresh []int
	for _, id := range current {
		if _, ok := seen[id]; !ok {
			fresh = append(fresh, id)
		}
	}
	return fresh
}

// Replace swaps the set for printer with exactly the ids in current.
// Replacement rather than union: a job that left the queue is forgotten,
// which is correct because a departed job can never be re-paused, and its
// id may be reused by the OS later.
func (l *Ledger) Replace(printer string, current []int) {
	l.Seed(printer, current)
}

// Known reports whether the id has been seen on printer.
func (l *Ledger) Known(printer string, id int) bool {
	_, ok := l.known[printer][id]
	return ok
}

// Clear drops all state. Called on monitoring stop.
func (l *Ledger) Clear() {
	l.known = make(map[string]map[int]struct{})
}

// Printers returns the printers currently tracked. Mostly for status
// reporting and tests.
func (l *Ledger) Printers() []string {
	out := make([]string, 0, len(l.known))
	for p := range l.known {
		out = append(out, p)
	}
	return out
}
