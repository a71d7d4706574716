package diag

type dedupKey struct {
	code   Code
	sev    Severity
	file   string
	line   uint32
	entity string
	msg    string
}

func keyOf(code Code, sev Severity, loc Location, msg string) dedupKey {
	return dedupKey{code: code, sev: sev, file: loc.File, line: loc.Line, entity: loc.Entity, msg: msg}
}

// DedupReporter wraps another Reporter and suppresses duplicate diagnostics
// with the same code, severity, location and message. The same header is
// usually included by many units, so the same skip is reported many times.
type DedupReporter struct {
	next Reporter
	seen map[dedupKey]struct{}
}

// NewDedupReporter returns a Reporter that filters out duplicates while
// forwarding unique diagnostics to the provided reporter.
func NewDedupReporter(next Reporter) *DedupReporter {
	return &DedupReporter{
		next: next,
		seen: make(map[dedupKey]struct{}),
	}
}

func (r *DedupReporter) Report(code Code, sev Severity, primary Location, msg string, notes []Note) {
	if r == nil {
		return
	}
	key := keyOf(code, sev, primary, msg)
	if _, ok := r.seen[key]; ok {
		return
	}
	r.seen[key] = struct{}{}
	if r.next != nil {
		r.next.Report(code, sev, primary, msg, notes)
	}
}
