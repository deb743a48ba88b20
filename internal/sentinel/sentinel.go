// Package sentinel parses the STATUS/VERDICT protocol lines agent
// responses are instructed to end with.
package sentinel

import (
	"regexp"
	"strings"
)

// Status is the Peasant Harness's per-iteration signal.
type Status string

const (
	StatusDone     Status = "DONE"
	StatusBlocked  Status = "BLOCKED"
	StatusContinue Status = "CONTINUE"
)

// Verdict is the Council's per-review signal.
type Verdict string

const (
	VerdictApproved Verdict = "APPROVED"
	VerdictBlocking Verdict = "BLOCKING"
)

var (
	statusPattern  = regexp.MustCompile(`^STATUS:\s*(DONE|BLOCKED|CONTINUE)$`)
	verdictPattern = regexp.MustCompile(`^VERDICT:\s*(APPROVED|BLOCKING)$`)
)

// stripDecoration strips common markdown decoration characters —
// "*_" backticks ">" "-" "#" — plus surrounding whitespace.
func stripDecoration(line string) string {
	line = strings.TrimSpace(line)
	line = strings.Trim(line, "*_`>-# \t")
	return strings.TrimSpace(line)
}

// ParseStatus scans response for the last line matching the STATUS
// sentinel after stripping markdown decoration. Missing sentinel defaults
// to CONTINUE.
func ParseStatus(response string) Status {
	status := StatusContinue
	for _, line := range strings.Split(response, "\n") {
		stripped := stripDecoration(line)
		if m := statusPattern.FindStringSubmatch(stripped); m != nil {
			status = Status(m[1])
		}
	}
	return status
}

// ParseVerdict scans response for the last line matching the VERDICT
// sentinel. Missing sentinel defaults to APPROVED, with Found=false so
// callers can log a warning about the missing verdict line.
func ParseVerdict(response string) (verdict Verdict, found bool) {
	verdict = VerdictApproved
	for _, line := range strings.Split(response, "\n") {
		stripped := stripDecoration(line)
		if m := verdictPattern.FindStringSubmatch(stripped); m != nil {
			verdict = Verdict(m[1])
			found = true
		}
	}
	return verdict, found
}
