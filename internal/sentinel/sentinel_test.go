package sentinel

import "testing"

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Status
	}{
		{"plain done", "work complete\nSTATUS: DONE", StatusDone},
		{"decorated blocked", "work stalled\n**STATUS: BLOCKED**", StatusBlocked},
		{"markdown quoted", "> STATUS: CONTINUE", StatusContinue},
		{"missing sentinel defaults continue", "no sentinel here", StatusContinue},
		{"last line wins", "STATUS: DONE\nmore text\nSTATUS: CONTINUE", StatusContinue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseStatus(tt.response); got != tt.want {
				t.Errorf("ParseStatus(%q) = %q, want %q", tt.response, got, tt.want)
			}
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name      string
		response  string
		want      Verdict
		wantFound bool
	}{
		{"approved", "looks good\nVERDICT: APPROVED", VerdictApproved, true},
		{"blocking", "# VERDICT: BLOCKING", VerdictBlocking, true},
		{"missing defaults to approved, not found", "no verdict line", VerdictApproved, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ParseVerdict(tt.response)
			if got != tt.want || found != tt.wantFound {
				t.Errorf("ParseVerdict(%q) = (%q, %v), want (%q, %v)", tt.response, got, found, tt.want, tt.wantFound)
			}
		})
	}
}

func TestStripDecoration(t *testing.T) {
	tests := []struct{ in, want string }{
		{"**STATUS: DONE**", "STATUS: DONE"},
		{"- STATUS: DONE", "STATUS: DONE"},
		{"> `STATUS: DONE`", "STATUS: DONE"},
		{"  STATUS: DONE  ", "STATUS: DONE"},
	}
	for _, tt := range tests {
		if got := stripDecoration(tt.in); got != tt.want {
			t.Errorf("stripDecoration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
