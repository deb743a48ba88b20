package cli

import "testing"

func TestCurrentUsernameFallsBackToEnv(t *testing.T) {
	t.Setenv("USER", "mallory")
	// user.Current() succeeding or not is environment-dependent; this only
	// pins the final fallback behavior when neither source is empty.
	got := currentUsername()
	if got == "" {
		t.Error("currentUsername() returned empty string")
	}
}
