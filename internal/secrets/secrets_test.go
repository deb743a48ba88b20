package secrets

import "testing"

func TestEnvResolverFound(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-test-value")

	v, ok, err := EnvResolver{}.Resolve(nil, "ANTHROPIC_API_KEY")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !ok || v != "sk-test-value" {
		t.Errorf("Resolve() = (%q, %v), want (sk-test-value, true)", v, ok)
	}
}

func TestEnvResolverMissing(t *testing.T) {
	v, ok, err := EnvResolver{}.Resolve(nil, "KD_DEFINITELY_UNSET_VAR")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ok || v != "" {
		t.Errorf("Resolve() = (%q, %v), want (\"\", false)", v, ok)
	}
}
