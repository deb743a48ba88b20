package council

import (
	"reflect"
	"testing"
)

func TestResolveTargets(t *testing.T) {
	o := &Orchestrator{Members: []string{"claude", "codex", "cursor"}}

	tests := []struct {
		name    string
		prompt  string
		targets []string
		want    []string
	}{
		{"explicit targets win", "anything @codex", []string{"claude"}, []string{"claude"}},
		{"no mentions broadcasts to all", "please review this change", nil, []string{"claude", "codex", "cursor"}},
		{"single mention narrows", "hey @codex take a look", nil, []string{"codex"}},
		{"multiple mentions", "@claude @cursor please weigh in", nil, []string{"claude", "cursor"}},
		{"at-all broadcasts explicitly", "@all please weigh in", nil, []string{"claude", "codex", "cursor"}},
		{"unknown mention falls back to all", "@nobody around?", nil, []string{"claude", "codex", "cursor"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := o.resolveTargets(tt.prompt, tt.targets)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("resolveTargets(%q, %v) = %v, want %v", tt.prompt, tt.targets, got, tt.want)
			}
		})
	}
}
