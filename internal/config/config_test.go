package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	auto := 2
	negAuto := -1
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				Council: Council{
					Members:     []string{"claude", "codex"},
					TimeoutSecs: 600,
					Mode:        CouncilBroadcast,
				},
			},
			wantErr: false,
		},
		{
			name:    "missing members",
			config:  Config{Council: Council{TimeoutSecs: 600, Mode: CouncilBroadcast}},
			wantErr: true,
		},
		{
			name: "zero timeout",
			config: Config{Council: Council{
				Members: []string{"claude"}, TimeoutSecs: 0, Mode: CouncilBroadcast,
			}},
			wantErr: true,
		},
		{
			name: "negative auto_messages",
			config: Config{Council: Council{
				Members: []string{"claude"}, TimeoutSecs: 600, Mode: CouncilBroadcast, AutoMessages: &negAuto,
			}},
			wantErr: true,
		},
		{
			name: "valid auto_messages",
			config: Config{Council: Council{
				Members: []string{"claude"}, TimeoutSecs: 600, Mode: CouncilBroadcast, AutoMessages: &auto,
			}},
			wantErr: false,
		},
		{
			name: "invalid mode",
			config: Config{Council: Council{
				Members: []string{"claude"}, TimeoutSecs: 600, Mode: "chaos",
			}},
			wantErr: true,
		},
		{
			name: "invalid thinking_visibility",
			config: Config{
				Council: Council{Members: []string{"claude"}, TimeoutSecs: 600, Mode: CouncilBroadcast},
				Chat:    Chat{ThinkingVisibility: "sometimes"},
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data, _ := json.Marshal(map[string]any{
		"council": map[string]any{
			"members": []string{"claude", "codex"},
			"timeout": 300,
			"mode":    "sequential",
		},
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Council.Members) != 2 {
		t.Errorf("Members = %v, want 2 entries", cfg.Council.Members)
	}
	if cfg.Council.Mode != CouncilSequential {
		t.Errorf("Mode = %q, want sequential", cfg.Council.Mode)
	}
}

func TestLoadRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	data, _ := json.Marshal(map[string]any{
		"council": map[string]any{
			"members": []string{"claude"},
			"bogus":   "value",
		},
	})
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("Load() expected error for unknown key, got nil")
	}
}

func TestAutoMessagesFor(t *testing.T) {
	c := Council{}
	if got := c.AutoMessagesFor(3); got != 3 {
		t.Errorf("AutoMessagesFor(3) with nil AutoMessages = %d, want 3", got)
	}
	n := 7
	c.AutoMessages = &n
	if got := c.AutoMessagesFor(3); got != 7 {
		t.Errorf("AutoMessagesFor(3) with AutoMessages=7 = %d, want 7", got)
	}
}
