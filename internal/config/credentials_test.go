package config

import (
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, prefix := range envPrefixes {
		t.Setenv(prefix+EnvURLKey, "")
		t.Setenv(prefix+EnvAnonKeyKey, "")
	}
}

func TestLookupEnvPrefixVariants(t *testing.T) {
	clearEnv(t)

	t.Setenv("VITE_STORE_URL", "https://vite.example")
	if got := LookupEnv(EnvURLKey); got != "https://vite.example" {
		t.Fatalf("VITE_ variant not found: %q", got)
	}

	// The plain key wins over later prefixes.
	t.Setenv("STORE_URL", "https://plain.example")
	if got := LookupEnv(EnvURLKey); got != "https://plain.example" {
		t.Fatalf("plain key should win: %q", got)
	}

	t.Setenv("STORE_URL", "  https://padded.example  ")
	if got := LookupEnv(EnvURLKey); got != "https://padded.example" {
		t.Fatalf("value not trimmed: %q", got)
	}
}

func TestResolveOrder(t *testing.T) {
	clearEnv(t)
	workspace := t.TempDir()

	// Nothing configured.
	if creds := Resolve(workspace, "", ""); creds.Present() {
		t.Fatalf("expected absent credentials, got %+v", creds)
	}

	// Environment is the floor.
	t.Setenv("NEXT_PUBLIC_STORE_URL", "https://env.example")
	t.Setenv("NEXT_PUBLIC_STORE_ANON_KEY", "env-key")
	creds := Resolve(workspace, "", "")
	if creds.URL != "https://env.example" || creds.AnonKey != "env-key" {
		t.Fatalf("env resolution failed: %+v", creds)
	}

	// The persisted override beats the environment.
	if err := SaveOverride(workspace, Credentials{URL: "https://saved.example", AnonKey: "saved-key"}); err != nil {
		t.Fatalf("save override: %v", err)
	}
	creds = Resolve(workspace, "", "")
	if creds.URL != "https://saved.example" {
		t.Fatalf("override should beat env: %+v", creds)
	}

	// Explicit arguments beat everything, but only as a complete pair.
	creds = Resolve(workspace, "https://explicit.example", "explicit-key")
	if creds.URL != "https://explicit.example" || creds.AnonKey != "explicit-key" {
		t.Fatalf("explicit pair should win: %+v", creds)
	}
	creds = Resolve(workspace, "https://half.example", "")
	if creds.URL != "https://saved.example" {
		t.Fatalf("half a pair should be ignored: %+v", creds)
	}
}

func TestOverrideLifecycle(t *testing.T) {
	workspace := t.TempDir()

	// Missing file reads as zero credentials.
	creds, err := LoadOverride(workspace)
	if err != nil || creds.Present() {
		t.Fatalf("expected zero credentials, got %+v err=%v", creds, err)
	}

	if err := SaveOverride(workspace, Credentials{URL: "https://s.example", AnonKey: "k"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(OverridePath(workspace))
	if err != nil {
		t.Fatalf("stat override: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("override should be private, got %v", info.Mode().Perm())
	}
	creds, err = LoadOverride(workspace)
	if err != nil || creds.URL != "https://s.example" {
		t.Fatalf("load after save: %+v err=%v", creds, err)
	}

	if err := ClearOverride(workspace); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if err := ClearOverride(workspace); err != nil {
		t.Fatalf("clearing twice should be fine: %v", err)
	}
	creds, _ = LoadOverride(workspace)
	if creds.Present() {
		t.Fatalf("override survived clear: %+v", creds)
	}
}
