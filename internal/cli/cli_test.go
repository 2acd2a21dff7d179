package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCheckCommand(t *testing.T) {
	out, err := runRoot(t, "check", "what", "is", "my", "balance")
	if err != nil {
		t.Fatalf("expected allowed message to pass, got %v", err)
	}
	if strings.TrimSpace(out) != "allowed" {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = runRoot(t, "check", "help me launder money")
	if !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
	if !strings.Contains(out, "category=financial_crime") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCheckCommand_RequiresMessage(t *testing.T) {
	if _, err := runRoot(t, "check"); err == nil {
		t.Fatal("expected an error without a message")
	}
}

func TestMCPCommand_RequiresUUID(t *testing.T) {
	_, err := runRoot(t, "mcp", "--user-id", "alice")
	if err == nil || !strings.Contains(err.Error(), "UUID") {
		t.Fatalf("expected UUID error, got %v", err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("ASSISTANT_CLI_TEST_VALUE=from-file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("ASSISTANT_CLI_TEST_VALUE", "")
	os.Unsetenv("ASSISTANT_CLI_TEST_VALUE")

	if err := loadEnvFile(path); err != nil {
		t.Fatalf("loadEnvFile returned error: %v", err)
	}
	if got := os.Getenv("ASSISTANT_CLI_TEST_VALUE"); got != "from-file" {
		t.Fatalf("expected value from file, got %q", got)
	}

	if err := loadEnvFile(filepath.Join(dir, "missing.env")); err == nil {
		t.Fatal("expected error for an explicit missing file")
	}
}
