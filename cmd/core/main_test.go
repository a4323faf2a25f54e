// Package main tests for the command line.
package main

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfig writes a config rooted in a temp dir and returns its path.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	body := fmt.Sprintf("dataDir: %s\ncacheDir: %s\nphotosDir: %s\nlogLevel: error\n",
		filepath.Join(root, "data"), filepath.Join(root, "cache"), filepath.Join(root, "photos"))
	path := filepath.Join(root, "purchaselog.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path, root
}

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(args, &out)
	return out.String(), err
}

// TestRun_usage verifies help, version and unknown commands.
func TestRun_usage(t *testing.T) {
	out, err := runCmd(t, "help")
	if err != nil || !strings.Contains(out, "clear-cache") {
		t.Errorf("help = %q, %v", out, err)
	}

	out, err = runCmd(t, "version")
	if err != nil || out != "purchaselog v"+Version+"\n" {
		t.Errorf("version = %q, %v", out, err)
	}

	if _, err := runCmd(t); err == nil {
		t.Error("no command should fail")
	}
	if _, err := runCmd(t, "frobnicate"); err == nil {
		t.Error("unknown command should fail")
	}
}

// TestSplitConfigFlag verifies the shared flag is removed in every form.
func TestSplitConfigFlag(t *testing.T) {
	t.Setenv("PURCHASELOG_CONFIG", "")
	tests := []struct {
		args []string
		path string
		rest string
	}{
		{[]string{"-config", "a.yaml", "-json"}, "a.yaml", "-json"},
		{[]string{"-json", "--config=b.yaml"}, "b.yaml", "-json"},
		{[]string{"-id", "x"}, "", "-id x"},
	}
	for _, tt := range tests {
		path, rest := splitConfigFlag(tt.args)
		if path != tt.path || strings.Join(rest, " ") != tt.rest {
			t.Errorf("splitConfigFlag(%v) = %q, %v", tt.args, path, rest)
		}
	}
}

// TestRun_workflow verifies add, list, export, history, clear-cache and wipe end to end.
func TestRun_workflow(t *testing.T) {
	cfg, root := writeConfig(t)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatal(err)
	}
	photo := filepath.Join(root, "receipt.jpg")
	if err := os.WriteFile(photo, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	out, err := runCmd(t, "add", "-config", cfg, "-desc", "Hammer", "-price", "12.50", "-date", "2024-03-07", "-group", "Garage", "-photo", photo)
	if err != nil {
		t.Fatalf("add error = %v", err)
	}
	if !strings.Contains(out, "$12.50") || !strings.Contains(out, "1 photo(s)") {
		t.Errorf("add output = %q", out)
	}

	out, err = runCmd(t, "list", "-config", cfg)
	if err != nil || !strings.Contains(out, "Hammer") || !strings.Contains(out, "03/07/2024") {
		t.Errorf("list = %q, %v", out, err)
	}

	out, err = runCmd(t, "export", "-config", cfg)
	if err != nil || !strings.Contains(out, "Exported 1 purchase(s), 1 photo(s)") || !strings.Contains(out, "Share: file://") {
		t.Errorf("export = %q, %v", out, err)
	}

	out, err = runCmd(t, "history", "-config", cfg)
	if err != nil || !strings.Contains(out, "inventory_export_") {
		t.Errorf("history = %q, %v", out, err)
	}

	out, err = runCmd(t, "clear-cache", "-config", cfg)
	if err != nil || !strings.HasPrefix(out, "Removed 2 item(s)") {
		t.Errorf("clear-cache = %q, %v", out, err)
	}

	if _, err := runCmd(t, "wipe", "-config", cfg); err == nil {
		t.Error("wipe without -yes should fail")
	}
	out, err = runCmd(t, "wipe", "-config", cfg, "-yes")
	if err != nil || !strings.HasPrefix(out, "Deleted 1 purchase(s) and 1 photo(s)") {
		t.Errorf("wipe = %q, %v", out, err)
	}
}

// TestRun_addInvalid verifies bad input is reported.
func TestRun_addInvalid(t *testing.T) {
	cfg, _ := writeConfig(t)

	if _, err := runCmd(t, "add", "-config", cfg, "-desc", "x", "-price", "abc"); err == nil {
		t.Error("add with a bad price should fail")
	}
	if _, err := runCmd(t, "add", "-config", cfg, "-price", "1"); err == nil {
		t.Error("add without a description should fail")
	}
	if _, err := runCmd(t, "delete", "-config", cfg); err == nil {
		t.Error("delete without -id should fail")
	}
	if _, err := runCmd(t, "delete", "-config", cfg, "-id", "missing"); err == nil {
		t.Error("delete of an unknown id should fail")
	}
}
