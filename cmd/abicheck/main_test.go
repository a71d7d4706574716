package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const unitF = `{"source": "f.cpp",
 "types": [{"id": 1, "kind": "builtin", "name": "int"}],
 "decls": [{"kind": "function", "name": "f", "mangled": "_Z1fi", "return": 1, "params": [{"type": 1}]}]}`

const unitG = `{"source": "g.cpp",
 "types": [{"id": 7, "kind": "builtin", "name": "int"}],
 "decls": [{"kind": "function", "name": "g", "mangled": "_Z1gv", "return": 7}]}`

// resetFlags returns every flag to its default; cobra keeps parsed values
// in the package-level commands between executions.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	code = execute(append([]string{"--color", "off"}, args...), &out, &errOut)
	return code, out.String(), errOut.String()
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDumpDiffConvert(t *testing.T) {
	dir := t.TempDir()
	f := writeFile(t, dir, "f.json", unitF)
	g := writeFile(t, dir, "g.json", unitG)
	oldDump := filepath.Join(dir, "libfoo.json")
	newDump := filepath.Join(dir, "new", "libfoo.yaml")

	code, stdout, stderr := run(t, "dump", "--ui", "off", "-o", oldDump, f, g)
	if code != 0 {
		t.Fatalf("dump old: exit %d\n%s", code, stderr)
	}
	if !strings.HasPrefix(stdout, "wrote "+oldDump+": ") || !strings.Contains(stdout, " 2 functions, 0 variables") {
		t.Fatalf("dump summary: %q", stdout)
	}
	if code, _, stderr = run(t, "dump", "--ui", "off", "--lib-name", "libfoo", "-o", newDump, f); code != 0 {
		t.Fatalf("dump new: exit %d\n%s", code, stderr)
	}

	t.Run("incompatible", func(t *testing.T) {
		report := filepath.Join(dir, "report.json")
		code, stdout, stderr := run(t, "diff", "--old", oldDump, "--new", newDump, "-o", report)
		if code != exitIncompatible {
			t.Fatalf("exit %d\n%s", code, stderr)
		}
		if !strings.Contains(stdout, "Functions (1)") || !strings.Contains(stdout, "removed") || !strings.Contains(stdout, "_Z1gv") {
			t.Fatalf("report:\n%s", stdout)
		}
		if _, err := os.Stat(report); err != nil {
			t.Fatalf("report not written: %v", err)
		}
	})

	t.Run("ignored", func(t *testing.T) {
		ignore := writeFile(t, dir, "abi.ignore", "_Z1gv\n")
		code, stdout, stderr := run(t, "diff", "--old", oldDump, "--new", newDump, "--ignore", ignore)
		if code != 0 {
			t.Fatalf("exit %d\n%s", code, stderr)
		}
		if !strings.Contains(stdout, "no ABI changes") {
			t.Fatalf("report:\n%s", stdout)
		}
	})

	t.Run("convert", func(t *testing.T) {
		pb := filepath.Join(dir, "libfoo.pb")
		code, stdout, stderr := run(t, "convert", oldDump, "-o", pb)
		if code != 0 {
			t.Fatalf("convert: exit %d\n%s", code, stderr)
		}
		if !strings.Contains(stdout, "(msgpack)") {
			t.Fatalf("convert output: %q", stdout)
		}
		code, stdout, stderr = run(t, "diff", "--old", oldDump, "--new", pb, "--format", "json")
		if code != 0 {
			t.Fatalf("diff converted: exit %d\n%s", code, stderr)
		}
		var rep map[string]any
		if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
			t.Fatalf("json report: %v\n%s", err, stdout)
		}
	})
}

func TestCommandFailures(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"missing unit", []string{"dump", "--ui", "off", "-o", filepath.Join(dir, "x.json"), filepath.Join(dir, "nope.json")}},
		{"broken unit", []string{"dump", "--ui", "off", "-o", filepath.Join(dir, "y.json"), writeFile(t, dir, "bad.json", "{")}},
		{"missing new", []string{"diff", "--old", filepath.Join(dir, "a.json")}},
		{"bad format", []string{"dump", "--format", "xml", "-o", filepath.Join(dir, "z.json"), filepath.Join(dir, "bad.json")}},
		{"bad level", []string{"diff", "--old", "a.json", "--new", "b.json", "--min-level", "fatal"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, stderr := run(t, tt.args...)
			if code != exitFailure {
				t.Fatalf("exit %d, want %d\n%s", code, exitFailure, stderr)
			}
			if stderr == "" {
				t.Fatalf("no error output")
			}
		})
	}
}

func TestVersionAndCache(t *testing.T) {
	code, stdout, _ := run(t, "version", "--format", "json", "--full")
	if code != 0 {
		t.Fatalf("version: exit %d", code)
	}
	var payload versionPayload
	if err := json.Unmarshal([]byte(stdout), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.Tool != "abicheck" || payload.GitCommit != "unknown" {
		t.Fatalf("payload = %+v", payload)
	}

	cacheDir := t.TempDir()
	code, stdout, _ = run(t, "cache", "dir", "--cache-dir", cacheDir)
	if code != 0 || strings.TrimSpace(stdout) != cacheDir {
		t.Fatalf("cache dir: exit %d %q", code, stdout)
	}
	code, stdout, _ = run(t, "cache", "clean", "--cache-dir", cacheDir)
	if code != 0 || !strings.Contains(stdout, "removed cached units") {
		t.Fatalf("cache clean: exit %d %q", code, stdout)
	}
}
