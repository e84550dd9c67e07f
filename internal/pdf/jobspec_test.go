package pdf

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestPDF(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	data := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write pdf: %v", err)
	}
	return path
}

func baseJob(t *testing.T) (map[string]any, string) {
	t.Helper()
	dir := t.TempDir()
	input := writeTestPDF(t, dir, "paper.pdf")
	return map[string]any{
		"inputs":    []any{input},
		"outputDir": filepath.Join(dir, "out"),
		"service":   " Google ",
	}, dir
}

func expectValidationError(t *testing.T, err error, field, contains string) {
	t.Helper()
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if vErr.Field != field {
		t.Fatalf("unexpected field: %q (message %q)", vErr.Field, vErr.Message)
	}
	if !strings.Contains(vErr.Message, contains) {
		t.Fatalf("message %q does not contain %q", vErr.Message, contains)
	}
}

func TestValidateJobAppliesDefaults(t *testing.T) {
	raw, dir := baseJob(t)

	spec, err := ValidateJob(raw)
	if err != nil {
		t.Fatalf("ValidateJob returned error: %v", err)
	}
	if spec.Service != "google" {
		t.Fatalf("unexpected service: %q", spec.Service)
	}
	if !spec.Dual || !spec.Mono || spec.IgnoreCache {
		t.Fatalf("unexpected flags: dual=%v mono=%v ignoreCache=%v", spec.Dual, spec.Mono, spec.IgnoreCache)
	}
	if spec.Threads != 4 || spec.ReportInterval != 1.0 || spec.QPS != 0 {
		t.Fatalf("unexpected numerics: %+v", spec)
	}
	if !filepath.IsAbs(spec.OutputDir) {
		t.Fatalf("outputDir should be absolute: %s", spec.OutputDir)
	}
	if info, err := os.Stat(filepath.Join(dir, "out")); err != nil || !info.IsDir() {
		t.Fatalf("outputDir should be created: %v", err)
	}
	if len(spec.Inputs) != 1 || !filepath.IsAbs(spec.Inputs[0]) {
		t.Fatalf("unexpected inputs: %#v", spec.Inputs)
	}
}

func TestValidateJobAcceptsOptionalFields(t *testing.T) {
	raw, _ := baseJob(t)
	raw["langIn"] = " en "
	raw["langOut"] = "zh"
	raw["pages"] = "1-3"
	raw["qps"] = float64(8)
	raw["threads"] = 2
	raw["reportInterval"] = 0.5
	raw["mono"] = false
	raw["ignoreCache"] = true

	spec, err := ValidateJob(raw)
	if err != nil {
		t.Fatalf("ValidateJob returned error: %v", err)
	}
	if spec.LangIn != "en" || spec.LangOut != "zh" || spec.Pages != "1-3" {
		t.Fatalf("unexpected strings: %+v", spec)
	}
	if spec.QPS != 8 || spec.Threads != 2 || spec.ReportInterval != 0.5 {
		t.Fatalf("unexpected numerics: %+v", spec)
	}
	if !spec.Dual || spec.Mono || !spec.IgnoreCache {
		t.Fatalf("unexpected flags: %+v", spec)
	}
}

func TestValidateJobResolvesSymlinks(t *testing.T) {
	raw, dir := baseJob(t)
	target := raw["inputs"].([]any)[0].(string)
	link := filepath.Join(dir, "link.pdf")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	raw["inputs"] = []any{link}

	spec, err := ValidateJob(raw)
	if err != nil {
		t.Fatalf("ValidateJob returned error: %v", err)
	}
	want, _ := filepath.EvalSymlinks(target)
	if spec.Inputs[0] != want {
		t.Fatalf("input = %s, want %s", spec.Inputs[0], want)
	}
}

func TestValidateJobRejectsMissingInput(t *testing.T) {
	raw, dir := baseJob(t)
	missing := filepath.Join(dir, "missing.pdf")
	raw["inputs"] = []any{missing}

	_, err := ValidateJob(raw)
	expectValidationError(t, err, "inputs[0]", "Input file does not exist: "+missing)
}

func TestValidateJobRejectsNonPDF(t *testing.T) {
	raw, dir := baseJob(t)
	txt := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	raw["inputs"] = []any{txt}

	_, err := ValidateJob(raw)
	resolved, _ := filepath.EvalSymlinks(txt)
	expectValidationError(t, err, "inputs[0]", "Input file is not a PDF: "+resolved)
}

func TestValidateJobRejectsBadShapes(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(map[string]any)
		field    string
		contains string
	}{
		{"empty inputs", func(m map[string]any) { m["inputs"] = []any{} }, "inputs", "non-empty array"},
		{"inputs not list", func(m map[string]any) { m["inputs"] = "paper.pdf" }, "inputs", "non-empty array"},
		{"blank input", func(m map[string]any) { m["inputs"] = []any{"  "} }, "inputs[0]", "non-empty"},
		{"non string input", func(m map[string]any) { m["inputs"] = []any{3.0} }, "inputs[0]", "must be a string"},
		{"missing outputDir", func(m map[string]any) { delete(m, "outputDir") }, "outputDir", "non-empty string"},
		{"blank service", func(m map[string]any) { m["service"] = "   " }, "service", "non-empty"},
		{"blank langIn", func(m map[string]any) { m["langIn"] = " " }, "langIn", "non-empty"},
		{"fractional threads", func(m map[string]any) { m["threads"] = 1.5 }, "threads", "integer"},
		{"zero threads", func(m map[string]any) { m["threads"] = 0 }, "threads", "> 0"},
		{"huge threads", func(m map[string]any) { m["threads"] = 1e19 }, "threads", "integer"},
		{"huge negative qps", func(m map[string]any) { m["qps"] = -1e19 }, "qps", "integer"},
		{"negative qps", func(m map[string]any) { m["qps"] = -1 }, "qps", "> 0"},
		{"zero interval", func(m map[string]any) { m["reportInterval"] = 0.0 }, "reportInterval", "> 0"},
		{"string interval", func(m map[string]any) { m["reportInterval"] = "1" }, "reportInterval", "number"},
		{"non bool dual", func(m map[string]any) { m["dual"] = "yes" }, "dual", "boolean"},
		{"both disabled", func(m map[string]any) { m["dual"] = false; m["mono"] = false }, "dual", "Cannot disable both dual and mono"},
		{"extra field", func(m map[string]any) { m["output"] = "x" }, "output", "extra fields"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw, _ := baseJob(t)
			tc.mutate(raw)
			_, err := ValidateJob(raw)
			expectValidationError(t, err, tc.field, tc.contains)
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	err := &ValidationError{Field: "qps", Message: "qps must be > 0"}
	if err.Error() != "qps: qps must be > 0" {
		t.Fatalf("unexpected error string: %q", err.Error())
	}
}
