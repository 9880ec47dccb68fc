package docgen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"time"
)

// FillResult counts the per-field outcome of one fill pass.
type FillResult struct {
	Filled  int
	Failed  int
	Skipped int
}

// Filler turns a template plus a declarative field map into a filled
// document. Both strategies honor the same contract: empty values are
// skipped, unknown fields are counted failed but never abort the fill.
type Filler interface {
	Name() string
	Fill(ctx context.Context, template []byte, fields map[string]string) ([]byte, FillResult, error)
}

// placeholderPattern matches {{field_name}} markers in a template.
var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_.-]+)\}\}`)

// DirectFiller fills templates in-process through the placeholder field
// API. It is the default strategy.
type DirectFiller struct {
	logger *slog.Logger
}

var _ Filler = (*DirectFiller)(nil)

func NewDirectFiller(logger *slog.Logger) *DirectFiller {
	return &DirectFiller{logger: logger}
}

func (f *DirectFiller) Name() string { return "direct" }

func (f *DirectFiller) Fill(_ context.Context, template []byte, fields map[string]string) ([]byte, FillResult, error) {
	var result FillResult

	known := make(map[string]struct{})
	for _, m := range placeholderPattern.FindAllSubmatch(template, -1) {
		known[string(m[1])] = struct{}{}
	}

	out := template
	for name, value := range fields {
		if value == "" {
			result.Skipped++
			continue
		}
		if _, ok := known[name]; !ok {
			f.logger.Warn("template has no such field", slog.String("field", name))
			result.Failed++
			continue
		}
		out = bytes.ReplaceAll(out, []byte("{{"+name+"}}"), []byte(value))
		result.Filled++
	}

	return out, result, nil
}

// ToolFiller delegates filling to an external form-fill tool. The tool
// reads a JSON request on stdin and writes a JSON response on stdout:
//
//	in:  {"template": "<base64>", "fields": {...}}
//	out: {"document": "<base64>", "filled": n, "failed": n, "skipped": n}
type ToolFiller struct {
	path    string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Filler = (*ToolFiller)(nil)

func NewToolFiller(path string, timeout time.Duration, logger *slog.Logger) *ToolFiller {
	return &ToolFiller{path: path, timeout: timeout, logger: logger}
}

func (f *ToolFiller) Name() string { return "tool" }

func (f *ToolFiller) Fill(ctx context.Context, template []byte, fields map[string]string) ([]byte, FillResult, error) {
	var result FillResult

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	request, err := json.Marshal(struct {
		Template string            `json:"template"`
		Fields   map[string]string `json:"fields"`
	}{
		Template: base64.StdEncoding.EncodeToString(template),
		Fields:   fields,
	})
	if err != nil {
		return nil, result, fmt.Errorf("marshal tool request: %w", err)
	}

	cmd := exec.CommandContext(ctx, f.path)
	cmd.Stdin = bytes.NewReader(request)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, result, fmt.Errorf("fill tool %s: %w (stderr: %s)", f.path, err, stderr.String())
	}

	var response struct {
		Document string `json:"document"`
		Filled   int    `json:"filled"`
		Failed   int    `json:"failed"`
		Skipped  int    `json:"skipped"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &response); err != nil {
		return nil, result, fmt.Errorf("decode tool response: %w", err)
	}

	doc, err := base64.StdEncoding.DecodeString(response.Document)
	if err != nil {
		return nil, result, fmt.Errorf("decode tool document: %w", err)
	}

	result = FillResult{Filled: response.Filled, Failed: response.Failed, Skipped: response.Skipped}
	return doc, result, nil
}
