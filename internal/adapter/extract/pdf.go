package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/arturoeanton/design-copilot/internal/port"
)

var pdfMagic = []byte("%PDF-")

// CommandRunner runs an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s: %w: %s", name, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// PDF extracts text with poppler's pdftotext.
type PDF struct {
	runner CommandRunner
	binary string
}

// NewPDF creates a PDF extractor. A nil runner executes pdftotext from PATH.
func NewPDF(runner CommandRunner) *PDF {
	if runner == nil {
		runner = execRunner{}
	}
	return &PDF{runner: runner, binary: "pdftotext"}
}

// Name returns the extractor identifier.
func (*PDF) Name() string { return "pdf" }

// Extract writes data to a temp file and reads the text layer back from pdftotext.
func (p *PDF) Extract(ctx context.Context, data []byte) (string, error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", fmt.Errorf("%w: missing PDF header", port.ErrUnsupportedFileType)
	}

	f, err := os.CreateTemp("", "upload-*.pdf")
	if err != nil {
		return "", fmt.Errorf("pdf temp file: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("pdf temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("pdf temp file: %w", err)
	}

	out, err := p.runner.Run(ctx, p.binary, "-layout", "-enc", "UTF-8", f.Name(), "-")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", fmt.Errorf("%w: %s is not installed", port.ErrConfiguration, p.binary)
		}
		return "", fmt.Errorf("pdf extract: %w", err)
	}
	return string(out), nil
}
