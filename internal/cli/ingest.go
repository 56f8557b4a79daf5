package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/arturoeanton/design-copilot/internal/adapter/extract"
	"github.com/arturoeanton/design-copilot/internal/domain"
	"github.com/arturoeanton/design-copilot/internal/service"
)

func newIngestCmd(st *rootState) *cobra.Command {
	var noProgress bool

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Chunk, embed and store files",
		Long: `Extract text from each file, split it into overlapping chunks, embed them
and store them for the owner. Supported: .txt, .md, .markdown and .pdf (needs pdftotext).

Examples:
  copilotctl ingest guidelines.md --owner user-42
  copilotctl ingest docs/*.pdf --owner user-42 --no-progress`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := st.requireOwner()
			if err != nil {
				return err
			}
			env, err := st.open(cmd.Context())
			if err != nil {
				return err
			}
			defer env.Close()

			registry := extract.Default()
			results := make([]*domain.IngestResult, 0, len(args))
			for _, path := range args {
				result, err := ingestFile(cmd, env.Services.Ingest, registry, owner, path, !noProgress && !st.jsonOut)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				results = append(results, result)
			}

			if st.jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "do not draw a progress bar")
	return cmd
}

func ingestFile(
	cmd *cobra.Command,
	ingest *service.IngestService,
	registry *extract.Registry,
	owner, path string,
	showProgress bool,
) (*domain.IngestResult, error) {
	name := filepath.Base(path)
	extractor, err := registry.Lookup(name, mime.TypeByExtension(filepath.Ext(name)))
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	text, err := extractor.Extract(cmd.Context(), data)
	if err != nil {
		return nil, err
	}

	req := service.IngestRequest{
		OwnerID:   owner,
		Filename:  name,
		Text:      text,
		SizeBytes: int64(len(data)),
		Metadata:  map[string]string{"extractor": extractor.Name(), "source": "copilotctl"},
	}
	var bar *progressBar
	if showProgress {
		bar = &progressBar{w: cmd.ErrOrStderr(), label: name}
		req.Progress = bar.update
	}

	result, err := ingest.Ingest(cmd.Context(), req)
	bar.finish()
	if err != nil {
		if result != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s → document %s: %d stored, %d failed (%s)\n",
				name, result.DocumentID, result.ChunksStored, result.ChunksFailed, result.Status)
		}
		return nil, err
	}

	if !showProgress || result.Status != domain.IngestStatusCompleted {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %s → document %s: %d stored, %d failed (%s)\n",
			statusMark(result.Status), name, result.DocumentID, result.ChunksStored, result.ChunksFailed, result.Status)
	} else {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ %s → document %s (%d chunks)\n", name, result.DocumentID, result.ChunksStored)
	}
	return result, nil
}

func statusMark(status string) string {
	switch status {
	case domain.IngestStatusCompleted:
		return "✓"
	case domain.IngestStatusPartial:
		return "!"
	default:
		return "✗"
	}
}

// progressBar is created on the first callback, once the chunk total is known.
type progressBar struct {
	mu    sync.Mutex
	w     io.Writer
	label string
	bar   *progressbar.ProgressBar
}

func (p *progressBar) update(done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar == nil {
		p.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(p.w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetDescription("[cyan]"+p.label+"[reset]"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionClearOnFinish(),
		)
	}
	_ = p.bar.Set(done)
}

func (p *progressBar) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
