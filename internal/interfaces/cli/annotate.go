package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/ClinLink/internal/application/annotation"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

type annotateOptions struct {
	file     string
	lines    bool
	docID    string
	useCache bool
}

// NewAnnotateCmd creates the annotate command.
func NewAnnotateCmd() *cobra.Command {
	opts := &annotateOptions{}
	cmd := &cobra.Command{
		Use:   "annotate [text...]",
		Short: "Recognise and link clinical concepts in text",
		Long: `Annotate free text and print the linked concepts.

Text is taken from the arguments, or from --file ("-" reads stdin).  With
--lines every non-empty input line is annotated as a separate document.`,
		Example: `  clinlink annotate "patient reports chest pain and fever"
  clinlink annotate --file notes.txt --lines -o table`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read text from file (\"-\" for stdin)")
	cmd.Flags().BoolVar(&opts.lines, "lines", false, "treat each input line as a separate document")
	cmd.Flags().StringVar(&opts.docID, "id", "", "document id (single document only)")
	cmd.Flags().BoolVar(&opts.useCache, "cache", false, "use the redis result cache when enabled in config")
	return cmd
}

func runAnnotate(cmd *cobra.Command, args []string, opts *annotateOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	docs, err := readDocuments(cmd, args, opts)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	engine, err := loadEngine(ctx, cliCtx)
	if err != nil {
		return err
	}
	defer engine.Close()

	svcOpts := []annotation.ServiceOption{
		annotation.WithServiceLogger(cliCtx.Logger),
		annotation.WithConcurrency(cliCtx.Config.Worker.Concurrency),
	}
	if opts.useCache {
		cache, closeCache, err := openCache(cliCtx)
		if err != nil {
			return err
		}
		defer closeCache()
		if cache != nil {
			svcOpts = append(svcOpts, annotation.WithCache(cache, cliCtx.Config.Redis.TTL))
		}
	}
	svc := annotation.NewService(engine, svcOpts...)

	out := &annotateOutput{}
	for _, item := range svc.AnnotateBatch(ctx, docs) {
		if item.Err != nil {
			return item.Err
		}
		out.Results = append(out.Results, item.Result)
	}
	cliCtx.Logger.Info("annotation completed", logging.Int("documents", len(out.Results)))

	if len(out.Results) == 1 && cliCtx.OutputFormat == FormatJSON {
		return PrintResult(cmd, out.Results[0])
	}
	return PrintResult(cmd, out)
}

// readDocuments collects the input documents from args or --file.
func readDocuments(cmd *cobra.Command, args []string, opts *annotateOptions) ([]*common.Document, error) {
	if opts.file != "" && len(args) > 0 {
		return nil, errors.New(errors.ErrCodeValidation, "text arguments and --file are mutually exclusive")
	}

	var text string
	switch {
	case opts.file == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read stdin")
		}
		text = string(b)
	case opts.file != "":
		b, err := os.ReadFile(opts.file)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to read input file").WithDetail(opts.file)
		}
		text = string(b)
	default:
		text = strings.Join(args, " ")
	}

	if !opts.lines {
		if strings.TrimSpace(text) == "" {
			return nil, errors.New(errors.ErrCodeDocumentEmpty, "no text to annotate")
		}
		return []*common.Document{{ID: common.ID(opts.docID), Text: text}}, nil
	}

	if opts.docID != "" {
		return nil, errors.New(errors.ErrCodeValidation, "--id cannot be combined with --lines")
	}
	var docs []*common.Document
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := sc.Text(); strings.TrimSpace(line) != "" {
			docs = append(docs, &common.Document{Text: line})
		}
	}
	if len(docs) == 0 {
		return nil, errors.New(errors.ErrCodeDocumentEmpty, "no text to annotate")
	}
	return docs, nil
}

// annotateOutput renders annotation results in every output format.
type annotateOutput struct {
	Results []*common.AnnotationResult `json:"results"`
}

func (o *annotateOutput) TableHeaders() []string {
	return []string{"Doc", "Span", "Text", "CUI", "Preferred", "Similarity", "Outcome"}
}

func (o *annotateOutput) TableRows() [][]string {
	var rows [][]string
	for _, r := range o.Results {
		for _, e := range r.Entities {
			rows = append(rows, []string{
				shortID(r.DocumentID),
				fmt.Sprintf("%d-%d", e.Start, e.End),
				e.Text,
				e.CUI,
				e.PreferredName,
				strconv.FormatFloat(e.Similarity, 'f', 3, 64),
				e.Outcome,
			})
		}
	}
	return rows
}

func (o *annotateOutput) String() string {
	var sb strings.Builder
	for i, r := range o.Results {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s %s: %d entities (%d tokens, %d spans, %d corrections)",
			color.CyanString("document"), shortID(r.DocumentID), len(r.Entities), r.TokenCount, r.SpanCount, r.Corrections)
		if r.Cached {
			sb.WriteString(" [cached]")
		}
		sb.WriteString("\n")
		for _, e := range r.Entities {
			name := e.PreferredName
			if name == "" {
				name = e.Name
			}
			fmt.Fprintf(&sb, "  [%d:%d] %q -> %s %s %s\n",
				e.Start, e.End, e.Text, color.GreenString(e.CUI), name, similarityString(e.Similarity))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func similarityString(s float64) string {
	v := strconv.FormatFloat(s, 'f', 3, 64)
	if s < 0.5 {
		return color.YellowString(v)
	}
	return v
}

func shortID(id common.ID) string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

//Personal.AI order the ending
