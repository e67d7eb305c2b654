package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/pkg/client"
	"github.com/turtacn/ClinLink/pkg/errors"
	"github.com/turtacn/ClinLink/pkg/types/common"
)

// newSubmitClient builds the submission client.  Tests replace it.
var newSubmitClient = func(cfg config.KafkaConfig, logger logging.Logger) (*client.Client, error) {
	return client.NewKafkaClient(cfg.Brokers, cfg.InputTopic, client.WithLogger(logger))
}

// NewSubmitCmd creates the submit command.
func NewSubmitCmd() *cobra.Command {
	opts := &annotateOptions{}
	cmd := &cobra.Command{
		Use:   "submit [text...]",
		Short: "Queue documents for the annotation worker",
		Long: `Publish documents to the worker input topic instead of annotating them
locally.  Results are published by clinlink-worker on the output topic.`,
		Example: `  clinlink submit --id note-17 "denies chest pain"
  clinlink submit --file notes.txt --lines`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "read text from file (\"-\" for stdin)")
	cmd.Flags().BoolVar(&opts.lines, "lines", false, "treat each input line as a separate document")
	cmd.Flags().StringVar(&opts.docID, "id", "", "document id (single document only)")
	return cmd
}

func runSubmit(cmd *cobra.Command, args []string, opts *annotateOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	if len(cliCtx.Config.Kafka.Brokers) == 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "kafka.brokers is not configured")
	}
	docs, err := readDocuments(cmd, args, opts)
	if err != nil {
		return err
	}

	ctx, cancel := commandContext(cmd, cliCtx)
	defer cancel()

	c, err := newSubmitClient(cliCtx.Config.Kafka, cliCtx.Logger)
	if err != nil {
		return err
	}
	defer c.Close()

	batch := make([]common.Document, len(docs))
	for i, d := range docs {
		batch[i] = *d
	}
	ids, err := c.SubmitBatch(ctx, batch)
	out := &submitOutput{Topic: c.Topic(), IDs: ids}
	if err != nil {
		if len(ids) > 0 {
			_ = PrintResult(cmd, out)
		}
		return err
	}
	cliCtx.Logger.Info("documents submitted", logging.Int("documents", len(ids)), logging.String("topic", c.Topic()))
	return PrintResult(cmd, out)
}

type submitOutput struct {
	Topic string      `json:"topic"`
	IDs   []common.ID `json:"ids"`
}

func (o *submitOutput) TableHeaders() []string {
	return []string{"Document", "Topic"}
}

func (o *submitOutput) TableRows() [][]string {
	rows := make([][]string, len(o.IDs))
	for i, id := range o.IDs {
		rows[i] = []string{string(id), o.Topic}
	}
	return rows
}

func (o *submitOutput) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "submitted %d documents to %s", len(o.IDs), o.Topic)
	for _, id := range o.IDs {
		fmt.Fprintf(&sb, "\n  %s", id)
	}
	return sb.String()
}

//Personal.AI order the ending
