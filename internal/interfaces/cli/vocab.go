package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/intelligence/vocabulary"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// NewVocabCmd creates the vocab command group.
func NewVocabCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Convert vocabulary artifacts",
	}
	cmd.AddCommand(newVocabPackCmd())
	return cmd
}

type packOutput struct {
	Words int    `json:"words"`
	Dim   int    `json:"dim"`
	Index string `json:"index"`
	Block string `json:"block"`
}

func (p *packOutput) String() string {
	return fmt.Sprintf("packed %d words (dim %d)\n  index: %s\n  block: %s", p.Words, p.Dim, p.Index, p.Block)
}

func newVocabPackCmd() *cobra.Command {
	var in, index, block string
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Pack a JSON vocabulary table into the index + vector block layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			out, err := packVocabulary(in, index, block)
			if err != nil {
				return err
			}
			cliCtx.Logger.Info("vocabulary packed",
				logging.Int("words", out.Words),
				logging.String("block", out.Block))
			return PrintResult(cmd, out)
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "JSON vocabulary table")
	cmd.Flags().StringVar(&index, "index", "", "output index JSON path")
	cmd.Flags().StringVar(&block, "block", "", "output vector block path")
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("index")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

func packVocabulary(in, indexPath, blockPath string) (*packOutput, error) {
	f, err := os.Open(in)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "failed to open vocabulary").WithDetail(in)
	}
	defer f.Close()

	v, err := vocabulary.LoadTable(bufio.NewReader(f))
	if err != nil {
		return nil, err
	}
	defer v.Close()

	idx, err := os.Create(indexPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "failed to create index").WithDetail(indexPath)
	}
	defer idx.Close()
	blk, err := os.Create(blockPath)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "failed to create block").WithDetail(blockPath)
	}
	defer blk.Close()

	bw := bufio.NewWriter(blk)
	if err := v.WriteSplit(idx, bw); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "failed to write block").WithDetail(blockPath)
	}
	if err := blk.Sync(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeVocabularyIO, "failed to sync block").WithDetail(blockPath)
	}
	return &packOutput{Words: v.Len(), Dim: v.Dim(), Index: indexPath, Block: blockPath}, nil
}

//Personal.AI order the ending
