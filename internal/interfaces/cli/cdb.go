package cli

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/ClinLink/internal/config"
	"github.com/turtacn/ClinLink/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ClinLink/internal/intelligence/clinical_ner"
	"github.com/turtacn/ClinLink/internal/intelligence/concept_store"
	"github.com/turtacn/ClinLink/pkg/errors"
)

// NewCDBCmd creates the cdb command group.
func NewCDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cdb",
		Short: "Inspect and build concept databases",
	}
	cmd.AddCommand(newCDBInspectCmd(), newCDBBuildCmd())
	return cmd
}

func newCDBInspectCmd() *cobra.Command {
	var storePath, name string
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print concept database statistics or look up a name",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			path := storePath
			if path == "" {
				path = cliCtx.Config.Artifacts.ConceptStorePath
			}
			if path == "" {
				return errors.New(errors.ErrCodeValidation, "no concept store: pass --store or set artifacts.concept_store_path")
			}

			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()
			if strings.HasPrefix(path, "s3://") {
				as, err := openArtifactStore(cliCtx)
				if err != nil {
					return err
				}
				if path, err = as.Resolve(ctx, path); err != nil {
					return err
				}
			}

			store, err := concept_store.LoadFile(path, cliCtx.Config.General.Separator)
			if err != nil {
				return err
			}
			if name == "" {
				return PrintResult(cmd, statsOutput(store.Stats()))
			}
			proc := clinical_ner.NewProcessor(cliCtx.Config, nil, nil, cliCtx.Logger)
			return PrintResult(cmd, lookupName(store, proc, name))
		},
	}
	cmd.Flags().StringVar(&storePath, "store", "", "concept store path (default: artifacts.concept_store_path)")
	cmd.Flags().StringVar(&name, "name", "", "look up the concepts for a raw name")
	return cmd
}

type statsOutput concept_store.Stats

func (s statsOutput) TableHeaders() []string {
	return []string{"Names", "Concepts", "Fragments", "Trained", "Vector Dim"}
}

func (s statsOutput) TableRows() [][]string {
	return [][]string{{
		fmt.Sprint(s.Names), fmt.Sprint(s.Concepts), fmt.Sprint(s.Fragments),
		fmt.Sprint(s.TrainedConcepts), fmt.Sprint(s.VectorDim),
	}}
}

func (s statsOutput) String() string {
	return fmt.Sprintf("names: %d\nconcepts: %d\nfragments: %d\ntrained concepts: %d\nvector dim: %d",
		s.Names, s.Concepts, s.Fragments, s.TrainedConcepts, s.VectorDim)
}

type nameConcept struct {
	CUI           string   `json:"cui"`
	Status        string   `json:"status"`
	PreferredName string   `json:"preferred_name,omitempty"`
	TypeIDs       []string `json:"type_ids,omitempty"`
	TrainCount    uint64   `json:"train_count"`
}

type nameLookup struct {
	Query    string        `json:"query"`
	Name     string        `json:"name"`
	Concepts []nameConcept `json:"concepts"`
}

func lookupName(store *concept_store.Store, proc *clinical_ner.Processor, raw string) *nameLookup {
	name := strings.Join(proc.PrepareName(raw), store.Separator())
	out := &nameLookup{Query: raw, Name: name}
	for _, cui := range store.Candidates(name) {
		nc := nameConcept{CUI: cui, Status: string(store.Status(name, cui)), TrainCount: store.TrainCount(cui)}
		if info, ok := store.Info(cui); ok {
			nc.PreferredName = info.PreferredName
			nc.TypeIDs = info.TypeIDs
		}
		out.Concepts = append(out.Concepts, nc)
	}
	return out
}

func (l *nameLookup) TableHeaders() []string {
	return []string{"CUI", "Status", "Preferred", "Types", "Trained"}
}

func (l *nameLookup) TableRows() [][]string {
	rows := make([][]string, 0, len(l.Concepts))
	for _, c := range l.Concepts {
		rows = append(rows, []string{c.CUI, c.Status, c.PreferredName, strings.Join(c.TypeIDs, ","), fmt.Sprint(c.TrainCount)})
	}
	return rows
}

func (l *nameLookup) String() string {
	if len(l.Concepts) == 0 {
		return fmt.Sprintf("%s: no concepts", l.Name)
	}
	lines := []string{fmt.Sprintf("%s:", l.Name)}
	for _, c := range l.Concepts {
		lines = append(lines, fmt.Sprintf("  %s [%s] %s", c.CUI, c.Status, c.PreferredName))
	}
	return strings.Join(lines, "\n")
}

func newCDBBuildCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a concept database from a CSV of names",
		Long: `Build a concept database from CSV rows of cui,name[,status[,preferred]].

Names are normalised the same way document tokens are.  Status is one of
P, PD, A or N and defaults to A.  A header row starting with "cui" is skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			f, err := os.Open(input)
			if err != nil {
				return errors.Wrap(err, errors.ErrCodeValidation, "failed to open input").WithDetail(input)
			}
			defer f.Close()

			store, err := buildStore(f, cliCtx.Config, cliCtx.Logger)
			if err != nil {
				return err
			}
			if err := store.SaveFile(output); err != nil {
				return err
			}
			cliCtx.Logger.Info("concept store written", logging.String("path", output))
			return PrintResult(cmd, statsOutput(store.Stats()))
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "CSV input file")
	cmd.Flags().StringVar(&output, "out", "", "concept store output path")
	_ = cmd.MarkFlagRequired("input")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// buildStore reads cui,name[,status[,preferred]] rows into a Store.
func buildStore(r io.Reader, cfg *config.Config, logger logging.Logger) (*concept_store.Store, error) {
	proc := clinical_ner.NewProcessor(cfg, nil, nil, logger)
	b := concept_store.NewBuilder(cfg.General.Separator)

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	rows := 0
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "malformed CSV").WithDetail(fmt.Sprintf("line %d", line))
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "cui") {
			continue
		}
		if len(rec) < 2 {
			return nil, errors.Newf(errors.ErrCodeValidation, "line %d: expected cui,name[,status[,preferred]]", line)
		}
		status := concept_store.StatusAutomatic
		if len(rec) > 2 && strings.TrimSpace(rec[2]) != "" {
			status = concept_store.Status(strings.ToUpper(strings.TrimSpace(rec[2])))
		}
		cui := strings.TrimSpace(rec[0])
		if _, err := b.AddName(cui, proc.PrepareName(rec[1]), status); err != nil {
			return nil, errors.Wrap(err, errors.GetCode(err), "invalid row").WithDetail(fmt.Sprintf("line %d", line))
		}
		if len(rec) > 3 && strings.TrimSpace(rec[3]) != "" {
			b.SetInfo(cui, concept_store.ConceptInfo{PreferredName: strings.TrimSpace(rec[3])})
		}
		rows++
	}
	if rows == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "input has no name rows")
	}
	return b.Build()
}

//Personal.AI order the ending
