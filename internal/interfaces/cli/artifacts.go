package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	minioinfra "github.com/turtacn/ClinLink/internal/infrastructure/storage/minio"
)

// NewArtifactsCmd creates the artifacts command group for object storage.
func NewArtifactsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifacts",
		Short: "Publish and list concept stores and vocabularies in object storage",
	}
	cmd.AddCommand(newArtifactsPushCmd(), newArtifactsListCmd(), newArtifactsPullCmd())
	return cmd
}

type pushOutput struct {
	Ref  string `json:"ref"`
	ETag string `json:"etag"`
}

func (p *pushOutput) String() string { return fmt.Sprintf("uploaded %s (etag %s)", p.Ref, p.ETag) }

func newArtifactsPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push LOCAL_PATH s3://BUCKET/KEY",
		Short: "Upload a local artifact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			store, err := openArtifactStore(cliCtx)
			if err != nil {
				return err
			}
			etag, err := store.Upload(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return PrintResult(cmd, &pushOutput{Ref: args[1], ETag: etag})
		},
	}
}

type pullOutput struct {
	Ref  string `json:"ref"`
	Path string `json:"path"`
}

func (p *pullOutput) String() string { return fmt.Sprintf("%s -> %s", p.Ref, p.Path) }

func newArtifactsPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull s3://BUCKET/KEY",
		Short: "Download an artifact into the local cache and print its path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			store, err := openArtifactStore(cliCtx)
			if err != nil {
				return err
			}
			path, err := store.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, &pullOutput{Ref: args[0], Path: path})
		},
	}
}

type listOutput struct {
	Artifacts []minioinfra.ArtifactInfo `json:"artifacts"`
}

func (l *listOutput) TableHeaders() []string {
	return []string{"Ref", "Size", "ETag", "Modified"}
}

func (l *listOutput) TableRows() [][]string {
	rows := make([][]string, 0, len(l.Artifacts))
	for _, a := range l.Artifacts {
		rows = append(rows, []string{a.Ref, fmt.Sprint(a.Size), a.ETag, a.LastModified.Format(time.RFC3339)})
	}
	return rows
}

func (l *listOutput) String() string {
	if len(l.Artifacts) == 0 {
		return "no artifacts"
	}
	lines := make([]string, len(l.Artifacts))
	for i, a := range l.Artifacts {
		lines[i] = fmt.Sprintf("%s\t%d", a.Ref, a.Size)
	}
	return strings.Join(lines, "\n")
}

func newArtifactsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [s3://BUCKET/PREFIX]",
		Short: "List artifacts (default: the configured bucket)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			store, err := openArtifactStore(cliCtx)
			if err != nil {
				return err
			}
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			infos, err := store.List(ctx, prefix)
			if err != nil {
				return err
			}
			return PrintResult(cmd, &listOutput{Artifacts: infos})
		},
	}
}

//Personal.AI order the ending
