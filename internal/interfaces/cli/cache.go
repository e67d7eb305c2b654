package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/ClinLink/internal/application/annotation"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the redis annotation cache",
	}
	cmd.AddCommand(newCachePurgeCmd())
	return cmd
}

type purgeOutput struct {
	Prefix  string `json:"prefix"`
	Deleted int64  `json:"deleted"`
}

func (p *purgeOutput) String() string {
	return fmt.Sprintf("deleted %d keys under %q", p.Deleted, p.Prefix)
}

func newCachePurgeCmd() *cobra.Command {
	var fingerprint string
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached annotation results",
		Long: `Delete cached annotation results.  With --fingerprint only results produced
by that engine are removed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd, cliCtx)
			defer cancel()

			cache, closeCache, err := requireCache(cliCtx)
			if err != nil {
				return err
			}
			defer closeCache()

			prefix := annotation.CacheName + ":"
			if fingerprint != "" {
				prefix += fingerprint + ":"
			}
			n, err := cache.DeleteByPrefix(ctx, prefix)
			if err != nil {
				return err
			}
			return PrintResult(cmd, &purgeOutput{Prefix: prefix, Deleted: n})
		},
	}
	cmd.Flags().StringVar(&fingerprint, "fingerprint", "", "engine fingerprint to purge (default: all)")
	return cmd
}

//Personal.AI order the ending
