package cmd

import (
	"errors"
	"fmt"

	"github.com/k1rakishou/chanfetch/internal/scheduler"
	"github.com/spf13/cobra"
)

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE]",
		Short: "Download every entry of a YAML list",
		Long: `Download every entry of a YAML list in parallel. Each entry takes a link and
optionally op (file name), dirs, size, hash, algo and connections.

  - link: https://i.example/g/1700000000000.webm
    dirs: [g, "98765432"]
    hash: 1B2M2Y8AsgTpgAmY7PhCfg==
  - link: s3://archive/g/1700000000001.png
    op: logo.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := scheduler.ReadEntries(args[0])
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				return errors.New("no entries found in the batch file")
			}
			if err := runEntries(entries); err != nil {
				return fmt.Errorf("encountered failed download(s): %w", err)
			}
			return nil
		},
	}
	return cmd
}
