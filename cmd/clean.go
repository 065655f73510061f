package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/k1rakishou/chanfetch/internal/output"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/spf13/cobra"
)

func newCleanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clean [path]",
		Short: "Clean up temporary files left by interrupted downloads",
		Long: `Without a path, removes the whole temp directory below the output dir.
With a file path, removes only the chunk and merge files of that file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := utils.GetLogger("clean")
			if len(args) == 0 {
				if err := utils.CleanLocal(cfg.OutputDir, cfg.TempDirName); err != nil {
					return fmt.Errorf("error cleaning up temporary files: %w", err)
				}
				log.Debug().Str("dir", filepath.Join(cfg.OutputDir, cfg.TempDirName)).Msg("Temp directory removed")
				output.PrintSuccess("Temporary files cleaned up")
				return nil
			}
			removed, err := utils.CleanFunction(args[0], cfg.TempDirName)
			if err != nil {
				return fmt.Errorf("error cleaning up temporary files: %w", err)
			}
			if removed == 0 {
				output.PrintInfo(fmt.Sprintf("No temporary files found for %s", filepath.Base(args[0])))
				return nil
			}
			output.PrintSuccess(fmt.Sprintf("Removed %d temporary file(s) for %s", removed, filepath.Base(args[0])))
			return nil
		},
	}
}
