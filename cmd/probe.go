package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/k1rakishou/chanfetch/internal/engine"
	"github.com/k1rakishou/chanfetch/internal/output"
	"github.com/k1rakishou/chanfetch/internal/utils"
	"github.com/spf13/cobra"
)

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe [URL]",
		Short: "Show what a server reports for a file and how it would be split",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			router, err := buildRouter(ctx, args)
			if err != nil {
				return err
			}
			info, err := router.Resolve(ctx, args[0])
			if err != nil {
				return fmt.Errorf("probe failed: %w", err)
			}
			plan := engine.PlanChunks(info.Capabilities, info.Size, engine.PlanOptions{
				MaxChunks:    min(cfg.Connections, cfg.MaxConcurrency),
				MinChunkSize: int64(cfg.MinChunkSize),
			})

			size := "unknown"
			if info.Size >= 0 {
				size = fmt.Sprintf("%s (%d bytes)", utils.FormatBytes(uint64(info.Size)), info.Size)
			}
			output.PrintHeader(args[0])
			fmt.Printf("  %s %s\n", output.FDebug("File name:"), output.FInfo(info.FileName))
			fmt.Printf("  %s %s\n", output.FDebug("Size:"), output.FInfo(size))
			fmt.Printf("  %s %v\n", output.FDebug("Byte ranges:"), info.Capabilities.SupportsByteRanges)
			fmt.Printf("  %s %v\n", output.FDebug("Trusted length:"), info.Capabilities.ReportsAccurateContentLength)
			fmt.Printf("  %s %d\n", output.FDebug("Chunks:"), plan.ChunkCount())
			for i, r := range plan.Ranges {
				fmt.Printf("    %s\n", output.FDebug(fmt.Sprintf("%d: %s", i, r)))
			}
			if plan.Fallback != nil {
				output.PrintWarning("  " + plan.Fallback.Error())
			}
			return nil
		},
	}
}
