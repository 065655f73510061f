package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/k1rakishou/chanfetch/internal/scheduler"
	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	var entry scheduler.Entry
	var dirs string

	cmd := &cobra.Command{
		Use:   "get [URL] [--output NAME]",
		Short: "Download one file",
		Long: `Download one file over http(s) or from an s3:// archive.

Examples:
  chanfetch get https://i.example/g/1700000000000.webm
  chanfetch get https://i.example/g/1700000000000.webm -o cat.webm --dirs g/98765432
  chanfetch get s3://archive/g/1700000000000.png --hash 1B2M2Y8AsgTpgAmY7PhCfg==`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry.Link = args[0]
			entry.Dirs = splitDirs(dirs)
			if err := runEntries([]scheduler.Entry{entry}); err != nil {
				return fmt.Errorf("download failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&entry.OutputPath, "output", "o", "", "Output file name (inferred from the server or URL if not provided)")
	cmd.Flags().StringVar(&dirs, "dirs", "", "Sub-directories below the output dir, slash separated (eg. g/98765432)")
	cmd.Flags().Int64Var(&entry.Size, "size", 0, "Expected file size in bytes, verified after merging")
	cmd.Flags().StringVar(&entry.Hash, "hash", "", "Expected file hash, hex or base64")
	cmd.Flags().StringVar(&entry.Algo, "algo", "md5", "Hash algorithm: md5, sha1 or sha256")
	return cmd
}

func splitDirs(dirs string) []string {
	var out []string
	for _, part := range strings.Split(filepath.ToSlash(dirs), "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
