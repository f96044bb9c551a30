package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/fsaccess/internal/transfer"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

var cpCmd = &cobra.Command{
	Use:   "cp <src-location> <src-path> <dst-location> <dst-path>",
	Short: "Copy a file, or a directory tree with -r, between locations",
	Long: `Copy content between two locations. When both backends hand out
locators the bytes are streamed; otherwise they are buffered in memory.

Example: fsaccess cp /data /reports/q1.pdf s3://archive/2024 /q1.pdf
         fsaccess cp -r http://nas:8080 /photos mem: /photos`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		from, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}
		to, err := openLocation(ctx, args[2])
		if err != nil {
			return err
		}

		t := transfer.New(
			transfer.WithTimeout(cfg.TransferTimeout),
			transfer.WithConcurrency(cfg.TransferConcurrency),
		)
		out := cmd.ErrOrStderr()

		if recursive, _ := cmd.Flags().GetBool("recursive"); recursive {
			res, err := t.TransferTree(ctx, from, args[1], to, args[3])
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "copied %d files (%d streamed) and %d directories, %d bytes\n",
				res.Files, res.Streamed, res.Dirs, res.Bytes)
			return nil
		}

		fromObj, err := from.GetObject(ctx, args[1])
		if err != nil {
			return err
		}
		if !fromObj.IsFile() {
			return fmt.Errorf("%s is a directory (use -r)", fromObj.FullPath)
		}
		toPath := models.Clean(args[3])
		res, err := t.Transfer(ctx, from, fromObj, to, &models.FileSystemObject{
			FullPath: toPath,
			Name:     models.Name(toPath),
			Size:     fromObj.Size,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "copied %d bytes (%s)\n", res.Bytes, res.Strategy)
		return nil
	},
}

func init() {
	cpCmd.Flags().BoolP("recursive", "r", false, "copy a directory tree")
	rootCmd.AddCommand(cpCmd)
}
