package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/fsaccess/internal/accessor"
	"github.com/fruitsalade/fsaccess/pkg/models"
)

var statCmd = &cobra.Command{
	Use:   "stat <location> <path>",
	Short: "Print the metadata of one object as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		acc, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}
		obj, err := acc.GetObject(ctx, args[1])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(obj)
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls <location> [path]",
	Short: "List the children of a directory",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		acc, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}
		dir := models.DirSeparator
		if len(args) == 2 {
			dir = args[1]
		}
		objs, err := acc.GetObjects(ctx, dir)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		longFormat, _ := cmd.Flags().GetBool("long")
		if !longFormat {
			for _, o := range objs {
				name := o.Name
				if !o.IsFile() {
					name += models.DirSeparator
				}
				fmt.Fprintln(out, name)
			}
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, o := range objs {
			typ := "-"
			if !o.IsFile() {
				typ = "d"
			}
			modified := "-"
			if o.LastModified > 0 {
				modified = time.UnixMilli(o.LastModified).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", typ, o.SizeOrZero(), modified, o.Name)
		}
		return w.Flush()
	},
}

var catCmd = &cobra.Command{
	Use:   "cat <location> <path>",
	Short: "Write the content of a file to stdout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		acc, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := acc.ReadContent(ctx, args[1])
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var putCmd = &cobra.Command{
	Use:   "put <location> <path> [local-file|-]",
	Short: "Replace the content of a file",
	Long: `Replace the content of a file with a local file, or with stdin when the
source is "-" or omitted. The parent directory must exist.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		acc, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}

		var data []byte
		if len(args) < 3 || args[2] == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(args[2])
		}
		if err != nil {
			return fmt.Errorf("read source: %w", err)
		}

		if err := acc.WriteContent(ctx, args[1], data); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(data), models.Clean(args[1]))
		return nil
	},
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <location> <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		acc, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}
		if parents, _ := cmd.Flags().GetBool("parents"); parents {
			return accessor.MakeDirectories(ctx, acc, args[1])
		}
		return accessor.MakeDirectory(ctx, acc, args[1])
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <location> <path>",
	Short: "Delete a file or an empty directory",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		acc, err := openLocation(ctx, args[0])
		if err != nil {
			return err
		}
		obj, err := acc.GetObject(ctx, args[1])
		if err != nil {
			return err
		}
		return acc.Delete(ctx, args[1], obj.IsFile())
	},
}

func init() {
	lsCmd.Flags().BoolP("long", "l", false, "show type, size and modification time")
	mkdirCmd.Flags().BoolP("parents", "p", false, "create missing parent directories")

	rootCmd.AddCommand(statCmd, lsCmd, catCmd, putCmd, mkdirCmd, rmCmd)
}
