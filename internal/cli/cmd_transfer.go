package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/calvinalkan/docbase/internal/fs"

	flag "github.com/spf13/pflag"
)

// ExportCmd returns the export command.
func ExportCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("export", flag.ContinueOnError)
	output := flagSet.StringP("output", "o", "", "Write to file instead of stdout")

	return &Command{
		Flags: flagSet,
		Usage: "export [-o file]",
		Short: "Export all documents as JSON",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			data, err := a.engine.Export(ctx)
			if err != nil {
				return err
			}

			if *output == "" {
				o.Printf("%s\n", data)

				return nil
			}

			path := *output
			if !filepath.IsAbs(path) {
				path = filepath.Join(a.cfg.EffectiveCwd, path)
			}

			err = fs.NewReal().WriteFileAtomic(path, data, 0o644)
			if err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			o.Println(path)

			return nil
		},
	}
}

// ImportCmd returns the import command.
func ImportCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("import", flag.ContinueOnError),
		Usage: "import <file|->",
		Short: "Import documents from a JSON export",
		Long:  "Import documents from a JSON export. Documents whose id already exists are skipped.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errImportFileRequired
			}

			var (
				data []byte
				err  error
			)

			if args[0] == "-" {
				data, err = io.ReadAll(o.In())
			} else {
				path := args[0]
				if !filepath.IsAbs(path) {
					path = filepath.Join(a.cfg.EffectiveCwd, path)
				}

				data, err = os.ReadFile(path)
			}

			if err != nil {
				return fmt.Errorf("read import: %w", err)
			}

			count, err := a.engine.BulkImport(ctx, data)
			if err != nil {
				return err
			}

			o.Printf("%d documents imported\n", count)

			return nil
		},
	}
}
