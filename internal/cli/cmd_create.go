package cli

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/calvinalkan/docbase/internal/document"

	flag "github.com/spf13/pflag"
)

var (
	errContentSources = errors.New("use only one of --content, --content-file and -")
	errIndexRequired  = errors.New("version index is required")
	errInvalidIndex   = errors.New("version index must be an integer")
)

// docFlags are shared by create and update.
type docFlags struct {
	set         *flag.FlagSet
	category    *string
	title       *string
	description *string
	tags        *string
	content     *string
	contentFile *string
}

func newDocFlags(name string) docFlags {
	flagSet := flag.NewFlagSet(name, flag.ContinueOnError)

	return docFlags{
		set:         flagSet,
		category:    flagSet.StringP("category", "c", "", "Category"),
		title:       flagSet.StringP("title", "t", "", "Title"),
		description: flagSet.StringP("description", "d", "", "Short description"),
		tags:        flagSet.String("tags", "", "Tags, separated by commas or spaces"),
		content:     flagSet.String("content", "", "Markdown content"),
		contentFile: flagSet.String("content-file", "", "Read markdown content from file"),
	}
}

// input overlays the flags that were given onto base. Positional "-" reads
// content from stdin.
func (f docFlags) input(a *app, o *IO, base document.Input, args []string) (document.Input, error) {
	in := base

	if f.set.Changed("category") {
		in.Category = *f.category
	}

	if f.set.Changed("title") {
		in.Title = *f.title
	}

	if f.set.Changed("description") {
		in.Description = *f.description
	}

	if f.set.Changed("tags") {
		in.Tags = *f.tags
	}

	fromStdin := len(args) > 0 && args[len(args)-1] == "-"

	sources := 0
	for _, set := range []bool{f.set.Changed("content"), f.set.Changed("content-file"), fromStdin} {
		if set {
			sources++
		}
	}

	if sources > 1 {
		return document.Input{}, errContentSources
	}

	switch {
	case f.set.Changed("content"):
		in.Content = *f.content
	case f.set.Changed("content-file"):
		path := *f.contentFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.cfg.EffectiveCwd, path)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return document.Input{}, fmt.Errorf("read content file: %w", err)
		}

		in.Content = string(data)
	case fromStdin:
		data, err := io.ReadAll(o.In())
		if err != nil {
			return document.Input{}, fmt.Errorf("read stdin: %w", err)
		}

		in.Content = string(data)
	}

	return in, nil
}

// CreateCmd returns the create command.
func CreateCmd(a *app) *Command {
	f := newDocFlags("create")

	return &Command{
		Flags: f.set,
		Usage: "create -c <category> -t <title> [flags] [-]",
		Short: "Create a document, prints its id",
		Long:  "Create a document and print its id. Content comes from --content, --content-file, or stdin when the last argument is '-'.",
		Examples: []string{
			`create -c Guides -t "Getting started" --tags "intro setup"`,
			"create -c Ops -t Runbook --content-file runbook.md",
		},
		Exec: func(ctx context.Context, o *IO, args []string) error {
			in, err := f.input(a, o, document.Input{}, args)
			if err != nil {
				return err
			}

			doc, err := a.engine.Create(ctx, in)
			if err != nil {
				return err
			}

			o.Println(doc.ID)

			return nil
		},
	}
}

// UpdateCmd returns the update command.
func UpdateCmd(a *app) *Command {
	f := newDocFlags("update")

	return &Command{
		Flags: f.set,
		Usage: "update <id> [flags] [-]",
		Short: "Update a document",
		Long:  "Update a document. Fields without a flag keep their current value. Every update stores the previous content as a version.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] == "-" {
				return errIDRequired
			}

			current, err := a.engine.Get(ctx, args[0])
			if err != nil {
				return err
			}

			in, err := f.input(a, o, currentInput(current), args[1:])
			if err != nil {
				return err
			}

			doc, err := a.engine.Update(ctx, current.ID, in)
			if err != nil {
				return err
			}

			o.Println(doc.ID)

			return nil
		},
	}
}

// currentInput turns a stored document back into raw input. Display fields
// are stored escaped and would be escaped twice otherwise.
func currentInput(d document.Document) document.Input {
	return document.Input{
		Category:    html.UnescapeString(d.Category),
		Title:       html.UnescapeString(d.Title),
		Description: html.UnescapeString(d.Description),
		Content:     d.Content,
		Tags:        html.UnescapeString(document.JoinTags(d.Tags)),
	}
}

// DeleteCmd returns the delete command.
func DeleteCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("delete", flag.ContinueOnError),
		Usage: "delete <id>",
		Short: "Delete a document",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errIDRequired
			}

			err := a.engine.Delete(ctx, args[0])
			if err != nil {
				return err
			}

			o.Println("deleted", args[0])

			return nil
		},
	}
}

// RestoreCmd returns the restore command.
func RestoreCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("restore", flag.ContinueOnError),
		Usage: "restore <id> <index>",
		Short: "Restore a stored version",
		Long:  "Make version <index> (see 'kb history') the current content. The content it replaces is stored as a new version.",
		Examples: []string{
			"restore doc_0192 0",
		},
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errIDRequired
			}

			if len(args) < 2 {
				return errIndexRequired
			}

			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: %s", errInvalidIndex, args[1])
			}

			doc, err := a.engine.RestoreVersion(ctx, args[0], index)
			if err != nil {
				return err
			}

			o.Printf("restored %s from version %d\n", doc.ID, index)

			return nil
		},
	}
}
