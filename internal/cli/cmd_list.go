package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/calvinalkan/docbase/internal/document"

	flag "github.com/spf13/pflag"
)

var (
	errIDRequired         = errors.New("document id is required")
	errImportFileRequired = errors.New("import file is required")
)

// ListCmd returns the list command.
func ListCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("list", flag.ContinueOnError)
	category := flagSet.String("category", "", "Only documents in this category")
	tag := flagSet.String("tag", "", "Only documents with this tag")
	asJSON := flagSet.Bool("json", false, "Print the documents as JSON")

	return &Command{
		Flags: flagSet,
		Usage: "list [--category c] [--tag t] [--json]",
		Short: "List documents grouped by category",
		Examples: []string{
			"list --category Guides",
			"list --tag ops --json",
		},
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			repo := a.engine.Repository(ctx)
			if flagSet.Changed("tag") {
				repo = document.NewRepository(repo.WithTag(document.Sanitize(*tag)))
			}

			docs := repo.All()
			if flagSet.Changed("category") {
				docs = repo.ByCategory(document.Sanitize(*category))
			}

			if *asJSON {
				if docs == nil {
					docs = []document.Document{}
				}

				return printJSON(o, docs)
			}

			printGrouped(o, docs)

			return nil
		},
	}
}

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("show", flag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "Print the document as JSON")

	return &Command{
		Flags: flagSet,
		Usage: "show <id> [--json]",
		Short: "Show a document",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errIDRequired
			}

			doc, err := a.engine.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if *asJSON {
				return printJSON(o, doc)
			}

			o.Println("id:          " + doc.ID)
			o.Println("category:    " + html.UnescapeString(doc.Category))
			o.Println("title:       " + html.UnescapeString(doc.Title))

			if doc.Description != "" {
				o.Println("description: " + html.UnescapeString(doc.Description))
			}

			if len(doc.Tags) > 0 {
				o.Println("tags:        " + html.UnescapeString(document.JoinTags(doc.Tags)))
			}

			o.Println("updated_at:  " + doc.UpdatedAt)
			o.Printf("versions:    %d\n", len(doc.Versions))
			o.Println()
			o.Println(doc.Content)

			return nil
		},
	}
}

// SearchCmd returns the search command.
func SearchCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("search", flag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "Print the matches as JSON")

	return &Command{
		Flags: flagSet,
		Usage: "search <query> [--json]",
		Short: "Search titles, descriptions, content and tags",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			query := strings.Join(args, " ")

			docs := a.engine.Repository(ctx).Search(query)
			if docs == nil {
				docs = []document.Document{}
			}

			if *asJSON {
				return printJSON(o, docs)
			}

			for _, d := range docs {
				printLine(o, d)
			}

			return nil
		},
	}
}

// TagsCmd returns the tags command.
func TagsCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("tags", flag.ContinueOnError)
	asJSON := flagSet.Bool("json", false, "Print tag counts as JSON")

	return &Command{
		Flags: flagSet,
		Usage: "tags [--json]",
		Short: "List tags by number of documents",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			counts := a.engine.Repository(ctx).TagCounts()

			if *asJSON {
				return printJSON(o, counts)
			}

			for _, tc := range counts {
				o.Printf("%4d  %s\n", tc.Count, html.UnescapeString(tc.Tag))
			}

			return nil
		},
	}
}

// HistoryCmd returns the history command.
func HistoryCmd(a *app) *Command {
	flagSet := flag.NewFlagSet("history", flag.ContinueOnError)

	return &Command{
		Flags: flagSet,
		Usage: "history <id>",
		Short: "List stored versions of a document",
		Long:  "List the stored versions of a document, oldest first. Use the index with 'kb restore'.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errIDRequired
			}

			doc, err := a.engine.Get(ctx, args[0])
			if err != nil {
				return err
			}

			if len(doc.Versions) == 0 {
				o.Println("no versions")

				return nil
			}

			for i, v := range doc.Versions {
				o.Printf("%d  %s  %s\n", i, v.SavedAt, preview(v.Content))
			}

			return nil
		},
	}
}

func printGrouped(o *IO, docs []document.Document) {
	for i, cat := range document.NewRepository(docs).Categories() {
		if i > 0 {
			o.Println()
		}

		o.Println("# " + html.UnescapeString(cat.Name))

		for _, d := range cat.Documents {
			printLine(o, d)
		}
	}
}

func printLine(o *IO, d document.Document) {
	line := fmt.Sprintf("%s  %s  (%s)", d.ID, html.UnescapeString(d.Title), d.UpdatedAt)
	if len(d.Tags) > 0 {
		line += "  [" + html.UnescapeString(document.JoinTags(d.Tags)) + "]"
	}

	o.Println(line)
}

func preview(content string) string {
	const maxPreview = 60

	first, _, _ := strings.Cut(strings.TrimSpace(content), "\n")

	r := []rune(first)
	if len(r) > maxPreview {
		return string(r[:maxPreview]) + "..."
	}

	if first == "" {
		return "(empty)"
	}

	return first
}

func printJSON(o *IO, v any) error {
	enc := json.NewEncoder(o.Out())
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
