package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/engine"

	flag "github.com/spf13/pflag"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// Command is one kb subcommand.
type Command struct {
	Flags *flag.FlagSet

	// Usage is shown after "kb" in help. Its first word is the command name.
	Usage string

	// Short is the line shown in the command listing.
	Short string

	// Long replaces Short in "kb <cmd> --help".
	Long string

	// Examples are full invocations, printed one per line under the flags.
	Examples []string

	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the row for the command listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-36s %s", c.Usage, c.Short)
}

// PrintHelp prints "kb <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: kb", c.Usage)
	o.Println()

	desc := c.Long
	if desc == "" {
		desc = c.Short
	}

	o.Println(desc)

	if c.Flags != nil && c.Flags.HasFlags() {
		var buf strings.Builder

		c.Flags.SetOutput(&buf)
		c.Flags.PrintDefaults()

		o.Println()
		o.Println("Flags:")
		o.Printf("%s", buf.String())
	}

	if len(c.Examples) > 0 {
		o.Println()
		o.Println("Examples:")

		for _, ex := range c.Examples {
			o.Println("  kb " + ex)
		}
	}
}

// Run parses args and executes the command. Bad flags exit with exitUsage
// after printing help; a failed Exec exits with exitFailure.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})

	err := c.Flags.Parse(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			c.PrintHelp(o)

			return exitOK
		}

		o.ErrPrintln("error:", err)
		o.ErrPrintln()
		c.PrintHelp(o)

		return exitUsage
	}

	err = c.Exec(ctx, o, c.Flags.Args())
	if err != nil {
		o.ErrPrintln("error:", errorText(err))

		return exitFailure
	}

	return exitOK
}

// errorText drops the kind prefix from validation errors ("validation failed:
// title cannot be empty" prints as "title cannot be empty"). Storage errors
// keep their detail since the operator owns the file.
func errorText(err error) string {
	msg := err.Error()

	switch engine.Classify(err) {
	case engine.KindValidation:
		return strings.TrimPrefix(msg, document.ErrValidation.Error()+": ")
	case engine.KindStorage:
		return engine.StorageFailureMessage + ": " + msg
	default:
		return msg
	}
}
