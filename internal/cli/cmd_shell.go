package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	flag "github.com/spf13/pflag"
)

var errUnterminatedQuote = errors.New("unterminated quote")

// lineReader is the part of liner.State the shell uses.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive prompt",
		Long:  "Run kb commands interactively. Type 'help' for commands, 'exit' to leave.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			a.bootstrap(ctx, o)

			reader, save := a.openLineReader(o)
			defer func() { _ = reader.Close() }()
			defer save()

			return a.shellLoop(ctx, o, reader)
		},
	}
}

func (a *app) shellLoop(ctx context.Context, o *IO, reader lineReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := reader.Prompt("kb> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		reader.AppendHistory(line)

		words, err := splitWords(line)
		if err != nil {
			o.ErrPrintln("error:", err)

			continue
		}

		switch words[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			printUsage(o.out)
		case "shell", "serve":
			o.ErrPrintln("error:", words[0], "is not available inside the shell")
		default:
			a.dispatch(ctx, o, words)
		}
	}
}

// openLineReader uses liner with persistent history on a real terminal and
// a plain line scanner otherwise.
func (a *app) openLineReader(o *IO) (lineReader, func()) {
	f, ok := a.stdin.(*os.File)
	if !ok || f != os.Stdin || !liner.TerminalSupported() {
		return &scanReader{scanner: bufio.NewScanner(o.In())}, func() {}
	}

	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		var out []string

		for _, cmd := range a.commands() {
			if strings.HasPrefix(cmd.Name(), line) {
				out = append(out, cmd.Name())
			}
		}

		return out
	})

	history := a.historyFile()
	if history != "" {
		if hf, err := os.Open(history); err == nil {
			_, _ = state.ReadHistory(hf)
			_ = hf.Close()
		}
	}

	save := func() {
		if history == "" {
			return
		}

		hf, err := os.Create(history)
		if err != nil {
			return
		}

		_, _ = state.WriteHistory(hf)
		_ = hf.Close()
	}

	return state, save
}

func (a *app) historyFile() string {
	home := a.env["HOME"]
	if home == "" {
		return ""
	}

	return filepath.Join(home, ".kb_history")
}

type scanReader struct {
	scanner *bufio.Scanner
}

func (s *scanReader) Prompt(string) (string, error) {
	if !s.scanner.Scan() {
		if err := s.scanner.Err(); err != nil {
			return "", err
		}

		return "", io.EOF
	}

	return s.scanner.Text(), nil
}

func (*scanReader) AppendHistory(string) {}

func (*scanReader) Close() error { return nil }

// splitWords splits line on whitespace, honouring single and double quotes
// and backslash escapes outside single quotes.
func splitWords(line string) ([]string, error) {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)

	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)

			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				words = append(words, current.String())
				current.Reset()

				inWord = false
			}
		default:
			current.WriteRune(r)

			inWord = true
		}
	}

	if quote != 0 {
		return nil, errUnterminatedQuote
	}

	if inWord {
		words = append(words, current.String())
	}

	return words, nil
}
