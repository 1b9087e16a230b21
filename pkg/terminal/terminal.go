package terminal

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/cosiner/argv"
	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"

	"github.com/utotu/MIT-6.828/pkg/config"
	"github.com/utotu/MIT-6.828/pkg/logflags"
	"github.com/utotu/MIT-6.828/pkg/machine"
)

const defaultPrompt = "K> "

// Term represents the terminal running the monitor.
type Term struct {
	machine *machine.Machine
	conf    *config.Config
	prompt  string
	line    *liner.State
	cmds    *Commands
	stdout  io.Writer

	// InitFile is a file of monitor commands executed before the prompt
	// is shown.
	InitFile string
}

// New returns a new Term attached to the given machine.
func New(m *machine.Machine, conf *config.Config) *Term {
	cmds := MonitorCommands()
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	if conf == nil {
		conf = &config.Config{}
	}

	prompt := conf.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	var w io.Writer = os.Stdout
	if strings.ToLower(os.Getenv("TERM")) != "dumb" && isatty.IsTerminal(os.Stdout.Fd()) {
		w = colorable.NewColorableStdout()
	}

	t := &Term{
		machine: m,
		conf:    conf,
		prompt:  prompt,
		line:    liner.NewLiner(),
		cmds:    cmds,
		stdout:  w,
	}
	t.line.SetCompleter(t.complete)
	return t
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// Run runs the read-eval loop until the operator exits.
func (t *Term) Run() (int, error) {
	defer t.Close()

	// An interrupt returns to the prompt; there is no running target to
	// stop in a post-mortem monitor.
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sys.SIGINT)
	defer signal.Stop(ch)
	go func() {
		for range ch {
			fmt.Fprintln(t.stdout, "interrupt")
		}
	}()

	t.loadHistory()

	fmt.Fprintf(t.stdout, "Welcome to the kmon kernel monitor! (inspecting %s)\n", t.machine.Path)
	fmt.Fprintln(t.stdout, "Type 'help' for a list of commands.")

	if t.InitFile != "" {
		if err := t.cmds.executeFile(t, t.InitFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error executing init file: %v\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF || err == liner.ErrPromptAborted {
				fmt.Fprintln(t.stdout, "exit")
				return t.handleExit()
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}

		cmdstr, args, err := parseCommand(cmdstr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			continue
		}

		if logflags.Monitor() {
			logflags.MonitorLogger().Debugf("command %q args %v", cmdstr, args)
		}
		if err := t.cmds.Call(cmdstr, args, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}

func (t *Term) handleExit() (int, error) {
	t.saveHistory()
	return 0, nil
}

// complete implements tab completion: command names first, symbol names
// for the sym command.
func (t *Term) complete(line string) []string {
	if strings.HasPrefix(line, "sym ") {
		prefix := strings.TrimSpace(line[len("sym "):])
		var matches []string
		for _, name := range t.machine.Symbols.Complete(prefix) {
			matches = append(matches, "sym "+name)
		}
		return matches
	}
	return t.cmds.completions(line)
}

// parseCommand tokenizes one input line into a command name and its
// argument vector.
func parseCommand(cmdstr string) (string, []string, error) {
	if strings.TrimSpace(cmdstr) == "" {
		return "", nil, nil
	}
	v, err := argv.Argv(cmdstr,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return "", nil, err
	}
	if len(v) != 1 {
		return "", nil, fmt.Errorf("illegal commandline '%s'", cmdstr)
	}
	if len(v[0]) == 0 {
		return "", nil, nil
	}
	return v[0][0], v[0][1:], nil
}

func (t *Term) loadHistory() {
	fullHistoryFile, err := config.HistoryFilePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to load history file: %v.\n", err)
		return
	}
	f, err := os.Open(fullHistoryFile)
	if err != nil {
		return
	}
	t.line.ReadHistory(f)
	f.Close()
}

func (t *Term) saveHistory() {
	fullHistoryFile, err := config.HistoryFilePath()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error saving history file:", err)
		return
	}
	if f, err := os.Create(fullHistoryFile); err == nil {
		if _, err := t.line.WriteHistory(f); err != nil {
			fmt.Fprintln(os.Stderr, "readline history error:", err)
		}
		f.Close()
	}
}

// executeFile runs the commands of an init file, one per line. Blank
// lines and lines starting with # are skipped.
func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		cmdstr, args, err := parseCommand(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", name, lineno, err)
			continue
		}

		if err := c.Call(cmdstr, args, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				break
			}
			fmt.Fprintf(os.Stderr, "%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}
