// Package terminal implements the interactive monitor shell: it parses
// operator input and dispatches to the inspection commands.
package terminal

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/utotu/MIT-6.828/pkg/machine"
	"github.com/utotu/MIT-6.828/pkg/memory"
	"github.com/utotu/MIT-6.828/pkg/pagetable"
	"github.com/utotu/MIT-6.828/pkg/stack"
)

type callContext struct {
	Machine *machine.Machine
}

type cmdfunc func(t *Term, ctx callContext, args []string) error

type command struct {
	aliases []string
	helpMsg string
	cmdFn   cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the monitor shell.
type Commands struct {
	cmds    []command
	lastCmd cmdfunc
}

// MonitorCommands returns a Commands struct with the default monitor
// commands defined.
func MonitorCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: "Display this list of commands."},
		{aliases: []string{"kerninfo", "info"}, cmdFn: kerninfo, helpMsg: "Display information about the kernel."},
		{aliases: []string{"backtrace", "bt"}, cmdFn: backtrace, helpMsg: "Display the stack backtrace."},
		{aliases: []string{"showmappings", "sm"}, cmdFn: showMappings, helpMsg: "showmappings <va_start> <va_end>. Show the mapping of every page in the range."},
		{aliases: []string{"regs"}, cmdFn: regs, helpMsg: "Print the saved register state of the image."},
		{aliases: []string{"sym"}, cmdFn: symCommand, helpMsg: "sym <prefix>. List kernel symbols matching a name prefix."},
		{aliases: []string{"examine", "x"}, cmdFn: examine, helpMsg: "examine <va> [n]. Dump n words of memory starting at va."},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the monitor."},
	}

	return c
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
// If the command is an empty string it will replay the last command.
func (c *Commands) Find(cmdstr string) cmdfunc {
	// If <enter> use last command, if there was one.
	if cmdstr == "" {
		if c.lastCmd != nil {
			return c.lastCmd
		}
		return nullCommand
	}

	for _, v := range c.cmds {
		if v.match(cmdstr) {
			c.lastCmd = v.cmdFn
			return v.cmdFn
		}
	}

	return noCmdAvailable
}

// Call dispatches cmdstr with its argument vector against t's machine.
func (c *Commands) Call(cmdstr string, args []string, t *Term) error {
	ctx := callContext{Machine: t.machine}
	return c.Find(cmdstr)(t, ctx, args)
}

// Merge takes aliases defined in the config struct and merges them with
// the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

func noCmdAvailable(t *Term, ctx callContext, args []string) error {
	return fmt.Errorf("command not available")
}

func nullCommand(t *Term, ctx callContext, args []string) error {
	return nil
}

func (c *Commands) help(t *Term, ctx callContext, args []string) error {
	fmt.Fprintln(t.stdout, "The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(t.stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), cmd.helpMsg)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], cmd.helpMsg)
		}
	}
	return w.Flush()
}

func kerninfo(t *Term, ctx callContext, args []string) error {
	m := ctx.Machine

	fmt.Fprintln(t.stdout, "Special kernel symbols:")
	for _, name := range machine.SpecialSymbols {
		sym, ok := m.Symbols.Lookup(name)
		if !ok {
			continue
		}
		if sym.Addr < machine.KernBase {
			fmt.Fprintf(t.stdout, "  %-6s %08x (phys)\n", name, sym.Addr)
		} else {
			fmt.Fprintf(t.stdout, "  %-6s %08x (virt)  %08x (phys)\n", name, sym.Addr, sym.Addr-machine.KernBase)
		}
	}

	entry, okEntry := m.Symbols.Lookup("entry")
	end, okEnd := m.Symbols.Lookup("end")
	if okEntry && okEnd && end.Addr > entry.Addr {
		footprint := (end.Addr - entry.Addr + 1023) / 1024
		fmt.Fprintf(t.stdout, "Kernel executable memory footprint: %dKB\n", footprint)
	}
	return nil
}

func backtrace(t *Term, ctx callContext, args []string) error {
	m := ctx.Machine

	fmt.Fprintln(t.stdout, "Stack backtrace:")
	it := stack.New(m.Virt, m.FramePointer())
	for it.Next() {
		frame := it.Frame()
		fmt.Fprintf(t.stdout, "  ebp %08x  eip %08x  args %08x %08x %08x %08x %08x\n",
			frame.FP, frame.Ret,
			frame.Args[0], frame.Args[1], frame.Args[2], frame.Args[3], frame.Args[4])
		if info, ok := m.Symbols.Resolve(frame.Ret); ok {
			fmt.Fprintf(t.stdout, "         %s:%d: %s+%d\n",
				info.File, info.Line, info.FnName[:info.FnNameLen], frame.Ret-info.FnAddr)
		} else {
			fmt.Fprintln(t.stdout, "         not found")
		}
	}
	return it.Err()
}

func showMappings(t *Term, ctx callContext, args []string) error {
	if len(args) != 2 {
		fmt.Fprintln(t.stdout, "error: showmappings needs 2 parameters")
		return nil
	}
	vaStart, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	vaEnd, err := parseAddr(args[1])
	if err != nil {
		return err
	}

	m := ctx.Machine
	mappings, err := pagetable.InspectRange(m.Phys, m.PageDir, vaStart, vaEnd)
	if err == pagetable.ErrInvertedRange {
		fmt.Fprintln(t.stdout, "error: va_end < va_start")
		return nil
	}
	for _, mp := range mappings {
		if mp.Mapped {
			fmt.Fprintf(t.stdout, "va:0x%08x --> pa:0x%08x, p = %d, w = %d, u = %d\n",
				mp.VA, mp.PTE.Frame(),
				mp.PTE.Bit(pagetable.FlagPresent),
				mp.PTE.Bit(pagetable.FlagWritable),
				mp.PTE.Bit(pagetable.FlagUser))
		} else {
			fmt.Fprintf(t.stdout, "va:0x%08x is not mapped\n", mp.VA)
		}
	}
	return err
}

func regs(t *Term, ctx callContext, args []string) error {
	m := ctx.Machine
	fmt.Fprintf(t.stdout, "eip %08x\n", m.PC())
	fmt.Fprintf(t.stdout, "esp %08x\n", m.Regs.ESP)
	fmt.Fprintf(t.stdout, "ebp %08x\n", m.FramePointer())
	fmt.Fprintf(t.stdout, "cr3 %08x\n", m.PageDir)
	return nil
}

func symCommand(t *Term, ctx callContext, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("wrong number of arguments: sym <prefix>")
	}
	m := ctx.Machine
	names := m.Symbols.Complete(args[0])
	if len(names) == 0 {
		fmt.Fprintln(t.stdout, "not found")
		return nil
	}
	for _, name := range names {
		sym, ok := m.Symbols.Lookup(name)
		if !ok {
			continue
		}
		loc := "?"
		if sym.File != "" {
			loc = fmt.Sprintf("%s:%d", sym.File, sym.Line)
		}
		fmt.Fprintf(t.stdout, "%08x %6d  %s  %s\n", sym.Addr, sym.Size, name, loc)
	}
	return nil
}

const (
	defaultExamineWords = 16
	// maxExamineWords bounds one dump so an operator typo cannot ask for
	// an address space worth of output.
	maxExamineWords = 4096
)

func examine(t *Term, ctx callContext, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("wrong number of arguments: examine <va> [n]")
	}
	va, err := parseAddr(args[0])
	if err != nil {
		return err
	}
	count := defaultExamineWords
	if t.conf != nil && t.conf.MaxExamineWords != nil {
		if n := *t.conf.MaxExamineWords; n > 0 && n <= maxExamineWords {
			count = n
		}
	}
	if len(args) == 2 {
		count, err = strconv.Atoi(args[1])
		if err != nil || count <= 0 || count > maxExamineWords {
			return fmt.Errorf("wrong argument: %q is not a word count (1-%d)", args[1], maxExamineWords)
		}
	}

	mem := memory.Cache(ctx.Machine.Virt, va, count*memory.WordSize)
	for i := 0; i < count; i++ {
		if i%4 == 0 {
			if i > 0 {
				fmt.Fprintln(t.stdout)
			}
			fmt.Fprintf(t.stdout, "0x%08x:", va+uint32(i)*memory.WordSize)
		}
		word, err := memory.ReadUint32(mem, va+uint32(i)*memory.WordSize)
		if err != nil {
			fmt.Fprintln(t.stdout)
			return err
		}
		fmt.Fprintf(t.stdout, "  %08x", word)
	}
	fmt.Fprintln(t.stdout)
	return nil
}

// ExitRequestError is returned when the user exits the monitor.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, ctx callContext, args []string) error {
	return ExitRequestError{}
}

// parseAddr parses a base-16 address, with or without a 0x prefix.
func parseAddr(s string) (uint32, error) {
	v := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("wrong argument: %q is not an address", s)
	}
	return uint32(n), nil
}

// completions returns the command names and aliases matching the line
// typed so far, sorted.
func (c *Commands) completions(line string) []string {
	var matches []string
	for _, cmd := range c.cmds {
		for _, alias := range cmd.aliases {
			if strings.HasPrefix(alias, line) {
				matches = append(matches, alias)
			}
		}
	}
	sort.Strings(matches)
	return matches
}
