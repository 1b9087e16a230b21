package cmds

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/utotu/MIT-6.828/pkg/config"
	"github.com/utotu/MIT-6.828/pkg/image"
	"github.com/utotu/MIT-6.828/pkg/kdebug"
	"github.com/utotu/MIT-6.828/pkg/logflags"
	"github.com/utotu/MIT-6.828/pkg/machine"
	"github.com/utotu/MIT-6.828/pkg/terminal"
	"github.com/utotu/MIT-6.828/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// initFile is the path to initialization file.
	initFile string
	// kernelPath is the kernel executable supplying debug symbols.
	kernelPath string
	// pgdir, fp and pc override the paging root and register state of
	// the image.
	pgdir string
	fp    string
	pc    string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const kmonCommandLongDesc = `kmon is a post-mortem monitor for 32-bit x86 kernel images.

It loads a memory image (an ELF core or a kernel executable), resolves its
debug symbols, and provides the interactive commands of a kernel monitor:
stack backtraces with source-level symbolization, page-table mapping
inspection, and raw memory examination.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()

	// Main kmon root command.
	rootCommand = &cobra.Command{
		Use:   "kmon",
		Short: "kmon is a kernel-image monitor.",
		Long:  kmonCommandLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (monitor, image, symbols).`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor.")

	// 'inspect' subcommand.
	inspectCommand := &cobra.Command{
		Use:   "inspect <image>",
		Short: "Open a kernel memory image in the monitor.",
		Long: `Open a kernel memory image in the monitor.

The image is an ELF file: either a core (a RAM snapshot whose NT_PRSTATUS
note supplies the saved registers) or a kernel executable. When inspecting
a core, pass --kernel to symbolize against the matching kernel binary and
--pgdir to locate the page directory for mapping inspection.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(inspect(args[0]))
		},
	}
	inspectCommand.Flags().StringVar(&kernelPath, "kernel", "", "Kernel executable supplying debug symbols (and mappings) for a core image.")
	inspectCommand.Flags().StringVar(&pgdir, "pgdir", "", "Physical address of the page directory root, base 16.")
	inspectCommand.Flags().StringVar(&fp, "fp", "", "Frame pointer to start backtraces at, base 16. Overrides the core's saved EBP.")
	inspectCommand.Flags().StringVar(&pc, "pc", "", "Saved program counter, base 16. Overrides the core's saved EIP.")
	inspectCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the monitor before the first prompt.")
	rootCommand.AddCommand(inspectCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kmon %s\n%s\n", version.KmonVersion, version.BuildInfo())
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func inspect(path string) int {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logflags.Close()

	img, err := image.Open(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if kernelPath != "" {
		if err := img.LoadKernel(kernelPath); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}

	m, err := assemble(img)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if logflags.Symbols() {
		logflags.SymbolsLogger().Debugf("%d symbols indexed for %s", m.Symbols.Len(), m.Path)
	}

	t := terminal.New(m, conf)
	t.InitFile = initFile
	status, err := t.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return status
}

// assemble builds the execution context the monitor runs against,
// applying the register and paging-root overrides.
func assemble(img *image.Image) (*machine.Machine, error) {
	m := &machine.Machine{
		Phys:    img.Phys,
		Virt:    img.Virt,
		Path:    img.Path,
		Symbols: kdebug.NewIndex(img.Symbols),
	}
	if img.HasRegs {
		m.Regs = machine.Registers{EIP: img.EIP, EBP: img.EBP, ESP: img.ESP}
	}

	var err error
	if m.PageDir, err = overrideAddr(pgdir, m.PageDir); err != nil {
		return nil, err
	}
	if m.Regs.EBP, err = overrideAddr(fp, m.Regs.EBP); err != nil {
		return nil, err
	}
	if m.Regs.EIP, err = overrideAddr(pc, m.Regs.EIP); err != nil {
		return nil, err
	}

	// A core carries no virtual view of its own: read virtual addresses
	// by translating through the page tables captured in the snapshot.
	if m.PageDir != 0 {
		m.Virt = machine.NewVirtualMemory(m.Phys, m.PageDir)
	}
	return m, nil
}

func overrideAddr(flag string, def uint32) (uint32, error) {
	if flag == "" {
		return def, nil
	}
	v := strings.TrimPrefix(strings.TrimPrefix(flag, "0x"), "0X")
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a base-16 address", flag)
	}
	return uint32(n), nil
}
