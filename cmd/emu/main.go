// Command emu runs the dmgcore emulator: emu <rom.gb> [bootrom.bin].
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/kageyama-retro/dmgcore/internal/emu"
	"github.com/kageyama-retro/dmgcore/internal/ui"
	"github.com/spf13/cobra"
)

// Exit codes per the documented CLI contract.
const (
	exitOK         = 0
	exitUsage      = -1
	exitLoadFailed = -2
	exitFatal      = -3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var (
		frames   int
		trace    bool
		savePath string
	)

	cmd := &cobra.Command{
		Use:           "emu <rom.gb> [bootrom.bin]",
		Short:         "A cycle-driven DMG Game Boy emulator core",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().IntVar(&frames, "frames", 0, "run headless for N frames then exit (0 launches the windowed UI)")
	cmd.Flags().BoolVar(&trace, "trace", false, "log each executed instruction's PC and opcode")
	cmd.Flags().StringVar(&savePath, "save", "", "write a full-state snapshot to this path after a headless run")

	exitCode := exitOK
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		romPath := args[0]
		var bootPath string
		if len(args) == 2 {
			bootPath = args[1]
		}

		rom, err := os.ReadFile(romPath)
		if err != nil {
			exitCode = exitLoadFailed
			return fmt.Errorf("read ROM: %w", err)
		}
		var boot []byte
		if bootPath != "" {
			boot, err = os.ReadFile(bootPath)
			if err != nil {
				exitCode = exitLoadFailed
				return fmt.Errorf("read boot ROM: %w", err)
			}
		}

		sys := emu.New(emu.Config{Trace: trace, LimitFPS: frames == 0})
		if err := sys.LoadCartridge(rom, boot); err != nil {
			exitCode = exitLoadFailed
			return err
		}

		if frames > 0 {
			if err := sys.Run(frames); err != nil {
				exitCode = exitFatal
				return fmt.Errorf("%w\n%s", err, sys.RegisterDump())
			}
			if savePath != "" {
				data, err := sys.SaveState()
				if err != nil {
					exitCode = exitFatal
					return err
				}
				if err := os.WriteFile(savePath, data, 0o644); err != nil {
					exitCode = exitFatal
					return fmt.Errorf("write save state: %w", err)
				}
			}
			return nil
		}

		app := ui.NewApp(ui.Config{Title: "dmgcore"}, sys)
		if err := app.Run(); err != nil {
			exitCode = exitFatal
			return fmt.Errorf("%w\n%s", err, sys.RegisterDump())
		}
		return nil
	}

	if err := cmd.Execute(); err != nil {
		log.Print(err)
		if exitCode == exitOK {
			exitCode = exitUsage
		}
	}
	return exitCode
}
