package main

import (
	"fmt"
	"os"

	"github.com/kelvindahl/nesc/nes"
	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:           "romtool",
		Short:         "Inspect iNES / NES 2.0 ROM images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(infoCmd(), mappersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <rom.nes>",
		Short: "Print the parsed header of a ROM image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			rom, err := nes.ParseROM(f)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "mapper:    %d\n", rom.Mapper)
			fmt.Fprintf(out, "prg-rom:   %d KiB\n", len(rom.PRG)/1024)
			if rom.ChrIsRAM {
				fmt.Fprintf(out, "chr-ram:   %d KiB\n", len(rom.CHR)/1024)
			} else {
				fmt.Fprintf(out, "chr-rom:   %d KiB\n", len(rom.CHR)/1024)
			}
			fmt.Fprintf(out, "mirroring: %s\n", mirroringName(rom.Mirroring))
			fmt.Fprintf(out, "battery:   %v\n", rom.Battery)
			fmt.Fprintf(out, "trainer:   %v\n", rom.Trainer != nil)
			return nil
		},
	}
}

func mappersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mappers",
		Short: "List the mapper numbers this build implements",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "0   NROM")
			fmt.Fprintln(out, "1   MMC1")
			fmt.Fprintln(out, "2   UxROM")
			fmt.Fprintln(out, "3   CNROM")
			fmt.Fprintln(out, "4   MMC3")
		},
	}
}

func mirroringName(m nes.Mirroring) string {
	switch m {
	case nes.MirrorHorizontal:
		return "horizontal"
	case nes.MirrorVertical:
		return "vertical"
	case nes.MirrorSingleLower:
		return "single-screen (lower)"
	case nes.MirrorSingleUpper:
		return "single-screen (upper)"
	case nes.MirrorFourScreen:
		return "four-screen"
	default:
		return "unknown"
	}
}
