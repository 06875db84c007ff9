// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command ircore-run loads a toy-ISA binary and either executes it
// (run) or prints its disassembly (disasm), exercising the reference
// lifter/loader against the full Interpreter/Machine stack.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/concrete-ir/ircore/intrinsics"
	"github.com/concrete-ir/ircore/interp"
	"github.com/concrete-ir/ircore/internal/reference"
	"github.com/concrete-ir/ircore/machine"
	"github.com/concrete-ir/ircore/state"
	"github.com/concrete-ir/ircore/walkers"
)

var log = logrus.WithField("component", "ircore-run")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.WithError(err).Error("command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "ircore-run",
		Short:         "Run or disassemble a toy-ISA binary against the ircore emulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	root.AddCommand(newRunCmd(), newDisasmCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var maxSteps int
	var traceAccess bool

	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "execute a toy-ISA binary to completion or a step bound",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, l, err := reference.NewSession(args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			ip := interp.New(l, nil, st, 16)
			ip.Intrinsics.Register("halt", func(*state.PCodeState, [][]byte, *state.Operand) intrinsics.Outcome {
				return intrinsics.Outcome{Action: intrinsics.Halt}
			})

			var logger *walkers.AccessLogger
			if traceAccess {
				logger = walkers.NewAccessLogger(state.NewAccessLog(0))
				ip.Hooks.Register("trace", logger)
			}

			m := machine.New(ip)
			res, err := m.RunUntil(machine.Location{Address: 0}, &machine.StepsBound{Remaining: maxSteps})
			if err != nil {
				return err
			}
			if res.Halted {
				fmt.Printf("halted: %v\n", res.Err)
			} else {
				fmt.Printf("stopped at 0x%x (reached=%v)\n", res.Next, res.Reached)
			}
			if traceAccess {
				for _, rec := range logger.Log.Entries() {
					fmt.Printf("  %s %s+0x%x (%d bytes)\n", rec.Kind, rec.Space, rec.Offset, rec.Size)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxSteps, "max-steps", 10000, "maximum instructions to execute before stopping")
	cmd.Flags().BoolVar(&traceAccess, "trace", false, "log every memory/register access")
	return cmd
}

func newDisasmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "disasm <file>",
		Short: "print a linear disassembly of a toy-ISA binary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			l := reference.New()
			for addr := 0; addr+reference.InstrWidth <= len(data); addr += reference.InstrWidth {
				text, err := l.Disassemble(nil, uint64(addr), data[addr:addr+reference.InstrWidth])
				if err != nil {
					return err
				}
				fmt.Printf("%08x: %s\n", addr, text)
			}
			return nil
		},
	}
	return cmd
}
