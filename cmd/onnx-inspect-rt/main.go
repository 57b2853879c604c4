// Command onnx-inspect-rt inspects an ONNX model through an execution
// session only: inputs, outputs and metadata, no graph. It can run the
// model once on a zero-filled input.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/onnx-inspect/internal/cli"
	"github.com/born-ml/onnx-inspect/internal/config"
	"github.com/born-ml/onnx-inspect/internal/inspect"
)

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stdout, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "onnx-inspect-rt <model-path>",
		Short:         "Inspect an ONNX model through an execution session",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)

	v := config.Bind(cmd, config.Flags{DefaultEngine: config.EngineORT})
	cli.SetupLogging(cmd, out)
	cmd.AddCommand(cli.VersionCommand("onnx-inspect-rt"))

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := config.Load(v, args[0])
		if err != nil {
			return err
		}
		return run(cmd.Context(), cfg, out)
	}
	return cmd
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	session, engine, closeSession, err := cli.OpenSession(cfg)
	if err != nil {
		return err
	}
	defer closeSession()

	m := inspect.FromSession(session)
	r := inspect.NewReporter(out)
	r.WallClass = cfg.WallClass
	r.Model(m)

	if cfg.TestRun {
		cli.RuntimeTest(ctx, r, m, engine, cfg)
	}
	return r.Err()
}
