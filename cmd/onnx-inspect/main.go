// Command onnx-inspect prints the inputs, outputs, initializers and nodes of
// an ONNX model and can run it once on a zero-filled input.
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
		Use:           "onnx-inspect <model-path>",
		Short:         "Inspect an ONNX model",
		Long:          "Print the declared inputs, outputs, initializers and graph nodes of an ONNX model,\noptionally running one forward pass on a zero-filled input.",
		Args:          cobra.ExactArgs(1),
		SilenceErrors: true,
	}
	cmd.SetOut(out)
	cmd.SetErr(out)

	v := config.Bind(cmd, config.Flags{NoInfer: true, Ops: true, DefaultEngine: config.EngineNative})
	cli.SetupLogging(cmd, out)
	cmd.AddCommand(cli.VersionCommand("onnx-inspect"))

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
	m, err := inspect.LoadGraph(cfg.ModelPath, inspect.LoadOptions{InferShapes: cfg.InferShapes})
	if err != nil {
		return err
	}

	r := inspect.NewReporter(out)
	r.WallClass = cfg.WallClass
	r.Model(m)
	if cfg.ShowOps {
		r.OpsTable(m)
	}

	if cfg.TestRun {
		engine, closeEngine, err := cli.OpenEngine(cfg)
		if err != nil {
			r.RuntimeTest(inspect.RunOutcome{Err: &inspect.RuntimeExecutionError{Err: err}})
			return r.Err()
		}
		defer closeEngine()
		cli.RuntimeTest(ctx, r, m, engine, cfg)
	}
	return r.Err()
}
