// Package cli holds the pieces shared by the onnx-inspect binaries: logging
// setup, engine selection and the version command.
package cli

import (
	"context"
	goflag "flag"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/born-ml/onnx-inspect/internal/config"
	"github.com/born-ml/onnx-inspect/internal/inspect"
	"github.com/born-ml/onnx-inspect/internal/ortsession"
)

// Version is the release version, set with -ldflags "-X ...cli.Version=".
var Version = "v0.1.0-dev"

// SetupLogging registers klog flags (-v, --vmodule, ...) on cmd and sends
// all log output to out.
func SetupLogging(cmd *cobra.Command, out io.Writer) {
	fs := goflag.NewFlagSet(cmd.Name(), goflag.ContinueOnError)
	klog.InitFlags(fs)
	for name, value := range map[string]string{
		"logtostderr":     "false",
		"alsologtostderr": "false",
		"stderrthreshold": "FATAL",
	} {
		if err := fs.Set(name, value); err != nil {
			panic(err)
		}
	}
	klog.SetOutput(out)
	klog.LogToStderr(false)

	// Only -v and --vmodule are useful on the command line.
	fs.VisitAll(func(f *goflag.Flag) {
		if f.Name == "v" || f.Name == "vmodule" {
			cmd.PersistentFlags().AddGoFlag(f)
		}
	})
}

// VersionCommand prints name and Version.
func VersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", name, Version)
		},
	}
}

// OpenEngine returns the engine cfg selects. The returned close function
// releases engine resources and is never nil.
func OpenEngine(cfg *config.Config) (inspect.Engine, func(), error) {
	switch cfg.Engine {
	case config.EngineORT:
		s, err := ortsession.Open(cfg.ModelPath, cfg.ORTOptions())
		if err != nil {
			return nil, func() {}, err
		}
		return s, closer(s), nil
	default:
		return &inspect.NativeEngine{}, func() {}, nil
	}
}

// OpenSession returns the session view cfg selects. When the session can
// also execute the model it is returned as the engine.
func OpenSession(cfg *config.Config) (inspect.Session, inspect.Engine, func(), error) {
	switch cfg.Engine {
	case config.EngineORT:
		s, err := ortsession.Open(cfg.ModelPath, cfg.ORTOptions())
		if err != nil {
			return nil, nil, func() {}, err
		}
		return s, s, closer(s), nil
	default:
		s, err := inspect.NewGraphSession(cfg.ModelPath)
		if err != nil {
			return nil, nil, func() {}, err
		}
		return s, &inspect.NativeEngine{}, func() {}, nil
	}
}

func closer(s *ortsession.Session) func() {
	return func() {
		if err := s.Close(); err != nil {
			klog.Warningf("close onnxruntime session: %v", err)
		}
	}
}

// RuntimeTest runs the dummy forward pass and prints its section.
func RuntimeTest(ctx context.Context, r *inspect.Reporter, m *inspect.Model, engine inspect.Engine, cfg *config.Config) {
	klog.V(1).Infof("runtime test with %s engine", engine.Name())
	r.RuntimeTest(inspect.NewRunner(engine, cfg.Resolver()).Run(ctx, m))
}
