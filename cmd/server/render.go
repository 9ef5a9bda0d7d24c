package main

import (
	"context"
	"fmt"
	"os"

	"github.com/bytedance/sonic"
	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/Dashboard/backend/internal/bridge"
	"github.com/GriffinCanCode/Dashboard/backend/internal/engine/sandbox"
	"github.com/GriffinCanCode/Dashboard/backend/internal/infrastructure/server"
)

var (
	renderWidth  float64
	renderHeight float64
	renderData   string
	renderBridge string
	renderBody   bool
)

var renderCmd = &cobra.Command{
	Use:   "render <file>",
	Short: "Render a widget once and print its HTML",
	Long: `Renders a widget source offline and prints the isolated markup.
Timers and pending fetches are not waited for. proxyFetch is only available
when --bridge points at a running server.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.Flags().Float64Var(&renderWidth, "width", 320, "Widget width")
	renderCmd.Flags().Float64Var(&renderHeight, "height", 240, "Widget height")
	renderCmd.Flags().StringVar(&renderData, "data", "{}", "customData as a JSON object")
	renderCmd.Flags().StringVar(&renderBridge, "bridge", "", "Base URL of a running server for proxyFetch")
	renderCmd.Flags().BoolVar(&renderBody, "body", false, "Print the sanitised body without the isolation wrapper")
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	src, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var data map[string]any
	if err := sonic.UnmarshalString(renderData, &data); err != nil {
		return fmt.Errorf("invalid --data: %w", err)
	}

	opts := []sandbox.Option{sandbox.WithID("wgt_cli")}
	if renderBridge != "" {
		opts = append(opts, sandbox.WithFetcher(bridge.NewClient(renderBridge, cfg.Proxy.Path)))
	}
	inst, err := sandbox.New(server.EngineConfig(cfg.Engine), sandbox.Props{
		Code:       string(src),
		CustomData: data,
		Width:      renderWidth,
		Height:     renderHeight,
	}, opts...)
	if err != nil {
		return err
	}
	defer inst.Close()

	v, err := inst.Flush(context.Background())
	if err != nil {
		return err
	}

	out := v.HTML
	if renderBody {
		out = v.Body
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	for _, entry := range v.Console {
		fmt.Fprintf(cmd.ErrOrStderr(), "[%s] %s\n", entry.Level, entry.Message)
	}
	if v.Crashed {
		return fmt.Errorf("widget crashed (%s): %s", v.Kind, v.Error)
	}
	return nil
}
