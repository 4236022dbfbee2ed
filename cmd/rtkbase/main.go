package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "rtkbase",
		Short: "Operate a u-blox GNSS receiver as an RTK base station",
		Long: "rtkbase reads the UBX/RTCM3 byte stream from a u-blox GNSS receiver,\n" +
			"validates every frame, and streams the RTCM3 corrections to connected\n" +
			"rovers over a minimal NTRIP handshake.",
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "./rtkbase.yaml", "Path to YAML config")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the base station (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "rtkbase: %v\n", err)
		os.Exit(1)
	}
}
