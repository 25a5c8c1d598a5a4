package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nearcast/nearcast/internal/command"
	"github.com/nearcast/nearcast/internal/config"
	"github.com/nearcast/nearcast/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "nearcast",
	Short: "Nearcast peer",
	Long:  `Nearcast - peer-to-peer LAN screen sharing and collaboration`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the peer and block until terminated",
	Run: func(cmd *cobra.Command, args []string) {
		runPeer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nearcast v%s\n", version)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report this peer's identity and running state",
	Run: func(cmd *cobra.Command, args []string) {
		checkStatus()
	},
}

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List known devices (discovered or manually added)",
	Run: func(cmd *cobra.Command, args []string) {
		listDevices()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.config/nearcast/config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogging sets up structured logging from config. Call after config.Load().
func initLogging(cfg *config.Settings) {
	var output io.Writer = os.Stdout
	logging.Init(cfg.LogFormat, cfg.LogLevel, output)
	log = logging.L("main")
}

// runPeer starts the service and blocks until a termination signal arrives.
// Capture/encode/render/discovery/transport are all brought up by
// command.Service.StartService; this entry point only owns process
// lifetime and signal handling.
func runPeer() {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	initLogging(cfg)

	svc, err := command.New(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log.Info("starting nearcast", "version", version)

	result := command.Dispatch(svc, command.CmdStartService, nil)
	if result.Status != "completed" {
		fmt.Fprintf(os.Stderr, "Failed to start service: %s\n", result.Error)
		os.Exit(1)
	}
	log.Info("peer is running")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")
	command.Dispatch(svc, command.CmdStopService, nil)
	log.Info("stopped")
}

func checkStatus() {
	svc, err := command.New(cfgFile)
	if err != nil {
		fmt.Println("Status: not configured")
		return
	}
	result := command.Dispatch(svc, command.CmdGetSelfInfo, nil)
	if result.Status != "completed" {
		fmt.Printf("Status: error (%s)\n", result.Error)
		return
	}
	fmt.Println(result.Data)
}

func listDevices() {
	svc, err := command.New(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	result := command.Dispatch(svc, command.CmdGetDevices, nil)
	if result.Status != "completed" {
		fmt.Fprintf(os.Stderr, "Failed to list devices: %s\n", result.Error)
		os.Exit(1)
	}
	var devices []map[string]any
	if err := json.Unmarshal([]byte(result.Data), &devices); err != nil {
		fmt.Println(result.Data)
		return
	}
	if len(devices) == 0 {
		fmt.Println("No devices known.")
		return
	}
	for _, d := range devices {
		fmt.Printf("%v\t%v\t%v:%v\t%v\n", d["ID"], d["DisplayName"], d["IP"], d["Port"], d["Status"])
	}
}
