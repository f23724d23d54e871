package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/openeuler-mirror/xlin-sbom/pkg/engine"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/merge"
	"github.com/openeuler-mirror/xlin-sbom/pkg/engine/report"
	"github.com/openeuler-mirror/xlin-sbom/pkg/progress"
	"github.com/openeuler-mirror/xlin-sbom/pkg/sbom"
	"github.com/openeuler-mirror/xlin-sbom/pkg/version"
)

var (
	cfgFile string
	config  engine.Config
)

var rootCmd = &cobra.Command{
	Use:   "xlin-sbom",
	Short: "SBOM discovery for Linux images and packages",
	Long: `xlin-sbom - Software Bill of Materials Generator

Scan a mounted ISO image or a single package and emit a condensed
SBOM plus its SPDX 2.3 projection.`,
	Version:       version.Current,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runScan,
}

// Execute runs the CLI. Exit codes: 0 on success, 2 when a strict scan
// finished with partial results, 1 for everything fatal.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, engine.ErrPartialScan) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().StringVarP(&config.ISOPath, "iso", "i", "", "Path to the ISO image to scan")
	rootCmd.Flags().StringVarP(&config.PackagePath, "package", "p", "", "Path to a single package to scan")
	rootCmd.Flags().StringVarP(&config.OutputDir, "output", "o", "", "Output directory or s3://bucket/prefix URL")
	rootCmd.Flags().StringVar(&config.PriorSBOM, "sbom", "", "Condensed SBOM from an earlier run to merge against")
	rootCmd.Flags().StringVar(&config.MountRoot, "mount-root", "", "Already-mounted image tree (skips fuseiso)")
	rootCmd.Flags().IntVar(&config.MaxWorkers, "max-workers", 0, "Limit concurrency (default: auto)")
	rootCmd.Flags().StringVar(&config.RulesFile, "rules", "", "YAML file of component exclusion/warning rules")
	rootCmd.Flags().StringVar(&config.LicenseAliases, "license-aliases", "", "YAML file of extra license alias spellings")
	rootCmd.Flags().BoolVar(&config.DisableProgress, "disable-tqdm", false, "Disable the progress bar")
	rootCmd.Flags().BoolVar(&config.StrictMode, "strict", false, "Fail when any unit had to be skipped")
	rootCmd.Flags().BoolVar(&config.JsonLogs, "json-logs", false, "Structured JSON logs on stdout")
	rootCmd.Flags().BoolVarP(&config.Verbose, "verbose", "v", false, "Debug logging")

	// Hidden flags
	rootCmd.Flags().StringVar(&config.OtelEndpoint, "otel-endpoint", "", "OTLP/HTTP trace endpoint")
	rootCmd.Flags().MarkHidden("otel-endpoint")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderStyledHelp(cmd)
	})

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(completionCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.SetConfigFile(filepath.Join(home, ".xlin-sbom.yaml"))
			viper.SetConfigType("yaml")
		}
	}
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func runScan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	// The engine only reads a mounted tree; actually mounting the image is
	// this command's job. An explicit --mount-root wins.
	if config.ISOPath != "" && config.PackagePath == "" && config.MountRoot == "" {
		m, err := mountISO(ctx, config.ISOPath)
		if err != nil {
			return fmt.Errorf("mount %s: %w", config.ISOPath, err)
		}
		defer m.Unmount()
		config.MountRoot = m.Dir
	}

	renderer := progress.New(config.DisableProgress || config.JsonLogs)
	defer renderer.Close()

	summary := &scanSummary{}
	config.Sink = multiSink{renderer, summary}

	eng, err := engine.New(ctx, engine.WithConfig(config))
	if err != nil {
		return err
	}
	defer eng.Close(context.Background())

	doc, runErr := eng.Run(ctx)
	renderer.Close()

	// A strict partial scan still wrote a complete report pair; show the
	// summary before failing so the operator sees what was produced.
	if doc != nil {
		printSummary(doc, summary)
	}
	return runErr
}

// scanSummary collects the events the final printout needs. It implements
// engine.Sink alongside the renderer.
type scanSummary struct {
	mu         sync.Mutex
	delta      *merge.Delta
	failures   int
	unresolved int
	excluded   int
}

func (s *scanSummary) Publish(ev engine.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Kind {
	case engine.EventDelta:
		s.delta = ev.Delta
	case engine.EventPartialFailure:
		s.failures++
	case engine.EventUnresolved:
		s.unresolved++
	case engine.EventPolicy:
		s.excluded++
	}
}

// multiSink fans one event out to several sinks.
type multiSink []engine.Sink

func (m multiSink) Publish(ev engine.Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}

func printSummary(doc *sbom.Document, s *scanSummary) {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	dim := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

	var packages, files int
	for _, c := range doc.Components {
		switch c.Origin {
		case sbom.OriginPackage:
			packages++
		case sbom.OriginFile:
			files++
		}
	}

	fmt.Println(head.Render(fmt.Sprintf("SBOM %q", doc.Name)))
	fmt.Printf("  components:    %d (%d packages, %d files)\n", len(doc.Components), packages, files)
	fmt.Printf("  relationships: %d\n", len(doc.Relationships))
	fmt.Printf("  licenses:      %d\n", len(doc.Licenses))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.delta != nil && (len(s.delta.Updated)+len(s.delta.Added)+len(s.delta.Removed) > 0 || len(s.delta.Unchanged) > 0) {
		fmt.Printf("  delta:         %d unchanged, %d updated, %d added, %d removed\n",
			len(s.delta.Unchanged), len(s.delta.Updated), len(s.delta.Added), len(s.delta.Removed))
	}
	if s.unresolved > 0 {
		fmt.Println(dim.Render(fmt.Sprintf("  unresolved:    %d dependency hints matched nothing", s.unresolved)))
	}
	if s.excluded > 0 {
		fmt.Println(dim.Render(fmt.Sprintf("  policy:        %d rule matches", s.excluded)))
	}
	if s.failures > 0 {
		fmt.Println(dim.Render(fmt.Sprintf("  skipped:       %d units could not be read (see log)", s.failures)))
	}

	fmt.Printf("  written:       %s, %s\n", report.CondensedName(doc.Name), report.SPDXName(doc.Name))
}

func renderStyledHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("XLIN-SBOM %s", version.Current)))
	fmt.Println("Software Bill of Materials generator for Linux images and packages.")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	fmt.Println(titleStyle.Render("COMMANDS"))
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() {
			fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
		}
	}
	fmt.Println("")

	fmt.Println(titleStyle.Render("EXAMPLES"))
	fmt.Println("  xlin-sbom -i distro.iso -o ./out                 # Full image scan")
	fmt.Println("  xlin-sbom -i distro.iso -o ./out --sbom prior.json  # Incremental rescan")
	fmt.Println("  xlin-sbom -p pkgs/bash.rpm -o s3://sboms/bash    # Single package to S3")
	fmt.Println("")

	fmt.Println(titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	})
	fmt.Println("")
}
