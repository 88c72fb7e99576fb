// goopt evaluates optical materials from the command line and serves the
// query API over HTTP.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kacperjurak/gooptcore/internal/processing"
	"github.com/kacperjurak/gooptcore/internal/utils"
	"github.com/kacperjurak/gooptcore/pkg/config"
	"github.com/kacperjurak/gooptcore/pkg/handlers"
	"github.com/kacperjurak/gooptcore/pkg/models"
	"github.com/kacperjurak/gooptcore/pkg/server"
	"github.com/kacperjurak/gooptcore/pkg/worker"
)

var cmdRoot = &cobra.Command{
	Use:           "goopt",
	Short:         "Physically-based material optics engine",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	configPath string
	quiet      bool
)

func init() {
	cmdRoot.PersistentFlags().StringVar(&configPath, "config", "", "JSON configuration file")
	cmdRoot.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Quiet mode")
}

// loadConfig reads --config and applies the persistent flags.
func loadConfig() (*config.Config, *config.ServerConfig, error) {
	cfg, scfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("while loading config: %w", err)
	}
	if quiet {
		cfg.Quiet = true
	}
	return cfg, scfg, nil
}

func newProcessor() (*processing.QueryProcessor, *config.ServerConfig, error) {
	cfg, scfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	p, err := processing.NewQueryProcessor(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("while building query processor: %w", err)
	}
	return p, scfg, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var serveFlags struct {
	port       string
	webhookURL string
	timingFile string
	profiling  bool
}

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, scfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			scfg.Port = serveFlags.port
		}
		if cmd.Flags().Changed("webhook") {
			scfg.WebhookURL = serveFlags.webhookURL
		}
		if cmd.Flags().Changed("timing-file") {
			scfg.TimingFile = serveFlags.timingFile
		}
		if cmd.Flags().Changed("profiling") {
			scfg.EnableProfiling = serveFlags.profiling
		}

		srv, err := server.New(server.Options{Config: cfg, ServerConfig: scfg})
		if err != nil {
			return fmt.Errorf("while creating server: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errc := make(chan error, 1)
		go func() { errc <- srv.Start() }()

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("while shutting down: %w", err)
		}
		return <-errc
	},
}

var evalFlags struct {
	preset       string
	angle        float64
	wavelength   float64
	polarization string
	temperature  float64
	mode         string
}

var cmdEval = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate reflectance, transmittance and absorption of a preset",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newProcessor()
		if err != nil {
			return err
		}
		resp, err := p.Process(cmd.Context(), models.Query{
			ID:           utils.GenerateID(),
			Action:       models.ActionEvaluateBSDF,
			Preset:       evalFlags.preset,
			AngleDeg:     evalFlags.angle,
			WavelengthNM: evalFlags.wavelength,
			Polarization: evalFlags.polarization,
			TemperatureK: evalFlags.temperature,
			Mode:         evalFlags.mode,
		})
		if err != nil {
			return fmt.Errorf("while evaluating %q: %w", evalFlags.preset, err)
		}
		return printJSON(resp.Sanitized())
	},
}

var spectrumFlags struct {
	preset      string
	angle       float64
	illuminant  string
	wavelengths config.FloatList
}

var cmdSpectrum = &cobra.Command{
	Use:   "spectrum",
	Short: "Render a preset's spectral response to color",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := newProcessor()
		if err != nil {
			return err
		}
		resp, err := p.Process(cmd.Context(), models.Query{
			ID:            utils.GenerateID(),
			Action:        models.ActionSpectralRender,
			Preset:        spectrumFlags.preset,
			AngleDeg:      spectrumFlags.angle,
			Illuminant:    spectrumFlags.illuminant,
			WavelengthsNM: spectrumFlags.wavelengths,
		})
		if err != nil {
			return fmt.Errorf("while rendering %q: %w", spectrumFlags.preset, err)
		}
		return printJSON(resp.Sanitized())
	},
}

var cmdPresets = &cobra.Command{
	Use:   "presets",
	Short: "List material, metal, coating and dispersion presets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printJSON(handlers.NewCatalog())
	},
}

var cmdBatch = &cobra.Command{
	Use:   "batch FILE",
	Short: "Run a JSON query batch on a local worker pool",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, scfg, err := newProcessor()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("while reading batch file: %w", err)
		}
		var batch models.QueryBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return fmt.Errorf("while parsing batch file: %w", err)
		}
		if batch.BatchID == "" {
			batch.BatchID = utils.GenerateID()
		}

		pool := worker.New(worker.Options{Workers: scfg.WorkerCount, Processor: p.ProcessorFunc()})
		defer pool.Shutdown()

		start := time.Now()
		results, err := pool.Run(cmd.Context(), batch.BatchID, batch.Queries)
		if err != nil {
			return fmt.Errorf("while running batch %s: %w", batch.BatchID, err)
		}
		report := handlers.BuildReport(batch.BatchID, results, time.Since(start))
		glog.Infof("Batch %s: %d queries, %d failures, %d violations, %.2f ms",
			report.BatchID, report.Total, report.Failures, report.Violations, report.DurationMS)
		return printJSON(report.Sanitized())
	},
}

func init() {
	cmdServe.Flags().StringVar(&serveFlags.port, "port", "8080", "HTTP port")
	cmdServe.Flags().StringVar(&serveFlags.webhookURL, "webhook", "", "URL receiving batch reports")
	cmdServe.Flags().StringVar(&serveFlags.timingFile, "timing-file", "", "CSV file receiving batch timings")
	cmdServe.Flags().BoolVar(&serveFlags.profiling, "profiling", false, "Start the pprof server")

	cmdEval.Flags().StringVar(&evalFlags.preset, "preset", "glass", "Material preset")
	cmdEval.Flags().Float64Var(&evalFlags.angle, "angle", 0, "Incidence angle in degrees")
	cmdEval.Flags().Float64Var(&evalFlags.wavelength, "wavelength", 550, "Wavelength in nm")
	cmdEval.Flags().StringVar(&evalFlags.polarization, "polarization", "", "s, p or unpolarized")
	cmdEval.Flags().Float64Var(&evalFlags.temperature, "temperature", 0, "Temperature in kelvin")
	cmdEval.Flags().StringVar(&evalFlags.mode, "mode", "spectral", "spectral or rgb")

	cmdSpectrum.Flags().StringVar(&spectrumFlags.preset, "preset", "gold", "Material preset")
	cmdSpectrum.Flags().Float64Var(&spectrumFlags.angle, "angle", 0, "Incidence angle in degrees")
	cmdSpectrum.Flags().StringVar(&spectrumFlags.illuminant, "illuminant", "d65", "Illuminant: d65, a or e")
	cmdSpectrum.Flags().Var(&spectrumFlags.wavelengths, "wavelengths", "Comma separated wavelengths in nm")
}

func main() {
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)
	glog.CopyStandardLogTo("INFO")

	cmdRoot.AddCommand(cmdServe, cmdEval, cmdSpectrum, cmdPresets, cmdBatch)

	if err := cmdRoot.Execute(); err != nil {
		glog.Errorf("%v", err)
		glog.Flush()
		os.Exit(1)
	}
	glog.Flush()
}
