// Command cflp solves one facility location scenario from GeoJSON files and prints a
// report.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"cflp/internal/config"
	"cflp/internal/dataset"
	"cflp/internal/engine"
	"cflp/internal/logging"
	"cflp/internal/model"
	"cflp/internal/store"
)

var errNotAccepted = errors.New("no acceptable solution")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "cflp:", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	city       string
	dataDir    string
	storeKind  string
	dummy      bool
	format     string
	geojson    string
	fixCost    float64
	timeLimit  string
	gapLimit   float64
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("cflp", pflag.ContinueOnError)
	var o options
	flags.StringVar(&o.configPath, "config", ".", "directory containing app.env")
	flags.StringVar(&o.city, "city", "", "city name (default CFLP_CITY)")
	flags.StringVar(&o.dataDir, "data-dir", "", "scenario and cache directory (default CFLP_DATA_DIR)")
	flags.StringVar(&o.storeKind, "store", "", "file or memory (default CFLP_STORE)")
	flags.BoolVar(&o.dummy, "dummy", false, "use the built-in Berlin sample instead of files")
	flags.StringVarP(&o.format, "format", "o", "text", "report format: text, json or yaml")
	flags.StringVar(&o.geojson, "geojson", "", "write open facilities and assignment lines to this file")
	flags.Float64Var(&o.fixCost, "fix-cost", 0, "fixed opening cost per facility")
	flags.StringVar(&o.timeLimit, "time-limit", "", "solver time limit (seconds or Go duration)")
	flags.Float64Var(&o.gapLimit, "gap", 0, "relative optimality gap limit")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if o.format != "text" && o.format != "json" && o.format != "yaml" {
		return fmt.Errorf("unsupported format %q", o.format)
	}

	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if o.city != "" {
		cfg.City = o.city
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.storeKind != "" {
		cfg.Store = o.storeKind
	}
	if err := logging.Setup(cfg.LogLevel, true); err != nil {
		return err
	}

	key := model.ScenarioKey(cfg.City)
	opts := cfg.SolverFor(key)
	if flags.Changed("fix-cost") {
		opts.FixCost = o.fixCost
	}
	if flags.Changed("time-limit") {
		d, err := config.ParseTimeLimit(o.timeLimit)
		if err != nil {
			return err
		}
		opts.TimeLimit = d
	}
	if flags.Changed("gap") {
		opts.GapLimit = o.gapLimit
	}
	if err := checkOptions(opts); err != nil {
		return err
	}

	sc := engine.Scenario{Key: key, Options: &opts}
	if o.dummy {
		sc.Demand, sc.Facilities = dataset.DummyDemand(), dataset.DummyFacilities()
	} else {
		sc.Demand, sc.Facilities, err = dataset.LoadScenario(ctx, cfg.DataDir, cfg.City)
		if errors.Is(err, fs.ErrNotExist) {
			d, f := dataset.Files(cfg.DataDir, cfg.City)
			log.Warn().Str("practitioners", d).Str("pharmacies", f).Msg("scenario files not found, using sample data")
			sc.Demand, sc.Facilities, err = dataset.DummyDemand(), dataset.DummyFacilities(), nil
		}
		if err != nil {
			return err
		}
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	eng := engine.New(cfg, st, store.NewLocalLocker())

	start := time.Now()
	res, err := eng.Solve(ctx, sc)
	if err != nil {
		return err
	}
	log.Info().Dur("elapsed", time.Since(start)).Str("cache", string(res.CacheOutcome)).Msg("done")

	if err := printReport(stdout, o.format, res); err != nil {
		return err
	}
	if o.geojson != "" {
		fc := dataset.AssignmentFeatures(sc.Demand, sc.Facilities, res.Solution.OpenFacilities, res.Solution.Assignments)
		data, err := fc.MarshalJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(o.geojson, data, 0o644); err != nil {
			return fmt.Errorf("write geojson: %w", err)
		}
	}
	if !res.Solution.Accepted() {
		return fmt.Errorf("%w: status %s", errNotAccepted, res.Solution.Status)
	}
	return nil
}

func checkOptions(s config.Solver) error {
	if s.FixCost < 0 || math.IsNaN(s.FixCost) || math.IsInf(s.FixCost, 0) {
		return fmt.Errorf("fix cost must be >= 0, got %v", s.FixCost)
	}
	if s.TimeLimit <= 0 {
		return fmt.Errorf("time limit must be positive, got %s", s.TimeLimit)
	}
	if s.GapLimit < 0 || s.GapLimit >= 1 || math.IsNaN(s.GapLimit) {
		return fmt.Errorf("gap must be in [0,1), got %v", s.GapLimit)
	}
	return nil
}

func openStore(cfg config.Config) (store.Store, error) {
	switch cfg.Store {
	case "memory":
		return store.NewMemory(), nil
	case "file":
		return store.NewFile(cfg.DataDir)
	}
	return nil, fmt.Errorf("store %q is only available through the API server", cfg.Store)
}

func printReport(w io.Writer, format string, res engine.Result) error {
	rep := res.Report()
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}
	_, err := io.WriteString(w, rep.Text())
	return err
}
