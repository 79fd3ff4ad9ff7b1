package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/san-kum/plasmactl/internal/config"
	"github.com/san-kum/plasmactl/internal/dynamo"
	"github.com/san-kum/plasmactl/internal/estimator"
	"github.com/san-kum/plasmactl/internal/integrators"
	"github.com/san-kum/plasmactl/internal/metrics"
	"github.com/san-kum/plasmactl/internal/model"
	"github.com/san-kum/plasmactl/internal/mpc"
	"github.com/san-kum/plasmactl/internal/sim"
	"github.com/san-kum/plasmactl/internal/storage"
	"github.com/san-kum/plasmactl/internal/viz"
)

var (
	dataDir     string
	configFile  string
	preset      string
	dt          float64
	duration    float64
	horizon     int
	seed        int64
	solver      string
	onFailure   string
	disturbance string
	adaptive    bool
	validate    bool
	safetyLimit float64
	verbose     bool

	// sweep
	numRuns int

	// plot
	plotWidth  int
	plotHeight int
	pngDir     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "plasmactl",
		Short: "model-predictive suppression of plasma instabilities",
	}

	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".plasmactl", "data directory")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose logging")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run one closed-loop suppression experiment",
		RunE:  runExperiment,
	}
	addRunFlags(runCmd)

	liveCmd := &cobra.Command{
		Use:   "live",
		Short: "step the control loop with a live terminal view",
		RunE:  runLive,
	}
	addRunFlags(liveCmd)

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "run a seed ensemble and aggregate the reports",
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().IntVar(&numRuns, "runs", 8, "number of ensemble members")

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "chart a stored run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}
	plotCmd.Flags().IntVar(&plotWidth, "width", 70, "chart width")
	plotCmd.Flags().IntVar(&plotHeight, "height", 8, "chart height")
	plotCmd.Flags().StringVar(&pngDir, "png", "", "also write png plots to this directory")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list stored runs",
		RunE:  listRuns,
	}

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [run_id]",
		Short: "write the stored time series to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportCSV(args[0], os.Stdout)
		},
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "write the run metadata to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(dataDir).ExportJSON(args[0], os.Stdout)
		},
	}

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available scenario presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.ListPresets()
			sort.Strings(names)
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	}

	rootCmd.AddCommand(runCmd, liveCmd, sweepCmd, plotCmd, listCmd, exportCSVCmd, exportJSONCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "scenario preset")
	cmd.Flags().Float64Var(&dt, "dt", config.DefaultDt, "timestep")
	cmd.Flags().Float64Var(&duration, "time", config.DefaultDuration, "duration")
	cmd.Flags().IntVar(&horizon, "horizon", config.DefaultHorizon, "prediction horizon")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	cmd.Flags().StringVar(&solver, "solver", "qp", "control solver (qp, pd)")
	cmd.Flags().StringVar(&onFailure, "on-failure", "fallback", "failed-solve policy (fallback, zero)")
	cmd.Flags().StringVar(&disturbance, "disturbance", "none", "disturbance profile (none, elm)")
	cmd.Flags().BoolVar(&adaptive, "adaptive", false, "enable sensor-driven model correction")
	cmd.Flags().BoolVar(&validate, "validate", false, "co-integrate the chaotic plant for comparison")
	cmd.Flags().Float64Var(&safetyLimit, "safety-limit", 0, "hard energy bound, 0 disables")
}

// resolveConfig layers preset, config file, and explicit flags, flags
// winning.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
		cfg = p
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("dt") {
		cfg.Dt = dt
	}
	if cmd.Flags().Changed("time") {
		cfg.Duration = duration
	}
	if cmd.Flags().Changed("horizon") {
		cfg.Horizon = horizon
	}
	if cmd.Flags().Changed("seed") || cfg.Seed == 0 {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("solver") {
		cfg.Solver = solver
	}
	if cmd.Flags().Changed("on-failure") {
		cfg.OnFailure = onFailure
	}
	if cmd.Flags().Changed("disturbance") {
		cfg.Disturbance = disturbance
	}
	if cmd.Flags().Changed("adaptive") {
		cfg.Adaptive = adaptive
	}
	if cmd.Flags().Changed("validate") {
		cfg.Validate = validate
	}
	if cmd.Flags().Changed("safety-limit") {
		cfg.SafetyLimit = safetyLimit
	}

	return cfg, cfg.Check()
}

func newLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func diagSym(d []float64) *mat.SymDense {
	s := mat.NewSymDense(len(d), nil)
	for i, v := range d {
		s.SetSym(i, i, v)
	}
	return s
}

type loop struct {
	plant  *model.Linear
	bounds *model.Bounds
	ctrl   *mpc.Controller
	qp     *mpc.QP
}

// buildLoop assembles the plant, bounds, and controller for a config.
func buildLoop(cfg *config.Config, logger *zap.Logger) (*loop, error) {
	lin := model.LinearizeLorenz(cfg.Sigma, cfg.Rho, cfg.Beta)

	bounds, err := model.NewBounds(cfg.UMin, cfg.UMax, cfg.XMin, cfg.XMax)
	if err != nil {
		return nil, err
	}

	fallback := mpc.NewPDFallback(cfg.KpGains, bounds)

	var qp *mpc.QP
	var primary mpc.Optimizer
	if cfg.Solver == "qp" {
		qp, err = mpc.NewQP(lin, bounds, diagSym(cfg.QWeights), diagSym(cfg.RWeights),
			cfg.Horizon, cfg.Dt,
			mpc.WithTolerance(cfg.Tolerance), mpc.WithMaxIterations(cfg.MaxIter))
		if err != nil {
			return nil, err
		}
		primary = qp
	}

	policy := mpc.OnFailureFallback
	if cfg.OnFailure == "zero" {
		policy = mpc.OnFailureZero
	}

	ctrl := mpc.NewController(primary, fallback, policy, logger)

	return &loop{plant: lin, bounds: bounds, ctrl: ctrl, qp: qp}, nil
}

func buildDriver(cfg *config.Config, runSeed int64, logger *zap.Logger) (*sim.Driver, error) {
	lp, err := buildLoop(cfg, logger)
	if err != nil {
		return nil, err
	}

	drv := sim.New(lp.plant, lp.ctrl, lp.bounds)
	drv.SetLogger(logger)

	if cfg.Disturbance == "elm" {
		drv.SetDisturbance(model.ELMDisturbance(runSeed))
	}
	if cfg.Validate {
		drv.SetValidation(model.NewPlasma(cfg.Sigma, cfg.Rho, cfg.Beta, runSeed), integrators.NewRK4())
	}
	if cfg.Adaptive && lp.qp != nil {
		n := lp.plant.StateDim()
		m := lp.plant.ControlDim()
		corr := estimator.NewCorrector(n, m, cfg.HiddenDim, cfg.LearningRate, runSeed)
		sensors := estimator.NewSensors(n, cfg.SNRdB, runSeed+1)
		drv.SetAdaptive(lp.qp, corr, sensors)
	}

	drv.AddMetric(metrics.NewControlEffort())
	drv.AddMetric(metrics.NewStability(lp.bounds))

	return drv, nil
}

func simConfig(cfg *config.Config, runSeed int64) sim.Config {
	return sim.Config{
		Dt:          cfg.Dt,
		Duration:    cfg.Duration,
		Seed:        runSeed,
		Validate:    cfg.Validate,
		SafetyLimit: cfg.SafetyLimit,
	}
}

func runExperiment(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	drv, err := buildDriver(cfg, cfg.Seed, logger)
	if err != nil {
		return err
	}

	st := storage.New(dataDir)
	if err := st.Init(); err != nil {
		return err
	}

	fmt.Println("running suppression experiment...")
	start := time.Now()

	result, err := drv.Run(context.Background(), cfg.X0, cfg.XRef, simConfig(cfg, cfg.Seed))
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	report := metrics.Compute(result, metrics.DefaultSettlingThreshold)
	for name, val := range report.Map() {
		result.Metrics[name] = val
	}

	label := preset
	if label == "" {
		label = "run"
	}
	runID, err := st.Save(label, cfg.Dt, cfg.Duration, cfg.Seed, cfg.Horizon, cfg.Solver, result)
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", elapsed)
	fmt.Printf("run id: %s\n", runID)
	fmt.Printf("steps: %d (fallback: %d)\n", result.StepsTaken, result.FallbackSteps)
	if result.TerminatedEarly {
		fmt.Printf("stopped early: %s\n", result.StopReason)
	}
	printReport(report)

	return nil
}

func printReport(r metrics.Report) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nmetric\tvalue")
	fmt.Fprintf(w, "peak energy\t%.4f\n", r.PeakEnergy)
	fmt.Fprintf(w, "final energy\t%.4f\n", r.FinalEnergy)
	fmt.Fprintf(w, "suppression\t%.2f%%\n", r.SuppressionPercent)
	fmt.Fprintf(w, "settling time\t%.3fs\n", r.SettlingTime)
	fmt.Fprintf(w, "control efficiency\t%.4f\n", r.ControlEfficiency)
	fmt.Fprintf(w, "max control power\t%.4f\n", r.MaxControlPower)
	fmt.Fprintf(w, "confinement time\t%.4fs\n", r.ConfinementTime)
	fmt.Fprintf(w, "lyapunov estimate\t%.4f\n", r.LyapunovEstimate)
	if r.DisruptionDetected {
		fmt.Fprintf(w, "disruption\tat %.3fs\n", r.DisruptionTime)
	}
	w.Flush()
}

func runLive(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	lp, err := buildLoop(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	m := viz.NewModel(lp.plant, lp.ctrl, lp.bounds, cfg.X0, cfg.XRef, cfg.Dt)
	if cfg.Disturbance == "elm" {
		m.SetDisturbance(model.ELMDisturbance(cfg.Seed))
	}
	m.SetSafetyLimit(cfg.SafetyLimit)

	p := tea.NewProgram(m)
	_, err = p.Run()
	return err
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// Construction only depends on the config, so one dry build catches
	// any assembly error before the ensemble spawns.
	if _, err := buildDriver(cfg, cfg.Seed, zap.NewNop()); err != nil {
		return err
	}

	ens := sim.NewEnsemble(func(runSeed int64) *sim.Driver {
		drv, _ := buildDriver(cfg, runSeed, logger)
		return drv
	}, numRuns, cfg.Seed)

	fmt.Printf("running %d-member ensemble...\n", numRuns)
	start := time.Now()

	results, err := ens.Run(context.Background(), cfg.X0, cfg.XRef, simConfig(cfg, cfg.Seed))
	if err != nil {
		return err
	}

	fmt.Printf("completed in %v\n\n", time.Since(start))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEED\tSUPPRESSION\tPEAK\tSETTLING\tFALLBACK\tEARLY")
	var suppression, settling float64
	for i, res := range results {
		r := metrics.Compute(res, metrics.DefaultSettlingThreshold)
		suppression += r.SuppressionPercent
		settling += r.SettlingTime
		fmt.Fprintf(w, "%d\t%.2f%%\t%.2f\t%.3fs\t%d\t%v\n",
			cfg.Seed+int64(i), r.SuppressionPercent, r.PeakEnergy, r.SettlingTime,
			res.FallbackSteps, res.TerminatedEarly)
	}
	w.Flush()

	n := float64(len(results))
	fmt.Printf("\nmean suppression: %.2f%%\n", suppression/n)
	fmt.Printf("mean settling time: %.3fs\n", settling/n)

	return nil
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(dataDir)
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}

	cols, header, err := st.LoadSeries(runID)
	if err != nil {
		return err
	}
	if len(header) == 0 {
		return fmt.Errorf("no data to plot")
	}

	res := resultFromColumns(cols, header)

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("solver: %s, horizon: %d\n", meta.Solver, meta.Horizon)
	fmt.Printf("samples: %d\n\n", len(res.Times))

	fmt.Print(viz.TerminalReport(res, plotWidth, plotHeight))

	if pngDir != "" {
		if err := viz.SavePNGReport(res, pngDir); err != nil {
			return err
		}
		fmt.Printf("\npng plots written to %s\n", pngDir)
	}

	return nil
}

// resultFromColumns rebuilds enough of a run history from stored CSV
// columns to chart it.
func resultFromColumns(cols map[string][]float64, header []string) *dynamo.Result {
	res := &dynamo.Result{Times: cols["time"]}

	var stateCols, controlCols []string
	for _, name := range header {
		switch {
		case len(name) >= 2 && name[0] == 'x' && name[1] != 'n':
			stateCols = append(stateCols, name)
		case len(name) >= 2 && name[0] == 'u':
			controlCols = append(controlCols, name)
		}
	}

	rows := len(res.Times)
	res.States = make([]dynamo.State, rows)
	res.Controls = make([]dynamo.Control, rows)
	for i := 0; i < rows; i++ {
		s := make(dynamo.State, 0, len(stateCols))
		for _, name := range stateCols {
			if i < len(cols[name]) {
				s = append(s, cols[name][i])
			}
		}
		res.States[i] = s

		u := make(dynamo.Control, 0, len(controlCols))
		for _, name := range controlCols {
			if i < len(cols[name]) {
				u = append(u, cols[name][i])
			}
		}
		res.Controls[i] = u
	}

	return res
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	sort.Slice(runs, func(i, j int) bool { return runs[i].Timestamp.Before(runs[j].Timestamp) })

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIME\tDURATION\tDT\tSOLVER\tH\tFALLBACK\tEARLY")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%.2fs\t%.4fs\t%s\t%d\t%d\t%v\n",
			run.ID,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Duration,
			run.Dt,
			run.Solver,
			run.Horizon,
			run.FallbackSteps,
			run.StoppedEarly,
		)
	}

	return w.Flush()
}
