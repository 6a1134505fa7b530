// Package main is the entry point for the practicetrack CLI
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/james-see/practicetrack/pkg/api"
	"github.com/james-see/practicetrack/pkg/config"
	"github.com/james-see/practicetrack/pkg/logger"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/practice/hosts"
	"github.com/james-see/practicetrack/pkg/timemap"
	"github.com/james-see/practicetrack/pkg/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	configPath  string
	projectFile string
	dbPath      string
	verbose     bool

	duplicates  int
	silenceBars int
	gapPolicy   string
	selectIDs   []string
	useDialog   bool
	noDialog    bool

	tempoFile  string
	resolution uint16
	serverPort int
)

func main() {
	err := rootCmd.Execute()
	logger.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "practicetrack",
	Short: "Turn a selection of items into a practice track",
	Long: `practicetrack repeats each selected item of a project a number of times,
separates the repeats with bars of silence, and shifts the rest of the
project so it stays on the grid. Tempo and meter changes are copied with
every repeat.

Projects are either a TOML file (--project) or the project database.

Examples:
  practicetrack expand --project song.toml --select verse1,verse2 -n 3 -s 1
  practicetrack plan -n 2 -s 2 --gaps between
  practicetrack tempo --project song.toml
  practicetrack export-tempo tempo.mid
  practicetrack import song.toml --tempo song.mid
  practicetrack undo
  practicetrack serve --port 8080`,
	Version:           fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var expandCmd = &cobra.Command{
	Use:   "expand",
	Short: "Create the practice track from the selected items",
	Long: `Repeats every selected item, adds silence, and shifts everything after the
selection. The edit is a single undo step. With no count flags on a terminal
the parameter dialog opens.`,
	Args: cobra.NoArgs,
	RunE: runExpand,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the edits expand would make without applying them",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

var tempoCmd = &cobra.Command{
	Use:   "tempo",
	Short: "List the project's tempo and meter changes",
	Args:  cobra.NoArgs,
	RunE:  runTempo,
}

var exportTempoCmd = &cobra.Command{
	Use:   "export-tempo <output.mid>",
	Short: "Write the project's tempo map as a Standard MIDI File",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportTempo,
}

var importCmd = &cobra.Command{
	Use:   "import <project.toml>",
	Short: "Load a TOML project into the project database",
	Args:  cobra.ExactArgs(1),
	RunE:  runImport,
}

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Revert the last practice track in the project database",
	Args:  cobra.NoArgs,
	RunE:  runUndo,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigPath(), "Config file path")
	rootCmd.PersistentFlags().StringVarP(&projectFile, "project", "p", "", "TOML project file (default: project database)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Project database path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output")

	// expand and plan
	for _, cmd := range []*cobra.Command{expandCmd, planCmd} {
		cmd.Flags().IntVarP(&duplicates, "duplicates", "n", practice.DefaultDuplicateCount, "Copies of each item (0 removes the selection)")
		cmd.Flags().IntVarP(&silenceBars, "silence-bars", "s", practice.DefaultSilenceBars, "Bars of silence per gap")
		cmd.Flags().StringVar(&gapPolicy, "gaps", string(practice.GapTrailing), "Silence placement: trailing, between or every")
		cmd.Flags().StringSliceVar(&selectIDs, "select", nil, "Item IDs to select before running")
	}
	expandCmd.Flags().BoolVar(&useDialog, "dialog", false, "Always open the parameter dialog")
	expandCmd.Flags().BoolVar(&noDialog, "no-dialog", false, "Never open the parameter dialog")

	// export-tempo command
	exportTempoCmd.Flags().Uint16Var(&resolution, "resolution", timemap.DefaultResolution, "Ticks per quarter note")

	// import command
	importCmd.Flags().StringVar(&tempoFile, "tempo", "", "Replace the project's tempo map with the one in this MIDI file")

	// serve command
	serveCmd.Flags().IntVar(&serverPort, "port", 0, "Server port (default: config, PRACTICETRACK_PORT, then 8080)")

	// Add commands
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(tempoCmd)
	rootCmd.AddCommand(exportTempoCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(undoCmd)
	rootCmd.AddCommand(serveCmd)
}

var (
	fileCfg config.FileConfig
	env     config.Env
)

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	fileCfg, err = config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	env = config.LoadEnv(fileCfg.Port(8080))
	logger.SetDebug(verbose || env.Debug)
	if err := logger.Init(env.SentryDSN, env.Environment, version); err != nil {
		logger.Warn("Sentry disabled", logger.Fields{"error": err.Error()})
	}
	if dbPath == "" {
		dbPath = fileCfg.Database()
	}
	return nil
}

// resolveOptions applies flag > config file > built-in default
func resolveOptions(cmd *cobra.Command) (practice.Options, error) {
	opts, err := fileCfg.Options()
	if err != nil {
		return opts, err
	}
	if cmd.Flags().Changed("duplicates") {
		opts.DuplicateCount = duplicates
	}
	if cmd.Flags().Changed("silence-bars") {
		opts.SilenceBars = silenceBars
	}
	if cmd.Flags().Changed("gaps") {
		g, err := practice.ParseGapPolicy(gapPolicy)
		if err != nil {
			return opts, err
		}
		opts.Gaps = g
	}
	return opts, opts.Validate()
}

// wantDialog decides whether expand asks for its parameters interactively
func wantDialog(cmd *cobra.Command) bool {
	if noDialog {
		return false
	}
	if useDialog {
		return true
	}
	if cmd.Flags().Changed("duplicates") || cmd.Flags().Changed("silence-bars") || cmd.Flags().Changed("gaps") {
		return false
	}
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

func runExpand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}
	if wantDialog(cmd) {
		opts, err = tui.Run(opts)
		if errors.Is(err, tui.ErrCanceled) {
			fmt.Println("Canceled, nothing changed.")
			return nil
		}
		if err != nil {
			return err
		}
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Select(ctx, selectIDs); err != nil {
		return err
	}
	res, err := practice.NewExpander(s.Timeline()).Run(ctx, opts)
	if err != nil {
		return err
	}
	if res.Empty {
		fmt.Println("No items selected, nothing to do.")
		return nil
	}
	if err := s.Save(); err != nil {
		return err
	}

	fmt.Printf("✓ Practice track created: %d segment(s) × %d, %d bar(s) of silence (%s)\n",
		len(res.Plan.Segments), opts.DuplicateCount, opts.SilenceBars, opts.Gaps)
	fmt.Printf("  Region %.3fs–%.3fs is now %.3fs–%.3fs; later material moved %+.3fs\n",
		res.Plan.RegionStart, res.Plan.RegionEnd, res.Plan.RegionStart, res.Plan.NewRegionEnd(), res.Plan.Delta())
	return nil
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	opts, err := resolveOptions(cmd)
	if err != nil {
		return err
	}

	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	if len(selectIDs) > 0 {
		if err := s.Select(ctx, selectIDs); err != nil {
			return err
		}
	}
	plan, tm, err := practice.Preview(ctx, s.Timeline(), opts)
	if errors.Is(err, practice.ErrEmptySelection) {
		fmt.Println("No items selected.")
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Printf("Region %.3fs–%.3fs, %d segment(s), delta %+.3fs\n\n",
		plan.RegionStart, plan.RegionEnd, len(plan.Segments), plan.Delta())
	for _, op := range plan.Ops {
		switch o := op.(type) {
		case practice.DuplicateSegment:
			fmt.Printf("  %-10s seg %d copy %d  %9.3fs  +%.3fs\n", o.Kind(), o.SegmentIndex, o.CopyIndex, o.NewStart, o.Duration)
		case practice.SilenceGap:
			fmt.Printf("  %-10s seg %d copy %d  %9.3fs  +%.3fs (%d bar(s) at %g bpm)\n",
				o.Kind(), o.AfterSegmentIndex, o.CopyIndex, o.Start, o.Duration, o.Bars, o.Tempo.BPM)
		case practice.ShiftTail:
			fmt.Printf("  %-10s after %.3fs by %+.3fs\n", o.Kind(), o.AfterTime, o.Delta)
		}
	}

	points := plan.TempoPoints(tm)
	if len(points) > 0 {
		fmt.Println("\nTempo points written into the region:")
		for _, p := range points {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func runTempo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	tm, err := s.TimeMap(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%-12s %-10s %-8s %-6s %s\n", "TIME", "POSITION", "BPM", "METER", "BAR")
	for _, p := range tm.Points() {
		pos, err := tm.PositionAt(p.Time)
		if err != nil {
			return err
		}
		bar, err := tm.BarDuration(p.Time)
		if err != nil {
			return err
		}
		fmt.Printf("%-12.3f %-10s %-8g %-6s %.3fs\n", p.Time, pos, p.BPM,
			fmt.Sprintf("%d/%d", p.Numerator, p.Denominator), bar)
	}
	return nil
}

func runExportTempo(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	tm, err := s.TimeMap(ctx)
	if err != nil {
		return err
	}
	data, err := tm.ToSMF(resolution)
	if err != nil {
		return err
	}
	if err := os.WriteFile(args[0], data, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	fmt.Printf("✓ Wrote %d tempo point(s) to %s\n", tm.Len(), args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	p, err := hosts.LoadProject(args[0])
	if err != nil {
		return err
	}
	if tempoFile != "" {
		tm, err := timemap.ReadSMFFile(tempoFile)
		if err != nil {
			return err
		}
		p.Tempo = tm.Points()
	}

	db, err := hosts.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Import(ctx, p); err != nil {
		return err
	}
	fmt.Printf("✓ Imported %q: %d item(s), %d tempo point(s), %d marker(s) into %s\n",
		p.Name, len(p.Items), len(p.Tempo), len(p.Markers), dbPath)
	return nil
}

func runUndo(cmd *cobra.Command, args []string) error {
	if projectFile != "" {
		return fmt.Errorf("undo history is kept in the project database; edit %s by hand or restore it from version control", projectFile)
	}
	db, err := hosts.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	label, err := db.Undo(cmd.Context())
	if errors.Is(err, hosts.ErrNothingToUndo) {
		fmt.Println("Nothing to undo.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Printf("✓ Undid %q\n", label)
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	port := serverPort
	if port == 0 {
		port = env.Port
	}

	fmt.Printf("Starting practicetrack API server on port %d...\n", port)
	fmt.Printf("Swagger docs available at http://localhost:%d/swagger/index.html\n", port)

	return api.StartServer(port)
}

// session is an open project, from a TOML file or the database
type session struct {
	file string
	mem  *hosts.Memory
	db   *hosts.SQLite
}

func openSession() (*session, error) {
	if projectFile != "" {
		p, err := hosts.LoadProject(projectFile)
		if err != nil {
			return nil, err
		}
		return &session{file: projectFile, mem: hosts.NewMemory(p)}, nil
	}
	db, err := hosts.OpenSQLite(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open project database %s: %w", dbPath, err)
	}
	return &session{db: db}, nil
}

func (s *session) Timeline() practice.Timeline {
	if s.mem != nil {
		return s.mem
	}
	return s.db
}

// Select replaces the selection; no IDs keeps the stored one
func (s *session) Select(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	for i := range ids {
		ids[i] = strings.TrimSpace(ids[i])
	}
	if s.mem != nil {
		known := make(map[string]bool)
		for _, it := range s.mem.Project().Items {
			known[it.ID] = true
		}
		for _, id := range ids {
			if !known[id] {
				return fmt.Errorf("%w: %s", hosts.ErrItemNotFound, id)
			}
		}
		s.mem.Project().Select(ids...)
		return nil
	}
	return s.db.SetSelection(ctx, ids...)
}

func (s *session) TimeMap(ctx context.Context) (*timemap.TimeMap, error) {
	points, err := s.Timeline().TempoMap(ctx)
	if err != nil {
		return nil, err
	}
	return timemap.New(points)
}

// Save writes a TOML project back; database edits are already committed
func (s *session) Save() error {
	if s.mem != nil {
		return hosts.SaveProject(s.file, s.mem.Project())
	}
	return nil
}

func (s *session) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}
