package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/daxm-data/strain.report/internal/config"
	"github.com/daxm-data/strain.report/internal/daxm"
	"github.com/daxm-data/strain.report/internal/daxm/voxeldb"
	"github.com/daxm-data/strain.report/internal/report"
	"github.com/daxm-data/strain.report/internal/version"
)

const defaultDBFile = "voxel_data.db"

func main() {
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	command := flag.Arg(0)
	args := flag.Args()[1:]

	switch command {
	case "demo":
		handleDemo(args)
	case "import":
		handleImport(args)
	case "export":
		handleExport(args)
	case "convert":
		handleConvert(args)
	case "pair":
		handlePair(args)
	case "solve":
		handleSolve(args)
	case "serve":
		handleServe(args)
	case "migrate":
		handleMigrate(args)
	case "version":
		fmt.Printf("daxm %s (commit %s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`daxm - Voxel strain archive for differential-aperture X-ray microscopy

Usage: daxm <command> [options]

Commands:
  demo       Solve a synthetic voxel with both methods and report accuracy
  import     Import a JSON voxel file into the archive
  export     Export an archived voxel as JSON
  convert    Convert an archived voxel to another sample frame
  pair       Reorder a voxel's scattering vectors to follow its plane columns
  solve      Solve the deformation gradient of an archived voxel
  serve      Run the HTTP API and report server over an archive
  migrate    Apply schema migrations (up|down|status|force)
  version    Show daxm version
  help       Show this help message

Common Flags:
  --db <file>       Voxel archive path (default: voxel_data.db)
  --voxel <name>    Voxel name inside the archive

Examples:
  # Quick accuracy check with no archive involved
  daxm demo

  # Load a beamline export and solve it
  daxm import --db run42.db --file voxel_001.json
  daxm pair --db run42.db --voxel voxel_001
  daxm solve --db run42.db --voxel voxel_001 --method opt --objective euclid --plot

  # Solve with tolerances from a tuning file
  daxm solve --db run42.db --voxel voxel_001 --method opt --config tuning.json

  # Serve the archive
  daxm serve --db run42.db --listen :8080`)
}

// openArchive opens the voxel archive or exits. Subcommands share it
// so open failures read the same everywhere.
func openArchive(path string) *voxeldb.DB {
	db, err := voxeldb.New(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open archive %s: %v\n", path, err)
		os.Exit(1)
	}
	return db
}

func handleImport(args []string) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Voxel archive path")
	file := fs.String("file", "", "JSON voxel file to import (required)")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Error: --file flag is required")
		fs.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read %s: %v\n", *file, err)
		os.Exit(1)
	}
	var rec daxm.VoxelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse %s: %v\n", *file, err)
		os.Exit(1)
	}
	v, err := daxm.VoxelFromRecord(rec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid voxel in %s: %v\n", *file, err)
		os.Exit(1)
	}

	db := openArchive(*dbPath)
	defer db.Close()

	status, err := voxeldb.NewVoxelStore(db.DB).Save(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save voxel: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Imported voxel %q (%s)\n", v.Name, status)
}

func handleExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Voxel archive path")
	voxel := fs.String("voxel", "", "Voxel name to export (required)")
	file := fs.String("file", "", "Output file (default: stdout)")
	fs.Parse(args)

	if *voxel == "" {
		fmt.Fprintln(os.Stderr, "Error: --voxel flag is required")
		fs.Usage()
		os.Exit(1)
	}

	db := openArchive(*dbPath)
	defer db.Close()

	v, err := voxeldb.NewVoxelStore(db.DB).Load(*voxel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load voxel: %v\n", err)
		os.Exit(1)
	}
	data, err := json.MarshalIndent(v.Record(), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode voxel: %v\n", err)
		os.Exit(1)
	}
	data = append(data, '\n')

	if *file == "" {
		os.Stdout.Write(data)
		return
	}
	if err := os.WriteFile(*file, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", *file, err)
		os.Exit(1)
	}
	fmt.Printf("Exported voxel %q to %s\n", *voxel, *file)
}

func handleConvert(args []string) {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Voxel archive path")
	voxel := fs.String("voxel", "", "Voxel name to convert (required)")
	frame := fs.String("frame", "", "Target sample frame: APS, TSL or XHF (required)")
	fs.Parse(args)

	if *voxel == "" || *frame == "" {
		fmt.Fprintln(os.Stderr, "Error: --voxel and --frame flags are required")
		fs.Usage()
		os.Exit(1)
	}
	target, err := daxm.ParseFrame(*frame)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	db := openArchive(*dbPath)
	defer db.Close()
	store := voxeldb.NewVoxelStore(db.DB)

	v, err := store.Load(*voxel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load voxel: %v\n", err)
		os.Exit(1)
	}
	if err := v.ToFrame(target); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to convert voxel: %v\n", err)
		os.Exit(1)
	}
	if _, err := store.Save(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save voxel: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Converted voxel %q to %s\n", v.Name, v.Frame)
}

func handlePair(args []string) {
	fs := flag.NewFlagSet("pair", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Voxel archive path")
	voxel := fs.String("voxel", "", "Voxel name to pair (required)")
	fs.Parse(args)

	if *voxel == "" {
		fmt.Fprintln(os.Stderr, "Error: --voxel flag is required")
		fs.Usage()
		os.Exit(1)
	}

	db := openArchive(*dbPath)
	defer db.Close()
	store := voxeldb.NewVoxelStore(db.DB)

	v, err := store.Load(*voxel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load voxel: %v\n", err)
		os.Exit(1)
	}
	if err := v.PairVectors(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to pair voxel: %v\n", err)
		os.Exit(1)
	}
	cosines, err := daxm.PairingCosines(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to score pairing: %v\n", err)
		os.Exit(1)
	}
	if _, err := store.Save(v); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save voxel: %v\n", err)
		os.Exit(1)
	}

	worst := 1.0
	for _, c := range cosines {
		if c < worst {
			worst = c
		}
	}
	fmt.Printf("Paired %d vectors for voxel %q (worst cosine %.6f)\n", len(cosines), v.Name, worst)
}

func handleSolve(args []string) {
	fs := flag.NewFlagSet("solve", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Voxel archive path")
	voxel := fs.String("voxel", "", "Voxel name to solve (required)")
	method := fs.String("method", daxm.MethodLeastSquares, "Solver method: l2 or opt")
	objective := fs.String("objective", daxm.MisfitLengthAngle, "Misfit objective for opt and residual reporting")
	eps := fs.Float64("eps", 0, "Simplex size for the opt solver (0: solver default)")
	configPath := fs.String("config", "", "Solver tuning JSON file (explicit flags win)")
	plotFlag := fs.Bool("plot", false, "Write PNG plots for the solved voxel")
	plotDir := fs.String("plot-dir", "plots", "Base directory for PNG plots")
	fs.Parse(args)

	if *voxel == "" {
		fmt.Fprintln(os.Stderr, "Error: --voxel flag is required")
		fs.Usage()
		os.Exit(1)
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var tuning *config.SolverTuning
	if *configPath != "" {
		t, err := config.LoadSolverTuning(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load tuning config: %v\n", err)
			os.Exit(1)
		}
		tuning = t
	}
	if tuning != nil && !explicit["objective"] {
		*objective = tuning.GetObjective()
	}

	db := openArchive(*dbPath)
	defer db.Close()

	v, err := voxeldb.NewVoxelStore(db.DB).Load(*voxel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load voxel: %v\n", err)
		os.Exit(1)
	}

	registry := daxm.DefaultMisfitRegistry()
	if _, ok := registry.Get(*objective); !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown objective %q\n", *objective)
		os.Exit(1)
	}
	solver, err := daxm.SolverFor(*method)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	applyTuning(solver, tuning)
	cfg := daxm.MisfitConfig{}
	runEps := 0.0
	if opt, ok := solver.(*daxm.OptimizationSolver); ok {
		opt.Objective = *objective
		opt.Registry = registry
		// An explicit --eps beats the config file.
		if *eps > 0 {
			opt.Eps = *eps
		}
		runEps = opt.Eps
		cfg = daxm.MisfitConfig{FullLengthTol: opt.FullLengthTol, UnitNormTol: opt.UnitNormTol}
	} else {
		def := daxm.DefaultOptimizationSolver()
		cfg = daxm.MisfitConfig{FullLengthTol: def.FullLengthTol, UnitNormTol: def.UnitNormTol}
		if tuning != nil {
			if tuning.FullLengthTol != nil {
				cfg.FullLengthTol = *tuning.FullLengthTol
			}
			if tuning.UnitNormTol != nil {
				cfg.UnitNormTol = *tuning.UnitNormTol
			}
		}
	}

	f, err := solver.DeformationGradient(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Solve failed: %v\n", err)
		os.Exit(1)
	}
	dev, err := daxm.Deviatoric(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decompose gradient: %v\n", err)
		os.Exit(1)
	}
	green, err := daxm.GreenLagrange(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decompose gradient: %v\n", err)
		os.Exit(1)
	}
	residual, err := daxm.GradientMisfit(registry, *objective, f, v, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to score solution: %v\n", err)
		os.Exit(1)
	}

	run := &voxeldb.StrainRun{
		VoxelName:  v.Name,
		Method:     solver.Method(),
		Objective:  *objective,
		Frame:      string(v.Frame),
		Eps:        runEps,
		Gradient:   daxm.MatrixRows(f),
		Deviatoric: daxm.MatrixRows(dev),
		Residual:   residual,
	}
	if err := voxeldb.NewStrainStore(db.DB).Insert(run); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to record strain run: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Solved voxel %q with %s (run %s, residual %.3e)\n\n", v.Name, solver.Method(), run.RunID, residual)
	printTensor("Deformation gradient", f)
	printTensor("Deviatoric gradient", dev)
	printTensor("Green-Lagrange strain", green)

	if *plotFlag {
		dir, err := report.NewPeakPlotter(*plotDir).WriteRunPlots(v, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write plots: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Plots written to %s\n", dir)
	}
}

// applyTuning copies the non-nil tuning overrides onto the solver.
// Fields the solver does not have are ignored.
func applyTuning(solver daxm.GradientSolver, t *config.SolverTuning) {
	if t == nil {
		return
	}
	switch s := solver.(type) {
	case *daxm.OptimizationSolver:
		if t.UnitNormTol != nil {
			s.UnitNormTol = *t.UnitNormTol
		}
		if t.FullLengthTol != nil {
			s.FullLengthTol = *t.FullLengthTol
		}
		if t.Eps != nil {
			s.Eps = *t.Eps
		}
		if t.Tol != nil {
			s.Tol = *t.Tol
		}
		if t.MaxIterations != nil {
			s.MaxIterations = *t.MaxIterations
		}
	case *daxm.LeastSquaresSolver:
		if t.UnitNormTol != nil {
			s.UnitNormTol = *t.UnitNormTol
		}
	}
}

func handleMigrate(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: daxm migrate <up|down|status|force> [options]")
		os.Exit(1)
	}
	action := args[0]

	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", defaultDBFile, "Voxel archive path")
	dir := fs.String("dir", "migrations", "Directory holding the migration files")
	forceVersion := fs.Int("version", -1, "Schema version to force (force only)")
	fs.Parse(args[1:])

	db := openArchive(*dbPath)
	defer db.Close()

	switch action {
	case "up":
		if err := db.MigrateUp(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migrations applied")
	case "down":
		if err := db.MigrateDown(*dir); err != nil {
			fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Migration rolled back")
	case "status":
		current, dirty, err := db.MigrateVersion(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read schema version: %v\n", err)
			os.Exit(1)
		}
		latest, err := voxeldb.LatestMigrationVersion(*dir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to scan migrations: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Schema version: %d (dirty: %v), latest available: %d\n", current, dirty, latest)
	case "force":
		if *forceVersion < 0 {
			fmt.Fprintln(os.Stderr, "Error: --version flag is required for force")
			os.Exit(1)
		}
		if err := db.MigrateForce(*dir, *forceVersion); err != nil {
			fmt.Fprintf(os.Stderr, "Force failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Schema version forced to %d\n", *forceVersion)
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate action: %s\n", action)
		os.Exit(1)
	}
}

func printTensor(label string, m *mat.Dense) {
	fmt.Printf("%s:\n%12.8f\n\n", label, mat.Formatted(m))
}
