package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/claude/splitlog/internal/config"
	"github.com/claude/splitlog/internal/interchange"
	"github.com/claude/splitlog/internal/models"
	"github.com/claude/splitlog/internal/store"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	importPath := flag.String("import", "", "import a split document from this file")
	exportPath := flag.String("export", "", "export a split document to this file")
	splitArg := flag.String("split", "", "split to export: id or name (required with -export)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("splitlog-transfer", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if (*importPath == "") == (*exportPath == "") {
		fmt.Fprintf(os.Stderr, "Usage: splitlog-transfer -config config.yaml (-import file.json | -export file.json -split <id|name>)\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	// Load config
	cfg, err := config.LoadNode(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Open store
	st, err := store.New(cfg.Store.Path)
	if err != nil {
		log.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx := context.Background()

	if *importPath != "" {
		runImport(ctx, st, *importPath, log)
		return
	}

	if *splitArg == "" {
		fmt.Fprintf(os.Stderr, "Error: -split is required with -export\n")
		os.Exit(1)
	}
	runExport(ctx, st, *splitArg, *exportPath, log)
}

func runImport(ctx context.Context, st *store.Store, path string, log *slog.Logger) {
	split, err := interchange.ReadFile(ctx, path)
	if err != nil {
		var verr *interchange.ValidationError
		if errors.As(err, &verr) {
			log.Error("document rejected", "field", verr.Field, "reason", verr.Reason)
		} else {
			log.Error("import failed", "error", err)
		}
		os.Exit(1)
	}

	saved, err := st.PutSplit(ctx, split)
	if err != nil {
		log.Error("saving imported split", "error", err)
		os.Exit(1)
	}

	printSummary("Import", saved)
	fmt.Printf("  Saved as:   %s\n\n", saved.ID)
	log.Info("import complete", "split", saved.Name)
}

func runExport(ctx context.Context, st *store.Store, arg, path string, log *slog.Logger) {
	split, err := resolveSplit(ctx, st, arg)
	if err != nil {
		log.Error("export failed", "error", err)
		os.Exit(1)
	}

	if err := interchange.WriteFile(ctx, path, split); err != nil {
		log.Error("writing document", "error", err)
		os.Exit(1)
	}

	printSummary("Export", split)
	fmt.Printf("  Written to: %s\n\n", path)
	log.Info("export complete", "split", split.Name)
}

// resolveSplit accepts a split id or, failing that, an exact name.
func resolveSplit(ctx context.Context, st *store.Store, arg string) (models.Split, error) {
	if id, err := uuid.Parse(arg); err == nil {
		split, err := st.SplitByID(ctx, id)
		if err != nil {
			return models.Split{}, fmt.Errorf("looking up split %s: %w", id, err)
		}
		return *split, nil
	}

	splits, err := st.Splits(ctx)
	if err != nil {
		return models.Split{}, fmt.Errorf("listing splits: %w", err)
	}
	var names []string
	for _, s := range splits {
		if s.Name == arg {
			return s, nil
		}
		names = append(names, s.Name)
	}
	return models.Split{}, fmt.Errorf("no split named %q (have %v)", arg, names)
}

func printSummary(verb string, split models.Split) {
	exercises, sets := 0, 0
	for _, d := range split.Days {
		exercises += len(d.Exercises)
		for _, ex := range d.Exercises {
			sets += len(ex.Sets)
		}
	}
	fmt.Println()
	fmt.Printf("=== %s Summary ===\n", verb)
	fmt.Printf("  Split:      %s\n", split.Name)
	fmt.Printf("  Days:       %d\n", len(split.Days))
	fmt.Printf("  Exercises:  %d\n", exercises)
	fmt.Printf("  Sets:       %d\n", sets)
}
