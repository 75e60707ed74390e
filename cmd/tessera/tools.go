package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/tessera/internal/config"
	"github.com/mattjoyce/tessera/internal/doctor"
	"github.com/mattjoyce/tessera/internal/inspect"
	"github.com/mattjoyce/tessera/internal/log"
	"github.com/mattjoyce/tessera/internal/runlog"
	"github.com/mattjoyce/tessera/internal/storage"
	"github.com/mattjoyce/tessera/internal/tui"
)

func runCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}
	log.SetupWithFormat("error", cfg.Service.LogFormat)

	reg, err := newRegistry(io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	result := doctor.New(cfg, reg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}
	if !result.Valid {
		return 1
	}
	return 0
}

func runTypes(args []string) int {
	fs := flag.NewFlagSet("types", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	reg, err := newRegistry(io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	type typeInfo struct {
		Type    string   `json:"type"`
		Signals []string `json:"signals"`
		Slots   []string `json:"slots"`
		Primary string   `json:"primary,omitempty"`
	}
	var infos []typeInfo
	for _, name := range reg.Types() {
		p, err := reg.Produce(name, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		ep := p.Endpoints()
		info := typeInfo{Type: name, Signals: ep.SignalNames(), Slots: ep.SlotNames()}
		if primary, ok := ep.Primary(); ok {
			info.Primary = primary.Name()
		}
		infos = append(infos, info)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Type < infos[j].Type })

	if *jsonOut {
		data, _ := json.MarshalIndent(infos, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	for _, info := range infos {
		fmt.Printf("%s\n", info.Type)
		fmt.Printf("  signals: %v\n", info.Signals)
		fmt.Printf("  slots:   %v\n", info.Slots)
		if info.Primary != "" {
			fmt.Printf("  primary: %s\n", info.Primary)
		}
	}
	return 0
}

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	apiURL := fs.String("api-url", "http://"+config.Defaults().API.Listen, "tessera API URL")
	apiKey := fs.String("api-key", os.Getenv("TESSERA_API_KEY"), "API bearer token")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	p := tea.NewProgram(tui.New(*apiURL, *apiKey), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

// --- runs ---

func runRunsNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage: tessera runs <list|show> [flags]")
		return 1
	}
	switch args[0] {
	case "list":
		return runRunsList(args[1:])
	case "show":
		return runRunsShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown runs action: %s\n", args[0])
		return 1
	}
}

// openHistory opens the journal read side without pruning it.
func openHistory(ctx context.Context, configPath string) (*runlog.Store, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	if cfg.State.Path == "" {
		return nil, nil, fmt.Errorf("run journal is disabled (state.path is not set)")
	}
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return nil, nil, err
	}
	return runlog.NewStore(db), func() { _ = db.Close() }, nil
}

func runRunsList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	limit := fs.Int("limit", 20, "Maximum number of runs to show")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	ctx := context.Background()
	store, closeFn, err := openHistory(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeFn()

	out, err := inspect.BuildList(ctx, store, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(out)
	return 0
}

func runRunsShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tessera runs show [--json] <run-id>")
		return 1
	}

	ctx := context.Background()
	store, closeFn, err := openHistory(ctx, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer closeFn()

	var out string
	if *jsonOut {
		out, err = inspect.BuildJSONReport(ctx, store, fs.Arg(0))
		out += "\n"
	} else {
		out, err = inspect.BuildReport(ctx, store, fs.Arg(0))
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Print(out)
	return 0
}

// --- config ---

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Fprintln(os.Stderr, "Usage: tessera config <lock|hash|get> [flags]")
		return 1
	}
	switch args[0] {
	case "lock":
		return runConfigLock(args[1:])
	case "hash":
		return runConfigHash(args[1:])
	case "get":
		return runConfigGet(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	dryRun := fs.Bool("dry-run", false, "Show the manifest without writing it")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.ResolvePath(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	// Refuse to bless a file that would not load.
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	manifest, err := config.WriteChecksums(path, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for name, hash := range manifest.Hashes {
		fmt.Printf("%s  %s\n", hash, name)
	}
	if *dryRun {
		fmt.Println("Dry-run: manifest not written.")
	} else {
		fmt.Printf("Wrote %s\n", config.ChecksumFilename)
	}
	return 0
}

func runConfigHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	path, err := config.ResolvePath(resolveConfigPath(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	cfg, err := config.Parse(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	log.SetupWithFormat("error", cfg.Service.LogFormat)
	tb, err := buildPipeline(cfg, io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	result := struct {
		File        string `json:"file"`
		Hash        string `json:"hash"`
		Fingerprint string `json:"fingerprint"`
	}{path, config.HashBytes(data), tb.Fingerprint()}

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
		return 0
	}
	fmt.Printf("file:        %s\n", result.File)
	fmt.Printf("hash:        %s\n", result.Hash)
	fmt.Printf("fingerprint: %s\n", result.Fingerprint)
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: tessera config get [--json] <path>")
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	val, err := cfg.GetPath(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}
