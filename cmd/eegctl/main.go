package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"eeg-stress-api/internal/analysis"
	"eeg-stress-api/internal/api"
	"eeg-stress-api/internal/client"
	"eeg-stress-api/internal/common"
	"eeg-stress-api/internal/edf"
	"eeg-stress-api/internal/events"
	"eeg-stress-api/internal/ml"
	"eeg-stress-api/internal/storage"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `usage: eegctl <command> [flags]

commands:
  analyze   upload EDF recordings to a running server
  local     run the analysis pipeline in-process
  synth     write a synthetic EDF recording
  history   list past analyses (from the server, or a stopped server's database)
  export    write stored feature vectors as CSV
  watch     print live analysis events from a server
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	level, err := zerolog.ParseLevel(os.Getenv(common.EnvLogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.DefaultContextLogger = &log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "analyze":
		err = runAnalyze(ctx, args)
	case "local":
		err = runLocal(ctx, args)
	case "synth":
		err = runSynth(args)
	case "history":
		err = runHistory(ctx, args)
	case "export":
		err = runExport(args)
	case "watch":
		err = runWatch(ctx, args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", cmd).Msg("command failed")
	}
}

func defaultServer() string {
	if v := os.Getenv("EEG_SERVER"); v != "" {
		return v
	}
	return fmt.Sprintf("http://localhost:%d", common.DefaultPort)
}

func runAnalyze(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	server := fs.String("server", defaultServer(), "Base URL of the API")
	timeout := fs.Duration("timeout", 2*time.Minute, "Per-upload timeout")
	output := fs.String("o", "", "Write the JSON results to this file instead of stdout")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("analyze: at least one .edf file is required")
	}

	c := client.New(*server, *timeout)
	var results []*api.AnalyzeResponse
	for _, path := range fs.Args() {
		res, err := c.AnalyzeFile(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Info().Str("file", path).Str("label", res.StressLabel).Float64("confidence", res.Confidence).Msg("analyzed")
		results = append(results, res)
	}

	if len(results) == 1 {
		return writeJSON(*output, results[0])
	}
	return writeJSON(*output, results)
}

func runLocal(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("local", flag.ExitOnError)
	modelPath := fs.String("model", common.DefaultModelPath, "Path to the model (.onnx or linear .json)")
	onnxLib := fs.String("onnx-lib", os.Getenv(common.EnvONNXLibrary), "Path to the onnxruntime shared library")
	output := fs.String("o", "", "Write the JSON results to this file instead of stdout")
	fs.Parse(args)

	if fs.NArg() == 0 {
		return fmt.Errorf("local: at least one .edf file is required")
	}

	loader, err := ml.LoaderFor(*modelPath, *onnxLib)
	if err != nil {
		return err
	}
	manager := ml.NewManager(*modelPath, loader, nil)
	defer manager.Close()
	if err := manager.Load(); err != nil {
		return err
	}

	analyzer := analysis.New(analysis.Config{Model: manager})
	var results []api.AnalyzeResponse
	for _, path := range fs.Args() {
		report, err := analyzeLocal(ctx, analyzer, path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, api.NewAnalyzeResponse(report))
	}

	if len(results) == 1 {
		return writeJSON(*output, results[0])
	}
	return writeJSON(*output, results)
}

func analyzeLocal(ctx context.Context, a *analysis.Analyzer, path string) (*analysis.Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return a.Analyze(ctx, analysis.Upload{FileName: filepath.Base(path), Content: f})
}

func runSynth(args []string) error {
	fs := flag.NewFlagSet("synth", flag.ExitOnError)
	output := fs.String("o", "synthetic.edf", "Output file")
	channels := fs.Int("channels", 31, "Number of EEG channels")
	rate := fs.Int("rate", 256, "Sample rate in Hz")
	seconds := fs.Int("seconds", 10, "Recording length in seconds")
	profile := fs.String("profile", string(edf.ProfileRelaxed), "Dominant rhythm: relaxed or stressed")
	seed := fs.Uint64("seed", 1, "Noise seed")
	fs.Parse(args)

	switch edf.Profile(*profile) {
	case edf.ProfileRelaxed, edf.ProfileStressed:
	default:
		return fmt.Errorf("synth: unknown profile %q", *profile)
	}

	rec := edf.Synthesize(edf.SynthConfig{
		Channels:   *channels,
		SampleRate: *rate,
		Seconds:    *seconds,
		Profile:    edf.Profile(*profile),
		Seed:       *seed,
	})

	if err := writeAtomic(*output, func(w io.Writer) error { return edf.Encode(w, rec) }); err != nil {
		return err
	}
	log.Info().Str("file", *output).Int("channels", len(rec.Signals)).Dur("duration", rec.Duration()).Msg("synthetic recording written")
	return nil
}

func runHistory(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	server := fs.String("server", defaultServer(), "Base URL of the API")
	dataPath := fs.String("db", "", "Read the database in this data directory instead of asking the server; the server must be stopped")
	limit := fs.Int("limit", common.DefaultHistoryLimit, "Number of records")
	id := fs.String("id", "", "Show a single analysis")
	fs.Parse(args)

	if *dataPath == "" {
		c := client.New(*server, 30*time.Second)
		if *id != "" {
			rec, err := c.Get(ctx, *id)
			if err != nil {
				return err
			}
			return writeJSON("", rec)
		}
		records, err := c.History(ctx, *limit)
		if err != nil {
			return err
		}
		return writeJSON("", records)
	}

	store, err := storage.OpenReadOnly(*dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	if *id != "" {
		rec, err := store.GetAnalysis(*id)
		if err != nil {
			return err
		}
		return writeJSON("", rec)
	}
	records, err := store.ListAnalyses(*limit)
	if err != nil {
		return err
	}
	return writeJSON("", records)
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	dataPath := fs.String("db", "", "Data directory of a stopped server")
	output := fs.String("o", "features.csv", "Output CSV file")
	fs.Parse(args)

	if *dataPath == "" {
		return fmt.Errorf("export: -db is required")
	}

	store, err := storage.OpenReadOnly(*dataPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var rows int
	err = writeAtomic(*output, func(w io.Writer) error {
		var err error
		rows, err = store.ExportFeaturesCSV(w)
		return err
	})
	if err != nil {
		return err
	}
	log.Info().Str("file", *output).Int("rows", rows).Msg("feature vectors exported")
	return nil
}

func runWatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	server := fs.String("server", defaultServer(), "Base URL of the API")
	fs.Parse(args)

	c := client.New(*server, 0)
	enc := json.NewEncoder(os.Stdout)
	err := c.Watch(ctx, func(ev events.Event) error {
		return enc.Encode(ev)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// writeAtomic replaces path with whatever fn writes, or leaves it untouched
// when fn fails.
func writeAtomic(path string, fn func(io.Writer) error) error {
	pf, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return err
	}
	defer pf.Cleanup()

	if err := fn(pf); err != nil {
		return err
	}
	return pf.CloseAtomicallyReplace()
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if path == "" {
		_, err := os.Stdout.Write(buf.Bytes())
		return err
	}
	return renameio.WriteFile(path, buf.Bytes(), 0o644)
}
