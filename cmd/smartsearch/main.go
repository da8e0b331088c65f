package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/Luchitomori/frostwire-desktop/internal/client"
	"github.com/Luchitomori/frostwire-desktop/internal/config"
	"github.com/Luchitomori/frostwire-desktop/internal/dedup"
	"github.com/Luchitomori/frostwire-desktop/internal/fetch"
	"github.com/Luchitomori/frostwire-desktop/internal/index"
	"github.com/Luchitomori/frostwire-desktop/internal/metrics"
	"github.com/Luchitomori/frostwire-desktop/internal/smartsearch"
	"github.com/Luchitomori/frostwire-desktop/internal/tui"
	"github.com/Luchitomori/frostwire-desktop/internal/util"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "smartsearch",
		Short: "Search a local torrent file index and deep-search live results",
		Long: `smartsearch keeps a local full-text index of the files inside torrents you
have seen, and deep-searches live backend results by fetching their metadata
and matching the files they contain.`,
		PersistentPreRunE: setup,
		SilenceUsage:      true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")

	// Search command
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the local index for files",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().Int("limit", 0, "Maximum number of results (0 = configured limit)")
	searchCmd.Flags().Bool("json", false, "Output JSON")
	searchCmd.Flags().IntSlice("disable", nil, "Backend ids to leave out of this search")

	// Deep search command
	deepCmd := &cobra.Command{
		Use:   "deep <query>",
		Short: "Deep-search live backend results for matching files",
		Long: `Reads live backend results (a JSON array) from --results, then fetches the
metadata of the most seeded ones over several rounds and reports every file
that matches the query. Fetched torrents are added to the local index.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runDeep,
	}
	deepCmd.Flags().String("results", "-", "File holding live results as JSON ('-' = stdin)")
	deepCmd.Flags().Bool("plain", false, "Print matches as they arrive instead of launching the TUI")
	deepCmd.Flags().Bool("json", false, "Print all matches as JSON when the search ends")
	deepCmd.Flags().IntSlice("disable", nil, "Backend ids to leave out of this search")
	deepCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")

	// Index command
	indexCmd := &cobra.Command{
		Use:   "index <file-or-uri>...",
		Short: "Add torrents to the local index from files, URLs or magnet links",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runIndex,
	}
	indexCmd.Flags().Int("source", 0, "Backend id recorded for the indexed torrents")
	indexCmd.Flags().Int("seeds", 0, "Seed count recorded for the indexed torrents")

	// Stats command
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		RunE:  runStats,
	}
	statsCmd.Flags().Bool("json", false, "Output JSON")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete everything in the local index",
		RunE:  runReset,
	}

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record a point the index can later be rolled back to",
		RunE:  runSnapshot,
	}

	rollbackCmd := &cobra.Command{
		Use:   "rollback <snapshot-id>",
		Short: "Remove every torrent indexed after a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollback,
	}

	rootCmd.AddCommand(searchCmd, deepCmd, indexCmd, statsCmd, resetCmd, snapshotCmd, rollbackCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	level := slog.LevelWarn
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// app holds everything a command needs. Fetching is only wired when asked
// for since the swarm client listens on the network.
type app struct {
	cfg      *config.Config
	store    *index.Store
	backends *smartsearch.Backends
	pool     *fetch.Pool
	swarm    *fetch.Swarm
	coord    *smartsearch.Coordinator
}

func openApp(withFetch bool) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	store, err := index.Open(cfg.DBPath(),
		index.WithLogger(logger),
		index.WithSlowQueryThreshold(cfg.SlowQueryWarning()),
	)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	a := &app{cfg: cfg, store: store, backends: smartsearch.NewBackends(cfg.Backends)}
	var fetcher fetch.Service = noFetch{}
	if withFetch {
		var magnets fetch.MagnetFetcher
		if cfg.SwarmFetch {
			a.swarm, err = fetch.NewSwarm(cfg.SwarmDir(), logger)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("starting swarm client: %w", err)
			}
			magnets = a.swarm
		}
		a.pool, err = fetch.NewPool(cfg.FetchWorkers, cfg.FetchDir(),
			client.New(cfg.RequestsPerSecond, cfg.FetchTimeout()), magnets,
			fetch.WithTimeout(cfg.FetchTimeout()),
			fetch.WithLogger(logger),
		)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("starting fetch pool: %w", err)
		}
		fetcher = a.pool
	}

	a.coord = smartsearch.New(store, dedup.New(store), fetcher, a.backends,
		smartsearch.WithLogger(logger),
		smartsearch.WithSettings(smartsearch.SettingsFromConfig(cfg)),
	)
	return a, nil
}

func (a *app) Close() {
	if a.coord != nil {
		a.coord.Close()
	}
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			slog.Warn("closing fetch pool", "error", err)
		}
	}
	if a.swarm != nil {
		if err := a.swarm.Close(); err != nil {
			slog.Warn("closing swarm client", "error", err)
		}
	}
	a.store.Close()
}

// disableBackends turns off the given backends for this run only; the
// config file is left alone.
func disableBackends(b *smartsearch.Backends, ids []int) {
	for _, id := range ids {
		if _, ok := b.Lookup(id); !ok {
			slog.Warn("ignoring unknown backend", "id", id)
			continue
		}
		b.SetEnabled(id, false)
	}
}

// noFetch backs commands that never deep-search.
type noFetch struct{}

func (noFetch) Fetch(ctx context.Context, uri string, notify fetch.Notify) error {
	return fetch.ErrUnsupportedURI
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	limit, _ := cmd.Flags().GetInt("limit")
	jsonMode, _ := cmd.Flags().GetBool("json")
	disabled, _ := cmd.Flags().GetIntSlice("disable")

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()
	disableBackends(a.backends, disabled)

	results := a.coord.Search(cmd.Context(), query)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	if jsonMode {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results:\n\n", len(results))
	for _, r := range results {
		fmt.Printf("  %s\n", r.File.Path)
		fmt.Printf("    %s  (%s seeds, %s, %s)\n", r.Torrent.Name, util.FormatSeeds(r.Torrent.Seeds), util.FormatBytes(r.File.Size), r.Backend)
		if magnet := fetch.MagnetURI(r.Torrent.InfoHash, r.Torrent.Name); magnet != "" {
			fmt.Printf("    %s\n", magnet)
		}
	}
	return nil
}

func runDeep(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	resultsPath, _ := cmd.Flags().GetString("results")
	plainMode, _ := cmd.Flags().GetBool("plain")
	jsonMode, _ := cmd.Flags().GetBool("json")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	live, err := readResults(resultsPath)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		stop := serveMetrics(metricsAddr)
		defer stop()
	}

	disabled, _ := cmd.Flags().GetIntSlice("disable")

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()
	disableBackends(a.backends, disabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	local := a.coord.Search(ctx, query)
	panel := smartsearch.NewPanel()
	panel.Add(live...)
	session := smartsearch.NewSession(query, panel)

	if !plainMode && !jsonMode && resultsPath != "-" && isInteractiveTerminal() {
		return tui.Run(ctx, a.coord, session, panel, local)
	}

	dispatcher := smartsearch.NewSerialDispatcher()
	defer dispatcher.Close()
	session.Dispatcher = dispatcher

	printed := 0
	if !jsonMode {
		fmt.Printf("%d local results, deep-searching %d live results for %q...\n", len(local), len(live), query)
		panel.OnChange(func() {
			found := panel.DeepResults()
			for _, r := range found[printed:] {
				fmt.Printf("  %s\n    in %s (%d seeds)\n", r.File.Path, r.Torrent.Title, r.Torrent.Seeds)
			}
			printed = len(found)
		})
	}

	<-a.coord.Launch(ctx, session)
	dispatcher.Wait()
	waitIdle(ctx, panel)
	dispatcher.Wait()
	panel.OnChange(nil)
	panel.Close()

	found := panel.DeepResults()
	if jsonMode {
		out := struct {
			Session string                   `json:"session"`
			Query   string                   `json:"query"`
			Local   []smartsearch.LocalResult `json:"local"`
			Deep    []smartsearch.DeepResult  `json:"deep"`
		}{
			Session: session.ID,
			Query:   query,
			Local:   local,
			Deep:    found,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("\nDeep search finished: %d matching files.\n", len(found))
	return nil
}

func readResults(path string) ([]smartsearch.Result, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening results: %w", err)
		}
		defer f.Close()
		r = f
	}

	var results []smartsearch.Result
	if err := json.NewDecoder(r).Decode(&results); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	return results, nil
}

// waitIdle blocks until no fetch is in flight or ctx is done.
func waitIdle(ctx context.Context, panel *smartsearch.Panel) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for panel.InFlight() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func serveMetrics(addr string) func() {
	reg := prometheus.NewRegistry()
	metrics.Register(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server", "addr", addr, "error", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func runIndex(cmd *cobra.Command, args []string) error {
	sourceID, _ := cmd.Flags().GetInt("source")
	seeds, _ := cmd.Flags().GetInt("seeds")

	needFetch := false
	for _, arg := range args {
		if isRemote(arg) {
			needFetch = true
			break
		}
	}

	a, err := openApp(needFetch)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, _ := a.backends.Lookup(sourceID)

	indexed, failed := 0, 0
	for _, arg := range args {
		if ctx.Err() != nil {
			break
		}
		r := smartsearch.Result{Seeds: seeds, SourceID: sourceID}
		if isRemote(arg) {
			r.TorrentURI = arg
		}

		doc, err := loadDocument(ctx, a.pool, arg)
		if err == nil {
			err = a.coord.IndexTorrent(ctx, r, doc, backend)
		}
		switch {
		case err == nil:
			indexed++
			fmt.Printf("  indexed %s (%d files)\n", doc.Name, len(doc.Files))
		case errors.Is(err, index.ErrAlreadyIndexed):
			fmt.Printf("  skipped %s: already indexed\n", arg)
		default:
			failed++
			fmt.Fprintf(os.Stderr, "  failed %s: %v\n", arg, err)
		}
	}

	fmt.Printf("\nIndexed %d torrents (%d failed). Index holds %d torrents, %d files.\n",
		indexed, failed, a.coord.TotalTorrents(ctx), a.coord.TotalFiles(ctx))
	if failed > 0 {
		return fmt.Errorf("%d torrents could not be indexed", failed)
	}
	return nil
}

func isRemote(arg string) bool {
	lower := strings.ToLower(arg)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "magnet:")
}

// loadDocument parses a local .torrent file, or fetches a remote one through
// the pool and parses it once it lands.
func loadDocument(ctx context.Context, pool *fetch.Pool, arg string) (*fetch.Document, error) {
	if !isRemote(arg) {
		return fetch.ParseDocument(arg)
	}

	h := &fetchedDocument{done: make(chan struct{})}
	job := fetch.NewJob(h, slog.Default())
	if err := pool.Fetch(ctx, arg, job.Notify()); err != nil {
		job.Observe(fetch.Error, "")
	}
	<-h.done

	if h.doc == nil {
		if h.err != nil {
			return nil, h.err
		}
		return nil, fmt.Errorf("fetch ended %s", h.state)
	}
	return h.doc, nil
}

type fetchedDocument struct {
	doc   *fetch.Document
	err   error
	state fetch.State
	done  chan struct{}
}

func (h *fetchedDocument) Finished(path string) {
	defer os.Remove(path)
	h.doc, h.err = fetch.ParseDocument(path)
}

func (h *fetchedDocument) Done(state fetch.State) {
	h.state = state
	close(h.done)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	torrents := a.coord.TotalTorrents(ctx)
	files := a.coord.TotalFiles(ctx)

	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode {
		out := struct {
			Torrents int64  `json:"torrents"`
			Files    int64  `json:"files"`
			Database string `json:"database"`
		}{
			Torrents: torrents,
			Files:    files,
			Database: a.store.Path(),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Index Statistics:\n")
	fmt.Printf("  Torrents: %d\n", torrents)
	fmt.Printf("  Files:    %d\n", files)
	fmt.Printf("  Database: %s\n", a.store.Path())

	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.coord.ResetDB(cmd.Context()); err != nil {
		return err
	}
	fmt.Println("Index cleared.")
	return nil
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	id, err := a.store.Snapshot(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("Snapshot %d recorded.\n", id)
	return nil
}

func runRollback(cmd *cobra.Command, args []string) error {
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid snapshot id %q", args[0])
	}

	a, err := openApp(false)
	if err != nil {
		return err
	}
	defer a.Close()

	removed, err := a.store.Rollback(cmd.Context(), id)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d torrents indexed after snapshot %d.\n", removed, id)
	return nil
}

func isInteractiveTerminal() bool {
	inInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	outInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (inInfo.Mode()&os.ModeCharDevice) != 0 && (outInfo.Mode()&os.ModeCharDevice) != 0
}
