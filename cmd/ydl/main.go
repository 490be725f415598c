// Command ydl maintains a personal archive of a video site: a catalog of
// subscribed sources and their items, a feed-probed sync pipeline, the
// per-item download lifecycle, and a read-only filesystem view of the
// archive.
//
// Actions compose in one invocation and execute in a fixed order:
// hook registry edits, source/item registration, alias and preferred-name
// edits, skip/unskip, sleep/unsleep, listing, path printing, list sync,
// item sync, download, on-disk rename maintenance, archive copying, and
// finally the mount (which blocks until unmounted or interrupted).
// Positional arguments restrict sync, download, and copy to matching
// source keys or item ids.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/cmlburnett/ydl/internal/archivefs"
	"github.com/cmlburnett/ydl/internal/config"
	"github.com/cmlburnett/ydl/internal/download"
	"github.com/cmlburnett/ydl/internal/extractor"
	"github.com/cmlburnett/ydl/internal/feed"
	"github.com/cmlburnett/ydl/internal/hooks"
	"github.com/cmlburnett/ydl/internal/log"
	"github.com/cmlburnett/ydl/internal/metrics"
	"github.com/cmlburnett/ydl/internal/naming"
	"github.com/cmlburnett/ydl/internal/sleeping"
	"github.com/cmlburnett/ydl/internal/store"
	ydlsync "github.com/cmlburnett/ydl/internal/sync"
	"github.com/cmlburnett/ydl/internal/urlparse"
)

// multiFlag collects repeatable string flags.
type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

type options struct {
	cfg    *config.Config
	logger zerolog.Logger

	addURLs     multiFlag
	aliases     multiFlag
	names       multiFlag
	skips       multiFlag
	unskips     multiFlag
	sleeps      multiFlag
	unsleeps    multiFlag
	showPaths   multiFlag
	hookAdds    multiFlag
	hookRemoves multiFlag

	hookList    bool
	list        bool
	listAll     bool
	listNames   bool
	listAliases bool
	doLists     bool
	doVideos    bool
	doDownload  bool
	updateNames bool
	doMount     bool
	copyPaths   bool
	copyTo      string

	ignoreOld bool
	force     bool
	noFeed    bool
	loop      bool
	delay     time.Duration

	filter []string
}

func main() {
	_ = config.LoadEnvFile(".env")
	cfg := config.Load()

	var o options
	o.cfg = cfg

	var catalogPath string
	flag.StringVar(&catalogPath, "f", cfg.CatalogPath, "catalog database file")
	flag.StringVar(&catalogPath, "file", cfg.CatalogPath, "catalog database file")
	debug := flag.Bool("debug", false, "debug logging")

	flag.Var(&o.addURLs, "add", "register a source or single item by URL (repeatable)")
	flag.Var(&o.aliases, "alias", "channel-id shows its alias; channel-id=Alias names the directory (repeatable)")
	flag.Var(&o.names, "name", "iid shows naming detail; iid=Name sets the preferred name (repeatable)")
	flag.Var(&o.skips, "skip", "mark an item or playlist skip (repeatable)")
	flag.Var(&o.unskips, "unskip", "clear the skip mark (repeatable)")
	flag.Var(&o.sleeps, "sleep", "iid=WAKE: suppress an item until 'YYYY-MM-DD HH:MM:SS' or '<d|h|m|s>+N' (repeatable)")
	flag.Var(&o.unsleeps, "unsleep", "wake an item now (repeatable)")
	flag.Var(&o.showPaths, "showpath", "print archive paths for a source key or iid (repeatable)")
	flag.Var(&o.hookAdds, "hook-add", "append a plugin module to the hook registry (repeatable)")
	flag.Var(&o.hookRemoves, "hook-remove", "remove a plugin module from the hook registry (repeatable)")

	flag.BoolVar(&o.hookList, "hook-list", false, "print the hook registry")
	flag.BoolVar(&o.list, "list", false, "list sources")
	flag.BoolVar(&o.listAll, "listall", false, "list sources with every member item")
	flag.BoolVar(&o.listNames, "names", false, "list all preferred names")
	flag.BoolVar(&o.listAliases, "aliases", false, "list all channel aliases")
	doBoth := flag.Bool("sync", false, "sync source listings then per-item metadata")
	flag.BoolVar(&o.doLists, "sync-list", false, "sync source listings only")
	flag.BoolVar(&o.doVideos, "sync-videos", false, "sync per-item metadata only")
	flag.BoolVar(&o.doDownload, "download", false, "download eligible items")
	flag.BoolVar(&o.updateNames, "update-names", false, "re-render on-disk filenames from the catalog")
	flag.StringVar(&o.copyTo, "copyto", "", "copy downloaded data files to this directory and remember it")
	flag.BoolVar(&o.copyPaths, "copy-paths", false, "print the remembered copy destinations")
	flag.BoolVar(&o.doMount, "mount", false, "mount the read-only archive view (blocks)")

	flag.BoolVar(&o.ignoreOld, "ignore-old", false, "only never-synced sources / never-downloaded items")
	flag.BoolVar(&o.force, "force", false, "full reconciliation / re-download even when satisfied")
	flag.BoolVar(&o.noFeed, "no-rss", false, "skip the feed probe, always enumerate")
	flag.BoolVar(&o.loop, "loop", false, "repeat -sync forever at the configured interval")
	flag.DurationVar(&o.delay, "delay", cfg.SyncDelay, "pause between sources during -sync")

	flag.Int64Var(&cfg.Rate, "rate", cfg.Rate, "download rate ceiling in bytes/sec, 0 = unlimited")
	flag.StringVar(&cfg.Format, "format", cfg.Format, "downloader format override")
	flag.StringVar(&cfg.Cookies, "cookies", cfg.Cookies, "cookies file handed to the downloader")
	flag.BoolVar(&cfg.IfSmall, "if-small", cfg.IfSmall, "re-download files under 80% of the best advertised size")
	noAutoSleep := flag.Bool("no-auto-sleep", false, "fail on premieres/live instead of sleeping them")
	metricsAddr := flag.String("metrics", cfg.MetricsAddr, "expose prometheus metrics on this address")

	flag.Parse()
	o.filter = flag.Args()
	if *doBoth {
		o.doLists = true
		o.doVideos = true
	}

	level := ""
	if *debug {
		level = "debug"
	}
	log.Configure(log.Config{Level: level})
	o.logger = log.Base()

	cfg.CatalogPath = catalogPath
	if *noAutoSleep {
		cfg.AutoSleep = false
	}
	if cfg.CatalogPath == "" {
		fmt.Fprintln(os.Stderr, "no catalog path; pass -f or set YDL_CATALOG")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *metricsAddr != "" {
		metrics.Serve(*metricsAddr)
	}

	if err := run(ctx, &o); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, extractor.ErrInterrupted) {
			o.logger.Warn().Msg("interrupted")
			os.Exit(130)
		}
		o.logger.Error().Err(err).Msg("failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, o *options) error {
	db, err := store.Open(o.cfg.CatalogPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runner := extractor.NewRunner(o.cfg.ExtractorBin)
	sleeper := sleeping.NewRegistry(db)
	dispatch := hooks.NewDispatcher(db)
	orch := ydlsync.NewOrchestrator(db, feed.NewProber(db), runner)
	orch.SetHooks(dispatch)
	coord := download.New(db, runner, sleeper, o.cfg)
	coord.SetHooks(dispatch)

	for _, name := range o.hookAdds {
		if err := dispatch.Register(ctx, name); err != nil {
			return err
		}
	}
	for _, name := range o.hookRemoves {
		if err := dispatch.Unregister(ctx, name); err != nil {
			return err
		}
	}
	if o.hookList {
		names, err := dispatch.Names()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
	}

	for _, raw := range o.addURLs {
		if err := register(ctx, db, dispatch, o.cfg, o.logger, raw); err != nil {
			return err
		}
	}
	if o.listAliases {
		if err := printAliases(db); err != nil {
			return err
		}
	}
	for _, spec := range o.aliases {
		if err := setAlias(ctx, db, o.cfg, spec); err != nil {
			return err
		}
	}
	if o.listNames {
		if err := printPreferredNames(db); err != nil {
			return err
		}
	}
	for _, spec := range o.names {
		if err := nameAction(ctx, db, coord, o.cfg, spec); err != nil {
			return err
		}
	}
	for _, id := range o.skips {
		if err := setSkip(ctx, db, id, true); err != nil {
			return err
		}
	}
	for _, id := range o.unskips {
		if err := setSkip(ctx, db, id, false); err != nil {
			return err
		}
	}
	for _, spec := range o.sleeps {
		iid, wake, ok := strings.Cut(spec, "=")
		if !ok {
			return fmt.Errorf("-sleep wants iid=WAKE, got %q", spec)
		}
		at, err := sleeper.Sleep(ctx, iid, wake)
		if err != nil {
			return err
		}
		fmt.Printf("%s sleeps until %s\n", iid, at.Format(time.RFC3339))
	}
	for _, iid := range o.unsleeps {
		if err := sleeper.Wake(ctx, iid); err != nil {
			return err
		}
	}

	if o.list || o.listAll {
		if err := printSources(db, o.cfg, o.listAll); err != nil {
			return err
		}
	}
	for _, key := range o.showPaths {
		if err := printPaths(db, o.cfg, key); err != nil {
			return err
		}
	}

	if o.doLists {
		opts := ydlsync.Options{
			Filter:    o.filter,
			IgnoreOld: o.ignoreOld,
			Force:     o.force,
			NoFeed:    o.noFeed,
			Delay:     o.delay,
		}
		if o.loop {
			if err := orch.Loop(ctx, opts, o.cfg.LoopInterval); err != nil {
				return err
			}
		} else {
			sum, err := orch.Lists(ctx, opts)
			if sum != nil {
				fmt.Printf("sync: %d synced, %d fresh, %d errors\n", sum.Done, sum.Fresh, sum.Errors)
			}
			if err != nil {
				return err
			}
		}
	}
	if o.doVideos {
		sum, err := orch.Videos(ctx, o.filter, o.ignoreOld)
		if sum != nil {
			fmt.Printf("sync-videos: %d enriched, %d skipped, %d sleeping, %d errors, %d payment-required\n",
				sum.Done, sum.Skipped, sum.Sleeping, len(sum.Errors), len(sum.PaymentRequired))
			for _, iid := range sum.PaymentRequired {
				fmt.Printf("  payment required: %s\n", iid)
			}
		}
		if err != nil {
			return err
		}
	}
	if o.doDownload {
		sum, err := coord.Run(ctx, o.filter, o.ignoreOld, o.force)
		if sum != nil {
			fmt.Printf("download: %d done, %d satisfied, %d sleeping, %d skipped, %d errors\n",
				sum.Done, sum.Satisfied, sum.Sleeping, sum.Skipped, len(sum.Errors))
		}
		if err != nil {
			return err
		}
	}
	if o.updateNames {
		n, err := coord.UpdateNames(ctx, o.filter)
		if err != nil {
			return err
		}
		fmt.Printf("update-names: %d items renamed\n", n)
	}
	if o.copyPaths {
		paths, err := db.CopyPaths()
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
	}
	if o.copyTo != "" {
		n, err := coord.CopyTo(ctx, o.copyTo, o.filter)
		if err != nil {
			return err
		}
		fmt.Printf("copyto: %d files copied to %s\n", n, o.copyTo)
	}

	if o.doMount {
		return mount(ctx, db, o.cfg, o.logger)
	}
	return nil
}

// register classifies a pasted URL and creates the source or item.
// A bare item gets the sentinel directory and null timestamps; the
// first enrichment fills them in.
func register(ctx context.Context, db *store.Store, dispatch *hooks.Dispatcher, cfg *config.Config, logger zerolog.Logger, raw string) error {
	t, err := urlparse.Parse(raw)
	if err != nil {
		return err
	}
	if t.Kind == urlparse.KindVideo {
		err := db.WithTx(ctx, func(tx *store.Tx) error {
			return tx.InsertVideo(t.ID, naming.Miscellaneous, nil)
		})
		if err != nil {
			return err
		}
		logger.Info().Str("iid", t.ID).Msg("registered item")
		return nil
	}

	kind, err := store.KindFromString(string(t.Kind))
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.AddSource(kind, t.ID, now)
	})
	if err != nil {
		return err
	}
	if kind != store.KindPlaylist {
		if err := os.MkdirAll(filepath.Join(cfg.ArchiveRoot, t.ID), 0o755); err != nil {
			return err
		}
	}
	dispatch.Fire(ctx, hooks.SourceEvent{Kind: kind, Key: t.ID})
	logger.Info().Str("kind", string(kind)).Str("key", t.ID).Msg("registered source")
	return nil
}

// printAliases lists every id-form channel and its alias, if any.
func printAliases(db *store.Store) error {
	srcs, err := db.SelectSources(store.KindChannelUnnamed, nil, false)
	if err != nil {
		return err
	}
	for _, src := range srcs {
		alias := src.Alias
		if alias == "" {
			alias = "(none)"
		}
		fmt.Printf("%s\t%s\n", src.Key, alias)
	}
	return nil
}

// setAlias names an id-form channel's directory and migrates catalog
// rows and the on-disk directory from the old effective key. A bare
// channel-id only prints the current alias.
func setAlias(ctx context.Context, db *store.Store, cfg *config.Config, spec string) error {
	key, alias, ok := strings.Cut(spec, "=")
	if !ok {
		src, err := db.SourceByKey(store.KindChannelUnnamed, key)
		if err != nil {
			return err
		}
		if src.Alias == "" {
			fmt.Printf("%s\t(none)\n", src.Key)
		} else {
			fmt.Printf("%s\t%s\n", src.Key, src.Alias)
		}
		return nil
	}
	alias, err := naming.AliasCoerce(alias)
	if err != nil {
		return err
	}
	src, err := db.SourceByKey(store.KindChannelUnnamed, key)
	if err != nil {
		return err
	}
	inUse, err := db.AliasInUse(alias)
	if err != nil {
		return err
	}
	if inUse {
		return fmt.Errorf("alias %q already in use", alias)
	}

	old := src.EffectiveKey()
	err = db.WithTx(ctx, func(tx *store.Tx) error {
		if err := tx.SetChannelAlias(key, alias); err != nil {
			return err
		}
		if err := tx.RenameVideoDName(old, alias); err != nil {
			return err
		}
		return tx.RenameMembershipSource(old, alias)
	})
	if err != nil {
		return err
	}

	oldDir := filepath.Join(cfg.ArchiveRoot, old)
	newDir := filepath.Join(cfg.ArchiveRoot, alias)
	if _, statErr := os.Stat(oldDir); statErr == nil {
		if err := os.Rename(oldDir, newDir); err != nil {
			return fmt.Errorf("move %s: %w", oldDir, err)
		}
	}
	fmt.Printf("%s -> %s\n", key, alias)
	return nil
}

// nameAction handles one -name argument: bare iid prints naming detail,
// iid=Name validates and sets the preferred name, then renames the
// item's files on disk.
func nameAction(ctx context.Context, db *store.Store, coord *download.Coordinator, cfg *config.Config, spec string) error {
	iid, name, assign := strings.Cut(spec, "=")
	v, err := db.VideoByIID(iid)
	if err != nil {
		return err
	}
	if !assign {
		pref, err := db.PreferredName(iid)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n  title: %s\n  name: %s\n  preferred: %s\n  path: %s\n",
			iid, v.Title, v.Name, pref,
			naming.FormatVPath(cfg.ArchiveRoot, v.DName, v.Name, pref, iid, "mkv"))
		return nil
	}

	if err := naming.CheckName(name); err != nil {
		return err
	}
	err = db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetPreferredName(iid, name)
	})
	if err != nil {
		return err
	}
	if _, err := coord.UpdateNames(ctx, []string{iid}); err != nil {
		return err
	}
	fmt.Printf("%s named %s\n", iid, name)
	return nil
}

func printPreferredNames(db *store.Store) error {
	names, err := db.PreferredNames()
	if err != nil {
		return err
	}
	iids := make([]string, 0, len(names))
	for iid := range names {
		iids = append(iids, iid)
	}
	sort.Strings(iids)
	for _, iid := range iids {
		fmt.Printf("%s\t%s\n", iid, names[iid])
	}
	return nil
}

// setSkip flips the skip flag on an item, or on a playlist when the id
// names one.
func setSkip(ctx context.Context, db *store.Store, id string, skip bool) error {
	if _, err := db.SourceByKey(store.KindPlaylist, id); err == nil {
		return db.WithTx(ctx, func(tx *store.Tx) error {
			return tx.SetPlaylistSkip(id, skip)
		})
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	return db.WithTx(ctx, func(tx *store.Tx) error {
		return tx.SetVideoSkip(id, skip)
	})
}

// printSources lists every source; withItems adds one line per member
// with an existence marker and the duration.
func printSources(db *store.Store, cfg *config.Config, withItems bool) error {
	preferred := map[string]string{}
	if withItems {
		var err error
		preferred, err = db.PreferredNames()
		if err != nil {
			return err
		}
	}
	for _, kind := range store.SyncOrder {
		sources, err := db.SelectSources(kind, nil, false)
		if err != nil {
			return err
		}
		for _, src := range sources {
			key := src.EffectiveKey()
			fmt.Printf("%s/%s\t%s\n", kind, key, src.Title)
			if !withItems {
				continue
			}
			members, err := db.Memberships(key)
			if err != nil {
				return err
			}
			for _, m := range members {
				v, err := db.VideoByIID(m.IID)
				if errors.Is(err, store.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				fmt.Printf("  %s", itemLine(cfg, v, preferred[v.IID]))
			}
		}
	}
	return nil
}

// itemLine renders one member row: existence marker, iid, duration, title.
// The existence check honors the preferred name so renamed files still
// show the E marker.
func itemLine(cfg *config.Config, v *store.Video, preferred string) string {
	marker := " "
	path := naming.FormatVPath(cfg.ArchiveRoot, v.DName, v.Name, preferred, v.IID, "mkv")
	if _, err := os.Stat(path); err == nil {
		marker = "E"
	}
	return fmt.Sprintf("%s %s %7s  %s\n", marker, v.IID, naming.SecStr(v.Duration), v.Title)
}

// printPaths resolves a source key or iid to archive paths.
func printPaths(db *store.Store, cfg *config.Config, key string) error {
	videos, err := db.SelectVideos([]string{key}, false, false)
	if err != nil {
		return err
	}
	if len(videos) == 0 {
		return fmt.Errorf("%s: no matching items", key)
	}
	for _, v := range videos {
		pref, err := db.PreferredName(v.IID)
		if err != nil {
			return err
		}
		fmt.Println(naming.FormatVPath(cfg.ArchiveRoot, v.DName, v.Name, pref, v.IID, "mkv"))
	}
	return nil
}

// mount blocks serving the archive view until unmounted or interrupted.
func mount(ctx context.Context, db *store.Store, cfg *config.Config, logger zerolog.Logger) error {
	tree, err := archivefs.NewTree(db, cfg)
	if err != nil {
		return err
	}
	srv, err := archivefs.Mount(cfg.MountPoint, tree)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if err := srv.Unmount(); err != nil {
			logger.Warn().Err(err).Msg("unmount failed; still mounted?")
		}
	}()
	logger.Info().Str("dir", cfg.MountPoint).Msg("serving archive view")
	srv.Wait()
	return nil
}
