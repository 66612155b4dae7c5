package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/japaniel/hanzivid/pkg/app"
	"github.com/japaniel/hanzivid/pkg/config"
	"github.com/japaniel/hanzivid/pkg/db"
	"github.com/japaniel/hanzivid/pkg/domain"
	"github.com/japaniel/hanzivid/pkg/ingest"
	"github.com/japaniel/hanzivid/pkg/transcribe"
)

const usage = `usage: hanzivid [-config file] [-db path] [-offline] <command> [args]

commands:
  add <source>...                 register local files or URLs for processing
  process [-workers n]            transcribe and index every pending video
  retry <video-id>                queue a failed video again
  reprocess <video-id>            queue an indexed video for a new attempt
  find [-limit n] [-video id] <word>
                                  list the best examples of a word
  videos [-status s]              list videos
  words [-sort order] [-status s] [-level n] <video-id>
                                  list the words of a video (frequency, level, alphabetical)
  mark <word> <status>            set a word to known, practice or unknown
  stats <video-id>                show vocabulary statistics of a video
  transcript <video-id>           print the transcript of a video
  sync-catalog                    store the whole catalog in the database
  remove <video-id>               delete a video and its index
`

func main() {
	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

var errUsage = errors.New("invalid usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("hanzivid", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configFlag := global.String("config", "", "Path to YAML configuration")
	dbFlag := global.String("db", "", "Path to SQLite database (overrides config)")
	offlineFlag := global.Bool("offline", false, "Never download catalog sources")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load(*configFlag)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *dbFlag != "" {
		cfg.Database.Path = *dbFlag
	}
	if *offlineFlag {
		cfg.Catalog.Offline = true
	}
	logger := app.NewLogger(cfg.Log)

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.Close()

	c := &cli{app: a, out: stdout, errOut: stderr}
	cmd, rest := global.Arg(0), global.Args()[1:]
	switch cmd {
	case "add":
		err = c.add(ctx, rest)
	case "process":
		err = c.process(ctx, rest)
	case "retry":
		err = c.requeue(ctx, "retry", rest, a.Ingester.Retry)
	case "reprocess":
		err = c.requeue(ctx, "reprocess", rest, a.Ingester.Reprocess)
	case "find":
		err = c.find(ctx, rest)
	case "videos":
		err = c.videos(ctx, rest)
	case "words":
		err = c.words(ctx, rest)
	case "mark":
		err = c.mark(ctx, rest)
	case "stats":
		err = c.stats(ctx, rest)
	case "transcript":
		err = c.transcript(ctx, rest)
	case "sync-catalog":
		err = c.syncCatalog(ctx)
	case "remove":
		err = c.remove(ctx, rest)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", cmd)
		global.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
}

type cli struct {
	app    *app.App
	out    io.Writer
	errOut io.Writer
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

// oneArg parses fs and requires exactly one positional argument.
func (c *cli) oneArg(fs *flag.FlagSet, args []string, what string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", errUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(c.errOut, "usage: hanzivid %s <%s>\n", fs.Name(), what)
		return "", errUsage
	}
	return fs.Arg(0), nil
}

func (c *cli) add(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.errOut, "usage: hanzivid add <source>...")
		return errUsage
	}
	var errs []error
	for _, src := range args {
		v, created, err := c.app.Ingester.AddVideo(ctx, src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		state := "added"
		if !created {
			state = "exists"
		}
		fmt.Fprintf(c.out, "%s\t%s\t%s\t%s\n", state, v.ID, v.Status, v.Title)
	}
	return errors.Join(errs...)
}

func (c *cli) process(ctx context.Context, args []string) error {
	fs := c.flags("process")
	workers := fs.Int("workers", c.app.Config.Ingest.Workers, "Number of videos processed concurrently")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if err := c.app.EnableProcessing(ctx); err != nil {
		return err
	}
	ig := c.app.Ingester
	ig.Workers = *workers
	ig.OnProgress = func(done, total int) {
		fmt.Fprintf(c.errOut, "\rprocessed %d/%d videos", done, total)
		if done == total {
			fmt.Fprintln(c.errOut)
		}
	}

	summary, err := ig.ProcessAll(ctx)
	for _, o := range summary.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(c.out, "failed\t%s\t%v\n", o.VideoID, o.Err)
			continue
		}
		low := ""
		if o.Result.LowYield {
			low = "\tlow yield"
		}
		fmt.Fprintf(c.out, "indexed\t%s\t%d occurrences\t%d words%s\n", o.VideoID, o.Result.Occurrences, o.Result.Stats.UniqueWords, low)
	}
	fmt.Fprintf(c.out, "Processing complete. indexed=%d failed=%d cancelled=%d skipped=%d\n",
		summary.Indexed, summary.Failed, summary.Cancelled, summary.Skipped)
	return err
}

func (c *cli) requeue(ctx context.Context, name string, args []string, fn func(context.Context, string) error) error {
	id, err := c.oneArg(c.flags(name), args, "video-id")
	if err != nil {
		return err
	}
	if err := fn(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "queued\t%s\n", id)
	return nil
}

func (c *cli) find(ctx context.Context, args []string) error {
	fs := c.flags("find")
	limit := fs.Int("limit", c.app.Config.Query.DefaultLimit, "Maximum number of examples")
	var videoIDs stringList
	fs.Var(&videoIDs, "video", "Restrict to a video id (repeatable)")
	word, err := c.oneArg(fs, args, "word")
	if err != nil {
		return err
	}

	info, err := c.app.Locator.Word(ctx, word, *limit)
	if err != nil {
		return err
	}
	examples := info.Examples
	if len(videoIDs) > 0 {
		if examples, err = c.app.Locator.FindIn(ctx, word, *limit, videoIDs...); err != nil {
			return err
		}
	}

	e := info.Entry
	fmt.Fprintf(c.out, "%s", e.Word)
	if e.Traditional != "" && e.Traditional != e.Word {
		fmt.Fprintf(c.out, " (%s)", e.Traditional)
	}
	if e.Pinyin != "" {
		fmt.Fprintf(c.out, " [%s]", e.Pinyin)
	}
	if info.InCatalog {
		fmt.Fprintf(c.out, " %s %s", e.Level, info.State.Status)
	}
	fmt.Fprintln(c.out)
	if e.Gloss != "" {
		fmt.Fprintf(c.out, "  %s\n", e.Gloss)
	}
	if len(examples) == 0 {
		fmt.Fprintln(c.out, "no examples")
		return nil
	}
	for _, ex := range examples {
		fmt.Fprintf(c.out, "[%s - %s] %.2f %s: %s\n",
			transcribe.FormatTimestamp(ex.Start), transcribe.FormatTimestamp(ex.End),
			ex.Quality, ex.Title, ex.Sentence)
	}
	return nil
}

func (c *cli) videos(ctx context.Context, args []string) error {
	fs := c.flags("videos")
	status := fs.String("status", "", "Only videos with this status")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	var f db.VideoFilter
	if *status != "" {
		s, err := domain.ParseStatus(*status)
		if err != nil {
			return err
		}
		f.Statuses = []domain.Status{s}
	}
	list, err := db.ListVideos(ctx, c.app.DB, f)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tATTEMPT\tTITLE\tREASON")
	for _, v := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", v.ID, v.Status, v.Attempt, v.Title, v.FailureReason)
	}
	return tw.Flush()
}

func (c *cli) words(ctx context.Context, args []string) error {
	fs := c.flags("words")
	sortBy := fs.String("sort", string(db.SortFrequency), "Order: frequency, level or alphabetical")
	status := fs.String("status", "", "Only words with this status: known, practice or unknown")
	level := fs.Int("level", -1, "Only words of this HSK level (0 for words outside HSK)")
	id, err := c.oneArg(fs, args, "video-id")
	if err != nil {
		return err
	}
	var f db.WordFilter
	if *status != "" {
		ws, err := domain.ParseWordStatus(*status)
		if err != nil {
			return err
		}
		f.Statuses = []domain.WordStatus{ws}
	}
	if *level >= 0 {
		lvl := domain.Level(*level)
		if lvl != domain.Unranked && !lvl.Valid() {
			return fmt.Errorf("level must be between %d and %d, got %d", domain.MinLevel, domain.MaxLevel, *level)
		}
		f.Levels = []domain.Level{lvl}
	}
	list, err := c.app.Locator.VideoWords(ctx, id, db.WordSort(*sortBy), f)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WORD\tPINYIN\tLEVEL\tSTATUS\tCOUNT\tFIRST")
	for _, wc := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n", wc.Entry.Word, wc.Entry.Pinyin, wc.Entry.Level, wc.Status, wc.Count, transcribe.FormatTimestamp(wc.FirstStart))
	}
	return tw.Flush()
}

func (c *cli) mark(ctx context.Context, args []string) error {
	fs := c.flags("mark")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(c.errOut, "usage: hanzivid mark <word> <known|practice|unknown>")
		return errUsage
	}
	status, err := domain.ParseWordStatus(fs.Arg(1))
	if err != nil {
		return err
	}
	ws, err := c.app.Locator.Mark(ctx, fs.Arg(0), status)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\t%s\t%d reviews\n", ws.Word, ws.Status, ws.ReviewCount)
	return nil
}

func (c *cli) stats(ctx context.Context, args []string) error {
	id, err := c.oneArg(c.flags("stats"), args, "video-id")
	if err != nil {
		return err
	}
	st, err := c.app.Locator.Stats(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "segments\t%d\nwords\t%d\nunique\t%d\nunclassified\t%d\n", st.Segments, st.TotalWords, st.UniqueWords, st.Unclassified)
	for lvl := domain.MinLevel; lvl <= domain.MaxLevel; lvl++ {
		fmt.Fprintf(c.out, "%s\t%d\n", lvl, st.LevelCounts[lvl])
	}
	fmt.Fprintf(c.out, "%s\t%d\n", domain.Unranked, st.LevelCounts[domain.Unranked])
	return nil
}

func (c *cli) transcript(ctx context.Context, args []string) error {
	id, err := c.oneArg(c.flags("transcript"), args, "video-id")
	if err != nil {
		return err
	}
	v, err := db.GetVideo(ctx, c.app.DB, id)
	if err != nil {
		return err
	}
	if err := c.app.EnableProcessing(ctx); err != nil {
		return err
	}
	segs, err := c.app.Ingester.Recognizer.Recognize(ctx, v.Source)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, transcribe.Format(segs))
	return nil
}

func (c *cli) syncCatalog(ctx context.Context) error {
	n, err := ingest.SyncVocabulary(ctx, c.app.DB, c.app.Catalog.Entries(), c.app.Config.Ingest.SyncBatch, c.app.Logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "synchronized %d vocabulary entries\n", n)
	return nil
}

func (c *cli) remove(ctx context.Context, args []string) error {
	id, err := c.oneArg(c.flags("remove"), args, "video-id")
	if err != nil {
		return err
	}
	if err := c.app.Ingester.Remove(ctx, id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "removed\t%s\n", id)
	return nil
}

// stringList collects a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
