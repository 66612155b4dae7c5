// Package ingest drives videos through transcription, segmentation,
// resolution and indexing.
package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/japaniel/hanzivid/pkg/align"
	"github.com/japaniel/hanzivid/pkg/db"
	"github.com/japaniel/hanzivid/pkg/domain"
	"github.com/japaniel/hanzivid/pkg/index"
	"github.com/japaniel/hanzivid/pkg/resolve"
	"github.com/japaniel/hanzivid/pkg/segment"
	"github.com/japaniel/hanzivid/pkg/source"
	"github.com/japaniel/hanzivid/pkg/transcribe"
)

// StageSegmentation labels segmentation engine failures.
const StageSegmentation = "segmentation"

// WorkerPoolInterface abstracts the worker pool so tests can inject failing implementations.
type WorkerPoolInterface interface {
	Start(ctx context.Context)
	Submit(Job) error
	// SubmitCtx attempts to enqueue a job but returns promptly if ctx is canceled.
	SubmitCtx(ctx context.Context, job Job) error
	Close()
}

// Ingester processes videos. A video is owned by one worker for the length
// of an attempt; the catalog behind Resolver is shared read-only.
type Ingester struct {
	DB         *sql.DB
	Recognizer transcribe.Recognizer
	Segmenter  segment.Segmenter
	Resolver   *resolve.Resolver
	Indexer    *index.Indexer
	Describer  *source.Describer
	// Logger is used for per-video progress. nil means slog.Default().
	Logger *slog.Logger
	// OnProgress is called after each video of ProcessAll with the number of finished and total videos.
	OnProgress func(done, total int)

	// Concurrency settings
	Workers int

	// PoolFactory allows tests to inject custom worker pool implementations.
	PoolFactory func(workers, queue int) WorkerPoolInterface
}

// NewIngester creates an Ingester with the default worker count.
func NewIngester(conn *sql.DB, rec transcribe.Recognizer, seg segment.Segmenter, res *resolve.Resolver, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		DB:         conn,
		Recognizer: rec,
		Segmenter:  seg,
		Resolver:   res,
		Indexer:    index.NewIndexer(conn, logger),
		Describer:  &source.Describer{Logger: logger},
		Logger:     logger,
		Workers:    4,
	}
}

func (ig *Ingester) logger() *slog.Logger {
	if ig.Logger != nil {
		return ig.Logger
	}
	return slog.Default()
}

// AddVideo registers a source as a pending video. Adding a source that is
// already known returns the existing record with created false.
func (ig *Ingester) AddVideo(ctx context.Context, src string) (domain.VideoRecord, bool, error) {
	d := ig.Describer
	if d == nil {
		d = &source.Describer{Logger: ig.Logger}
	}
	info, err := d.Describe(ctx, src)
	if err != nil {
		return domain.VideoRecord{}, false, err
	}
	v, created, err := db.CreateOrGetVideo(ctx, ig.DB, info.Source, info.Title)
	if err != nil {
		return domain.VideoRecord{}, false, err
	}
	if created {
		ig.logger().Info("video added",
			slog.String("video_id", v.ID),
			slog.String("source", v.Source),
			slog.String("kind", string(info.Kind)))
	}
	return v, created, nil
}

// Process runs one attempt for a pending video. On failure the video is
// marked failed with the error as its reason; a cancelled attempt is marked
// failed with reason "cancelled" and the returned error wraps
// domain.ErrCancelled. Nothing accumulated by a failed attempt is kept.
func (ig *Ingester) Process(ctx context.Context, videoID string) (index.Result, error) {
	v, err := db.BeginAttempt(ctx, ig.DB, videoID)
	if err != nil {
		return index.Result{}, err
	}
	log := ig.logger().With(slog.String("video_id", v.ID), slog.String("attempt_id", v.AttemptID))
	log.Info("processing video", slog.String("source", v.Source), slog.Int("attempt", v.Attempt))

	res, err := ig.run(ctx, v)
	if err == nil {
		return res, nil
	}

	reason := err.Error()
	if ctx.Err() != nil {
		reason = domain.ReasonCancelled
		err = fmt.Errorf("video %s: %w: %w", v.ID, domain.ErrCancelled, ctx.Err())
	}
	// The attempt's context may already be done; the failure must still be recorded.
	if ferr := db.FailAttempt(context.WithoutCancel(ctx), ig.DB, v.ID, v.AttemptID, reason); ferr != nil {
		log.Error("could not record failed attempt", slog.Any("error", ferr))
		return index.Result{}, errors.Join(err, ferr)
	}
	log.Warn("video failed", slog.String("reason", reason))
	return index.Result{}, err
}

func (ig *Ingester) run(ctx context.Context, v domain.VideoRecord) (index.Result, error) {
	segs, err := ig.Recognizer.Recognize(ctx, v.Source)
	if err != nil {
		return index.Result{}, err
	}

	acc := index.NewAccumulator(v.ID)
	for i, seg := range segs {
		if err := ctx.Err(); err != nil {
			return index.Result{}, err
		}
		if err := ig.indexSegment(ctx, acc, seg); err != nil {
			return index.Result{}, fmt.Errorf("segment %d: %w", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return index.Result{}, err
	}
	return ig.Indexer.Finalize(ctx, acc, v.AttemptID)
}

func (ig *Ingester) indexSegment(ctx context.Context, acc *index.Accumulator, seg domain.Segment) error {
	if err := align.ValidateSegment(seg); err != nil {
		return err
	}
	acc.AddSegment(seg)

	tokens, err := ig.Segmenter.Segment(ctx, seg.Text)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedSegment) || ctx.Err() != nil {
			return err
		}
		return domain.NewCollaboratorError(StageSegmentation, err)
	}
	timed, err := align.Interpolate(seg, tokens)
	if err != nil {
		return err
	}
	for _, tt := range timed {
		if !segment.HasHan(tt.Text) {
			continue
		}
		ig.resolveToken(acc, tt, seg)
	}
	return nil
}

// resolveToken matches catalog words left to right inside a token. A prefix
// match narrows the token's interval and the rest of the token is resolved
// the same way. Each run of unmatched characters counts once as unclassified.
func (ig *Ingester) resolveToken(acc *index.Accumulator, tt domain.TimedToken, seg domain.Segment) {
	runes := []rune(tt.Text)
	missing := false
	for pos := 0; pos < len(runes); {
		m, ok := ig.Resolver.Resolve(string(runes[pos:]))
		if !ok {
			if !missing {
				acc.Unclassified()
				missing = true
			}
			pos++
			continue
		}
		start, end := align.Span(tt, pos, pos+m.Length)
		acc.Record(m.Entry, start, end, seg)
		pos += m.Length
		missing = false
	}
}

// Outcome is the result of one video in ProcessAll.
type Outcome struct {
	VideoID string
	Result  index.Result
	Err     error
}

// Summary tallies a ProcessAll run.
type Summary struct {
	Indexed   int
	Failed    int
	Cancelled int
	Skipped   int
	Outcomes  []Outcome
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch {
	case o.Err == nil:
		s.Indexed++
	case errors.Is(o.Err, domain.ErrCancelled), errors.Is(o.Err, context.Canceled), errors.Is(o.Err, context.DeadlineExceeded):
		s.Cancelled++
	case errors.Is(o.Err, domain.ErrInvalidTransition), errors.Is(o.Err, domain.ErrNotFound):
		// Another process took the video or it was removed.
		s.Skipped++
	default:
		s.Failed++
	}
}

// ProcessAll processes every pending video concurrently, one video per
// worker. A failed video never stops the others. When ctx is cancelled,
// videos in flight are marked cancelled and videos not yet started stay
// pending; the returned error then wraps domain.ErrCancelled.
func (ig *Ingester) ProcessAll(ctx context.Context) (Summary, error) {
	var summary Summary
	videos, err := db.ListVideos(ctx, ig.DB, db.VideoFilter{Statuses: []domain.Status{domain.StatusPending}})
	if err != nil {
		return summary, fmt.Errorf("list pending videos: %w", err)
	}
	total := len(videos)
	if total == 0 {
		return summary, nil
	}

	workers := ig.Workers
	if workers <= 0 {
		workers = 1
	}
	var wp WorkerPoolInterface
	if ig.PoolFactory != nil {
		wp = ig.PoolFactory(workers, workers*2)
	} else {
		wp = NewWorkerPool(workers, workers*2)
	}
	wp.Start(ctx)

	var (
		mu   sync.Mutex
		done atomic.Int64
	)
	var submitErr error
	for _, v := range videos {
		id := v.ID
		job := func(ctx context.Context) error {
			res, err := ig.Process(ctx, id)
			mu.Lock()
			summary.add(Outcome{VideoID: id, Result: res, Err: err})
			mu.Unlock()
			if ig.OnProgress != nil {
				ig.OnProgress(int(done.Add(1)), total)
			}
			return err
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			if ctx.Err() == nil {
				submitErr = fmt.Errorf("submit video %s: %w", id, err)
			}
			break
		}
	}
	wp.Close()

	mu.Lock()
	defer mu.Unlock()
	ig.logger().Info("processing run finished",
		slog.Int("videos", total),
		slog.Int("indexed", summary.Indexed),
		slog.Int("failed", summary.Failed),
		slog.Int("cancelled", summary.Cancelled),
		slog.Int("skipped", summary.Skipped))
	if submitErr != nil {
		return summary, submitErr
	}
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("%w: %w", domain.ErrCancelled, err)
	}
	return summary, nil
}

// Retry moves a failed video back to pending.
func (ig *Ingester) Retry(ctx context.Context, videoID string) error {
	return ig.requeue(ctx, videoID, domain.StatusFailed)
}

// Reprocess moves an indexed video back to pending. Its occurrences stay
// queryable until the next attempt commits.
func (ig *Ingester) Reprocess(ctx context.Context, videoID string) error {
	return ig.requeue(ctx, videoID, domain.StatusIndexed)
}

func (ig *Ingester) requeue(ctx context.Context, videoID string, from domain.Status) error {
	if err := db.TransitionVideo(ctx, ig.DB, videoID, from, domain.StatusPending, ""); err != nil {
		return err
	}
	ig.logger().Info("video queued", slog.String("video_id", videoID), slog.String("from", string(from)))
	return nil
}

// Recover marks videos abandoned in transcribing by a previous process as
// failed with reason "interrupted" so they can be retried.
func (ig *Ingester) Recover(ctx context.Context) (int64, error) {
	n, err := db.RecoverInterrupted(ctx, ig.DB)
	if err != nil {
		return 0, fmt.Errorf("recover interrupted videos: %w", err)
	}
	if n > 0 {
		ig.logger().Warn("recovered interrupted videos", slog.Int64("count", n))
	}
	return n, nil
}

// Remove deletes a video and everything indexed for it.
func (ig *Ingester) Remove(ctx context.Context, videoID string) error {
	if err := db.DeleteVideo(ctx, ig.DB, videoID); err != nil {
		return err
	}
	ig.logger().Info("video removed", slog.String("video_id", videoID))
	return nil
}
