package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/japaniel/hanzivid/pkg/domain"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var videoColumns = []string{
	"id", "source", "title", "status", "failure_reason",
	"attempt", "attempt_id", "created_at", "updated_at", "indexed_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVideo(row rowScanner) (domain.VideoRecord, error) {
	var (
		v         domain.VideoRecord
		status    string
		indexedAt sql.NullTime
	)
	err := row.Scan(&v.ID, &v.Source, &v.Title, &status, &v.FailureReason,
		&v.Attempt, &v.AttemptID, &v.CreatedAt, &v.UpdatedAt, &indexedAt)
	if err != nil {
		return domain.VideoRecord{}, err
	}
	if v.Status, err = domain.ParseStatus(status); err != nil {
		return domain.VideoRecord{}, err
	}
	if indexedAt.Valid {
		t := indexedAt.Time
		v.IndexedAt = &t
	}
	return v, nil
}

func now() time.Time { return time.Now().UTC() }

// CreateOrGetVideo returns the existing video for source or inserts a new
// pending one. created reports whether a row was inserted.
func CreateOrGetVideo(ctx context.Context, db DBExecutor, source, title string) (v domain.VideoRecord, created bool, err error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return domain.VideoRecord{}, false, fmt.Errorf("source must be non-empty")
	}

	const maxRetries = 3
	for attempt := 0; attempt < maxRetries; attempt++ {
		v, err = GetVideoBySource(ctx, db, source)
		if err == nil {
			return v, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.VideoRecord{}, false, err
		}

		ts := now()
		v = domain.VideoRecord{
			ID:        uuid.NewString(),
			Source:    source,
			Title:     title,
			Status:    domain.StatusPending,
			CreatedAt: ts,
			UpdatedAt: ts,
		}
		query, args, err := sq.Insert("videos").
			Columns("id", "source", "title", "status", "created_at", "updated_at").
			Values(v.ID, v.Source, v.Title, string(v.Status), v.CreatedAt, v.UpdatedAt).
			ToSql()
		if err != nil {
			return domain.VideoRecord{}, false, err
		}
		if _, err := db.ExecContext(ctx, query, args...); err != nil {
			// Another writer registered the same source; read it back.
			if isUniqueConstraintErr(err) {
				continue
			}
			return domain.VideoRecord{}, false, fmt.Errorf("insert video: %w", err)
		}
		return v, true, nil
	}
	return domain.VideoRecord{}, false, fmt.Errorf("could not create or get video after %d retries", maxRetries)
}

func getVideoWhere(ctx context.Context, db DBExecutor, pred sq.Eq) (domain.VideoRecord, error) {
	query, args, err := sq.Select(videoColumns...).From("videos").Where(pred).ToSql()
	if err != nil {
		return domain.VideoRecord{}, err
	}
	v, err := scanVideo(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.VideoRecord{}, fmt.Errorf("video %v: %w", pred, domain.ErrNotFound)
	}
	return v, err
}

// GetVideo loads a video by id.
func GetVideo(ctx context.Context, db DBExecutor, id string) (domain.VideoRecord, error) {
	return getVideoWhere(ctx, db, sq.Eq{"id": id})
}

// GetVideoBySource loads a video by its source path or URL.
func GetVideoBySource(ctx context.Context, db DBExecutor, source string) (domain.VideoRecord, error) {
	return getVideoWhere(ctx, db, sq.Eq{"source": source})
}

// ListVideos returns videos ordered by creation time.
func ListVideos(ctx context.Context, db DBExecutor, f VideoFilter) ([]domain.VideoRecord, error) {
	b := sq.Select(videoColumns...).From("videos").OrderBy("created_at ASC", "id ASC")
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		b = b.Where(sq.Eq{"status": statuses})
	}
	if f.Limit > 0 {
		b = b.Limit(f.Limit)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.VideoRecord
	for rows.Next() {
		v, err := scanVideo(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountVideos returns the number of videos per status.
func CountVideos(ctx context.Context, db DBExecutor) (map[domain.Status]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM videos GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[domain.Status]int)
	for rows.Next() {
		var (
			s string
			n int
		)
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[domain.Status(s)] = n
	}
	return out, rows.Err()
}

// TransitionVideo moves a video from one status to another. The update is a
// compare-and-set on the current status, so concurrent callers cannot both
// succeed.
func TransitionVideo(ctx context.Context, db DBExecutor, id string, from, to domain.Status, reason string) error {
	if err := from.CheckTransition(to); err != nil {
		return err
	}
	query, args, err := sq.Update("videos").
		Set("status", string(to)).
		Set("failure_reason", reason).
		Set("updated_at", now()).
		Where(sq.Eq{"id": id, "status": string(from)}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("transition video %s: %w", id, err)
	}
	return checkCAS(ctx, db, res, id, from, to)
}

// checkCAS turns a zero-row update into ErrNotFound or ErrInvalidTransition.
func checkCAS(ctx context.Context, db DBExecutor, res sql.Result, id string, from, to domain.Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := GetVideo(ctx, db, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: video %s is %s, expected %s -> %s", domain.ErrInvalidTransition, id, cur.Status, from, to)
}

// withTx runs fn in a transaction, committing when it returns nil.
func withTx(ctx context.Context, conn *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// BeginAttempt moves a pending video to transcribing under a fresh attempt
// id and records the attempt.
func BeginAttempt(ctx context.Context, conn *sql.DB, videoID string) (domain.VideoRecord, error) {
	var v domain.VideoRecord
	err := withTx(ctx, conn, func(tx *sql.Tx) error {
		attemptID := uuid.NewString()
		ts := now()
		query, args, err := sq.Update("videos").
			Set("status", string(domain.StatusTranscribing)).
			Set("failure_reason", "").
			Set("attempt", sq.Expr("attempt + 1")).
			Set("attempt_id", attemptID).
			Set("updated_at", ts).
			Where(sq.Eq{"id": videoID, "status": string(domain.StatusPending)}).
			ToSql()
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("begin attempt %s: %w", videoID, err)
		}
		if err := checkCAS(ctx, tx, res, videoID, domain.StatusPending, domain.StatusTranscribing); err != nil {
			return err
		}
		if v, err = GetVideo(ctx, tx, videoID); err != nil {
			return err
		}

		query, args, err = sq.Insert("video_attempts").
			Columns("id", "video_id", "attempt", "status", "started_at").
			Values(attemptID, videoID, v.Attempt, string(domain.StatusTranscribing), ts).
			ToSql()
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	return v, err
}

// FailAttempt marks the attempt failed. It returns ErrStaleAttempt when the
// video has moved on to another attempt or status.
func FailAttempt(ctx context.Context, conn *sql.DB, videoID, attemptID, reason string) error {
	return withTx(ctx, conn, func(tx *sql.Tx) error {
		ts := now()
		if err := finishAttempt(ctx, tx, videoID, attemptID, domain.StatusFailed, reason, ts); err != nil {
			return err
		}
		query, args, err := sq.Update("videos").
			Set("status", string(domain.StatusFailed)).
			Set("failure_reason", reason).
			Set("updated_at", ts).
			Where(sq.Eq{"id": videoID, "attempt_id": attemptID, "status": string(domain.StatusTranscribing)}).
			ToSql()
		if err != nil {
			return err
		}
		return execGuarded(ctx, tx, query, args, videoID, attemptID)
	})
}

func finishAttempt(ctx context.Context, tx *sql.Tx, videoID, attemptID string, status domain.Status, reason string, ts time.Time) error {
	query, args, err := sq.Update("video_attempts").
		Set("status", string(status)).
		Set("failure_reason", reason).
		Set("finished_at", ts).
		Where(sq.Eq{"id": attemptID, "video_id": videoID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// execGuarded runs an update guarded by attempt id and reports a stale
// attempt when nothing matched.
func execGuarded(ctx context.Context, tx *sql.Tx, query string, args []any, videoID, attemptID string) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: video %s attempt %s", domain.ErrStaleAttempt, videoID, attemptID)
	}
	return nil
}

// ListAttempts returns a video's attempts, oldest first.
func ListAttempts(ctx context.Context, db DBExecutor, videoID string) ([]Attempt, error) {
	query, args, err := sq.Select("id", "video_id", "attempt", "status", "failure_reason", "started_at", "finished_at").
		From("video_attempts").
		Where(sq.Eq{"video_id": videoID}).
		OrderBy("attempt ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var (
			a        Attempt
			status   string
			finished sql.NullTime
		)
		if err := rows.Scan(&a.ID, &a.VideoID, &a.Attempt, &status, &a.FailureReason, &a.StartedAt, &finished); err != nil {
			return nil, err
		}
		a.Status = domain.Status(status)
		if finished.Valid {
			t := finished.Time
			a.FinishedAt = &t
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RecoverInterrupted fails every video left in transcribing, e.g. by a
// process that died mid-attempt. It returns the number of videos reset.
func RecoverInterrupted(ctx context.Context, conn *sql.DB) (int64, error) {
	var n int64
	err := withTx(ctx, conn, func(tx *sql.Tx) error {
		ts := now()
		_, err := tx.ExecContext(ctx, `UPDATE video_attempts SET status = ?, failure_reason = ?, finished_at = ?
			WHERE finished_at IS NULL AND id IN (SELECT attempt_id FROM videos WHERE status = ?)`,
			string(domain.StatusFailed), domain.ReasonInterrupted, ts, string(domain.StatusTranscribing))
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE videos SET status = ?, failure_reason = ?, updated_at = ? WHERE status = ?`,
			string(domain.StatusFailed), domain.ReasonInterrupted, ts, string(domain.StatusTranscribing))
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	return n, err
}

// DeleteVideo removes a video together with its occurrences, stats and
// attempts.
func DeleteVideo(ctx context.Context, db DBExecutor, id string) error {
	query, args, err := sq.Delete("videos").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("delete video %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("video %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
