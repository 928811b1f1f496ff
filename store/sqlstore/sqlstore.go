// Package sqlstore implements store.Store on top of database/sql for SQLite and PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"zako_server/models"
	"zako_server/store"
)

// Options configures Open.
type Options struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// Store is a relational store.Store.
type Store struct {
	db  *sql.DB
	d   dialect
	log *zap.Logger
}

var _ store.Store = (*Store)(nil)

const participantColumns = `id, session_token, client_id, display_name, remote_address, user_agent,
	detected_os, geo_location, isp, comment, like_count, created_at`

// Open connects, waits for the database to answer and applies pending migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := dialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}
	dsn, err := d.prepareDSN(opts.DSN)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := sql.Open(d.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name(), err)
	}
	if d.name() == DriverSQLite {
		// one writer at a time; transactions never wait on each other's locks
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = timeout
	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			logger.Warn("Database not reachable yet", zap.String("driver", d.name()), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		db.Close()
		return nil, &store.Error{Kind: store.KindConnectionFailure, Err: fmt.Errorf("connect %s: %w", d.name(), err)}
	}

	if err := migrateUp(db, d); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Database ready", zap.String("driver", d.name()))
	return &Store{db: db, d: d, log: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &store.Error{Kind: store.KindConnectionFailure, Err: err}
	}
	return nil
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) q(query string) string {
	return s.d.rebind(query)
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.d.classify(err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.log.Warn("Rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return s.d.classify(tx.Commit())
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (*models.Participant, error) {
	var (
		p         models.Participant
		clientID  sql.NullString
		comment   sql.NullString
		createdAt int64
	)
	err := row.Scan(&p.ID, &p.SessionToken, &clientID, &p.DisplayName, &p.RemoteAddress, &p.UserAgent,
		&p.DetectedOS, &p.GeoLocation, &p.ISP, &comment, &p.LikeCount, &createdAt)
	if err != nil {
		return nil, err
	}
	p.ClientID = clientID.String
	p.Comment = comment.String
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func (s *Store) participantWhere(ctx context.Context, what, clause string, arg any) (*models.Participant, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+participantColumns+` FROM participants WHERE `+clause), arg)
	p, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(what)
	}
	if err != nil {
		return nil, s.d.classify(err)
	}
	return p, nil
}

func (s *Store) ParticipantByClientID(ctx context.Context, clientID string) (*models.Participant, error) {
	if clientID == "" {
		return nil, store.NotFound("participant by client id")
	}
	return s.participantWhere(ctx, "participant by client id", "client_id = ?", clientID)
}

func (s *Store) ParticipantBySessionToken(ctx context.Context, token string) (*models.Participant, error) {
	if token == "" {
		return nil, store.NotFound("participant by session token")
	}
	return s.participantWhere(ctx, "participant by session token", "session_token = ?", token)
}

func (s *Store) ParticipantByID(ctx context.Context, id int64) (*models.Participant, error) {
	return s.participantWhere(ctx, "participant by id", "id = ?", id)
}

func (s *Store) RebindSessionToken(ctx context.Context, participantID int64, token string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.q(`UPDATE participants SET session_token = ? WHERE id = ?`), token, participantID)
		if err != nil {
			return s.d.classify(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return s.d.classify(err)
		}
		if n == 0 {
			return store.NotFound("participant to rebind")
		}
		return nil
	})
}

func (s *Store) CreateParticipant(ctx context.Context, p *models.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.DisplayName == "" {
		p.DisplayName = models.DefaultDisplayName
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, s.q(`INSERT INTO participants
			(session_token, client_id, display_name, remote_address, user_agent, detected_os, geo_location, isp, comment, like_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?) RETURNING id`),
			p.SessionToken, nullString(p.ClientID), p.DisplayName, p.RemoteAddress, p.UserAgent,
			p.DetectedOS, p.GeoLocation, p.ISP, nullString(p.Comment), toMillis(p.CreatedAt))
		if err := row.Scan(&p.ID); err != nil {
			return s.d.classify(err)
		}
		p.LikeCount = 0
		return nil
	})
}

func (s *Store) AddLike(ctx context.Context, likerClientID string, likedParticipantID int64) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		// the liker row stays locked until commit, so a concurrent delete
		// either runs first (and the like fails) or sees this edge
		var likerID int64
		row := tx.QueryRowContext(ctx, s.q(`SELECT id FROM participants WHERE client_id = ?`+s.d.lockRow(lockKeyShare)), likerClientID)
		if err := row.Scan(&likerID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.NotFoundOn(store.ConstraintLiker, "liker "+likerClientID)
			}
			return s.d.classify(err)
		}

		_, err := tx.ExecContext(ctx, s.q(`INSERT INTO like_edges (liker_client_id, liked_participant_id, created_at) VALUES (?, ?, ?)`),
			likerClientID, likedParticipantID, toMillis(time.Now()))
		if err != nil {
			err = s.d.classify(err)
			if store.IsForeignKeyViolation(err) {
				return store.NotFound("liked participant")
			}
			return err
		}
		row = tx.QueryRowContext(ctx, s.q(`UPDATE participants SET like_count = like_count + 1 WHERE id = ? RETURNING like_count`), likedParticipantID)
		if err := row.Scan(&count); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.NotFound("liked participant")
			}
			return s.d.classify(err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) DeleteParticipantByClientID(ctx context.Context, clientID string) (store.DeleteResult, error) {
	var result store.DeleteResult
	if clientID == "" {
		return result, store.NotFound("participant by client id")
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		result = store.DeleteResult{}
		row := tx.QueryRowContext(ctx, s.q(`SELECT id FROM participants WHERE client_id = ?`+s.d.lockRow(lockUpdate)), clientID)
		if err := row.Scan(&result.ParticipantID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.NotFound("participant by client id")
			}
			return s.d.classify(err)
		}

		// only edges actually removed by this statement are decremented
		rows, err := tx.QueryContext(ctx, s.q(`DELETE FROM like_edges WHERE liker_client_id = ? RETURNING liked_participant_id`), clientID)
		if err != nil {
			return s.d.classify(err)
		}
		var targets []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return s.d.classify(err)
			}
			targets = append(targets, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return s.d.classify(err)
		}
		rows.Close()

		for _, id := range targets {
			if id == result.ParticipantID {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.q(`UPDATE participants SET like_count = like_count - 1 WHERE id = ?`), id); err != nil {
				return s.d.classify(err)
			}
		}
		result.OutgoingEdges = int64(len(targets))

		res, err := tx.ExecContext(ctx, s.q(`DELETE FROM like_edges WHERE liked_participant_id = ?`), result.ParticipantID)
		if err != nil {
			return s.d.classify(err)
		}
		if result.IncomingEdges, err = res.RowsAffected(); err != nil {
			return s.d.classify(err)
		}

		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM participants WHERE id = ?`), result.ParticipantID); err != nil {
			return s.d.classify(err)
		}
		return nil
	})
	if err != nil {
		return store.DeleteResult{}, err
	}
	return result, nil
}

func (s *Store) UpdateDisplayName(ctx context.Context, participantID int64, name string) error {
	return s.updateField(ctx, `UPDATE participants SET display_name = ? WHERE id = ?`, name, participantID)
}

func (s *Store) UpdateComment(ctx context.Context, participantID int64, comment string) error {
	return s.updateField(ctx, `UPDATE participants SET comment = ? WHERE id = ?`, nullString(comment), participantID)
}

func (s *Store) updateField(ctx context.Context, query string, value any, participantID int64) error {
	res, err := s.db.ExecContext(ctx, s.q(query), value, participantID)
	if err != nil {
		return s.d.classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return s.d.classify(err)
	}
	if n == 0 {
		return store.NotFound("participant")
	}
	return nil
}

func (s *Store) ListParticipants(ctx context.Context, limit int) ([]models.Participant, error) {
	query := `SELECT ` + participantColumns + ` FROM participants ORDER BY created_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, s.d.classify(err)
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, s.d.classify(err)
		}
		participants = append(participants, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.d.classify(err)
	}
	return participants, nil
}

func (s *Store) CountParticipants(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM participants`).Scan(&n); err != nil {
		return 0, s.d.classify(err)
	}
	return n, nil
}

func (s *Store) LikedParticipantIDs(ctx context.Context, likerClientID string) ([]int64, error) {
	ids := []int64{}
	if likerClientID == "" {
		return ids, nil
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT liked_participant_id FROM like_edges WHERE liker_client_id = ? ORDER BY liked_participant_id`), likerClientID)
	if err != nil {
		return nil, s.d.classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, s.d.classify(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, s.d.classify(err)
	}
	return ids, nil
}

func (s *Store) LikeEdgesTo(ctx context.Context, participantID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(*) FROM like_edges WHERE liked_participant_id = ?`), participantID).Scan(&n)
	if err != nil {
		return 0, s.d.classify(err)
	}
	return n, nil
}

func (s *Store) LikeCountMismatches(ctx context.Context) ([]models.CountMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT p.id, p.like_count, COUNT(e.id)
		FROM participants p
		LEFT JOIN like_edges e ON e.liked_participant_id = p.id
		GROUP BY p.id, p.like_count
		HAVING p.like_count <> COUNT(e.id)
		ORDER BY p.id`)
	if err != nil {
		return nil, s.d.classify(err)
	}
	defer rows.Close()

	mismatches := []models.CountMismatch{}
	for rows.Next() {
		var m models.CountMismatch
		if err := rows.Scan(&m.ParticipantID, &m.LikeCount, &m.EdgeCount); err != nil {
			return nil, s.d.classify(err)
		}
		mismatches = append(mismatches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, s.d.classify(err)
	}
	return mismatches, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
