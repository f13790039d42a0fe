package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/handcam/internal/models"
)

// PostgresConfig holds connection details for PostgreSQL
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ConnString builds the postgres:// URL for c
func (c PostgresConfig) ConnString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}

// PostgresStorage writes detection records to PostgreSQL. Each box is also stored as a
// normalised vector(4) so similar detections can be searched with pgvector.
type PostgresStorage struct {
	pool        *pgxpool.Pool
	sessionID   int
	sessionName string
	logger      *slog.Logger
}

// ErrSessionNotFound is returned when opening a session that was never recorded
var ErrSessionNotFound = errors.New("session not found")

// rowQuerier is the part of a pool the session lookups need
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func connect(ctx context.Context, config PostgresConfig) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, config.ConnString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// NewPostgresStorage creates a new PostgreSQL storage connection bound to one session,
// creating the session row when it does not exist yet
func NewPostgresStorage(ctx context.Context, config PostgresConfig, sessionName string, logger *slog.Logger) (*PostgresStorage, error) {
	return openStorage(ctx, config, sessionName, logger, getOrCreateSession)
}

// OpenPostgresSession connects to an existing session for reading. It never writes;
// an unknown name yields ErrSessionNotFound.
func OpenPostgresSession(ctx context.Context, config PostgresConfig, sessionName string, logger *slog.Logger) (*PostgresStorage, error) {
	return openStorage(ctx, config, sessionName, logger, lookupSession)
}

func openStorage(
	ctx context.Context,
	config PostgresConfig,
	sessionName string,
	logger *slog.Logger,
	resolve func(context.Context, rowQuerier, string) (int, error),
) (*PostgresStorage, error) {
	pool, err := connect(ctx, config)
	if err != nil {
		return nil, err
	}

	sessionID, err := resolve(ctx, pool, sessionName)
	if err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("connected to postgres", "host", config.Host, "db", config.DBName, "session", sessionName)
	return &PostgresStorage{
		pool:        pool,
		sessionID:   sessionID,
		sessionName: sessionName,
		logger:      logger,
	}, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func lookupSession(ctx context.Context, q rowQuerier, name string) (int, error) {
	var id int
	err := q.QueryRow(ctx,
		"SELECT id FROM sessions WHERE name = $1",
		name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	if err != nil {
		return 0, fmt.Errorf("error checking for existing session: %w", err)
	}
	return id, nil
}

func getOrCreateSession(ctx context.Context, q rowQuerier, name string) (int, error) {
	id, err := lookupSession(ctx, q, name)
	if !errors.Is(err, ErrSessionNotFound) {
		return id, err
	}

	err = q.QueryRow(ctx,
		"INSERT INTO sessions (name, created_at) VALUES ($1, $2) RETURNING id",
		name, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create session entry: %w", err)
	}
	return id, nil
}

// BoxVector normalises a box by the frame size so boxes from different resolutions compare
func BoxVector(box models.DetectionBox, width, height int) pgvector.Vector {
	if width <= 0 || height <= 0 {
		return pgvector.NewVector([]float32{0, 0, 0, 0})
	}
	w, h := float32(width), float32(height)
	return pgvector.NewVector([]float32{
		float32(box.Left) / w,
		float32(box.Top) / h,
		float32(box.Right) / w,
		float32(box.Bottom) / h,
	})
}

// AddResult stores the frame and its boxes in one transaction
func (s *PostgresStorage) AddResult(ctx context.Context, record models.DetectionRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var frameID int
	err = tx.QueryRow(ctx,
		`INSERT INTO frames
        (session_id, seq, captured_at, width, height, fps, last_box_size, last_center_x, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id`,
		s.sessionID, int64(record.Seq), record.Captured, record.Width, record.Height,
		record.FPS, record.LastBoxSize, record.LastCenterX, time.Now()).Scan(&frameID)
	if err != nil {
		return fmt.Errorf("failed to store frame information: %w", err)
	}

	for _, box := range record.Boxes {
		_, err = tx.Exec(ctx,
			`INSERT INTO detections
            (frame_id, box_left, box_top, box_right, box_bottom, embedding, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			frameID, box.Left, box.Top, box.Right, box.Bottom,
			BoxVector(box, record.Width, record.Height), time.Now())
		if err != nil {
			return fmt.Errorf("failed to store detection: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit frame %d: %w", record.Seq, err)
	}
	return nil
}

// Flush implements the Storage interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// SearchSimilarBoxes finds the stored detections of this session whose normalised geometry
// is closest to box on a width x height frame.
func (s *PostgresStorage) SearchSimilarBoxes(ctx context.Context, box models.DetectionBox, width, height, limit int) ([]models.BoxSearchResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT f.seq, d.box_left, d.box_top, d.box_right, d.box_bottom,
        1 - (d.embedding <=> $1) AS similarity
        FROM detections d
        JOIN frames f ON d.frame_id = f.id
        WHERE f.session_id = $2
        ORDER BY d.embedding <=> $1
        LIMIT $3`,
		BoxVector(box, width, height), s.sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar boxes: %w", err)
	}
	defer rows.Close()

	var results []models.BoxSearchResult
	for rows.Next() {
		var (
			r   models.BoxSearchResult
			seq int64
		)
		if err := rows.Scan(&seq, &r.Box.Left, &r.Box.Top, &r.Box.Right, &r.Box.Bottom, &r.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		r.SessionID = s.sessionName
		r.Seq = uint64(seq)
		results = append(results, r)
	}
	return results, rows.Err()
}

// InitSchema creates the database schema if it doesn't exist
func InitSchema(ctx context.Context, config PostgresConfig) error {
	conn, err := pgx.Connect(ctx, config.ConnString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE TABLE IF NOT EXISTS sessions (
            id SERIAL PRIMARY KEY,
            name VARCHAR(255) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(name)
        );

        CREATE TABLE IF NOT EXISTS frames (
            id SERIAL PRIMARY KEY,
            session_id INTEGER REFERENCES sessions(id) ON DELETE CASCADE,
            seq BIGINT NOT NULL,
            captured_at TIMESTAMPTZ NOT NULL,
            width INTEGER NOT NULL,
            height INTEGER NOT NULL,
            fps DOUBLE PRECISION NOT NULL,
            last_box_size INTEGER NOT NULL,
            last_center_x INTEGER NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(session_id, seq)
        );

        CREATE TABLE IF NOT EXISTS detections (
            id SERIAL PRIMARY KEY,
            frame_id INTEGER REFERENCES frames(id) ON DELETE CASCADE,
            box_left INTEGER NOT NULL,
            box_top INTEGER NOT NULL,
            box_right INTEGER NOT NULL,
            box_bottom INTEGER NOT NULL,
            embedding vector(4),
            created_at TIMESTAMPTZ NOT NULL
        );
    `)
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_session_id ON frames(session_id);
        CREATE INDEX IF NOT EXISTS idx_detections_frame_id ON detections(frame_id);
        CREATE INDEX IF NOT EXISTS idx_detections_embedding ON detections USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
