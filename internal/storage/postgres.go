package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/classroom/internal/classroom"
	"github.com/your-org/classroom/internal/config"
	"github.com/your-org/classroom/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Students ---

func (s *PostgresStore) CreateStudent(ctx context.Context, name string, metadata json.RawMessage) (*models.Student, error) {
	if metadata == nil {
		metadata = json.RawMessage("{}")
	}
	st := &models.Student{
		ID:       uuid.New(),
		Name:     name,
		Metadata: metadata,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO students (id, name, metadata) VALUES ($1, $2, $3) RETURNING created_at, updated_at`,
		st.ID, st.Name, st.Metadata,
	).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create student: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	st := &models.Student{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, metadata, created_at, updated_at FROM students WHERE id = $1`, id,
	).Scan(&st.ID, &st.Name, &st.Metadata, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (s *PostgresStore) ListStudents(ctx context.Context) ([]models.Student, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, metadata, created_at, updated_at FROM students ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []models.Student
	for rows.Next() {
		var st models.Student
		if err := rows.Scan(&st.ID, &st.Name, &st.Metadata, &st.CreatedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	return students, nil
}

func (s *PostgresStore) CountFaces(ctx context.Context, studentID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM student_embeddings WHERE student_id = $1`, studentID,
	).Scan(&count)
	return count, err
}

// --- Student embeddings ---

func (s *PostgresStore) AddStudentEmbedding(ctx context.Context, studentID uuid.UUID, embedding []float32, quality float32, sourceKey string) (*models.StudentEmbedding, error) {
	se := &models.StudentEmbedding{
		ID:        uuid.New(),
		StudentID: studentID,
		Embedding: embedding,
		Quality:   quality,
		SourceKey: sourceKey,
	}
	vec := pgvector.NewVector(embedding)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO student_embeddings (id, student_id, embedding, quality, source_key) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		se.ID, se.StudentID, vec, se.Quality, se.SourceKey,
	).Scan(&se.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("add student embedding: %w", err)
	}
	return se, nil
}

func (s *PostgresStore) DeleteStudentEmbedding(ctx context.Context, studentID, embeddingID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM student_embeddings WHERE id = $1 AND student_id = $2`, embeddingID, studentID)
	if err != nil {
		return fmt.Errorf("delete student embedding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("student embedding not found")
	}
	return nil
}

func (s *PostgresStore) ListStudentEmbeddings(ctx context.Context, studentID uuid.UUID) ([]models.StudentEmbedding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, student_id, quality, source_key, created_at FROM student_embeddings WHERE student_id = $1 ORDER BY created_at DESC`,
		studentID)
	if err != nil {
		return nil, fmt.Errorf("list student embeddings: %w", err)
	}
	defer rows.Close()

	var embeddings []models.StudentEmbedding
	for rows.Next() {
		var se models.StudentEmbedding
		if err := rows.Scan(&se.ID, &se.StudentID, &se.Quality, &se.SourceKey, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan student embedding: %w", err)
		}
		embeddings = append(embeddings, se)
	}
	return embeddings, nil
}

// SearchFaces finds the closest matching students for a given embedding
// via pgvector cosine distance, for ad-hoc API lookups.
func (s *PostgresStore) SearchFaces(ctx context.Context, embedding []float32, threshold float64, limit int) ([]SearchMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.pool.Query(ctx, `
		SELECT se.student_id, st.name, 1 - (se.embedding <=> $1) AS score
		FROM student_embeddings se
		JOIN students st ON st.id = se.student_id
		WHERE 1 - (se.embedding <=> $1) >= $2
		ORDER BY se.embedding <=> $1
		LIMIT $3`, vec, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("search faces: %w", err)
	}
	defer rows.Close()

	var matches []SearchMatch
	for rows.Next() {
		var m SearchMatch
		if err := rows.Scan(&m.StudentID, &m.Name, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// KnownFaces loads every enrolled embedding, implementing
// classroom.KnownEmbeddingProvider for the identity resolver's catalog
// refresh.
func (s *PostgresStore) KnownFaces(ctx context.Context) ([]classroom.KnownFace, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT se.student_id, st.name, se.embedding FROM student_embeddings se JOIN students st ON st.id = se.student_id`)
	if err != nil {
		return nil, fmt.Errorf("load known faces: %w", err)
	}
	defer rows.Close()

	var known []classroom.KnownFace
	for rows.Next() {
		var studentID uuid.UUID
		var name string
		var vec pgvector.Vector
		if err := rows.Scan(&studentID, &name, &vec); err != nil {
			return nil, fmt.Errorf("scan known face: %w", err)
		}
		known = append(known, classroom.KnownFace{
			StudentID:   studentID.String(),
			StudentName: name,
			Embedding:   vec.Slice(),
		})
	}
	return known, nil
}

type SearchMatch struct {
	StudentID uuid.UUID `json:"student_id"`
	Name      string    `json:"name"`
	Score     float32   `json:"score"`
}

// --- Sessions ---

func (s *PostgresStore) CreateSession(ctx context.Context, sess *models.Session) error {
	sess.ID = uuid.New()
	sess.Status = models.SessionStatusStopped
	if sess.Config == nil {
		sess.Config = json.RawMessage("{}")
	}
	return s.pool.QueryRow(ctx,
		`INSERT INTO sessions (id, name, target_fps, status, config)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at, updated_at`,
		sess.ID, sess.Name, sess.TargetFPS, sess.Status, sess.Config,
	).Scan(&sess.CreatedAt, &sess.UpdatedAt)
}

func (s *PostgresStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	sess := &models.Session{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, target_fps, status, config, error_message, created_at, updated_at
		 FROM sessions WHERE id = $1`, id,
	).Scan(&sess.ID, &sess.Name, &sess.TargetFPS, &sess.Status,
		&sess.Config, &sess.ErrorMessage, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, target_fps, status, config, error_message, created_at, updated_at
		 FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var sess models.Session
		if err := rows.Scan(&sess.ID, &sess.Name, &sess.TargetFPS, &sess.Status,
			&sess.Config, &sess.ErrorMessage, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, nil
}

func (s *PostgresStore) UpdateSessionStatus(ctx context.Context, id uuid.UUID, status models.SessionStatus, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $1, error_message = $2 WHERE id = $3`,
		status, errMsg, id)
	return err
}

func (s *PostgresStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session not found")
	}
	return nil
}

// --- Session events ---

func (s *PostgresStore) CreateSessionEvent(ctx context.Context, ev *models.SessionEvent) error {
	ev.ID = uuid.New()
	ev.CreatedAt = time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO session_events (id, session_id, track_id, event_type, timestamp, matched_student_id, match_score, attention_score, posture_score, snapshot_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.SessionID, ev.TrackID, ev.EventType, ev.Timestamp,
		ev.MatchedStudent, ev.MatchScore, ev.AttentionScore, ev.PostureScore, ev.SnapshotKey, ev.CreatedAt)
	return err
}

func (s *PostgresStore) QuerySessionEvents(ctx context.Context, sessionID uuid.UUID, from, to *time.Time, studentID *uuid.UUID, eventType string, limit, offset int) ([]models.SessionEvent, int, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	baseWhere := "WHERE session_id = $1"
	args := []interface{}{sessionID}
	argIdx := 2

	if from != nil {
		baseWhere += fmt.Sprintf(" AND timestamp >= $%d", argIdx)
		args = append(args, *from)
		argIdx++
	}
	if to != nil {
		baseWhere += fmt.Sprintf(" AND timestamp <= $%d", argIdx)
		args = append(args, *to)
		argIdx++
	}
	if studentID != nil {
		baseWhere += fmt.Sprintf(" AND matched_student_id = $%d", argIdx)
		args = append(args, *studentID)
		argIdx++
	}
	if eventType != "" {
		baseWhere += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, eventType)
		argIdx++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM session_events " + baseWhere
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count session events: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, session_id, track_id, event_type, timestamp, matched_student_id, match_score, attention_score, posture_score, snapshot_key, created_at
		 FROM session_events %s ORDER BY timestamp DESC LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query session events: %w", err)
	}
	defer rows.Close()

	var events []models.SessionEvent
	for rows.Next() {
		var ev models.SessionEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.TrackID, &ev.EventType, &ev.Timestamp,
			&ev.MatchedStudent, &ev.MatchScore, &ev.AttentionScore, &ev.PostureScore, &ev.SnapshotKey, &ev.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan session event: %w", err)
		}
		events = append(events, ev)
	}
	return events, total, nil
}

// GetSessionEvent returns a single session event by ID.
func (s *PostgresStore) GetSessionEvent(ctx context.Context, id uuid.UUID) (*models.SessionEvent, error) {
	var ev models.SessionEvent
	err := s.pool.QueryRow(ctx,
		`SELECT id, session_id, track_id, event_type, timestamp, matched_student_id, match_score, attention_score, posture_score, snapshot_key, created_at
		 FROM session_events WHERE id = $1`, id).
		Scan(&ev.ID, &ev.SessionID, &ev.TrackID, &ev.EventType, &ev.Timestamp,
			&ev.MatchedStudent, &ev.MatchScore, &ev.AttentionScore, &ev.PostureScore, &ev.SnapshotKey, &ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get session event: %w", err)
	}
	return &ev, nil
}
