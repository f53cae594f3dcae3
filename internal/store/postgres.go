package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/localjobs/hiring-platform/internal/model"
)

// Postgres is a Store backed by PostgreSQL via pgx. The quota invariant is
// enforced by taking a row lock on the job inside one transaction, so the
// count check and the status writes cannot interleave with another decision
// on the same job. Conversation uniqueness rides on the UNIQUE constraint on
// application_id.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects a pool and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Migrate creates the schema if it does not exist.
func (p *Postgres) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id UUID PRIMARY KEY,
			employer_id TEXT NOT NULL,
			title TEXT NOT NULL,
			workers_needed INT NOT NULL DEFAULT 1 CHECK (workers_needed > 0),
			status TEXT NOT NULL DEFAULT 'open',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS job_applications (
			id UUID PRIMARY KEY,
			job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
			worker_id TEXT NOT NULL,
			worker_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'pending',
			cover_message TEXT NOT NULL DEFAULT '',
			proposed_rate NUMERIC,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (job_id, worker_id)
		)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			application_id UUID NOT NULL UNIQUE REFERENCES job_applications(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id),
			sender_id TEXT NOT NULL,
			content TEXT NOT NULL,
			system BOOLEAN NOT NULL DEFAULT false,
			sequence BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (conversation_id, sequence)
		)`,
	}

	for _, query := range queries {
		if _, err := p.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// CreateJob stores a new job.
func (p *Postgres) CreateJob(ctx context.Context, job *model.Job) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO jobs (id, employer_id, title, workers_needed, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		job.ID, job.EmployerID, job.Title, job.WorkersNeeded, job.Status, job.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrConflict
	}
	return err
}

// GetJob retrieves a job by id.
func (p *Postgres) GetJob(ctx context.Context, id string) (*model.Job, error) {
	var job model.Job
	err := p.pool.QueryRow(ctx,
		`SELECT id, employer_id, title, workers_needed, status, created_at, updated_at
		 FROM jobs WHERE id = $1`, id).
		Scan(&job.ID, &job.EmployerID, &job.Title, &job.WorkersNeeded, &job.Status, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// UpdateJobStatus sets a job's status.
func (p *Postgres) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// DeleteJob removes a job and its applications unless any is accepted.
func (p *Postgres) DeleteJob(ctx context.Context, id string) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, id).Scan(&exists)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrNotFound
		}

		var accepted bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM job_applications WHERE job_id = $1 AND status = 'accepted')`,
			id).Scan(&accepted)
		if err != nil {
			return err
		}
		if accepted {
			return model.ErrConflict
		}

		if _, err := tx.Exec(ctx, `DELETE FROM job_applications WHERE job_id = $1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
		return err
	})
}

// CreateApplication stores a new application, enforcing one per (job, worker).
func (p *Postgres) CreateApplication(ctx context.Context, app *model.Application) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO job_applications (id, job_id, worker_id, worker_name, status, cover_message, proposed_rate, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		app.ID, app.JobID, app.WorkerID, app.WorkerName, app.Status, app.CoverMessage, app.ProposedRate, app.CreatedAt)
	if isUniqueViolation(err) {
		return model.ErrDuplicateApplication
	}
	if isForeignKeyViolation(err) {
		return model.ErrNotFound
	}
	return err
}

const applicationColumns = `id, job_id, worker_id, worker_name, status, cover_message, proposed_rate, created_at, updated_at`

func scanApplication(row pgx.Row) (*model.Application, error) {
	var app model.Application
	err := row.Scan(&app.ID, &app.JobID, &app.WorkerID, &app.WorkerName, &app.Status,
		&app.CoverMessage, &app.ProposedRate, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// GetApplication retrieves an application by id.
func (p *Postgres) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanApplication(p.pool.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application %s: %w", id, err)
	}
	return app, nil
}

func (p *Postgres) listApplications(ctx context.Context, query string, arg any) ([]model.Application, error) {
	rows, err := p.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *app)
	}
	return apps, rows.Err()
}

// ListApplicationsByJob returns all applications for a job in creation order.
func (p *Postgres) ListApplicationsByJob(ctx context.Context, jobID string) ([]model.Application, error) {
	if _, err := p.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return p.listApplications(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE job_id = $1 ORDER BY created_at, id`, jobID)
}

// ListApplicationsByWorker returns a worker's applications across jobs.
func (p *Postgres) ListApplicationsByWorker(ctx context.Context, workerID string) ([]model.Application, error) {
	return p.listApplications(ctx,
		`SELECT `+applicationColumns+` FROM job_applications WHERE worker_id = $1 ORDER BY created_at, id`, workerID)
}

// RejectIfPending marks an application rejected while it is still pending.
// The status guard in the UPDATE makes the check-and-write one statement, so
// a concurrent accept that commits first cannot be overwritten.
func (p *Postgres) RejectIfPending(ctx context.Context, id string) (*model.Application, error) {
	app, err := scanApplication(p.pool.QueryRow(ctx,
		`UPDATE job_applications SET status = 'rejected', updated_at = now()
		 WHERE id = $1 AND status = 'pending' RETURNING `+applicationColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		// Missing or no longer pending; re-read to tell the two apart.
		if _, getErr := p.GetApplication(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, model.ErrAlreadyDecided
	}
	if err != nil {
		return nil, fmt.Errorf("reject application %s: %w", id, err)
	}
	return app, nil
}

// AcceptWithinQuota locks the job row, re-checks the quota and performs the
// accept plus any cascade in one transaction.
func (p *Postgres) AcceptWithinQuota(ctx context.Context, applicationID string) (*model.AcceptResult, error) {
	var result *model.AcceptResult
	err := p.withTx(ctx, func(tx pgx.Tx) error {
		app, err := scanApplication(tx.QueryRow(ctx,
			`SELECT `+applicationColumns+` FROM job_applications WHERE id = $1`, applicationID))
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		// Serializes concurrent decisions on the same job.
		var workersNeeded int
		err = tx.QueryRow(ctx,
			`SELECT workers_needed FROM jobs WHERE id = $1 FOR UPDATE`, app.JobID).Scan(&workersNeeded)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		var accepted int
		err = tx.QueryRow(ctx,
			`SELECT count(*) FROM job_applications WHERE job_id = $1 AND status = 'accepted'`,
			app.JobID).Scan(&accepted)
		if err != nil {
			return err
		}
		// Quota before pending: a racer whose application the cascade just
		// rejected observes QuotaExceeded, not AlreadyDecided.
		if accepted >= workersNeeded {
			return model.ErrQuotaExceeded
		}

		// Re-read under the job lock; the cascade may have decided it.
		app, err = scanApplication(tx.QueryRow(ctx,
			`SELECT `+applicationColumns+` FROM job_applications WHERE id = $1`, applicationID))
		if err != nil {
			return err
		}
		if app.Status != model.ApplicationStatusPending {
			return model.ErrAlreadyDecided
		}

		app, err = scanApplication(tx.QueryRow(ctx,
			`UPDATE job_applications SET status = 'accepted', updated_at = now()
			 WHERE id = $1 RETURNING `+applicationColumns, applicationID))
		if err != nil {
			return err
		}
		accepted++

		result = &model.AcceptResult{Application: app}
		if accepted == workersNeeded {
			result.QuotaFilled = true

			rows, err := tx.Query(ctx,
				`UPDATE job_applications SET status = 'rejected', updated_at = now()
				 WHERE job_id = $1 AND status = 'pending' RETURNING `+applicationColumns,
				app.JobID)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				rejected, err := scanApplication(rows)
				if err != nil {
					return err
				}
				result.AutoRejected = append(result.AutoRejected, *rejected)
			}
			if err := rows.Err(); err != nil {
				return err
			}

			_, err = tx.Exec(ctx,
				`UPDATE jobs SET status = 'assigned', updated_at = now() WHERE id = $1`, app.JobID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountAccepted returns the number of accepted applications for a job.
func (p *Postgres) CountAccepted(ctx context.Context, jobID string) (int, error) {
	if _, err := p.GetJob(ctx, jobID); err != nil {
		return 0, err
	}
	var accepted int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM job_applications WHERE job_id = $1 AND status = 'accepted'`,
		jobID).Scan(&accepted)
	return accepted, err
}

// GetOrCreateConversation inserts with ON CONFLICT DO NOTHING and re-selects,
// so concurrent callers land on the same row.
func (p *Postgres) GetOrCreateConversation(ctx context.Context, applicationID, newID string) (*model.Conversation, error) {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO conversations (id, application_id, created_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (application_id) DO NOTHING`,
		newID, applicationID)
	if isForeignKeyViolation(err) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return p.GetConversationByApplication(ctx, applicationID)
}

// GetConversation retrieves a conversation by id.
func (p *Postgres) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := p.pool.QueryRow(ctx,
		`SELECT id, application_id, created_at FROM conversations WHERE id = $1`, id).
		Scan(&conv.ID, &conv.ApplicationID, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return &conv, nil
}

// GetConversationByApplication retrieves the conversation for an application.
func (p *Postgres) GetConversationByApplication(ctx context.Context, applicationID string) (*model.Conversation, error) {
	var conv model.Conversation
	err := p.pool.QueryRow(ctx,
		`SELECT id, application_id, created_at FROM conversations WHERE application_id = $1`,
		applicationID).
		Scan(&conv.ID, &conv.ApplicationID, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation for application %s: %w", applicationID, err)
	}
	return &conv, nil
}

// ListConversationsForUser returns conversations where the user is the
// worker or the employer, newest first.
func (p *Postgres) ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT c.id, c.application_id, c.created_at
		 FROM conversations c
		 JOIN job_applications a ON a.id = c.application_id
		 JOIN jobs j ON j.id = a.job_id
		 WHERE a.worker_id = $1 OR j.employer_id = $1
		 ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var convs []model.Conversation
	for rows.Next() {
		var conv model.Conversation
		if err := rows.Scan(&conv.ID, &conv.ApplicationID, &conv.CreatedAt); err != nil {
			return nil, err
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// AppendMessage assigns the next per-conversation sequence under a row lock
// on the conversation, keeping sequence order aligned with (created_at, id).
func (p *Postgres) AppendMessage(ctx context.Context, msg *model.Message) error {
	return p.withTx(ctx, func(tx pgx.Tx) error {
		var convID string
		err := tx.QueryRow(ctx,
			`SELECT id FROM conversations WHERE id = $1 FOR UPDATE`, msg.ConversationID).Scan(&convID)
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ErrNotFound
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(sequence), 0) + 1 FROM messages WHERE conversation_id = $1`,
			msg.ConversationID).Scan(&msg.Sequence)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, sender_id, content, system, sequence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			msg.ID, msg.ConversationID, msg.SenderID, msg.Content, msg.System, msg.Sequence, msg.CreatedAt)
		return err
	})
}

// ListMessages returns messages after the given sequence cursor.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]model.Message, error) {
	if _, err := p.GetConversation(ctx, conversationID); err != nil {
		return nil, err
	}

	query := `SELECT id, conversation_id, sender_id, content, system, sequence, created_at
		 FROM messages WHERE conversation_id = $1 AND sequence > $2
		 ORDER BY created_at, id`
	args := []any{conversationID, afterSeq}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content,
			&msg.System, &msg.Sequence, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}

// LastMessage returns the newest message in a conversation, or nil.
func (p *Postgres) LastMessage(ctx context.Context, conversationID string) (*model.Message, error) {
	var msg model.Message
	err := p.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, content, system, sequence, created_at
		 FROM messages WHERE conversation_id = $1
		 ORDER BY sequence DESC LIMIT 1`, conversationID).
		Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &msg.System, &msg.Sequence, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (p *Postgres) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}
