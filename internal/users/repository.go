package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/database"
)

const userColumns = `id, telegram_id, username, language, premium_plan, premium_until,
	assistant_mode, assistant_mode_until, created_at, updated_at`

// Repository persists users.
type Repository struct {
	db     *database.DB
	logger zerolog.Logger
	now    func() time.Time
}

func NewRepository(db *database.DB, logger zerolog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With().Str("component", "users").Logger(),
		now:    time.Now,
	}
}

// Upsert creates the user on first contact and refreshes username and
// language afterwards. An empty language keeps the stored one.
func (r *Repository) Upsert(ctx context.Context, telegramID int64, username, language string) (*User, error) {
	now := r.now().Unix()
	query := r.db.Rebind(`INSERT INTO users (telegram_id, username, language, premium_plan, created_at, updated_at)
		VALUES (?, ?, ?, 'free', ?, ?)
		ON CONFLICT (telegram_id) DO UPDATE SET
			username = excluded.username,
			language = CASE WHEN excluded.language = '' THEN users.language ELSE excluded.language END,
			updated_at = excluded.updated_at`)

	if _, err := r.db.Conn().ExecContext(ctx, query, telegramID, username, language, now, now); err != nil {
		return nil, fmt.Errorf("failed to upsert user %d: %w", telegramID, err)
	}
	return r.GetByTelegramID(ctx, telegramID)
}

// Get returns a user by database id.
func (r *Repository) Get(ctx context.Context, id int64) (*User, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	return scanUser(row)
}

// GetByTelegramID returns a user by Telegram user id.
func (r *Repository) GetByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	row := r.db.Conn().QueryRowContext(ctx,
		r.db.Rebind(`SELECT `+userColumns+` FROM users WHERE telegram_id = ?`), telegramID)
	return scanUser(row)
}

// SetAssistantMode persists the sticky mode flag until the given time.
func (r *Repository) SetAssistantMode(ctx context.Context, id int64, mode string, until time.Time) error {
	return r.exec(ctx, `UPDATE users SET assistant_mode = ?, assistant_mode_until = ?, updated_at = ? WHERE id = ?`,
		mode, until.Unix(), r.now().Unix(), id)
}

// ClearAssistantMode resets the mode flag.
func (r *Repository) ClearAssistantMode(ctx context.Context, id int64) error {
	return r.exec(ctx, `UPDATE users SET assistant_mode = NULL, assistant_mode_until = NULL, updated_at = ? WHERE id = ?`,
		r.now().Unix(), id)
}

// SetPlan changes the premium plan. A nil until means no expiry.
func (r *Repository) SetPlan(ctx context.Context, id int64, plan string, until *time.Time) error {
	var untilUnix sql.NullInt64
	if until != nil {
		untilUnix = sql.NullInt64{Int64: until.Unix(), Valid: true}
	}
	return r.exec(ctx, `UPDATE users SET premium_plan = ?, premium_until = ?, updated_at = ? WHERE id = ?`,
		plan, untilUnix, r.now().Unix(), id)
}

// ClearExpiredModes clears every mode flag whose expiry has passed.
func (r *Repository) ClearExpiredModes(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.Conn().ExecContext(ctx, r.db.Rebind(`UPDATE users
		SET assistant_mode = NULL, assistant_mode_until = NULL, updated_at = ?
		WHERE assistant_mode_until IS NOT NULL AND assistant_mode_until <= ?`),
		now.Unix(), now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired modes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.logger.Debug().Int64("count", n).Msg("Cleared expired assistant modes")
	}
	return n, nil
}

// ExpireModes is the scheduler entry point for ClearExpiredModes.
func (r *Repository) ExpireModes(ctx context.Context) error {
	_, err := r.ClearExpiredModes(ctx, r.now())
	return err
}

func (r *Repository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.Conn().ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                     User
		premiumUntil, modeEnd sql.NullInt64
		mode                  sql.NullString
		createdAt, updatedAt  int64
	)
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.Language, &u.PremiumPlan, &premiumUntil,
		&mode, &modeEnd, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	u.PremiumUntil = unixPtr(premiumUntil)
	u.AssistantModeUntil = unixPtr(modeEnd)
	u.AssistantMode = mode.String
	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func sessionKey(telegramID, id int64) string {
	if telegramID != 0 {
		return "tg:" + strconv.FormatInt(telegramID, 10)
	}
	return "db:" + strconv.FormatInt(id, 10)
}
