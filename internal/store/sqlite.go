package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-faster/errors"
	lt "github.com/go-jet/jet/v2/sqlite"
	"github.com/tgdrive/botmanager/internal/database"
	"github.com/tgdrive/botmanager/internal/store/table/lite"
	"github.com/tgdrive/botmanager/pkg/models"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore builds statements with go-jet's sqlite dialect and runs them
// on database/sql. Timestamps are stored as RFC3339Nano UTC text.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLiteStore) CreateBot(ctx context.Context, in *models.Bot) (*models.Bot, error) {
	b := newBot(in)
	now := s.now()
	query, args := lite.Bots.INSERT(lite.Bots.MutableColumns).
		VALUES(b.BotID, b.HomeserverURL, b.AccountID, b.AccountSecret, b.UpstreamURL,
			string(b.Status), formatTime(now), formatTime(now)).
		Sql()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsKeyConflictErr(err) {
			return nil, errors.Wrapf(ErrDuplicateKey, "bot %q", b.BotID)
		}
		return nil, errors.Wrap(err, "insert bot")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "insert bot")
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return b, nil
}

func (s *SQLiteStore) GetBot(ctx context.Context, botID string) (*models.Bot, error) {
	query, args := lt.SELECT(lite.Bots.AllColumns).
		FROM(lite.Bots).
		WHERE(lite.Bots.BotID.EQ(lt.String(botID))).
		Sql()

	b, err := scanBot(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "bot %q", botID)
		}
		return nil, errors.Wrap(err, "get bot")
	}
	return b, nil
}

func (s *SQLiteStore) ListBots(ctx context.Context) ([]models.Bot, error) {
	query, args := lt.SELECT(lite.Bots.AllColumns).
		FROM(lite.Bots).
		ORDER_BY(lite.Bots.ID.ASC()).
		Sql()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list bots")
	}
	defer rows.Close()

	res := []models.Bot{}
	for rows.Next() {
		b, err := scanBot(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan bot")
		}
		res = append(res, *b)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, botID string, status models.BotStatus) error {
	query, args := lite.Bots.UPDATE(lite.Bots.Status, lite.Bots.UpdatedAt).
		SET(lt.String(string(status)), lt.String(formatTime(s.now()))).
		WHERE(lite.Bots.BotID.EQ(lt.String(botID))).
		Sql()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update status")
	}
	return checkAffected(res, botID)
}

func (s *SQLiteStore) DeleteBot(ctx context.Context, botID string) error {
	query, args := lite.Bots.DELETE().
		WHERE(lite.Bots.BotID.EQ(lt.String(botID))).
		Sql()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "delete bot")
	}
	return checkAffected(res, botID)
}

func (s *SQLiteStore) CreateUser(ctx context.Context, in *models.User) (*models.User, error) {
	u := newUser(in)
	now := s.now()
	query, args := lite.Users.INSERT(lite.Users.MutableColumns).
		VALUES(u.Username, u.Password, string(u.UserType), u.IsAdmin, formatTime(now), formatTime(now)).
		Sql()

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsKeyConflictErr(err) {
			return nil, errors.Wrapf(ErrDuplicateKey, "user %q", u.Username)
		}
		return nil, errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errors.Wrap(err, "insert user")
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return u, nil
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]models.User, error) {
	query, args := lt.SELECT(lite.Users.AllColumns).
		FROM(lite.Users).
		ORDER_BY(lite.Users.ID.ASC()).
		Sql()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	res := []models.User{}
	for rows.Next() {
		var (
			u                models.User
			userType         string
			created, updated string
		)
		if err := rows.Scan(&u.ID, &u.Username, &u.Password, &userType, &u.IsAdmin, &created, &updated); err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		u.UserType = models.UserType(userType)
		u.CreatedAt = parseTime(created)
		u.UpdatedAt = parseTime(updated)
		res = append(res, u)
	}
	return res, rows.Err()
}

func (s *SQLiteStore) Type() string {
	return "sqlite"
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBot(row rowScanner) (*models.Bot, error) {
	var (
		b                models.Bot
		status           string
		created, updated string
	)
	if err := row.Scan(&b.ID, &b.BotID, &b.HomeserverURL, &b.AccountID, &b.AccountSecret,
		&b.UpstreamURL, &status, &created, &updated); err != nil {
		return nil, err
	}
	b.Status = models.BotStatus(status)
	b.CreatedAt = parseTime(created)
	b.UpdatedAt = parseTime(updated)
	return &b, nil
}

func checkAffected(res sql.Result, botID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "bot %q", botID)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
