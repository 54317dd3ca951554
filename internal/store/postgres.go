package store

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	pg "github.com/go-jet/jet/v2/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tgdrive/botmanager/internal/database"
	"github.com/tgdrive/botmanager/internal/store/table"
	"github.com/tgdrive/botmanager/pkg/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore builds statements with go-jet and runs them on a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) CreateBot(ctx context.Context, in *models.Bot) (*models.Bot, error) {
	b := newBot(in)
	now := s.now()
	stmt := table.Bots.INSERT(table.Bots.MutableColumns).
		VALUES(b.BotID, b.HomeserverURL, b.AccountID, b.AccountSecret, b.UpstreamURL,
			string(b.Status), pg.TimestampzT(now), pg.TimestampzT(now)).
		RETURNING(table.Bots.AllColumns)

	query, args := stmt.Sql()
	out, err := scanPgBot(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if database.IsKeyConflictErr(err) {
			return nil, errors.Wrapf(ErrDuplicateKey, "bot %q", b.BotID)
		}
		return nil, errors.Wrap(err, "insert bot")
	}
	return out, nil
}

func (s *PostgresStore) GetBot(ctx context.Context, botID string) (*models.Bot, error) {
	query, args := pg.SELECT(table.Bots.AllColumns).
		FROM(table.Bots).
		WHERE(table.Bots.BotID.EQ(pg.String(botID))).
		Sql()

	b, err := scanPgBot(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "bot %q", botID)
		}
		return nil, errors.Wrap(err, "get bot")
	}
	return b, nil
}

func (s *PostgresStore) ListBots(ctx context.Context) ([]models.Bot, error) {
	query, args := pg.SELECT(table.Bots.AllColumns).
		FROM(table.Bots).
		ORDER_BY(table.Bots.ID.ASC()).
		Sql()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list bots")
	}
	defer rows.Close()

	res := []models.Bot{}
	for rows.Next() {
		b, err := scanPgBot(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan bot")
		}
		res = append(res, *b)
	}
	return res, rows.Err()
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, botID string, status models.BotStatus) error {
	query, args := table.Bots.UPDATE(table.Bots.Status, table.Bots.UpdatedAt).
		SET(pg.String(string(status)), pg.TimestampzT(s.now())).
		WHERE(table.Bots.BotID.EQ(pg.String(botID))).
		Sql()

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "update status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "bot %q", botID)
	}
	return nil
}

func (s *PostgresStore) DeleteBot(ctx context.Context, botID string) error {
	query, args := table.Bots.DELETE().
		WHERE(table.Bots.BotID.EQ(pg.String(botID))).
		Sql()

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return errors.Wrap(err, "delete bot")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(ErrNotFound, "bot %q", botID)
	}
	return nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, in *models.User) (*models.User, error) {
	u := newUser(in)
	now := s.now()
	query, args := table.Users.INSERT(table.Users.MutableColumns).
		VALUES(u.Username, u.Password, string(u.UserType), u.IsAdmin, pg.TimestampzT(now), pg.TimestampzT(now)).
		RETURNING(table.Users.AllColumns).
		Sql()

	out, err := scanPgUser(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if database.IsKeyConflictErr(err) {
			return nil, errors.Wrapf(ErrDuplicateKey, "user %q", u.Username)
		}
		return nil, errors.Wrap(err, "insert user")
	}
	return out, nil
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]models.User, error) {
	query, args := pg.SELECT(table.Users.AllColumns).
		FROM(table.Users).
		ORDER_BY(table.Users.ID.ASC()).
		Sql()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list users")
	}
	defer rows.Close()

	res := []models.User{}
	for rows.Next() {
		u, err := scanPgUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		res = append(res, *u)
	}
	return res, rows.Err()
}

func (s *PostgresStore) Type() string {
	return "postgres"
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Column order follows table.Bots.AllColumns.
func scanPgBot(row pgx.Row) (*models.Bot, error) {
	var (
		b      models.Bot
		status string
	)
	if err := row.Scan(&b.ID, &b.BotID, &b.HomeserverURL, &b.AccountID, &b.AccountSecret,
		&b.UpstreamURL, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.Status = models.BotStatus(status)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

func scanPgUser(row pgx.Row) (*models.User, error) {
	var (
		u        models.User
		userType string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &userType, &u.IsAdmin,
		&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.UserType = models.UserType(userType)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return &u, nil
}
