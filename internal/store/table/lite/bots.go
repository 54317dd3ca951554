// Package lite declares the go-jet models of the sqlite schema in
// internal/database/migrations/sqlite. Timestamps are RFC3339Nano text.
package lite

import (
	"github.com/go-jet/jet/v2/sqlite"
)

var Bots = newBotsTable("", "bots", "")

type botsTable struct {
	sqlite.Table

	ID            sqlite.ColumnInteger
	BotID         sqlite.ColumnString
	HomeserverURL sqlite.ColumnString
	AccountID     sqlite.ColumnString
	AccountSecret sqlite.ColumnString
	UpstreamURL   sqlite.ColumnString
	Status        sqlite.ColumnString
	CreatedAt     sqlite.ColumnString
	UpdatedAt     sqlite.ColumnString

	AllColumns     sqlite.ColumnList
	MutableColumns sqlite.ColumnList
}

func newBotsTable(schemaName, tableName, alias string) *botsTable {
	var (
		IDColumn            = sqlite.IntegerColumn("id")
		BotIDColumn         = sqlite.StringColumn("bot_id")
		HomeserverURLColumn = sqlite.StringColumn("homeserver_url")
		AccountIDColumn     = sqlite.StringColumn("account_id")
		AccountSecretColumn = sqlite.StringColumn("account_secret")
		UpstreamURLColumn   = sqlite.StringColumn("upstream_url")
		StatusColumn        = sqlite.StringColumn("status")
		CreatedAtColumn     = sqlite.StringColumn("created_at")
		UpdatedAtColumn     = sqlite.StringColumn("updated_at")
		allColumns          = sqlite.ColumnList{IDColumn, BotIDColumn, HomeserverURLColumn, AccountIDColumn, AccountSecretColumn, UpstreamURLColumn, StatusColumn, CreatedAtColumn, UpdatedAtColumn}
		mutableColumns      = sqlite.ColumnList{BotIDColumn, HomeserverURLColumn, AccountIDColumn, AccountSecretColumn, UpstreamURLColumn, StatusColumn, CreatedAtColumn, UpdatedAtColumn}
	)

	return &botsTable{
		Table: sqlite.NewTable(schemaName, tableName, alias, allColumns...),

		ID:            IDColumn,
		BotID:         BotIDColumn,
		HomeserverURL: HomeserverURLColumn,
		AccountID:     AccountIDColumn,
		AccountSecret: AccountSecretColumn,
		UpstreamURL:   UpstreamURLColumn,
		Status:        StatusColumn,
		CreatedAt:     CreatedAtColumn,
		UpdatedAt:     UpdatedAtColumn,

		AllColumns:     allColumns,
		MutableColumns: mutableColumns,
	}
}
