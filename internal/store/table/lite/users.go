package lite

import (
	"github.com/go-jet/jet/v2/sqlite"
)

var Users = newUsersTable("", "users", "")

type usersTable struct {
	sqlite.Table

	ID        sqlite.ColumnInteger
	Username  sqlite.ColumnString
	Password  sqlite.ColumnString
	UserType  sqlite.ColumnString
	IsAdmin   sqlite.ColumnBool
	CreatedAt sqlite.ColumnString
	UpdatedAt sqlite.ColumnString

	AllColumns     sqlite.ColumnList
	MutableColumns sqlite.ColumnList
}

func newUsersTable(schemaName, tableName, alias string) *usersTable {
	var (
		IDColumn        = sqlite.IntegerColumn("id")
		UsernameColumn  = sqlite.StringColumn("username")
		PasswordColumn  = sqlite.StringColumn("password")
		UserTypeColumn  = sqlite.StringColumn("user_type")
		IsAdminColumn   = sqlite.BoolColumn("is_admin")
		CreatedAtColumn = sqlite.StringColumn("created_at")
		UpdatedAtColumn = sqlite.StringColumn("updated_at")
		allColumns      = sqlite.ColumnList{IDColumn, UsernameColumn, PasswordColumn, UserTypeColumn, IsAdminColumn, CreatedAtColumn, UpdatedAtColumn}
		mutableColumns  = sqlite.ColumnList{UsernameColumn, PasswordColumn, UserTypeColumn, IsAdminColumn, CreatedAtColumn, UpdatedAtColumn}
	)

	return &usersTable{
		Table: sqlite.NewTable(schemaName, tableName, alias, allColumns...),

		ID:        IDColumn,
		Username:  UsernameColumn,
		Password:  PasswordColumn,
		UserType:  UserTypeColumn,
		IsAdmin:   IsAdminColumn,
		CreatedAt: CreatedAtColumn,
		UpdatedAt: UpdatedAtColumn,

		AllColumns:     allColumns,
		MutableColumns: mutableColumns,
	}
}
