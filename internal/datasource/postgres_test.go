package datasource

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataset-engine/internal/models"
)

const listTablesQuery = `SELECT table_name FROM information_schema.tables`

func setupPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgres(db), mock
}

func TestPostgres_ListTables(t *testing.T) {
	r := require.New(t)

	source, mock := setupPostgres(t)
	mock.ExpectQuery(listTablesQuery).
		WillReturnRows(sqlmock.NewRows([]string{"table_name"}).AddRow("orders").AddRow("users"))

	tables, err := source.ListTables(context.Background())
	r.NoError(err)
	r.Equal([]string{"orders", "users"}, tables)
	r.NoError(mock.ExpectationsWereMet())
}

func TestPostgres_LoadTable(t *testing.T) {
	tests := []struct {
		name        string
		table       string
		tables      []string
		rows        *sqlmock.Rows
		queryErr    error
		wantHeaders []string
		wantRows    []models.RawRow
		wantErr     bool
	}{
		{
			name:   "stringifies every value",
			table:  "users",
			tables: []string{"users"},
			rows: sqlmock.NewRows([]string{"id", "name", "score", "active", "joined"}).
				AddRow(int64(1), "ann", 1.5, true, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)).
				AddRow(int64(2), []byte("bob"), nil, false, nil),
			wantHeaders: []string{"id", "name", "score", "active", "joined"},
			wantRows: []models.RawRow{
				{"id": "1", "name": "ann", "score": "1.5", "active": "true", "joined": "2024-01-02T03:04:05Z"},
				{"id": "2", "name": "bob", "score": "", "active": "false", "joined": ""},
			},
		},
		{
			name:    "unknown table",
			table:   "secrets",
			tables:  []string{"users"},
			wantErr: true,
		},
		{
			name:     "query failure",
			table:    "users",
			tables:   []string{"users"},
			queryErr: sql.ErrConnDone,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			source, mock := setupPostgres(t)

			listed := sqlmock.NewRows([]string{"table_name"})
			for _, name := range tt.tables {
				listed.AddRow(name)
			}
			mock.ExpectQuery(listTablesQuery).WillReturnRows(listed)

			selectQuery := regexp.QuoteMeta(`SELECT * FROM "` + tt.table + `" LIMIT 5`)
			switch {
			case tt.queryErr != nil:
				mock.ExpectQuery(selectQuery).WillReturnError(tt.queryErr)
			case tt.rows != nil:
				mock.ExpectQuery(selectQuery).WillReturnRows(tt.rows)
			}

			headers, rows, err := source.LoadTable(context.Background(), tt.table, 5)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, rows)
				assert.NoError(t, mock.ExpectationsWereMet())
				return
			}

			assert.NoError(t, err)
			assert.Equal(t, tt.wantHeaders, headers)
			assert.Equal(t, tt.wantRows, rows)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConfig_DSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", DBName: "d"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	require.Contains(t, cfg.DSN(), "sslmode=require")
}
