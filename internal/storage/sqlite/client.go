package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"dataset-engine/internal/logger"
	"dataset-engine/internal/models"
)

var ErrNotFound = errors.New("dataset not found")

// Client persists the inputs of a dataset: original rows, columns and
// config. Splits are derived data and are recomputed on demand.
type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

// New wraps an already opened database
func New(db *sql.DB) *Client {
	return &Client{db: db}
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS datasets (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		headers TEXT NOT NULL,
		original TEXT NOT NULL,
		columns TEXT NOT NULL,
		config TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_datasets_updated ON datasets(updated_at);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (c *Client) SaveDataset(ctx context.Context, d *models.ProcessedDataset) error {
	headers, err := json.Marshal(d.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal headers: %w", err)
	}
	original, err := json.Marshal(d.Original)
	if err != nil {
		return fmt.Errorf("failed to marshal rows: %w", err)
	}
	columns, err := json.Marshal(d.Columns)
	if err != nil {
		return fmt.Errorf("failed to marshal columns: %w", err)
	}
	config, err := json.Marshal(d.PreprocessingConfig)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	query := `
	INSERT INTO datasets (id, name, headers, original, columns, config, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		columns = excluded.columns,
		config = excluded.config,
		updated_at = excluded.updated_at
	`
	_, err = c.db.ExecContext(ctx, query,
		d.ID, d.DatasetName, string(headers), string(original), string(columns), string(config),
		d.CreatedAt.Unix(), d.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save dataset: %w", err)
	}

	logger.Debug("Dataset saved", logger.Dataset(d.ID))
	return nil
}

func (c *Client) LoadDataset(ctx context.Context, id string) (*models.ProcessedDataset, error) {
	query := `
	SELECT id, name, headers, original, columns, config, created_at, updated_at
	FROM datasets WHERE id = ?
	`
	var (
		d                                  models.ProcessedDataset
		headers, original, columns, config string
		createdAt, updatedAt               int64
	)
	err := c.db.QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.DatasetName, &headers, &original, &columns, &config, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}

	if err := json.Unmarshal([]byte(headers), &d.Headers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal headers: %w", err)
	}
	if err := json.Unmarshal([]byte(original), &d.Original); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rows: %w", err)
	}
	if err := json.Unmarshal([]byte(columns), &d.Columns); err != nil {
		return nil, fmt.Errorf("failed to unmarshal columns: %w", err)
	}
	if err := json.Unmarshal([]byte(config), &d.PreprocessingConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	d.TotalRows = len(d.Original)
	d.TotalColumns = len(d.Headers)
	d.CreatedAt = time.Unix(createdAt, 0)
	d.UpdatedAt = time.Unix(updatedAt, 0)
	return &d, nil
}

func (c *Client) ListDatasets(ctx context.Context) ([]models.DatasetSummary, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, updated_at FROM datasets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	var out []models.DatasetSummary
	for rows.Next() {
		var s models.DatasetSummary
		var updatedAt int64
		if err := rows.Scan(&s.ID, &s.Name, &updatedAt); err != nil {
			return nil, err
		}
		s.UpdatedAt = time.Unix(updatedAt, 0)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Client) DeleteDataset(ctx context.Context, id string) (bool, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete dataset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete dataset: %w", err)
	}
	return n > 0, nil
}
