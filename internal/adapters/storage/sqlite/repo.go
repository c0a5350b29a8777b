package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/kanflow/internal/app"
	"github.com/hylla/kanflow/internal/domain"
	_ "modernc.org/sqlite"
)

// driverName defines a package constant value.
const driverName = "sqlite"

// Repository represents repository data used by this package.
type Repository struct {
	db *sql.DB
}

// Open opens the requested operation.
func Open(path string) (*Repository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// OpenInMemory opens in memory.
func OpenInMemory() (*Repository, error) {
	db, err := sql.Open(driverName, "file::memory:?cache=shared")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	repo := &Repository{db: db}
	if err := repo.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

// Close closes the requested operation.
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate handles migrate.
func (r *Repository) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS work_items (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			status TEXT NOT NULL,
			predecessors_json TEXT NOT NULL DEFAULT '[]',
			successors_json TEXT NOT NULL DEFAULT '[]',
			tags_json TEXT NOT NULL DEFAULT '[]',
			extra_json TEXT NOT NULL DEFAULT '{}',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS status_history (
			work_item_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			status TEXT NOT NULL,
			entered_at TEXT NOT NULL,
			left_at TEXT,
			duration_ms INTEGER,
			PRIMARY KEY(work_item_id, seq),
			FOREIGN KEY(work_item_id) REFERENCES work_items(id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status);`,
		`CREATE INDEX IF NOT EXISTS idx_status_history_item ON status_history(work_item_id);`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

// CreateWorkItem creates a work item and its seeded history rows.
func (r *Repository) CreateWorkItem(ctx context.Context, item domain.WorkItem) error {
	predsJSON, succsJSON, tagsJSON, extraJSON, err := encodeItemColumns(item)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_items(id, title, status, predecessors_json, successors_json, tags_json, extra_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		item.ID,
		item.Title,
		item.Status,
		predsJSON,
		succsJSON,
		tagsJSON,
		extraJSON,
		ts(item.CreatedAt),
		ts(item.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if err = insertHistoryRows(ctx, tx, item.ID, item.History); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// UpdateWorkItem updates state for the requested operation. History rows are
// replaced wholesale; the domain keeps the timeline append-only, so the
// rewrite is equivalent to appending.
func (r *Repository) UpdateWorkItem(ctx context.Context, item domain.WorkItem) error {
	predsJSON, succsJSON, tagsJSON, extraJSON, err := encodeItemColumns(item)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		UPDATE work_items
		SET title = ?, status = ?, predecessors_json = ?, successors_json = ?, tags_json = ?, extra_json = ?, updated_at = ?
		WHERE id = ?
	`,
		item.Title,
		item.Status,
		predsJSON,
		succsJSON,
		tagsJSON,
		extraJSON,
		ts(item.UpdatedAt),
		item.ID,
	)
	if err != nil {
		return err
	}
	if err = translateNoRows(res); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM status_history WHERE work_item_id = ?`, item.ID); err != nil {
		return err
	}
	if err = insertHistoryRows(ctx, tx, item.ID, item.History); err != nil {
		return err
	}
	err = tx.Commit()
	return err
}

// GetWorkItem returns one item with its status timeline.
func (r *Repository) GetWorkItem(ctx context.Context, id string) (domain.WorkItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, title, status, predecessors_json, successors_json, tags_json, extra_json, created_at, updated_at
		FROM work_items WHERE id = ?
	`, id)
	item, err := scanWorkItem(row)
	if err != nil {
		return domain.WorkItem{}, err
	}
	item.History, err = r.loadHistory(ctx, id)
	if err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// ListWorkItems returns every item ordered by creation time.
func (r *Repository) ListWorkItems(ctx context.Context) ([]domain.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, status, predecessors_json, successors_json, tags_json, extra_json, created_at, updated_at
		FROM work_items ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	histories, err := r.loadAllHistories(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].History = histories[items[i].ID]
	}
	return items, nil
}

// DeleteWorkItem deletes an item; its history rows cascade.
func (r *Repository) DeleteWorkItem(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM work_items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return translateNoRows(res)
}

// loadHistory handles load history.
func (r *Repository) loadHistory(ctx context.Context, id string) ([]domain.StatusHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, entered_at, left_at, duration_ms
		FROM status_history WHERE work_item_id = ? ORDER BY seq ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.StatusHistoryEntry
	for rows.Next() {
		entry, err := scanHistoryEntry(rows)
		if err != nil {
			return nil, err
		}
		history = append(history, entry)
	}
	return history, rows.Err()
}

// loadAllHistories handles load all histories.
func (r *Repository) loadAllHistories(ctx context.Context) (map[string][]domain.StatusHistoryEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT work_item_id, status, entered_at, left_at, duration_ms
		FROM status_history ORDER BY work_item_id ASC, seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	histories := map[string][]domain.StatusHistoryEntry{}
	for rows.Next() {
		var (
			itemID     string
			status     string
			enteredRaw string
			leftRaw    sql.NullString
			durationMS sql.NullInt64
		)
		if err := rows.Scan(&itemID, &status, &enteredRaw, &leftRaw, &durationMS); err != nil {
			return nil, err
		}
		histories[itemID] = append(histories[itemID], historyEntryFromColumns(status, enteredRaw, leftRaw, durationMS))
	}
	return histories, rows.Err()
}

// insertHistoryRows inserts history rows preserving timeline order.
func insertHistoryRows(ctx context.Context, execer execerContext, itemID string, history []domain.StatusHistoryEntry) error {
	for seq, entry := range history {
		var durationMS any
		if entry.Duration != nil {
			durationMS = entry.Duration.Milliseconds()
		}
		_, err := execer.ExecContext(ctx, `
			INSERT INTO status_history(work_item_id, seq, status, entered_at, left_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			itemID,
			seq,
			entry.Status,
			ts(entry.EnteredAt),
			nullableTS(entry.LeftAt),
			durationMS,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

type execerContext interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

type scanner interface {
	Scan(dest ...any) error
}

// scanWorkItem handles scan work item.
func scanWorkItem(s scanner) (domain.WorkItem, error) {
	var (
		item       domain.WorkItem
		predsRaw   string
		succsRaw   string
		tagsRaw    string
		extraRaw   string
		createdRaw string
		updatedRaw string
	)
	if err := s.Scan(
		&item.ID,
		&item.Title,
		&item.Status,
		&predsRaw,
		&succsRaw,
		&tagsRaw,
		&extraRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.WorkItem{}, app.ErrNotFound
		}
		return domain.WorkItem{}, err
	}
	if err := json.Unmarshal([]byte(orDefault(predsRaw, "[]")), &item.Predecessors); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode predecessors_json: %w", err)
	}
	if err := json.Unmarshal([]byte(orDefault(succsRaw, "[]")), &item.Successors); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode successors_json: %w", err)
	}
	if err := json.Unmarshal([]byte(orDefault(tagsRaw, "[]")), &item.Tags); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode tags_json: %w", err)
	}
	if err := json.Unmarshal([]byte(orDefault(extraRaw, "{}")), &item.Extra); err != nil {
		return domain.WorkItem{}, fmt.Errorf("decode extra_json: %w", err)
	}
	item.CreatedAt = parseTS(createdRaw)
	item.UpdatedAt = parseTS(updatedRaw)
	return item, nil
}

// scanHistoryEntry handles scan history entry.
func scanHistoryEntry(s scanner) (domain.StatusHistoryEntry, error) {
	var (
		status     string
		enteredRaw string
		leftRaw    sql.NullString
		durationMS sql.NullInt64
	)
	if err := s.Scan(&status, &enteredRaw, &leftRaw, &durationMS); err != nil {
		return domain.StatusHistoryEntry{}, err
	}
	return historyEntryFromColumns(status, enteredRaw, leftRaw, durationMS), nil
}

// historyEntryFromColumns handles history entry from columns.
func historyEntryFromColumns(status, enteredRaw string, leftRaw sql.NullString, durationMS sql.NullInt64) domain.StatusHistoryEntry {
	entry := domain.StatusHistoryEntry{
		Status:    status,
		EnteredAt: parseTS(enteredRaw),
		LeftAt:    parseNullTS(leftRaw),
	}
	if durationMS.Valid {
		d := time.Duration(durationMS.Int64) * time.Millisecond
		entry.Duration = &d
	}
	return entry
}

// encodeItemColumns handles encode item columns.
func encodeItemColumns(item domain.WorkItem) (preds, succs, tags, extra string, err error) {
	predsJSON, err := json.Marshal(emptyIfNil(item.Predecessors))
	if err != nil {
		return "", "", "", "", err
	}
	succsJSON, err := json.Marshal(emptyIfNil(item.Successors))
	if err != nil {
		return "", "", "", "", err
	}
	tagsJSON, err := json.Marshal(emptyIfNil(item.Tags))
	if err != nil {
		return "", "", "", "", err
	}
	extraMap := item.Extra
	if extraMap == nil {
		extraMap = map[string]string{}
	}
	extraJSON, err := json.Marshal(extraMap)
	if err != nil {
		return "", "", "", "", err
	}
	return string(predsJSON), string(succsJSON), string(tagsJSON), string(extraJSON), nil
}

// emptyIfNil handles empty if nil.
func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// orDefault handles or default.
func orDefault(raw, fallback string) string {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	return raw
}

// translateNoRows handles translate no rows.
func translateNoRows(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return app.ErrNotFound
	}
	return nil
}

// ts handles ts.
func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// nullableTS handles nullable ts.
func nullableTS(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTS parses input into a normalized form.
func parseTS(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}

// parseNullTS parses input into a normalized form.
func parseNullTS(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	ts := parseTS(v.String)
	return &ts
}
