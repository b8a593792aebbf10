package cards

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	_ "modernc.org/sqlite"
)

const cardsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "array",
  "items": {
    "type": "object",
    "required": ["id", "name", "url", "rank"],
    "properties": {
      "id":          {"type": "string", "minLength": 1},
      "name":        {"type": "string", "minLength": 1},
      "title":       {"type": "string"},
      "subscribers": {"type": "integer", "minimum": 0},
      "description": {"type": "string"},
      "url":         {"type": "string", "minLength": 1},
      "rank":        {"type": "integer", "minimum": 0}
    }
  }
}`

var schema = jsonschema.MustCompileString("cards.schema.json", cardsSchema)

// Load reads a catalog from path, picking the adapter by file extension.
func Load(ctx context.Context, path string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return LoadSQLite(ctx, path)
	default:
		return LoadJSON(path)
	}
}

// LoadJSON reads a JSON array of cards and validates it against the card
// schema before decoding.
func LoadJSON(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseJSON(raw)
}

// ParseJSON is LoadJSON without the file read.
func ParseJSON(raw []byte) (*Catalog, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("cards json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("cards json: %w", err)
	}

	var list []Card
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("cards json: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrEmptyCatalog
	}
	return NewCatalog(list), nil
}

const createCardsTable = `CREATE TABLE IF NOT EXISTS cards (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	subscribers INTEGER NOT NULL DEFAULT 0,
	description TEXT NOT NULL DEFAULT '',
	url         TEXT NOT NULL,
	rank        INTEGER NOT NULL
)`

// LoadSQLite reads the cards table of a SQLite database, ordered by rank.
func LoadSQLite(ctx context.Context, path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT id, name, title, subscribers, description, url, rank FROM cards ORDER BY rank, id`)
	if err != nil {
		return nil, fmt.Errorf("cards sqlite: %w", err)
	}
	defer rows.Close()

	var list []Card
	for rows.Next() {
		var c Card
		if err := rows.Scan(&c.ID, &c.Name, &c.Title, &c.Subscribers, &c.Description, &c.URL, &c.Rank); err != nil {
			return nil, fmt.Errorf("cards sqlite: %w", err)
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cards sqlite: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrEmptyCatalog
	}
	return NewCatalog(list), nil
}

// WriteSQLite creates (or extends) a SQLite catalog with list.
func WriteSQLite(ctx context.Context, path string, list []Card) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, createCardsTable); err != nil {
		return fmt.Errorf("cards sqlite: %w", err)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO cards (id, name, title, subscribers, description, url, rank) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range list {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Title, c.Subscribers, c.Description, c.URL, c.Rank); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("cards sqlite: insert %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}
