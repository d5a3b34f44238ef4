package database

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"go.uber.org/zap"
)

// LabelResolver maps source addresses to human labels (asset owner, site).
type LabelResolver interface {
	// Label returns the label for an address, or "" if unknown.
	Label(addr string) string
	// Count returns the number of addresses in the mapping.
	Count() int
}

// NullResolver returns "" for every address.
type NullResolver struct{}

// NewNullResolver creates a new null resolver.
func NewNullResolver() *NullResolver {
	return &NullResolver{}
}

func (r *NullResolver) Label(string) string { return "" }
func (r *NullResolver) Count() int          { return 0 }

// FileResolver loads address labels from a CSV file.
// Expected format: addr,label (e.g. "10.0.0.5,build-server"). A header row
// is skipped when its first column is not an IP address.
type FileResolver struct {
	filePath string
	mapping  map[string]string
}

// NewFileResolver creates a resolver that loads mappings from a CSV file.
func NewFileResolver(filePath string, logger *zap.Logger) (*FileResolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileResolver{
		filePath: filePath,
		mapping:  make(map[string]string),
	}
	if err := r.load(); err != nil {
		return nil, err
	}
	logger.Info("loaded address labels", zap.String("path", filePath), zap.Int("count", len(r.mapping)))
	return r, nil
}

func (r *FileResolver) load() error {
	file, err := os.Open(r.filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read %s: %w", r.filePath, err)
		}
		if len(record) < 2 {
			continue
		}
		addr := strings.TrimSpace(record[0])
		label := strings.TrimSpace(record[1])
		if net.ParseIP(addr) == nil || label == "" {
			continue
		}
		r.mapping[addr] = label
	}
	return nil
}

func (r *FileResolver) Label(addr string) string {
	return r.mapping[addr]
}

func (r *FileResolver) Count() int {
	return len(r.mapping)
}

// DatabaseResolver loads address labels from a table.
// Schema: SELECT addr, label FROM <table>
type DatabaseResolver struct {
	db        *sql.DB
	tableName string
	mapping   map[string]string
}

// NewDatabaseResolver creates a resolver backed by a database table.
// tableName defaults to "address_labels" if empty.
func NewDatabaseResolver(db *sql.DB, tableName string) *DatabaseResolver {
	if tableName == "" {
		tableName = "address_labels"
	}
	return &DatabaseResolver{
		db:        db,
		tableName: tableName,
		mapping:   make(map[string]string),
	}
}

// Load reads the whole mapping once; detection runs are short-lived so there
// is no background refresh.
func (r *DatabaseResolver) Load(ctx context.Context) error {
	query := "SELECT addr, label FROM " + r.tableName + " WHERE label IS NOT NULL AND label != ''"
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("query %s: %w", r.tableName, err)
	}
	defer rows.Close()

	mapping := make(map[string]string)
	for rows.Next() {
		var addr, label string
		if err := rows.Scan(&addr, &label); err != nil {
			return fmt.Errorf("scan %s: %w", r.tableName, err)
		}
		mapping[strings.TrimSpace(addr)] = label
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", r.tableName, err)
	}

	r.mapping = mapping
	return nil
}

func (r *DatabaseResolver) Label(addr string) string {
	return r.mapping[addr]
}

func (r *DatabaseResolver) Count() int {
	return len(r.mapping)
}
