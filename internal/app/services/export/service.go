// Package export renders table contents as RFC 4180 CSV for admin download.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/logging"
	"github.com/apex-authority/backoffice/internal/metrics"
)

// Result is the export of one table. Err is set when that table failed;
// other tables are unaffected.
type Result struct {
	Table string
	CSV   []byte
	Rows  int
	Err   error
}

// Service exports tables to CSV.
type Service struct {
	store   storage.ExportStore
	metrics *metrics.Registry
	log     *logging.Logger
}

// New constructs the export service. metrics may be nil.
func New(store storage.ExportStore, reg *metrics.Registry, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewDefault("export")
	}
	return &Service{store: store, metrics: reg, log: log}
}

// Tables lists everything that can be exported.
func (s *Service) Tables() []string {
	return s.store.ExportTables()
}

// Table renders one table. Headers are the union of the keys across all
// rows, sorted, so the column set is stable regardless of row order.
func (s *Service) Table(ctx context.Context, table string) ([]byte, int, error) {
	rows, err := s.store.TableRows(ctx, table)
	if err != nil {
		return nil, 0, fmt.Errorf("export %s: %w", table, err)
	}

	headerSet := make(map[string]struct{})
	for _, row := range rows {
		for key := range row {
			headerSet[key] = struct{}{}
		}
	}
	headers := make([]string, 0, len(headerSet))
	for key := range headerSet {
		headers = append(headers, key)
	}
	sort.Strings(headers)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if len(headers) > 0 {
		if err := w.Write(headers); err != nil {
			return nil, 0, fmt.Errorf("write header: %w", err)
		}
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, key := range headers {
			record[i] = formatCell(row[key])
		}
		if err := w.Write(record); err != nil {
			return nil, 0, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, 0, err
	}

	if s.metrics != nil {
		s.metrics.RecordExportRows(table, len(rows))
	}
	return buf.Bytes(), len(rows), nil
}

// All exports every table. A failing table yields a Result with Err set and
// does not abort the rest.
func (s *Service) All(ctx context.Context) []Result {
	tables := s.store.ExportTables()
	results := make([]Result, 0, len(tables))
	for _, table := range tables {
		data, rows, err := s.Table(ctx, table)
		if err != nil {
			s.log.WithError(err).WithField("table", table).Warn("table export failed")
			results = append(results, Result{Table: table, Err: err})
			continue
		}
		results = append(results, Result{Table: table, CSV: data, Rows: rows})
	}
	return results
}

// formatCell renders one value the way spreadsheets expect: scalars bare,
// composites as JSON.
func formatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	case json.RawMessage:
		return string(val)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(raw)
	}
}
