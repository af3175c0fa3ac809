// Monetarius - Customer Value Analytics and Recommendation Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/monetarius

// Package ingest loads raw event tables from flat files.
//
// The loader performs type coercion and drops rows that fail it. Dropping
// is silent by design (data-quality problems are expected in retail
// exports) but every drop is counted per cause, logged, and exported as a
// Prometheus counter for auditability.
package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tomtom215/monetarius/internal/config"
	"github.com/tomtom215/monetarius/internal/logging"
	"github.com/tomtom215/monetarius/internal/metrics"
	"github.com/tomtom215/monetarius/internal/models"
)

// ErrEmptyInput indicates the input file contained a header but no usable rows.
var ErrEmptyInput = errors.New("ingest: no usable rows in input")

// Stats records the audit counts for one load.
type Stats struct {
	RowsRead    int64            `json:"rows_read"`
	RowsKept    int64            `json:"rows_kept"`
	RowsDropped map[string]int64 `json:"rows_dropped"`
}

func newStats() *Stats {
	return &Stats{RowsDropped: make(map[string]int64)}
}

func (s *Stats) drop(source, reason string) {
	s.RowsDropped[reason]++
	metrics.RowsDropped.WithLabelValues(source, reason).Inc()
}

// Reader loads transaction and action tables according to the ingest
// configuration (encoding, delimiter, date layout).
type Reader struct {
	cfg config.IngestConfig
}

// NewReader creates a Reader for the given ingest configuration.
func NewReader(cfg config.IngestConfig) *Reader {
	return &Reader{cfg: cfg}
}

// decoder returns the charset decoder for the configured source encoding.
// Legacy retail exports commonly use single-byte Windows code pages.
func (r *Reader) decoder() *encoding.Decoder {
	switch strings.ToLower(r.cfg.Encoding) {
	case "windows-1252":
		return charmap.Windows1252.NewDecoder()
	case "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder()
	case "iso-8859-9":
		return charmap.ISO8859_9.NewDecoder()
	default:
		// UTF-8 input passes through untouched; a BOM is stripped if present.
		return unicode.UTF8BOM.NewDecoder()
	}
}

// open opens path and wraps it in the configured charset decoder and a CSV
// reader. The caller owns the returned closer.
func (r *Reader) open(path string) (*csv.Reader, io.Closer, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator configuration
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}

	cr := csv.NewReader(transform.NewReader(f, r.decoder()))
	cr.Comma = rune(r.cfg.Comma[0])
	cr.TrimLeadingSpace = true
	// Tolerate ragged rows; short rows fail coercion and are counted.
	cr.FieldsPerRecord = -1
	return cr, f, nil
}

// columnIndex builds a case-insensitive header lookup and resolves each
// required column through its accepted aliases.
func columnIndex(header []string, aliases map[string][]string) (map[string]int, error) {
	byName := make(map[string]int, len(header))
	for i, h := range header {
		byName[strings.ToLower(strings.TrimSpace(h))] = i
	}

	idx := make(map[string]int, len(aliases))
	for col, names := range aliases {
		found := -1
		for _, n := range names {
			if i, ok := byName[n]; ok {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, fmt.Errorf("ingest: required column %q not found in header %v", col, header)
		}
		idx[col] = found
	}
	return idx, nil
}

// transactionAliases maps logical columns to accepted header names.
var transactionAliases = map[string][]string{
	"customer_id": {"customer_id", "customerid", "customer id"},
	"invoice_id":  {"invoice_id", "invoiceno", "invoice_no", "invoice"},
	"timestamp":   {"timestamp", "invoicedate", "invoice_date", "date"},
	"quantity":    {"quantity", "qty"},
	"unit_price":  {"unit_price", "unitprice", "price"},
}

// Transactions loads the transaction log from path.
//
// Rows missing a customer id, or with an unparsable id, timestamp,
// quantity, or price, are dropped and counted. An input with no surviving
// rows returns ErrEmptyInput.
func (r *Reader) Transactions(path string) ([]models.Transaction, *Stats, error) {
	cr, closer, err := r.open(path)
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close() //nolint:errcheck // read-only file

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: read header: %w", err)
	}
	idx, err := columnIndex(header, transactionAliases)
	if err != nil {
		return nil, nil, err
	}

	const source = "transactions"
	stats := newStats()
	var out []models.Transaction

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.RowsRead++
			stats.drop(source, "malformed_csv")
			continue
		}
		stats.RowsRead++
		metrics.RowsRead.WithLabelValues(source).Inc()

		tx, reason := r.coerceTransaction(rec, idx)
		if reason != "" {
			stats.drop(source, reason)
			continue
		}
		out = append(out, tx)
		stats.RowsKept++
	}

	logLoad(source, path, stats)
	if len(out) == 0 {
		return nil, stats, fmt.Errorf("%w: %s", ErrEmptyInput, path)
	}
	return out, stats, nil
}

// coerceTransaction converts one CSV record into a Transaction. It returns
// a non-empty drop reason when the row is unusable.
func (r *Reader) coerceTransaction(rec []string, idx map[string]int) (models.Transaction, string) {
	get := func(col string) string {
		i := idx[col]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	rawID := get("customer_id")
	if rawID == "" {
		return models.Transaction{}, "missing_id"
	}
	// Exports store the id as a float ("17850.0"); accept both forms.
	custID, err := strconv.ParseInt(strings.TrimSuffix(rawID, ".0"), 10, 64)
	if err != nil {
		return models.Transaction{}, "bad_id"
	}

	ts, err := time.Parse(r.cfg.DateFormat, get("timestamp"))
	if err != nil {
		return models.Transaction{}, "bad_timestamp"
	}

	qty, err := strconv.ParseFloat(get("quantity"), 64)
	if err != nil {
		return models.Transaction{}, "bad_quantity"
	}

	price, err := strconv.ParseFloat(get("unit_price"), 64)
	if err != nil {
		return models.Transaction{}, "bad_unit_price"
	}

	return models.Transaction{
		CustomerID: custID,
		InvoiceID:  get("invoice_id"),
		Timestamp:  ts,
		Quantity:   qty,
		UnitPrice:  price,
	}, ""
}

// actionAliases maps logical columns to accepted header names.
var actionAliases = map[string][]string{
	"item_id": {"item_id", "itemid", "product_id", "productid"},
	"user_id": {"user_id", "userid", "visitorid", "visitor_id"},
	"action":  {"action", "event", "action_type", "event_type"},
}

// Actions loads the user-item action log from path. Rows with missing or
// unparsable identifiers are dropped and counted; unknown action types are
// kept here and ignored downstream by the weight table.
func (r *Reader) Actions(path string) ([]models.ActionEvent, *Stats, error) {
	cr, closer, err := r.open(path)
	if err != nil {
		return nil, nil, err
	}
	defer closer.Close() //nolint:errcheck // read-only file

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: read header: %w", err)
	}
	idx, err := columnIndex(header, actionAliases)
	if err != nil {
		return nil, nil, err
	}

	const source = "actions"
	stats := newStats()
	var out []models.ActionEvent

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			stats.RowsRead++
			stats.drop(source, "malformed_csv")
			continue
		}
		stats.RowsRead++
		metrics.RowsRead.WithLabelValues(source).Inc()

		get := func(col string) string {
			i := idx[col]
			if i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}

		itemID, err := strconv.ParseInt(get("item_id"), 10, 64)
		if err != nil {
			stats.drop(source, "bad_item_id")
			continue
		}
		userID, err := strconv.ParseInt(get("user_id"), 10, 64)
		if err != nil {
			stats.drop(source, "bad_user_id")
			continue
		}
		action := strings.ToLower(get("action"))
		if action == "" {
			stats.drop(source, "missing_action")
			continue
		}

		out = append(out, models.ActionEvent{ItemID: itemID, UserID: userID, Action: action})
		stats.RowsKept++
	}

	logLoad(source, path, stats)
	if len(out) == 0 {
		return nil, stats, fmt.Errorf("%w: %s", ErrEmptyInput, path)
	}
	return out, stats, nil
}

// logLoad emits the audit summary for one load.
func logLoad(source, path string, stats *Stats) {
	ev := logging.Info().
		Str("component", "ingest").
		Str("source", source).
		Str("path", path).
		Int64("rows_read", stats.RowsRead).
		Int64("rows_kept", stats.RowsKept)
	for reason, n := range stats.RowsDropped {
		ev = ev.Int64("dropped_"+reason, n)
	}
	ev.Msg("load finished")
}
