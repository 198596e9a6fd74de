package dataset

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"crash-insights-go/internal/aggregator"
	"crash-insights-go/internal/filter"
	"crash-insights-go/internal/types"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func isPostgres(u string) bool {
	l := strings.ToLower(u)
	return strings.HasPrefix(l, "postgres://") || strings.HasPrefix(l, "postgresql://")
}

// splitDSN pulls the table query parameter off a postgres URL. The rest of
// the URL is handed to the driver untouched.
func splitDSN(raw string) (dsn, table string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parse postgres url: %w", err)
	}
	q := u.Query()
	table = q.Get("table")
	if !tableName.MatchString(table) {
		return "", "", fmt.Errorf("postgres url needs a valid table parameter, got %q", table)
	}
	q.Del("table")
	u.RawQuery = q.Encode()
	return u.String(), table, nil
}

// TableSource reports whether a configured source names a table on the
// default database, written as "table:<name>".
func TableSource(src string) (string, bool) {
	name, ok := strings.CutPrefix(src, "table:")
	return name, ok && name != ""
}

// TableURL points a database URL at one table.
func TableURL(databaseURL, table string) (string, error) {
	if !tableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	q := u.Query()
	q.Set("table", table)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redact hides the password of a postgres URL for logs and errors.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "postgres://"
	}
	return u.Redacted()
}

type predictionRow struct {
	SegmentID   string          `db:"segment_id"`
	City        sql.NullString  `db:"city"`
	Prediction  float64         `db:"prediction"`
	CenterX     float64         `db:"center_x"`
	CenterY     float64         `db:"center_y"`
	DisplayName sql.NullString  `db:"display_name"`
	Speed       sql.NullFloat64 `db:"speed"`
	Week        sql.NullInt64   `db:"week"`
}

type crashRow struct {
	ID         sql.NullString `db:"id"`
	City       sql.NullString `db:"city"`
	Latitude   float64        `db:"latitude"`
	Longitude  float64        `db:"longitude"`
	OccurredAt time.Time      `db:"occurred_at"`
	Mode       sql.NullString `db:"mode"`
}

func predictionQuery(table string) string {
	return `
		SELECT segment_id, city, prediction, center_x, center_y, display_name, speed, week
		FROM ` + table + `
		WHERE city = $1
		ORDER BY prediction DESC`
}

func crashQuery(table string) string {
	return `
		SELECT id, city, latitude, longitude, occurred_at, mode
		FROM ` + table + `
		WHERE city = $1
		ORDER BY occurred_at`
}

func (s *Source) queryPostgres(ctx context.Context, req Request) ([]types.Record, error) {
	dsn, table, err := splitDSN(req.URL)
	if err != nil {
		return nil, err
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	defer db.Close()

	switch req.Kind {
	case KindPredictions:
		var rows []predictionRow
		if err := db.SelectContext(ctx, &rows, predictionQuery(table), req.City); err != nil {
			return nil, fmt.Errorf("failed to query predictions: %w", err)
		}
		return predictionRecords(rows, req.City, req.SpeedField), nil
	case KindCrashes:
		var rows []crashRow
		if err := db.SelectContext(ctx, &rows, crashQuery(table), req.City); err != nil {
			return nil, fmt.Errorf("failed to query crashes: %w", err)
		}
		return crashRecords(rows, req.City), nil
	}
	return nil, fmt.Errorf("records of kind %q are not supported", req.Kind)
}

// predictionRecords stores the speed column under the city's speed field so
// the prediction filter finds it where file-based datasets put it.
func predictionRecords(rows []predictionRow, city, speedField string) []types.Record {
	if speedField == "" {
		speedField = filter.DefaultSpeedField
	}
	out := make([]types.Record, 0, len(rows))
	for _, r := range rows {
		props := map[string]any{
			"segment_id": r.SegmentID,
			"prediction": r.Prediction,
		}
		if r.Speed.Valid {
			props[speedField] = r.Speed.Float64
		}
		rec := types.Record{
			ID:          r.SegmentID,
			City:        city,
			Location:    types.Location{X: r.CenterX, Y: r.CenterY},
			Value:       r.Prediction,
			DisplayName: r.DisplayName.String,
			Properties:  props,
		}
		if r.City.Valid && r.City.String != "" {
			rec.City = r.City.String
		}
		if r.Week.Valid {
			rec.Week = int(r.Week.Int64)
		}
		out = append(out, rec)
	}
	return out
}

func crashRecords(rows []crashRow, city string) []types.Record {
	out := make([]types.Record, 0, len(rows))
	for _, r := range rows {
		rec := types.Record{
			ID:         r.ID.String,
			City:       city,
			Location:   types.Location{X: r.Longitude, Y: r.Latitude},
			Week:       aggregator.WeekOf(r.OccurredAt),
			Value:      1,
			Mode:       r.Mode.String,
			OccurredAt: r.OccurredAt,
		}
		if r.City.Valid && r.City.String != "" {
			rec.City = r.City.String
		}
		out = append(out, rec)
	}
	return out
}
