package repo

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/potholewatch/server/internal/db"
	"github.com/potholewatch/server/internal/model"
)

// ReportRepo owns the lifetime of report records.
type ReportRepo interface {
	// Create persists r, assigning an ID and a timestamp when they are unset.
	Create(ctx context.Context, r model.Report) (model.Report, error)
	// Find returns every report, or only those whose city equals city when it is non-empty.
	Find(ctx context.Context, city string) ([]model.Report, error)
	// AggregateCounts groups reports by city and returns at most limit groups
	// ordered by count. A non-positive limit returns every group.
	AggregateCounts(ctx context.Context, order model.SortOrder, limit int) ([]model.CityCount, error)
	Count(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// prepareReport validates coordinates and fills store-assigned fields.
func prepareReport(r model.Report, now time.Time) (model.Report, error) {
	if !isFinite(r.Lat) || !isFinite(r.Lng) {
		return model.Report{}, fmt.Errorf("%w: lat and lng must be finite numbers", ErrInvalidReport)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now
	}
	// storage keeps millisecond precision
	r.Timestamp = r.Timestamp.UTC().Truncate(time.Millisecond)
	if r.City == "" {
		r.City = model.UnknownCity
	}
	if r.Country == "" {
		r.Country = model.UnknownCountry
	}
	if r.SubmittedBy == "" {
		r.SubmittedBy = model.UnknownSubmitter
	}
	return r, nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type sqlReportRepo struct {
	db      *sql.DB
	dialect db.Dialect
	now     func() time.Time
}

// NewSQLReportRepo creates a ReportRepo over the reports table
func NewSQLReportRepo(database *sql.DB, dialect db.Dialect) ReportRepo {
	return &sqlReportRepo{db: database, dialect: dialect, now: time.Now}
}

func (r *sqlReportRepo) Create(ctx context.Context, report model.Report) (model.Report, error) {
	report, err := prepareReport(report, r.now())
	if err != nil {
		return model.Report{}, err
	}

	query := rebind(r.dialect, `
		INSERT INTO reports (id, lat, lng, city, country, submitted_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`)
	_, err = r.db.ExecContext(ctx, query,
		report.ID,
		report.Lat,
		report.Lng,
		report.City,
		report.Country,
		report.SubmittedBy,
		toMillis(report.Timestamp),
	)
	if err != nil {
		return model.Report{}, fmt.Errorf("%w: insert report: %w", ErrStorage, err)
	}
	return report, nil
}

func (r *sqlReportRepo) Find(ctx context.Context, city string) ([]model.Report, error) {
	query := `
		SELECT id, lat, lng, city, country, submitted_by, created_at
		FROM reports
	`
	var args []any
	if city != "" {
		query += ` WHERE city = $1`
		args = append(args, city)
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, rebind(r.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: query reports: %w", ErrStorage, err)
	}
	defer rows.Close()

	reports := make([]model.Report, 0)
	for rows.Next() {
		var report model.Report
		var createdAt int64
		if err := rows.Scan(
			&report.ID,
			&report.Lat,
			&report.Lng,
			&report.City,
			&report.Country,
			&report.SubmittedBy,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("%w: scan report: %w", ErrStorage, err)
		}
		report.Timestamp = fromMillis(createdAt)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate reports: %w", ErrStorage, err)
	}
	return reports, nil
}

func (r *sqlReportRepo) AggregateCounts(ctx context.Context, order model.SortOrder, limit int) ([]model.CityCount, error) {
	direction := "DESC"
	if order == model.Least {
		direction = "ASC"
	}
	query := `
		SELECT city, COUNT(*) AS n
		FROM reports
		GROUP BY city
		ORDER BY n ` + direction + `, city ASC`
	var args []any
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, rebind(r.dialect, query), args...)
	if err != nil {
		return nil, fmt.Errorf("%w: aggregate reports: %w", ErrStorage, err)
	}
	defer rows.Close()

	counts := make([]model.CityCount, 0)
	for rows.Next() {
		var c model.CityCount
		if err := rows.Scan(&c.City, &c.Count); err != nil {
			return nil, fmt.Errorf("%w: scan city count: %w", ErrStorage, err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate city counts: %w", ErrStorage, err)
	}
	return counts, nil
}

func (r *sqlReportRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count reports: %w", ErrStorage, err)
	}
	return n, nil
}

func (r *sqlReportRepo) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrStorage, err)
	}
	return nil
}
