package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/potholewatch/server/internal/model"
)

// MemoryReportRepo keeps reports in insertion order in process memory.
type MemoryReportRepo struct {
	mu      sync.RWMutex
	reports []model.Report
	now     func() time.Time
}

// NewMemoryReportRepo creates an empty in-memory ReportRepo
func NewMemoryReportRepo() *MemoryReportRepo {
	return &MemoryReportRepo{now: time.Now}
}

func (r *MemoryReportRepo) Create(ctx context.Context, report model.Report) (model.Report, error) {
	if err := ctx.Err(); err != nil {
		return model.Report{}, err
	}
	report, err := prepareReport(report, r.now())
	if err != nil {
		return model.Report{}, err
	}

	r.mu.Lock()
	r.reports = append(r.reports, report)
	r.mu.Unlock()
	return report, nil
}

func (r *MemoryReportRepo) Find(ctx context.Context, city string) ([]model.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Report, 0, len(r.reports))
	for _, report := range r.reports {
		if city == "" || report.City == city {
			out = append(out, report)
		}
	}
	return out, nil
}

func (r *MemoryReportRepo) AggregateCounts(ctx context.Context, order model.SortOrder, limit int) ([]model.CityCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	byCity := make(map[string]int64)
	for _, report := range r.reports {
		byCity[report.City]++
	}
	r.mu.RUnlock()

	counts := make([]model.CityCount, 0, len(byCity))
	for city, n := range byCity {
		counts = append(counts, model.CityCount{City: city, Count: n})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			if order == model.Least {
				return counts[i].Count < counts[j].Count
			}
			return counts[i].Count > counts[j].Count
		}
		return counts[i].City < counts[j].City
	})

	if limit > 0 && len(counts) > limit {
		counts = counts[:limit]
	}
	return counts, nil
}

func (r *MemoryReportRepo) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.reports)), nil
}

func (r *MemoryReportRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
