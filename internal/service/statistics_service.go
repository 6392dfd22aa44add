package service

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// --- DTOs ---

type BillingStatsPoint struct {
	Period      string `json:"period"`
	TotalAmount string `json:"total_amount"`
	TotalCost   string `json:"total_cost"`
	TotalProfit string `json:"total_profit"`
	EntryCount  int64  `json:"entry_count"`
}

type StatsFilter struct {
	Branch    string
	GroupBy   string // month, quarter, year
	StartDate string // YYYY-MM-DD
	EndDate   string // YYYY-MM-DD
	Statuses  []string
}

// --- Interface ---

// StatisticsService aggregates billing amounts for the dashboard charts.
// Aggregation keys off the recognition month, not the invoice date: a billing
// belongs to the month it is recognized in.
type StatisticsService interface {
	GetBillingStatistics(ctx context.Context, filter StatsFilter) ([]BillingStatsPoint, error)
}

type statisticsService struct {
	db *gorm.DB
}

func NewStatisticsService(db *gorm.DB) StatisticsService {
	return &statisticsService{db: db}
}

// --- Implementation ---

func (s *statisticsService) GetBillingStatistics(ctx context.Context, filter StatsFilter) ([]BillingStatsPoint, error) {
	groupBy := filter.GroupBy
	switch groupBy {
	case "month", "quarter", "year":
	default:
		groupBy = "month"
	}

	start := filter.StartDate
	if start == "" {
		start = time.Now().UTC().AddDate(-1, 0, 0).Format("2006-01-02")
	}
	end := filter.EndDate
	if end == "" {
		end = time.Now().UTC().Format("2006-01-02")
	}

	statuses := filter.Statuses
	if len(statuses) == 0 {
		// cancelled entries never count toward revenue
		statuses = []string{"draft", "sent", "paid", "overdue"}
	}

	query := `
		SELECT
			TO_CHAR(DATE_TRUNC(?, b.recognition_month), 'YYYY-MM-DD') AS period,
			COALESCE(SUM(b.amount), 0) AS total_amount,
			COALESCE(SUM(b.construction_cost), 0) AS total_cost,
			COALESCE(SUM(b.project_profit), 0) AS total_profit,
			COUNT(*) AS entry_count
		FROM billing_entries b
		WHERE b.recognition_month >= ?::date
		  AND b.recognition_month <= ?::date
		  AND b.status IN ?
	`
	args := []interface{}{groupBy, start, end, statuses}
	if filter.Branch != "" {
		query += " AND b.branch = ?"
		args = append(args, filter.Branch)
	}
	query += `
		GROUP BY DATE_TRUNC(?, b.recognition_month)
		ORDER BY period
	`
	args = append(args, groupBy)

	type rawResult struct {
		Period      string  `gorm:"column:period"`
		TotalAmount float64 `gorm:"column:total_amount"`
		TotalCost   float64 `gorm:"column:total_cost"`
		TotalProfit float64 `gorm:"column:total_profit"`
		EntryCount  int64   `gorm:"column:entry_count"`
	}

	var rows []rawResult
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("billing statistics query failed: %w", err)
	}

	points := make([]BillingStatsPoint, 0, len(rows))
	for _, row := range rows {
		points = append(points, BillingStatsPoint{
			Period:      row.Period,
			TotalAmount: fmt.Sprintf("%.2f", row.TotalAmount),
			TotalCost:   fmt.Sprintf("%.2f", row.TotalCost),
			TotalProfit: fmt.Sprintf("%.2f", row.TotalProfit),
			EntryCount:  row.EntryCount,
		})
	}
	return points, nil
}
