// Package report builds period summaries over approved transactions and
// exports them to BigQuery and GCS for downstream analysis.
package report

import (
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/okazakov/bookbot/internal/domain"
)

// PeriodSummary aggregates approved transactions for a date range.
type PeriodSummary struct {
	From civil.Date `json:"from"`
	To   civil.Date `json:"to"`

	Count            int             `json:"count"`
	TotalSales       decimal.Decimal `json:"total_sales"`
	TotalReceivables decimal.Decimal `json:"total_receivables"`
	TotalExpenses    decimal.Decimal `json:"total_expenses"`

	// Net is income (sales + receivables) minus expenses.
	Net decimal.Decimal `json:"net"`
}

// BuildSummary totals the given transactions per type. Non-approved
// entries are ignored so callers can pass an unfiltered slice.
func BuildSummary(from, to civil.Date, txs []*domain.Transaction) PeriodSummary {
	s := PeriodSummary{From: from, To: to}

	for _, tx := range txs {
		if tx.Status != domain.StatusApproved {
			continue
		}
		s.Count++
		switch tx.Type {
		case domain.TypeSale:
			s.TotalSales = s.TotalSales.Add(tx.Amount)
		case domain.TypeReceivable:
			s.TotalReceivables = s.TotalReceivables.Add(tx.Amount)
		case domain.TypeExpense:
			s.TotalExpenses = s.TotalExpenses.Add(tx.Amount)
		}
	}

	s.Net = s.TotalSales.Add(s.TotalReceivables).Sub(s.TotalExpenses)
	return s
}
