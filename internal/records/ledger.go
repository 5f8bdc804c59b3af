package records

import (
	"context"
	"slices"
	"strings"

	"github.com/tildaslashalef/congregate/internal/entity"
)

// Ledger is the typed access to income and expense entries
type Ledger struct {
	svc *Service
}

// Ledger returns the income and expense ledger
func (s *Service) Ledger() *Ledger {
	return &Ledger{svc: s}
}

// AddIncome validates and records an income entry
func (l *Ledger) AddIncome(ctx context.Context, in IncomeInput) (*Income, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	record, err := l.svc.Create(ctx, entity.Income, in.Record())
	if err != nil {
		return nil, err
	}
	return decode[Income](record)
}

// DeleteIncome removes an income entry. The server keeps it with deleted_at set.
func (l *Ledger) DeleteIncome(ctx context.Context, id string) error {
	return l.svc.Delete(ctx, entity.Income, id)
}

// Income returns live income entries, newest first
func (l *Ledger) Income(ctx context.Context) ([]*Income, error) {
	records, err := l.svc.List(ctx, entity.Income)
	if err != nil {
		return nil, err
	}
	entries, err := decodeAll[Income](records)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(entries, func(a, b *Income) int { return strings.Compare(b.Date, a.Date) })
	return entries, nil
}

// AddExpense validates and records an expense entry
func (l *Ledger) AddExpense(ctx context.Context, in ExpenseInput) (*Expense, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	record, err := l.svc.Create(ctx, entity.Expenses, in.Record())
	if err != nil {
		return nil, err
	}
	return decode[Expense](record)
}

// DeleteExpense removes an expense entry. The server keeps it with deleted_at set.
func (l *Ledger) DeleteExpense(ctx context.Context, id string) error {
	return l.svc.Delete(ctx, entity.Expenses, id)
}

// Expenses returns live expense entries, newest first
func (l *Ledger) Expenses(ctx context.Context) ([]*Expense, error) {
	records, err := l.svc.List(ctx, entity.Expenses)
	if err != nil {
		return nil, err
	}
	entries, err := decodeAll[Expense](records)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(entries, func(a, b *Expense) int { return strings.Compare(b.Date, a.Date) })
	return entries, nil
}

// Sectors returns the sector list sorted by name. Sectors are read-only here.
func (s *Service) Sectors(ctx context.Context) ([]*Sector, error) {
	records, err := s.List(ctx, entity.Sectors)
	if err != nil {
		return nil, err
	}
	sectors, err := decodeAll[Sector](records)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(sectors, func(a, b *Sector) int { return strings.Compare(a.Name, b.Name) })
	return sectors, nil
}
