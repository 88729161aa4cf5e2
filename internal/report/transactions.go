package report

import (
	"context"
	"fmt"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/expr"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

func dateOf(t *model.Transaction, field DateField) time.Time {
	switch field {
	case DateFieldAccounting:
		return t.AccountingDate
	case DateFieldCash:
		return t.CashDate
	case DateFieldUser1:
		return t.UserDate1
	case DateFieldUser2:
		return t.UserDate2
	case DateFieldUser3:
		return t.UserDate3
	case DateFieldUser4:
		return t.UserDate4
	case DateFieldUser5:
		return t.UserDate5
	}
	return t.TransactionDate
}

// inWindow applies the transaction-report date predicate: initial-position
// classes match only on the window's end date, everything else anywhere
// inside [begin, end]. A zero begin date leaves the window open-ended.
func inWindow(t *model.Transaction, spec *Spec) bool {
	d := dateOf(t, spec.DateField)
	if d.IsZero() {
		return false
	}
	if t.TransactionClass.IsInitial() {
		return d.Equal(spec.EndDate)
	}
	if !spec.BeginDate.IsZero() && d.Before(spec.BeginDate) {
		return false
	}
	return !d.After(spec.EndDate)
}

// BuildTransactions produces the windowed, paginated transaction listing
// with custom-field evaluation.
func BuildTransactions(ctx context.Context, spec *Spec, data *Data) *Result {
	result := &Result{ReportDate: spec.EndDate, ReportType: "transaction"}

	var rows []TransactionItem
	seenComplex := make(map[string]struct{})

	for _, t := range data.Transactions {
		if t.IsDeleted || !inWindow(t, spec) || !MatchesFilters(t, spec) {
			continue
		}

		var ct *model.ComplexTransaction
		if t.ComplexTransactionID != "" {
			ct = data.Complex[t.ComplexTransactionID]
		}
		if spec.ComplexStatusFilter != "" {
			if ct == nil || ct.Status != spec.ComplexStatusFilter {
				continue
			}
		}

		if spec.DepthLevel == DepthComplex {
			if ct == nil {
				continue
			}
			if _, dup := seenComplex[ct.ID]; dup {
				continue
			}
			seenComplex[ct.ID] = struct{}{}
		}

		rows = append(rows, TransactionItem{
			Transaction:        t,
			ComplexTransaction: ct,
			Date:               dateOf(t, spec.DateField),
		})
	}

	if len(spec.CustomFields) > 0 {
		evaluateCustomFields(ctx, spec, rows, result)
	}

	result.TotalCount = len(rows)
	result.Transactions = paginate(rows, spec.Page, spec.PageSize)
	return result
}

func paginate(rows []TransactionItem, page, pageSize int) []TransactionItem {
	if pageSize <= 0 {
		return rows
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(rows) {
		return nil
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	return rows[start:end]
}

// evaluateCustomFields compiles the field formulas once, resolves their
// mutual references topologically, and evaluates them per row. Fields caught
// in a reference cycle get the configured number of extra fixed-point
// passes instead.
func evaluateCustomFields(ctx context.Context, spec *Spec, rows []TransactionItem, result *Result) {
	compiled := make(map[string]*expr.Evaluable, len(spec.CustomFields))
	names := make([]string, 0, len(spec.CustomFields))
	known := make(map[string]struct{}, len(spec.CustomFields))
	for _, f := range spec.CustomFields {
		known[f.Name] = struct{}{}
	}

	dependencies := make(map[string][]string, len(spec.CustomFields))
	for _, f := range spec.CustomFields {
		e, err := expr.Compile(f.Expr)
		if err != nil {
			result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("custom field %s: %v", f.Name, err))
			continue
		}
		compiled[f.Name] = e
		names = append(names, f.Name)
		dependencies[f.Name] = expr.Dependencies(f.Expr, known)
	}

	ordered, cyclic := expr.Order(names, dependencies)
	passes := 1
	if len(cyclic) > 0 {
		passes = spec.ExpressionIterations
		if passes < 1 {
			passes = 1
		}
	}
	evalOrder := append(ordered, cyclic...)

	failed := make(map[string]struct{})
	for i := range rows {
		env := rowEnv(&rows[i])
		values := make(map[string]any, len(evalOrder))
		for pass := 0; pass < passes; pass++ {
			for _, name := range evalOrder {
				value, err := compiled[name].Eval(ctx, env)
				if err != nil {
					if _, dup := failed[name]; !dup {
						failed[name] = struct{}{}
						result.ErrorMessages = append(result.ErrorMessages, fmt.Sprintf("custom field %s: %v", name, err))
					}
					continue
				}
				values[name] = value
				env[name] = value
			}
		}
		rows[i].CustomFields = values
	}
}

// rowEnv flattens a transaction into the attribute map visible to
// custom-field expressions.
func rowEnv(item *TransactionItem) map[string]any {
	t := item.Transaction
	env := map[string]any{
		"id":                      t.ID,
		"portfolio":               t.PortfolioID,
		"transaction_class":       string(t.TransactionClass),
		"instrument":              t.InstrumentID,
		"transaction_currency":    t.TransactionCurrencyID,
		"settlement_currency":     t.SettlementCurrencyID,
		"position_size_with_sign": t.PositionSizeWithSign,
		"cash_consideration":      t.CashConsideration,
		"principal_with_sign":     t.PrincipalWithSign,
		"carry_with_sign":         t.CarryWithSign,
		"overheads_with_sign":     t.OverheadsWithSign,
		"reference_fx_rate":       t.ReferenceFXRate,
		"trade_price":             t.TradePrice,
		"transaction_date":        t.TransactionDate.Format("2006-01-02"),
		"accounting_date":         t.AccountingDate.Format("2006-01-02"),
		"cash_date":               t.CashDate.Format("2006-01-02"),
		"account_position":        t.AccountPositionID,
		"account_cash":            t.AccountCashID,
		"account_interim":         t.AccountInterimID,
		"strategy1_position":      t.Strategy1PositionID,
		"strategy2_position":      t.Strategy2PositionID,
		"strategy3_position":      t.Strategy3PositionID,
		"strategy1_cash":          t.Strategy1CashID,
		"strategy2_cash":          t.Strategy2CashID,
		"strategy3_cash":          t.Strategy3CashID,
	}
	for i, d := range []time.Time{t.UserDate1, t.UserDate2, t.UserDate3, t.UserDate4, t.UserDate5} {
		name := fmt.Sprintf("user_date_%d", i+1)
		if d.IsZero() {
			env[name] = ""
		} else {
			env[name] = d.Format("2006-01-02")
		}
	}
	if item.ComplexTransaction != nil {
		env["complex_transaction_code"] = float64(item.ComplexTransaction.Code)
		env["complex_transaction_status"] = string(item.ComplexTransaction.Status)
		env["complex_transaction_text"] = item.ComplexTransaction.Text
	}
	return env
}
