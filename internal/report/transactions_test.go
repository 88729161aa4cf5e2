package report

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

func transactionSpec(t *testing.T, begin, end string) *Spec {
	spec := &Spec{
		ReportType: "transaction",
		EndDate:    day(t, end),
		DateField:  DateFieldTransaction,
		DepthLevel: DepthBase,
	}
	if begin != "" {
		spec.BeginDate = day(t, begin)
	}
	return spec
}

func TestBuildTransactionsWindow(t *testing.T) {
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-05", 10, -10),
		buyTxn(t, "2024-01-15", 10, -10),
		buyTxn(t, "2024-02-05", 10, -10),
	}
	data := testData(txns, nil, nil)

	result := BuildTransactions(context.Background(), transactionSpec(t, "2024-01-10", "2024-01-31"), data)

	if result.TotalCount != 1 {
		t.Fatalf("Expected one transaction in the window, got %d", result.TotalCount)
	}
	if !result.Transactions[0].Date.Equal(day(t, "2024-01-15")) {
		t.Errorf("Expected the mid-January row, got %s", result.Transactions[0].Date.Format("2006-01-02"))
	}
}

func TestBuildTransactionsOpenEndedWindow(t *testing.T) {
	txns := []*model.Transaction{
		buyTxn(t, "2024-01-05", 10, -10),
		buyTxn(t, "2024-01-15", 10, -10),
	}
	data := testData(txns, nil, nil)

	result := BuildTransactions(context.Background(), transactionSpec(t, "", "2024-01-31"), data)

	if result.TotalCount != 2 {
		t.Errorf("Expected a zero begin date to include everything up to the end, got %d", result.TotalCount)
	}
}

func TestBuildTransactionsInitialOnlyOnEndDate(t *testing.T) {
	initial := newTestTxn(model.ClassInitialPosition, day(t, "2024-01-15"), day(t, "2024-01-15"))
	initial.ID = "init1"
	initial.InstrumentID = "bond1"
	data := testData([]*model.Transaction{initial}, nil, nil)

	if r := BuildTransactions(context.Background(), transactionSpec(t, "2024-01-01", "2024-01-31"), data); r.TotalCount != 0 {
		t.Errorf("Expected the initial row to be excluded mid-window, got %d", r.TotalCount)
	}
	if r := BuildTransactions(context.Background(), transactionSpec(t, "2024-01-01", "2024-01-15"), data); r.TotalCount != 1 {
		t.Errorf("Expected the initial row on the window end, got %d", r.TotalCount)
	}
}

func TestBuildTransactionsDateField(t *testing.T) {
	txn := buyTxn(t, "2024-01-15", 10, -10)
	txn.CashDate = day(t, "2024-02-15")
	data := testData([]*model.Transaction{txn}, nil, nil)

	spec := transactionSpec(t, "2024-02-01", "2024-02-28")
	spec.DateField = DateFieldCash
	result := BuildTransactions(context.Background(), spec, data)

	if result.TotalCount != 1 {
		t.Fatalf("Expected the cash date to drive the window, got %d rows", result.TotalCount)
	}
	if !result.Transactions[0].Date.Equal(day(t, "2024-02-15")) {
		t.Errorf("Expected the row dated by cash date, got %s", result.Transactions[0].Date.Format("2006-01-02"))
	}
}

func TestBuildTransactionsPagination(t *testing.T) {
	var txns []*model.Transaction
	for i := 1; i <= 5; i++ {
		txn := buyTxn(t, fmt.Sprintf("2024-01-%02d", i), 10, -10)
		txn.ID = fmt.Sprintf("txn%d", i)
		txns = append(txns, txn)
	}
	data := testData(txns, nil, nil)

	spec := transactionSpec(t, "", "2024-01-31")
	spec.Page = 2
	spec.PageSize = 2
	result := BuildTransactions(context.Background(), spec, data)

	if result.TotalCount != 5 {
		t.Errorf("Expected total count 5 regardless of paging, got %d", result.TotalCount)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("Expected 2 rows on page 2, got %d", len(result.Transactions))
	}
	if result.Transactions[0].Transaction.ID != "txn3" {
		t.Errorf("Expected page 2 to start at txn3, got %s", result.Transactions[0].Transaction.ID)
	}

	spec.Page = 4
	if r := BuildTransactions(context.Background(), spec, data); len(r.Transactions) != 0 {
		t.Errorf("Expected an empty page past the end, got %d rows", len(r.Transactions))
	}
}

func TestBuildTransactionsComplexDepth(t *testing.T) {
	leg1 := buyTxn(t, "2024-01-10", 10, -10)
	leg1.ID = "leg1"
	leg1.ComplexTransactionID = "complex1"
	leg2 := buyTxn(t, "2024-01-10", 0, -1)
	leg2.ID = "leg2"
	leg2.ComplexTransactionID = "complex1"

	data := testData([]*model.Transaction{leg1, leg2}, nil, nil)
	data.Complex["complex1"] = &model.ComplexTransaction{
		ID: "complex1", Code: 42, Status: model.ComplexStatusBooked,
	}

	spec := transactionSpec(t, "", "2024-01-31")
	spec.DepthLevel = DepthComplex
	result := BuildTransactions(context.Background(), spec, data)

	if result.TotalCount != 1 {
		t.Fatalf("Expected one row per complex transaction, got %d", result.TotalCount)
	}
	if result.Transactions[0].ComplexTransaction == nil {
		t.Fatal("Expected the complex transaction attached")
	}
}

func TestBuildTransactionsStatusFilter(t *testing.T) {
	booked := buyTxn(t, "2024-01-10", 10, -10)
	booked.ID = "booked_leg"
	booked.ComplexTransactionID = "complex1"
	pending := buyTxn(t, "2024-01-11", 10, -10)
	pending.ID = "pending_leg"
	pending.ComplexTransactionID = "complex2"
	bare := buyTxn(t, "2024-01-12", 10, -10)
	bare.ID = "bare_leg"

	data := testData([]*model.Transaction{booked, pending, bare}, nil, nil)
	data.Complex["complex1"] = &model.ComplexTransaction{ID: "complex1", Status: model.ComplexStatusBooked}
	data.Complex["complex2"] = &model.ComplexTransaction{ID: "complex2", Status: model.ComplexStatusPending}

	spec := transactionSpec(t, "", "2024-01-31")
	spec.ComplexStatusFilter = model.ComplexStatusBooked
	result := BuildTransactions(context.Background(), spec, data)

	if result.TotalCount != 1 || result.Transactions[0].Transaction.ID != "booked_leg" {
		t.Errorf("Expected only the booked leg, got %+v", result.Transactions)
	}
}

func TestBuildTransactionsCustomFields(t *testing.T) {
	txn := buyTxn(t, "2024-01-10", 100, -95)
	data := testData([]*model.Transaction{txn}, nil, nil)

	spec := transactionSpec(t, "", "2024-01-31")
	spec.CustomFields = []CustomField{
		// Listed out of dependency order on purpose.
		{Name: "doubled_twice", Expr: "doubled * 2"},
		{Name: "doubled", Expr: "position_size_with_sign * 2"},
	}
	result := BuildTransactions(context.Background(), spec, data)

	if len(result.ErrorMessages) != 0 {
		t.Fatalf("Expected no evaluation errors, got %v", result.ErrorMessages)
	}
	fields := result.Transactions[0].CustomFields
	if fields["doubled"] != 200.0 {
		t.Errorf("Expected doubled = 200, got %v", fields["doubled"])
	}
	if fields["doubled_twice"] != 400.0 {
		t.Errorf("Expected doubled_twice = 400, got %v", fields["doubled_twice"])
	}
}

func TestBuildTransactionsCustomFieldCompileError(t *testing.T) {
	txn := buyTxn(t, "2024-01-10", 100, -95)
	data := testData([]*model.Transaction{txn}, nil, nil)

	spec := transactionSpec(t, "", "2024-01-31")
	spec.CustomFields = []CustomField{
		{Name: "broken", Expr: "1 +"},
		{Name: "ok", Expr: "1 + 1"},
	}
	result := BuildTransactions(context.Background(), spec, data)

	if len(result.ErrorMessages) != 1 || !strings.Contains(result.ErrorMessages[0], "broken") {
		t.Errorf("Expected a compile diagnostic for the broken field, got %v", result.ErrorMessages)
	}
	if result.Transactions[0].CustomFields["ok"] != 2.0 {
		t.Errorf("Expected the healthy field to still evaluate, got %v", result.Transactions[0].CustomFields["ok"])
	}
}

func TestBuildTransactionsCustomFieldCycle(t *testing.T) {
	txn := buyTxn(t, "2024-01-10", 100, -95)
	data := testData([]*model.Transaction{txn}, nil, nil)

	spec := transactionSpec(t, "", "2024-01-31")
	spec.ExpressionIterations = 3
	spec.CustomFields = []CustomField{
		{Name: "left", Expr: "right + 1"},
		{Name: "right", Expr: "left + 1"},
	}
	result := BuildTransactions(context.Background(), spec, data)

	// Cyclic fields evaluate iteratively against the previous pass's values.
	fields := result.Transactions[0].CustomFields
	if _, ok := fields["left"]; !ok {
		t.Errorf("Expected cyclic fields to produce values, got %v", fields)
	}
	if _, ok := fields["right"]; !ok {
		t.Errorf("Expected cyclic fields to produce values, got %v", fields)
	}
}

func TestBuildTransactionsComplexAttributes(t *testing.T) {
	txn := buyTxn(t, "2024-01-10", 100, -95)
	txn.ComplexTransactionID = "complex1"
	data := testData([]*model.Transaction{txn}, nil, nil)
	data.Complex["complex1"] = &model.ComplexTransaction{
		ID: "complex1", Code: 7, Status: model.ComplexStatusBooked,
	}

	spec := transactionSpec(t, "", "2024-01-31")
	spec.CustomFields = []CustomField{
		{Name: "user_code", Expr: `generate_user_code("trn", complex_transaction_status, complex_transaction_code)`},
	}
	result := BuildTransactions(context.Background(), spec, data)

	if got := result.Transactions[0].CustomFields["user_code"]; got != "trn00000007_booked" {
		t.Errorf("Expected trn00000007_booked, got %v", got)
	}
}
