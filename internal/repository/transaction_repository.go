package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// TransactionRepository provides data access methods for the ledger.
// The ledger is append-only from the reporting viewpoint: rows are inserted
// at booking time and soft-deleted, never updated by the reporting core.
type TransactionRepository struct {
	db *sql.DB
}

// NewTransactionRepository creates a new TransactionRepository with the provided database connection.
func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const transactionColumns = `
	id, master_user_id, COALESCE(complex_transaction_id, ''), portfolio_id, transaction_class,
	COALESCE(instrument_id, ''), transaction_currency_id, settlement_currency_id,
	position_size_with_sign, cash_consideration, principal_with_sign,
	carry_with_sign, overheads_with_sign, reference_fx_rate, trade_price,
	transaction_date, accounting_date, cash_date,
	COALESCE(account_position_id, ''), COALESCE(account_cash_id, ''), COALESCE(account_interim_id, ''),
	COALESCE(strategy1_position_id, ''), COALESCE(strategy2_position_id, ''), COALESCE(strategy3_position_id, ''),
	COALESCE(strategy1_cash_id, ''), COALESCE(strategy2_cash_id, ''), COALESCE(strategy3_cash_id, ''),
	COALESCE(allocation_balance_id, ''), COALESCE(allocation_pl_id, ''),
	user_date_1, user_date_2, user_date_3, user_date_4, user_date_5,
	is_deleted, created_at
`

func scanTransaction(rows *sql.Rows) (*model.Transaction, error) {
	var t model.Transaction
	var txnDate, accDate, cashDate string
	var ud1, ud2, ud3, ud4, ud5 sql.NullString
	var createdAt sql.NullString

	err := rows.Scan(
		&t.ID, &t.MasterUserID, &t.ComplexTransactionID, &t.PortfolioID, &t.TransactionClass,
		&t.InstrumentID, &t.TransactionCurrencyID, &t.SettlementCurrencyID,
		&t.PositionSizeWithSign, &t.CashConsideration, &t.PrincipalWithSign,
		&t.CarryWithSign, &t.OverheadsWithSign, &t.ReferenceFXRate, &t.TradePrice,
		&txnDate, &accDate, &cashDate,
		&t.AccountPositionID, &t.AccountCashID, &t.AccountInterimID,
		&t.Strategy1PositionID, &t.Strategy2PositionID, &t.Strategy3PositionID,
		&t.Strategy1CashID, &t.Strategy2CashID, &t.Strategy3CashID,
		&t.AllocationBalanceID, &t.AllocationPLID,
		&ud1, &ud2, &ud3, &ud4, &ud5,
		&t.IsDeleted, &createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction table results: %w", err)
	}

	if t.TransactionDate, err = ParseTime(txnDate); err != nil {
		return nil, err
	}
	if t.AccountingDate, err = ParseTime(accDate); err != nil {
		return nil, err
	}
	if t.CashDate, err = ParseTime(cashDate); err != nil {
		return nil, err
	}
	userDates := []*time.Time{&t.UserDate1, &t.UserDate2, &t.UserDate3, &t.UserDate4, &t.UserDate5}
	for i, raw := range []sql.NullString{ud1, ud2, ud3, ud4, ud5} {
		parsed, err := DateOrZero(raw)
		if err != nil {
			return nil, err
		}
		*userDates[i] = parsed
	}
	if createdAt.Valid {
		if t.CreatedAt, err = ParseTime(createdAt.String); err != nil {
			return nil, err
		}
	}

	return &t, nil
}

func (s *TransactionRepository) queryTransactions(query string, args ...any) ([]*model.Transaction, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction table: %w", err)
	}
	defer rows.Close()

	var transactions []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction table: %w", err)
	}

	return transactions, nil
}

// GetForReport retrieves all non-deleted transactions of the tenant whose
// effective date (the earlier of accounting and cash date) is on or before
// the report date, ordered by (transaction_date, id). The initial-position
// equality gate is applied later by the consolidation engine, which needs
// the rows to decide per class.
//
// Pass portfolioIDs to narrow the ledger scan; an empty slice scans the whole
// tenant.
func (s *TransactionRepository) GetForReport(masterUserID string, reportDate time.Time, portfolioIDs []string) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM "transaction"
		WHERE master_user_id = ?
		AND is_deleted = FALSE
		AND MIN(accounting_date, cash_date) <= ?
	`
	args := []any{masterUserID, DateArg(reportDate)}

	if len(portfolioIDs) > 0 {
		query += ` AND portfolio_id IN (` + Placeholders(len(portfolioIDs)) + `)`
		for _, id := range portfolioIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY transaction_date ASC, id ASC`

	return s.queryTransactions(query, args...)
}

// GetByTenant retrieves every non-deleted transaction of the tenant ordered
// by (transaction_date, id). Used by the transaction-report builder, which
// applies its own date-field window in memory because the selected date
// column is caller-configurable.
func (s *TransactionRepository) GetByTenant(masterUserID string) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM "transaction"
		WHERE master_user_id = ?
		AND is_deleted = FALSE
		ORDER BY transaction_date ASC, id ASC
	`
	return s.queryTransactions(query, masterUserID)
}

// GetCashFlows retrieves the portfolio's cash-flow transactions (inflow,
// outflow, injection, distribution) ordered by (accounting_date, id). This
// ordering drives register-record derivation.
func (s *TransactionRepository) GetCashFlows(masterUserID, portfolioID string) ([]*model.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM "transaction"
		WHERE master_user_id = ?
		AND portfolio_id = ?
		AND is_deleted = FALSE
		AND transaction_class IN (?, ?, ?, ?)
		ORDER BY accounting_date ASC, id ASC
	`
	return s.queryTransactions(query,
		masterUserID, portfolioID,
		string(model.ClassCashInflow), string(model.ClassCashOutflow),
		string(model.ClassInjection), string(model.ClassDistribution),
	)
}

// GetComplexTransactions returns the tenant's complex transactions keyed by
// id, for depth-level complex reporting.
func (s *TransactionRepository) GetComplexTransactions(masterUserID string) (map[string]*model.ComplexTransaction, error) {
	rows, err := s.db.Query(`
		SELECT id, master_user_id, code, status, date, COALESCE(text, '')
		FROM complex_transaction
		WHERE master_user_id = ?
	`, masterUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to query complex_transaction table: %w", err)
	}
	defer rows.Close()

	complexTransactions := make(map[string]*model.ComplexTransaction)
	for rows.Next() {
		var ct model.ComplexTransaction
		var dateStr string
		if err := rows.Scan(&ct.ID, &ct.MasterUserID, &ct.Code, &ct.Status, &dateStr, &ct.Text); err != nil {
			return nil, fmt.Errorf("failed to scan complex_transaction table results: %w", err)
		}
		if ct.Date, err = ParseTime(dateStr); err != nil {
			return nil, err
		}
		complexTransactions[ct.ID] = &ct
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating complex_transaction table: %w", err)
	}

	return complexTransactions, nil
}

// Insert appends a transaction to the ledger. Validation (zero position
// size on buy/sell, date sanity) happens in the ingest service before this
// call.
func (s *TransactionRepository) Insert(t *model.Transaction) error {
	_, err := s.db.Exec(`
		INSERT INTO "transaction" (
			id, master_user_id, complex_transaction_id, portfolio_id, transaction_class,
			instrument_id, transaction_currency_id, settlement_currency_id,
			position_size_with_sign, cash_consideration, principal_with_sign,
			carry_with_sign, overheads_with_sign, reference_fx_rate, trade_price,
			transaction_date, accounting_date, cash_date,
			account_position_id, account_cash_id, account_interim_id,
			strategy1_position_id, strategy2_position_id, strategy3_position_id,
			strategy1_cash_id, strategy2_cash_id, strategy3_cash_id,
			allocation_balance_id, allocation_pl_id,
			user_date_1, user_date_2, user_date_3, user_date_4, user_date_5,
			is_deleted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.MasterUserID, NullStr(t.ComplexTransactionID), t.PortfolioID, string(t.TransactionClass),
		NullStr(t.InstrumentID), t.TransactionCurrencyID, t.SettlementCurrencyID,
		t.PositionSizeWithSign, t.CashConsideration, t.PrincipalWithSign,
		t.CarryWithSign, t.OverheadsWithSign, t.ReferenceFXRate, t.TradePrice,
		DateArg(t.TransactionDate), DateArg(t.AccountingDate), DateArg(t.CashDate),
		NullStr(t.AccountPositionID), NullStr(t.AccountCashID), NullStr(t.AccountInterimID),
		NullStr(t.Strategy1PositionID), NullStr(t.Strategy2PositionID), NullStr(t.Strategy3PositionID),
		NullStr(t.Strategy1CashID), NullStr(t.Strategy2CashID), NullStr(t.Strategy3CashID),
		NullStr(t.AllocationBalanceID), NullStr(t.AllocationPLID),
		NullDate(t.UserDate1), NullDate(t.UserDate2), NullDate(t.UserDate3),
		NullDate(t.UserDate4), NullDate(t.UserDate5),
		t.IsDeleted,
	)
	if err != nil {
		return fmt.Errorf("failed to insert into transaction table: %w", err)
	}
	return nil
}

// GetOldestCashFlowDate finds the date of the earliest cash-flow
// transaction across the given portfolios. Returns the zero time when none
// exist.
func (s *TransactionRepository) GetOldestCashFlowDate(masterUserID string, portfolioIDs []string) (time.Time, error) {
	if len(portfolioIDs) == 0 {
		return time.Time{}, nil
	}

	query := `
		SELECT MIN(accounting_date)
		FROM "transaction"
		WHERE master_user_id = ?
		AND is_deleted = FALSE
		AND transaction_class IN (?, ?, ?, ?)
		AND portfolio_id IN (` + Placeholders(len(portfolioIDs)) + `)
	`
	args := []any{
		masterUserID,
		string(model.ClassCashInflow), string(model.ClassCashOutflow),
		string(model.ClassInjection), string(model.ClassDistribution),
	}
	for _, id := range portfolioIDs {
		args = append(args, id)
	}

	var oldest sql.NullString
	if err := s.db.QueryRow(query, args...).Scan(&oldest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query transaction table: %w", err)
	}
	if !oldest.Valid {
		return time.Time{}, nil
	}
	return ParseTime(oldest.String)
}
