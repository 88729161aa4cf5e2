package apperrors

import "errors"

// Domain entity errors represent missing or invalid entities in the system.
// These errors indicate that a requested resource does not exist.
var (
	// ErrPortfolioNotFound indicates that a portfolio with the given ID does not exist.
	ErrPortfolioNotFound = errors.New("portfolio not found")

	// ErrInstrumentNotFound indicates that an instrument with the given ID does not exist.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrCurrencyNotFound indicates that a currency with the given ID does not exist.
	ErrCurrencyNotFound = errors.New("currency not found")

	// ErrTransactionNotFound indicates that a transaction with the given ID does not exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrRegisterNotFound indicates that a portfolio register does not exist.
	ErrRegisterNotFound = errors.New("portfolio register not found")

	// ErrBundleNotFound indicates that a portfolio bundle does not exist.
	ErrBundleNotFound = errors.New("portfolio bundle not found")

	// ErrTaskNotFound indicates that a background task record does not exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPricingPolicyNotFound indicates that a pricing policy does not exist.
	ErrPricingPolicyNotFound = errors.New("pricing policy not found")

	// ErrEcosystemDefaultNotFound indicates the tenant has no ecosystem-default row.
	ErrEcosystemDefaultNotFound = errors.New("ecosystem default not found")

	// ErrPriceHistoryNotFound indicates no price record for an instrument/policy/date triple.
	ErrPriceHistoryNotFound = errors.New("price history not found")

	// ErrCurrencyHistoryNotFound indicates no FX record for a currency/policy/date triple.
	ErrCurrencyHistoryNotFound = errors.New("currency history not found")
)

// Business logic errors represent validation failures or constraint violations.
// These errors indicate that an operation cannot be completed due to business rules.
var (
	// ErrZeroFXRate indicates an attempt to store a currency history row with
	// fx_rate = 0, which is refused at source.
	ErrZeroFXRate = errors.New("fx rate cannot be zero")

	// ErrZeroPositionSize indicates a buy or sell transaction with zero
	// position size, which the cost-method engine cannot price.
	ErrZeroPositionSize = errors.New("position size cannot be zero for buy/sell")

	// ErrInvalidDateRange indicates that the provided date range is invalid
	// (e.g., begin date is after end date).
	ErrInvalidDateRange = errors.New("invalid date range")

	// ErrInvalidReportDate indicates a missing or unparsable report date.
	ErrInvalidReportDate = errors.New("invalid report date")

	// ErrInvalidCostMethod indicates an unknown cost method selector.
	ErrInvalidCostMethod = errors.New("invalid cost method")

	// ErrInvalidDimensionMode indicates an unknown consolidation mode.
	ErrInvalidDimensionMode = errors.New("invalid dimension mode")

	// ErrInvalidUUID indicates that a provided ID is not a valid UUID format.
	ErrInvalidUUID = errors.New("invalid UUID format")

	// ErrEmptyID indicates that a required ID parameter is empty or missing.
	ErrEmptyID = errors.New("ID cannot be empty")

	// ErrRegisterMisconfigured indicates a register without a linked
	// instrument, valuation policy or valuation currency.
	ErrRegisterMisconfigured = errors.New("portfolio register misconfigured")

	// ErrPipelineAlreadyRunning indicates a concurrent register pipeline run
	// for the same tenant, which is rejected rather than serialized.
	ErrPipelineAlreadyRunning = errors.New("register pipeline already running for tenant")

	// ErrTaskCancelled indicates the task was cancelled externally and
	// terminated at a progress-update point.
	ErrTaskCancelled = errors.New("task cancelled")

	// ErrUnauthorized indicates a missing or unknown API key.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrInvalidExpression indicates a custom-field formula that does not parse.
	ErrInvalidExpression = errors.New("invalid expression")

	// ErrExpressionFailed indicates a custom-field formula that parsed but
	// failed during evaluation against a row.
	ErrExpressionFailed = errors.New("expression evaluation failed")
)

// Operation failure errors represent system-level failures when retrieving or
// processing data.
var (
	ErrFailedToRetrieveTransactions = errors.New("failed to retrieve transactions")
	ErrFailedToRetrieveRegisters    = errors.New("failed to retrieve registers")
	ErrFailedToBuildReport          = errors.New("failed to build report")
	ErrFailedToComputePerformance   = errors.New("failed to compute performance")
)
