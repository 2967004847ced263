package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"

	// Debit actions
	ActionDebitApplied  = "debit.applied"
	ActionDebitRejected = "debit.rejected"

	// Credit actions
	ActionCreditApplied = "credit.applied"

	// Usage actions
	ActionUsageFlushed = "usage.flushed"

	// Receipt actions
	ActionReceiptsPurged = "receipts.purged"
)

// Resource constants for audit events.
const (
	ResourceAccount = "account"
	ResourceDebit   = "debit"
	ResourceCredit  = "credit"
	ResourceUsage   = "usage"
	ResourceReceipt = "receipt"
)

// Category constants for audit events.
const (
	CategoryBilling = "billing"
	CategoryUsage   = "usage"
	CategoryAccess  = "access"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
