package domain

// TransactionKind represents which wizard a session runs
type TransactionKind string

const (
	KindPurchase TransactionKind = "PURCHASE"
	KindSale     TransactionKind = "SALE"
)

// Step is the 1-based position of a session inside its kind's step sequence.
// The same ordinal means different screens for purchases and sales, so a Step
// is only meaningful together with a TransactionKind.
type Step int

// Purchase steps
const (
	StepPurchaseSelectMethod Step = iota + 1
	StepPurchaseEnterPhone
	StepPurchaseAwaitingCode
	StepPurchaseSelectCrypto
	StepPurchaseConfirmWallet
	StepPurchaseAwaitCash
	StepPurchaseConfirmAmount
	StepPurchaseProcessing
	StepPurchaseCompleted
)

// Sale steps
const (
	StepSaleSelectCrypto Step = iota + 1
	StepSaleEnterAmount
	StepSaleReviewQuote
	StepSaleAwaitPayment
	StepSaleCompleted
)

var stepNames = map[TransactionKind][]string{
	KindPurchase: {
		"SelectCommunicationMethod",
		"EnterPhone",
		"AwaitingCode",
		"SelectCrypto",
		"ConfirmWallet",
		"AwaitCash",
		"ConfirmAmount",
		"Processing",
		"Completed",
	},
	KindSale: {
		"SelectCrypto",
		"EnterAmount",
		"ReviewQuote",
		"AwaitPayment",
		"Completed",
	},
}

// IsValid reports whether the kind is a known transaction kind
func (k TransactionKind) IsValid() bool {
	_, ok := stepNames[k]
	return ok
}

// StepCount returns the number of steps of the kind, 0 for unknown kinds
func (k TransactionKind) StepCount() int {
	return len(stepNames[k])
}

// CompletedStep returns the terminal step of the kind
func (k TransactionKind) CompletedStep() Step {
	return Step(k.StepCount())
}

// IsValidStep reports whether step is a valid index for the kind
func (k TransactionKind) IsValidStep(step Step) bool {
	return step >= 1 && int(step) <= k.StepCount()
}

// StepName returns the screen name of a step, or "" when the step is out of range
func (k TransactionKind) StepName(step Step) string {
	if !k.IsValidStep(step) {
		return ""
	}
	return stepNames[k][step-1]
}
