package strategy

import "github.com/alanyoungcy/studiobot/internal/domain"

// ResultStatus is what the engine did with one Action.
type ResultStatus string

const (
	ResultSubmitted   ResultStatus = "submitted"
	ResultCancelSent  ResultStatus = "cancel_sent"
	ResultSkippedRisk ResultStatus = "skipped_risk"
	ResultRejected    ResultStatus = "rejected"
	ResultFailed      ResultStatus = "failed"
)

// Result reports the fate of an Action from the previous evaluation pass.
// Allowed is the quantity the risk gate let through; it is zero for
// ResultSkippedRisk.
type Result struct {
	Action  domain.Action
	Status  ResultStatus
	OrderID string
	Allowed int64
	Reason  string
	Error   string
}
