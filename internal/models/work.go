package models

// WorkAction names a task the transaction worker knows how to run.
type WorkAction string

const (
	// WorkActionBacklog picks up every transaction left in a retryable state
	// and feeds it through WorkActionProcess.
	WorkActionBacklog WorkAction = "backlogTransactions"
	// WorkActionProcess re-drives a batch of transactions through the ledger.
	WorkActionProcess WorkAction = "processTransactions"
)

// WorkRequest is the message sent to the transaction worker. The worker is
// reachable only through its request channel; there is no shared state with
// the caller.
type WorkRequest struct {
	Action WorkAction
	WorkId string

	// Either an explicit transaction id list or a batch id. SessionUserId is
	// optional; the worker falls back to the system principal when empty.
	TransactionIds []string
	BatchId        string
	SessionUserId  string
}

// WorkResult reports completion or a structured error back to the supervising
// process, correlated by the originating WorkId.
type WorkResult struct {
	WorkId  string
	BatchId string
	Err     error
}
