package batch

// ItemStatus is the processing outcome of a single pass item.
type ItemStatus string

// Pass item status values.
const (
	StatusOK          ItemStatus = "ok"
	StatusSkipped     ItemStatus = "skipped"
	StatusRejected    ItemStatus = "rejected"
	StatusFailed      ItemStatus = "failed"
	StatusNeedsReview ItemStatus = "needs_review"
)

// Result is the outcome of processing one record in a batch pass.
type Result struct {
	id     string
	status ItemStatus
	err    error
}

// NewOK creates a successful result.
func NewOK(id string) Result { return Result{id: id, status: StatusOK} }

// NewSkipped creates a result for an item that needed no work.
func NewSkipped(id string) Result { return Result{id: id, status: StatusSkipped} }

// NewRejected creates a result for malformed input.
func NewRejected(id string, err error) Result { return Result{id: id, status: StatusRejected, err: err} }

// NewFailed creates a result for an item that failed and will be retried on the next pass.
func NewFailed(id string, err error) Result { return Result{id: id, status: StatusFailed, err: err} }

// NewNeedsReview creates a result for an item parked for manual review.
func NewNeedsReview(id string, err error) Result {
	return Result{id: id, status: StatusNeedsReview, err: err}
}

// ID returns the item identifier.
func (r Result) ID() string { return r.id }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Report tallies the outcomes of a pass.
type Report struct {
	Processed   int
	OK          int
	Skipped     int
	Rejected    int
	Failed      int
	NeedsReview int
}

// Add counts one result.
func (r *Report) Add(res Result) {
	r.Processed++
	switch res.status {
	case StatusOK:
		r.OK++
	case StatusSkipped:
		r.Skipped++
	case StatusRejected:
		r.Rejected++
	case StatusFailed:
		r.Failed++
	case StatusNeedsReview:
		r.NeedsReview++
	}
}

// Merge adds another report's counts.
func (r *Report) Merge(o Report) {
	r.Processed += o.Processed
	r.OK += o.OK
	r.Skipped += o.Skipped
	r.Rejected += o.Rejected
	r.Failed += o.Failed
	r.NeedsReview += o.NeedsReview
}
