package actions

// Result is one directive's execution outcome, mapped onto the spec's
// {ok, summary}/{ok, error} shape. Grounded near-verbatim on
// itsddvn-goclaw/internal/tools/result.go's Result (ForLLM/ForUser/Silent/
// IsError/Async), narrowed here to just the two fields §4.6 names.
type Result struct {
	OK      bool
	Summary string
	Err     error
}

func OKResult(summary string) Result {
	return Result{OK: true, Summary: summary}
}

func ErrResult(err error) Result {
	return Result{OK: false, Err: err}
}

// Error returns the error text for a failed result, or "" if OK.
func (r Result) Error() string {
	if r.OK || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
