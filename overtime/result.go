package overtime

import "errors"

// Result is the tagged response of a callable: either {success: true} or
// {error: kind} with the structured context of the failure.
type Result struct {
	Success      bool      `json:"success,omitempty"`
	Error        ErrorKind `json:"error,omitempty"`
	Organization string    `json:"organization,omitempty"`
	Key          string    `json:"key,omitempty"`
	Details      string    `json:"details,omitempty"`
}

// OK is the success result.
func OK() Result { return Result{Success: true} }

// Fail converts an error into a result. Unknown errors keep their message
// in Details.
func Fail(err error) Result {
	res := Result{Error: KindOf(err)}
	var e *Error
	if errors.As(err, &e) {
		res.Organization = e.Organization
		res.Key = e.Key
		if e.Err != nil {
			res.Details = e.Err.Error()
		}
		return res
	}
	if res.Error == KindUnknown {
		res.Details = err.Error()
	}
	return res
}

// ResultOf is OK for nil and Fail otherwise.
func ResultOf(err error) Result {
	if err == nil {
		return OK()
	}
	return Fail(err)
}
