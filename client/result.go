package client

import (
	"strings"

	"github.com/luma/nrepl/bencode"
)

// Result gathers the responses to an eval request.
type Result struct {
	Session string

	// Values holds the printed value of every top-level form, in order
	Values []string

	// Out and Err are the concatenated standard output and error text
	Out string
	Err string

	// Ex is the exception class when evaluation failed
	Ex string
	Ns string

	Status []string
}

func NewResult(responses []*bencode.Dict) *Result {
	var (
		r        Result
		out, err strings.Builder
	)

	for _, resp := range responses {
		if s, ok := resp.GetString("session"); ok {
			r.Session = s
		}
		if v, ok := resp.GetString("value"); ok {
			r.Values = append(r.Values, v)
		}
		if s, ok := resp.GetString("out"); ok {
			out.WriteString(s)
		}
		if s, ok := resp.GetString("err"); ok {
			err.WriteString(s)
		}
		if s, ok := resp.GetString("ex"); ok {
			r.Ex = s
		}
		if s, ok := resp.GetString("ns"); ok {
			r.Ns = s
		}
		if s, ok := resp.GetStrings("status"); ok {
			r.Status = append(r.Status, s...)
		}
	}

	r.Out = out.String()
	r.Err = err.String()

	return &r
}

// Value returns the value of the last form, or "" if there was none.
func (r *Result) Value() string {
	if len(r.Values) == 0 {
		return ""
	}

	return r.Values[len(r.Values)-1]
}

// Failed reports whether evaluation raised an error.
func (r *Result) Failed() bool {
	for _, s := range r.Status {
		if s == "eval-error" || s == "error" {
			return true
		}
	}

	return r.Ex != ""
}
