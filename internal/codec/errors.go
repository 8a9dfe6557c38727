package codec

import "fmt"

// Decode stages reported in DecodeError.
const (
	StageToken = "token"
	StageJSON  = "json"
)

// DecodeError reports why a token could not be turned into an Assignment.
type DecodeError struct {
	Stage string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode assignment (%s): %v", e.Stage, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
