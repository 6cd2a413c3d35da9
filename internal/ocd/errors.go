package ocd

import "fmt"

// ProtocolLimitError reports a caller-supplied value outside what the OCD
// register window can address (an out-of-range breakpoint slot, register
// number, or memory span).
type ProtocolLimitError struct {
	What string
	Got  int
}

func (e *ProtocolLimitError) Error() string {
	return fmt.Sprintf("ocd: %s out of range: %d", e.What, e.Got)
}
