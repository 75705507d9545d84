package ember

import (
	"errors"
	"net"
	"syscall"
)

// isNetClosedOrReset recognizes the family of errors that mean "the peer is
// gone" rather than a genuine I/O failure: use-of-closed-network-connection,
// ECONNRESET, and EPIPE. Send-path failures of this kind are always
// absorbed, per §4.4's write-strategy note and §7's TransportClosed kind.
func isNetClosedOrReset(err error) bool {
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Err != nil && (errors.Is(opErr.Err, net.ErrClosed) ||
			errors.Is(opErr.Err, syscall.ECONNRESET) ||
			errors.Is(opErr.Err, syscall.EPIPE))
	}
	return false
}
