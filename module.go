package ember

import (
	"crypto/tls"
	"crypto/x509"
)

// Module registers middleware and/or routes on a Server before it starts.
// Modules MUST be installed before Run is called; installing after start is
// undefined.
type Module interface {
	Install(s *Server)
}

// ModuleFunc adapts a plain function to the Module interface.
type ModuleFunc func(s *Server)

func (f ModuleFunc) Install(s *Server) { f(s) }

// TLSAdapter is a pluggable transport adapter: when set, the server wraps
// every accepted connection so the core's connection loop still only ever
// sees an opaque Transport, never a raw socket versus a TLS-wrapped one
// differently.
type TLSAdapter interface {
	// SupportedProtocols returns the TLS protocol versions this adapter
	// will negotiate (tls.VersionTLS12, tls.VersionTLS13, ...).
	SupportedProtocols() []uint16

	// ServerCertificate returns the certificate presented to clients.
	ServerCertificate() tls.Certificate

	// RequireClientCert reports whether mutual TLS is enforced.
	RequireClientCert() bool

	// CheckRevocation reports whether a presented client certificate's
	// revocation status must be checked before the handshake completes.
	CheckRevocation() bool

	// ValidateClientCert, when non-nil, is consulted after the standard
	// chain verification for a client certificate; returning an error
	// aborts the handshake.
	ValidateClientCert(cert *tls.Certificate) error
}

// tlsConfigFrom builds a *tls.Config from a TLSAdapter, wiring
// ValidateClientCert/CheckRevocation into VerifyPeerCertificate since the
// stdlib has no revocation-check hook of its own.
func tlsConfigFrom(a TLSAdapter) *tls.Config {
	cfg := &tls.Config{
		Certificates: []tls.Certificate{a.ServerCertificate()},
	}
	if len(a.SupportedProtocols()) > 0 {
		min, max := a.SupportedProtocols()[0], a.SupportedProtocols()[0]
		for _, v := range a.SupportedProtocols() {
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
		}
		cfg.MinVersion, cfg.MaxVersion = min, max
	}
	if a.RequireClientCert() {
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if a.CheckRevocation() || a.RequireClientCert() {
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			return verifyClientCert(a, rawCerts)
		}
	}
	return cfg
}

func verifyClientCert(a TLSAdapter, rawCerts [][]byte) error {
	if len(rawCerts) == 0 {
		return nil
	}
	cert := &tls.Certificate{Certificate: rawCerts}
	return a.ValidateClientCert(cert)
}
