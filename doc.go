// Package ember is a small, embeddable HTTP/1.1 server core: an incremental
// byte-level parser, a two-tier router, a response builder with content
// negotiation, and the buffer/lifetime discipline that ties them together.
//
// The TCP listener and TLS termination are supplied by the caller through a
// gnet event loop and an optional TLSAdapter; ember owns everything from the
// first byte of a request to the last byte of its response.
package ember
