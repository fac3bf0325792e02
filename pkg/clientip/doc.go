// Package clientip extracts the originating client address of a request.
//
// Proxy headers such as X-Forwarded-For are trivially spoofed by clients, so
// an Extractor consults only the headers it was told to trust and falls back
// to the TCP peer address otherwise:
//
//	ext := clientip.New(clientip.HeaderCFConnectingIP, clientip.HeaderXForwardedFor)
//	r.Use(ext.Middleware)
//
//	ip := clientip.FromContext(r.Context())
//
// Addresses are normalized through net.ParseIP, so "::ffff:10.0.0.1" and
// "10.0.0.1" compare equal and malformed values are ignored.
package clientip
