// Package requestid tags every inbound request with a correlation ID.
//
// A client-supplied X-Request-ID is reused when it is short and made of
// [A-Za-z0-9_-]; anything else is replaced with a fresh UUID. The ID is echoed
// in the response header, stored in the request context and picked up by the
// logger through LoggerExtractor, so App Store notification deliveries and
// coaching calls can be traced end to end.
package requestid
