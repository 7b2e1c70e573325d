// Package binder fills typed request structs from HTTP requests.
//
// JSON decodes strictly: the media type must be application/json, unknown
// fields are rejected, the body is size-limited and must hold exactly one
// value. Path copies router parameters into fields tagged `path:"name"`.
package binder
