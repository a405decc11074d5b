// Package server implements the HTTP surface of the chat server.
//
// The implementation is organized into specialized files for configuration,
// routing, middleware, the plain HTTP handlers, and the two streaming
// transports (Server-Sent Events and WebSocket). Message fan-out itself lives
// in the hub package; this package only publishes to it and subscribes
// connections on it.
package server
