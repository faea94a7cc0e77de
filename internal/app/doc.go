// Package app composes the job tracker's domain services, storage, and
// realtime notification plumbing into a single lifecycle-managed unit.
// Transport layers (httpapi, the websocket handshake) sit on top of it.
package app
