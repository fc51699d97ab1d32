// Package registry owns every running heartbeat, keyed by endpoint name.
//
// Names are case-insensitive and unique. Every mutation is mirrored to the
// persistent store; a store failure is reported but never undoes the change
// in memory. A single mutex guards the name to task mapping, which is enough
// since mutations come from human-driven commands.
package registry
