// Package content implements the versioned content aggregate.
//
// A content item is never edited in place. Every mutation is expressed as an
// event appended to the item's stream, and the current state is the result of
// applying those events in order, starting from nothing:
//
//	ContentCreated -> ContentUpdated -> ContentStatusChanged -> ...
//
// # Versions
//
// The version of an item is the ordinal position of the last applied event in
// its stream (the first event is version 1). Writers that want optimistic
// concurrency pass the version they last observed; the store rejects the
// append wholesale when the stream has moved on.
//
// # Replay
//
// Apply is a pure function of (prior state, event). Replaying the full stream
// from an empty state must reproduce the stored document exactly, so event
// envelopes carry their own timestamps and nothing in Apply reads the wall
// clock.
package content
