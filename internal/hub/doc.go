// Package hub implements the in-process broadcast point that ties chat
// message ingestion to every open streaming connection.
//
// Subscribe registers a callback and returns a Handle. Publish invokes every
// registered callback synchronously, in registration order, and returns once
// each of them has run. Unsubscribe removes a callback; once it returns the
// callback is never invoked again.
//
// A callback that returns an error or panics is dropped from the hub. The
// failure never stops delivery to the remaining subscribers.
//
// There is no queue, no retry and no history: a subscriber only sees messages
// published while it is registered.
package hub
