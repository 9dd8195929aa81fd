// Package eventbus is the in-process publish/subscribe primitive shared by
// time frames and the scheduler.
//
// Contract:
//   - Subscribers are callbacks keyed by an exact channel name.
//   - Publish delivers synchronously, in subscription order, to a snapshot of
//     the channel's subscribers taken when Publish starts. Subscribing or
//     unsubscribing from inside a handler affects later publishes only.
//   - A handler that returns an error or panics is reported to the logger and
//     never affects the publisher or the other subscribers.
//   - A channel without subscribers is removed from the map.
package eventbus
