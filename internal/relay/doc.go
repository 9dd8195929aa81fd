// Package relay forwards frame lifecycle events to an external broker as JSON
// envelopes. It is outbound only: nothing is consumed back.
//
// Subjects (NATS) and channels (Redis) are "<prefix>.<event>", for example
// "kairos.began".
package relay
