// Package idempotency keeps messages which completed once from being processed again
// when the broker delivers them a second time, e.g. after a lost acknowledgement.
//
// The middleware locks a key per message in a github.com/velmie/idempo engine, runs the
// handler and records the outcome. Tracked events are keyed by the coordinator store key,
// so the namespace of the coordinator applies to them as well.
//
// Only completed messages are recorded. When the handler fails or rejects the message
// through its retry.Handle the lock is released, so a requeued message is processed again
// and keeps its retry budget and dead-letter path.
//
// Place the middleware inside retry.AutoRejectMiddleware: messages locked by another
// consumer fail with idempo.ErrInProgress and are requeued.
package idempotency
