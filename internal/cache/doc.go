// Package cache materializes session state from the inbound event stream.
//
// The cache holds:
//   - Orders: the latest description of each order and the set of distinct
//     status updates seen for it, ordered by progression rather than arrival
//   - Positions keyed by (account, contract id) and portfolio rows keyed by
//     contract id, last write wins
//   - Quote snapshots keyed by market-data request id
//   - Order books keyed by instrument, one ordered level map per side
//
// Status updates for an order id that has no description yet are held in a
// pending buffer and merged when the description arrives.
//
// Every read returns a copy. Callers may keep and iterate results while the
// cache keeps changing.
package cache
