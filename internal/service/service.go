// Package service holds the rent payment business logic: resolving who may
// act on a lease, computing the period and fees, orchestrating processor
// calls against the ledger, and the reminder and reconciliation sweeps.
//
// Services depend on small store interfaces rather than repositories so
// they can be tested with in-memory fakes.
package service
