// Package model holds the domain types shared by the repository, service
// and handler layers: users, leases, the rent payment ledger, autopay
// subscriptions and notifications.
package model
