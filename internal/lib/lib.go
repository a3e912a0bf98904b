// Package lib groups supporting libraries that fit no single layer: fee
// math, the payment processor client, Redis locks, background jobs, email
// and small utilities live in its subpackages.
package lib
