// Package quota implements the per-user data ledger.
//
// Usage is stored in gigabytes (2^30 bytes). Debits are a single conditional
// UPDATE so concurrent requests can never push used past total; Consume pairs
// that debit with the streaming log append in one transaction.
package quota
