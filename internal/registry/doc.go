// Package registry persists the set of outbound delivery endpoints and an
// audit trail of dispatch outcomes.
//
// It currently supports:
//   - Endpoint CRUD (one endpoint per channel, active flag)
//   - Dispatch audit appends, pruned on a retention schedule
package registry
