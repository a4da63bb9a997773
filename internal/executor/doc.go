// Package executor runs the fetch-and-extract workload for one query under
// three strategies: strictly sequential, a bounded local pool, and batches
// fanned out to remote worker units.
//
// Failures are absorbed per URL (an unreachable page contributes no emails)
// and a failed search degrades to zero URLs. A remote batch that fails after
// its retry budget aborts the whole distributed run with scrape.ErrTaskFailed;
// no partial email list is ever returned.
package executor
