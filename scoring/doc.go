// Package scoring turns credential tier, bias and relevance into vote
// weight and gravity.
//
// Every function here is pure and total over pre-validated inputs: tier
// membership and relevance range are checked upstream by the consensus
// engine, which rejects out-of-range requests before they reach the
// scorer. The scorer never calls back into the ledger; data flows one way.
package scoring
