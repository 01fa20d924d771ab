/*
Package testutil provides test fixtures for the truthforge consensus
protocol.

It contains generators for configurations, credentials, vote requests
and signed resolution signals, so tests can focus on behavior rather
than fixture assembly.

# Configuration Generators

	cfg := testutil.NewTestConfig()

	custom := testutil.NewTestConfig(
	    testutil.WithMinStake("100"),
	    testutil.WithVoteDelay(time.Minute),
	    testutil.WithTieBreakSide(protocol.SideTrue),
	)

# Vote Request Generators

	req := testutil.NewVoteRequest("alice", protocol.SideTrue,
	    testutil.WithStake(500),
	    testutil.WithTier(scoring.TierExpert),
	    testutil.WithRelevance(80),
	)

# Resolution Signals

	pub, priv, _ := crypto.GenerateKeyPair()
	signed := testutil.NewResolutionSignal(priv, poolID, protocol.SideTrue, 95)
*/
package testutil
