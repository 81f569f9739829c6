/*
Package testutil starts throwaway development networks for tests.

StartDevnet deploys a ledger and a cluster on loopback ports and registers
their shutdown with the test:

	devnet := testutil.StartDevnet(t, testutil.WithNodes(5))
	env := devnet.Env()

Options adjust prices, quote lifetime, node count and the funded balance.
GenerateTestUser creates the signing and exchange keys of a client.
*/
package testutil
