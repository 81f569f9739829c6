/*
Package quickstart runs the sensor aggregation example against a cluster.

Run goes through the whole flow once:

 1. read the compiled program from <program dir>/<name>.nada.bin
 2. derive the user and node keys from the seed
 3. quote, pay and store the program
 4. quote, pay and store the sensor values with compute permission on the program
 5. bind every program party to this client, quote, pay and start the computation
 6. wait for the result and print the outputs

A missing artifact fails with ErrArtifactNotFound and an unreadable one with
ErrArtifactNotReadable; neither touches the network. Remote failures are
returned as they are. Nothing is retried, and a second run stores everything
again under fresh ids.

Connection settings come from the devnet env file, see LoadConfig.
*/
package quickstart
