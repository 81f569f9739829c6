package protocol

// Keys of the devnet env file. The devnet writes them and clients read them.
const (
	EnvClusterID  = "NILLION_CLUSTER_ID"
	EnvClusterURL = "NILLION_CLUSTER_URL"
	EnvChainURL   = "NILLION_NILCHAIN_GRPC"
	EnvChainID    = "NILLION_NILCHAIN_CHAIN_ID"
	EnvPrivateKey = "NILLION_NILCHAIN_PRIVATE_KEY_0"
)
