package crypto

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

// SplitAdditive splits a reduced field element into n shares that sum to it
// modulo ShareFieldOrder. Any n-1 shares are uniformly random.
func SplitAdditive(secret *big.Int, n int, random io.Reader) ([]*big.Int, error) {
	if n < 1 {
		return nil, errors.New("at least one share is required")
	}
	if secret.Sign() < 0 || secret.Cmp(ShareFieldOrder) >= 0 {
		return nil, errors.New("secret is not a reduced field element")
	}
	if random == nil {
		random = rand.Reader
	}

	shares := make([]*big.Int, n)
	last := new(big.Int).Set(secret)
	for i := 0; i < n-1; i++ {
		share, err := rand.Int(random, ShareFieldOrder)
		if err != nil {
			return nil, err
		}
		shares[i] = share
		FieldSubInplace(last, share, ShareFieldOrder)
	}
	shares[n-1] = last

	return shares, nil
}

// ReconstructAdditive sums shares modulo ShareFieldOrder.
func ReconstructAdditive(shares []*big.Int) *big.Int {
	res := big.NewInt(0)
	for _, share := range shares {
		FieldAddInplace(res, share, ShareFieldOrder)
	}
	return res
}
