package events

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"plnmarket/crypto"
)

func setAddress(attrs map[string]string, key string, addr crypto.Address) {
	if addr.IsZero() {
		return
	}
	attrs[key] = addr.String()
}

func setAmount(attrs map[string]string, key string, amount *big.Int) {
	if amount == nil {
		return
	}
	attrs[key] = amount.String()
}

func setUint(attrs map[string]string, key string, value uint64) {
	attrs[key] = strconv.FormatUint(value, 10)
}

func setInt(attrs map[string]string, key string, value int64) {
	attrs[key] = strconv.FormatInt(value, 10)
}

func setHash(attrs map[string]string, key string, id [32]byte) {
	if id == ([32]byte{}) {
		return
	}
	attrs[key] = hex.EncodeToString(id[:])
}
