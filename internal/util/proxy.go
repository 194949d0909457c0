package util

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// PickProxy returns one entry from a comma separated proxy list, chosen at
// random so that load spreads across a pool.
func PickProxy(list string) string {
	var proxies []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	switch len(proxies) {
	case 0:
		return ""
	case 1:
		return proxies[0]
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(proxies))))
	if err != nil {
		return proxies[0]
	}
	return proxies[n.Int64()]
}

func ProxyArgs(list string) []string {
	proxy := PickProxy(list)
	if proxy == "" {
		return nil
	}
	return []string{"--proxy", proxy}
}
