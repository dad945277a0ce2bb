package ledger

import (
	"fmt"
	"net/url"
)

// DefaultCluster is the cluster used when none is configured
const DefaultCluster = "devnet"

// ExplorerURL links a transaction signature on the Solana explorer
func ExplorerURL(signature, cluster string) string {
	if cluster == "" {
		cluster = DefaultCluster
	}
	return fmt.Sprintf("https://explorer.solana.com/tx/%s?cluster=%s", url.PathEscape(signature), url.QueryEscape(cluster))
}
