package domain

// NetworkDescriptor holds the static metadata of a supported chain
type NetworkDescriptor struct {
	ChainID      int64  `json:"chainId"`
	DisplayName  string `json:"displayName"`
	RPCURL       string `json:"rpcUrl"`
	BundlerURL   string `json:"-"`
	PaymasterURL string `json:"-"`
	NativeSymbol string `json:"nativeSymbol"`
	ExplorerURL  string `json:"explorerUrl,omitempty"`
}

// SupportsGasless reports whether both account abstraction endpoints are configured
func (n NetworkDescriptor) SupportsGasless() bool {
	return n.BundlerURL != "" && n.PaymasterURL != ""
}
