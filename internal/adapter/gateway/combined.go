package gateway

import "github.com/V4T54L/worksync/internal/domain"

// Combined pairs a completer with a separately chosen embedder, for example
// a hosted chat model with the local hash embedder.
type Combined struct {
	domain.Completer
	domain.Embedder
}

var _ domain.Gateway = Combined{}
