package interfaces

import "smartapi-basket/internal/types"

type ScripResolver interface {
	Loaded() bool
	Lookup(symbol, segment string) (types.Instrument, error)
}
