package zerodha

import (
	"sync"
)

// instrumentMapper maps instrument tokens back to exchange trading symbols.
// Keys are qualified with the exchange.
type instrumentMapper struct {
	tokenToSymbol map[string]string
	mu            sync.RWMutex
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		tokenToSymbol: make(map[string]string),
	}
}

func mapperKey(exchange, value string) string {
	return exchange + ":" + value
}

// addMapping adds a symbol-token mapping
func (im *instrumentMapper) addMapping(exchange, symbol, token string) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.tokenToSymbol[mapperKey(exchange, token)] = symbol
}

// getSymbol retrieves the symbol for a token
func (im *instrumentMapper) getSymbol(exchange, token string) (string, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	symbol, exists := im.tokenToSymbol[mapperKey(exchange, token)]
	return symbol, exists
}

func (im *instrumentMapper) size() int {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return len(im.tokenToSymbol)
}
