package zerodha

import "sync"

// instrumentMapper maps "EXCHANGE:TRADINGSYMBOL" keys to ticker tokens and
// back.
type instrumentMapper struct {
	mu         sync.RWMutex
	keyToToken map[string]uint32
	tokenToKey map[uint32]string
}

func newInstrumentMapper() *instrumentMapper {
	return &instrumentMapper{
		keyToToken: make(map[string]uint32),
		tokenToKey: make(map[uint32]string),
	}
}

func (im *instrumentMapper) addMapping(key string, token uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.keyToToken[key] = token
	im.tokenToKey[token] = key
}

func (im *instrumentMapper) getToken(key string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	t, ok := im.keyToToken[key]
	return t, ok
}

func (im *instrumentMapper) getKey(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()
	return im.tokenToKey[token]
}
