package token

import (
	"strings"
	"sync"
)

var (
	registryMu sync.RWMutex

	// nextTokenID tracks the next available dynamic token ID.
	nextTokenID = maxBuiltin

	dynamicTokens   = make(map[TokenType]string)
	dynamicKeywords = make(map[string]TokenType)
)

// Register registers a dynamic keyword and returns its token type.
// Registration is idempotent and case-insensitive: registering the same
// word twice returns the same token type.
func Register(name string) TokenType {
	upper := strings.ToUpper(name)

	registryMu.Lock()
	defer registryMu.Unlock()

	if t, ok := dynamicKeywords[upper]; ok {
		return t
	}
	nextTokenID++
	t := nextTokenID
	dynamicTokens[t] = upper
	dynamicKeywords[upper] = t
	return t
}

func getDynamicName(t TokenType) (string, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	name, ok := dynamicTokens[t]
	return name, ok
}

// LookupDynamicKeyword returns the token type for a dynamic keyword.
// Returns IDENT and false if the keyword is not registered.
func LookupDynamicKeyword(name string) (TokenType, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if tok, ok := dynamicKeywords[strings.ToUpper(name)]; ok {
		return tok, true
	}
	return IDENT, false
}

// IsDynamic returns true if the token type is a dynamically registered token.
func IsDynamic(t TokenType) bool {
	return t > maxBuiltin
}

// RegisteredTokens returns a copy of all registered dynamic tokens.
func RegisteredTokens() map[TokenType]string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	result := make(map[TokenType]string, len(dynamicTokens))
	for k, v := range dynamicTokens {
		result[k] = v
	}
	return result
}
