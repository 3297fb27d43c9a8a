package cache

// Key builds the cache key from §4.3's formula. It must be built from the
// first-ranked provider's base URL before failover begins, so identical
// requests hash identically regardless of which provider ultimately serves
// a miss.
func Key(connector, method, firstProviderBaseURL, path, rawQuery string) string {
	key := connector + ":" + method + ":" + firstProviderBaseURL + path
	if rawQuery != "" {
		key += "?" + rawQuery
	}
	return key
}
