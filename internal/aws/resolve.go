package aws

// ResolveRegion picks the effective region for an API call: the explicit
// request region wins, then the region stored with the connection, then the
// workspace default.
func ResolveRegion(requestRegion, connectionRegion, defaultRegion string) string {
	if requestRegion != "" {
		return requestRegion
	}
	if connectionRegion != "" {
		return connectionRegion
	}
	return defaultRegion
}
