package transport

// StaticCredentials supplies a fixed bearer token. Real deployments plug in
// their own provider; this one covers demos and tests.
type StaticCredentials struct {
	Token string
}

// GetAuthToken returns the configured token
func (c StaticCredentials) GetAuthToken() (string, error) {
	return c.Token, nil
}
