package csrf

// maskToken combines a one-time key with the secret into the wire
// layout key || (key XOR secret). Because the key is freshly random on
// every emission, no two emitted tokens share bytes even though they
// encode the same secret.
func maskToken(secret, key []byte) []byte {
	masked := make([]byte, 0, len(key)+len(secret))
	masked = append(masked, key...)
	for i := range secret {
		masked = append(masked, key[i]^secret[i])
	}
	return masked
}

// unmaskToken recovers the secret candidate from a decoded 2n-byte
// token by re-applying the key half to the masked half. XOR is
// self-inverse, so key XOR (key XOR secret) = secret.
func unmaskToken(decoded []byte, n int) []byte {
	secret := make([]byte, n)
	for i := 0; i < n; i++ {
		secret[i] = decoded[i] ^ decoded[n+i]
	}
	return secret
}

// tokensEqual compares two byte sequences in constant time: every byte
// pair is examined and OR-accumulated, with no early exit on the first
// difference. The length precheck is not secret-dependent here since
// both operands are fixed at the configured token length.
func tokensEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
