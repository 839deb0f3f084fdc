package app

import "math/rand"

const (
	gameCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	gameCodeLength   = 6
)

// GenerateGameCode returns six symbols drawn uniformly from [A-Z0-9].
func GenerateGameCode() string {
	code := make([]byte, gameCodeLength)
	for i := range code {
		code[i] = gameCodeAlphabet[rand.Intn(len(gameCodeAlphabet))]
	}
	return string(code)
}
