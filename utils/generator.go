package utils

import (
	"errors"
	"math/rand"
	"time"
)

const referralCodeLength = 8
const letterBytes = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const maxCodeAttempts = 20

var ErrCodeSpaceExhausted = errors.New("could not find a free referral code")

// GenerateUniqueReferralCode draws codes until exists reports one as free.
func GenerateUniqueReferralCode(exists func(code string) (bool, error)) (string, error) {
	seededRand := rand.New(rand.NewSource(time.Now().UnixNano()))

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		b := make([]byte, referralCodeLength)
		for i := range b {
			b[i] = letterBytes[seededRand.Intn(len(letterBytes))]
		}
		code := string(b)

		taken, err := exists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrCodeSpaceExhausted
}
