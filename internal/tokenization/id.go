package tokenization

import "github.com/google/uuid"

func newFundingID() string {
	return uuid.New().String()
}
