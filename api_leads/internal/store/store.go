package store

import (
	"strconv"
	"strings"
)

const unlockPriceKey = "lead_unlock_price"

func parseUnlockPrice(raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 {
		return 0, false, nil
	}
	return int64(v + 0.5), true, nil
}
