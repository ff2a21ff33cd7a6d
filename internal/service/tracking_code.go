package service

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/Juddanxavier/track-sub003/internal/constants"
)

// 去掉易混淆的 0/O/1/I，避免客服口述单号出错
const trackingCodeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

// generateTrackingCode 生成内部单号，格式 TRK-XXXXXXXXXX
func generateTrackingCode() string {
	var b strings.Builder
	b.WriteString(constants.TrackingCodePrefix)
	b.WriteString(randAlphabet(constants.TrackingCodeLength))
	return b.String()
}

func randAlphabet(length int) string {
	var b strings.Builder
	max := big.NewInt(int64(len(trackingCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			b.WriteByte(trackingCodeAlphabet[0])
			continue
		}
		b.WriteByte(trackingCodeAlphabet[n.Int64()])
	}
	return b.String()
}
