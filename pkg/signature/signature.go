package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// webhook验签。对原始请求体做HMAC-SHA256，再与请求头携带的签名做恒定时间比较
// TradingView等上游工具通常发送 "sha256=xxxx" 形式，前缀可选

// Verify 校验签名是否匹配
// 任何非法输入（空密钥、非hex签名）都返回false，不会panic
func Verify(rawBody []byte, providedSignature, sharedSecret string) bool {
	if sharedSecret == "" || providedSignature == "" {
		return false
	}

	// 去掉可选的算法前缀
	sig := strings.TrimPrefix(providedSignature, "sha256=")
	sig = strings.TrimSpace(sig)

	providedMAC, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	h := hmac.New(sha256.New, []byte(sharedSecret))
	h.Write(rawBody)
	expectedMAC := h.Sum(nil)

	// hmac.Equal 恒定时间比较，避免时间侧信道
	return hmac.Equal(providedMAC, expectedMAC)
}

// Sign 计算签名，主要给测试和对端调试用
func Sign(rawBody []byte, sharedSecret string) string {
	h := hmac.New(sha256.New, []byte(sharedSecret))
	h.Write(rawBody)
	return hex.EncodeToString(h.Sum(nil))
}
