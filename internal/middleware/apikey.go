package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/zhouzirui/invoice-relay/backend/internal/config"
	"github.com/zhouzirui/invoice-relay/backend/pkg/utils"
)

// APIKey 校验 x-api-key 请求头，与配置的共享密钥不一致时返回 403。
// 未配置密钥时一律拒绝。
func APIKey(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !validKey(secret, r.Header.Get(config.APIKeyHeader)) {
				utils.RespondError(w, http.StatusForbidden, "Invalid API Key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func validKey(secret, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) == 1
}
