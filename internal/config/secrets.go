package config

import (
	"context"
	"fmt"
	"path"
)

// SecretGetter 读取单个加密参数。
type SecretGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// ResolveSecrets 只补全环境变量中缺失的密钥，参数名为 <prefix>/<ENV_NAME>。
// 已配置 AK/SK 时 Ark 不需要 API Key，不再读取 ARK_API_KEY。
func (c *Config) ResolveSecrets(ctx context.Context, getter SecretGetter) error {
	if !c.Secrets.Enabled() || getter == nil {
		return nil
	}

	targets := []struct {
		env   string
		value *string
		skip  bool
	}{
		{"API_KEY", &c.Server.APIKey, false},
		{"STRIPE_API_KEY", &c.ToolServer.Secret, false},
		{"ARK_API_KEY", &c.AI.APIKey, c.AI.AccessKey != "" && c.AI.SecretKey != ""},
	}

	for _, target := range targets {
		if target.skip || *target.value != "" {
			continue
		}
		value, err := getter.GetParameter(ctx, path.Join(c.Secrets.ParamPrefix, target.env))
		if err != nil {
			return fmt.Errorf("resolve %s: %w", target.env, err)
		}
		*target.value = value
	}
	return nil
}
