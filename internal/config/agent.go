package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AgentDefinition 是外部智能体运行时所需的定义。
type AgentDefinition struct {
	Name         string `yaml:"name"`
	Instructions string `yaml:"instructions"`
	// Model 覆盖环境变量中的 Model，为空时沿用环境配置。
	Model   string `yaml:"model"`
	MaxStep int    `yaml:"max_step"`
}

// LoadAgentDefinition 读取 YAML 定义文件；path 为空时返回零值，由调用方套用默认定义。
func LoadAgentDefinition(path string) (AgentDefinition, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return AgentDefinition{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return AgentDefinition{}, fmt.Errorf("read agent definition %s: %w", path, err)
	}

	var def AgentDefinition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return AgentDefinition{}, fmt.Errorf("parse agent definition %s: %w", path, err)
	}
	if def.MaxStep < 0 {
		return AgentDefinition{}, fmt.Errorf("agent definition %s: max_step must not be negative", path)
	}

	def.Name = strings.TrimSpace(def.Name)
	def.Instructions = strings.TrimSpace(def.Instructions)
	def.Model = strings.TrimSpace(def.Model)
	return def, nil
}
