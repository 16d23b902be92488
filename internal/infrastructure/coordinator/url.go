package coordinator

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL 协调器安全默认地址
const DefaultBaseURL = "http://localhost:3000"

// allowedHosts 允许的回环主机名
// 协调器与 Agent 同机部署，非回环地址一律视为配置被污染
var allowedHosts = map[string]bool{
	"localhost": true,
	"127.0.0.1": true,
	"::1":       true,
}

// SanitizeBaseURL 校验配置的协调器地址
// 仅接受 http/https 协议与回环主机名；协议、主机或端口非法时
// 不报错，静默回退到安全默认值，阻断通过配置发起的 SSRF
func SanitizeBaseURL(raw string) string {
	if raw == "" {
		return DefaultBaseURL
	}

	u, err := url.Parse(raw)
	if err != nil {
		return DefaultBaseURL
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return DefaultBaseURL
	}

	if !allowedHosts[u.Hostname()] {
		return DefaultBaseURL
	}

	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return DefaultBaseURL
		}
	}

	// 只保留 scheme://host:port，丢弃路径与查询参数
	sanitized := u.Scheme + "://" + u.Host
	return strings.TrimSuffix(sanitized, "/")
}
