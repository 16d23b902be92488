// Package singleton 保证本机只运行一个守护进程实例
package singleton

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

const (
	// DefaultPort 默认监听端口
	DefaultPort = ":19970"
	// HealthCheckTimeout 健康检查超时时间
	HealthCheckTimeout = 2 * time.Second
)

// CheckAndLock 检查端口是否被占用，如果被占用则检查是否有实例在运行
// 返回 listener 和 error
// 如果已有实例运行，返回 nil listener 和 nil error（调用者应退出）
// 如果端口被占用但实例不健康，返回错误
func CheckAndLock(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if isAddrInUse(err) {
		if isInstanceRunning(port) {
			// 已有实例运行，调用者应该退出
			return nil, nil
		}
		return nil, fmt.Errorf("port %s is in use but the instance failed its health check", port)
	}

	return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
}

// isAddrInUse 检查错误是否是地址已在使用
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}

	// 先检查错误字符串（最通用）
	errStr := err.Error()
	if errStr == "bind: address already in use" ||
		errStr == "bind: Only one usage of each socket address (protocol/network address/port) is normally permitted" {
		return true
	}

	opErr, ok := err.(*net.OpError)
	if !ok {
		return false
	}

	sysErr, ok := opErr.Err.(*os.SyscallError)
	if !ok {
		return false
	}

	errno, ok := sysErr.Err.(syscall.Errno)
	if ok {
		// Windows: WSAEADDRINUSE (10048)
		// Linux/Unix: EADDRINUSE
		return errno == 10048 || errno == syscall.EADDRINUSE
	}

	errStr = sysErr.Err.Error()
	return errStr == "address already in use" ||
		errStr == "Only one usage of each socket address (protocol/network address/port) is normally permitted"
}

// isInstanceRunning 通过健康检查判断是否有实例在运行
func isInstanceRunning(port string) bool {
	client := &http.Client{
		Timeout: HealthCheckTimeout,
	}

	url := fmt.Sprintf("http://localhost%s/health", port)
	resp, err := client.Get(url)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
