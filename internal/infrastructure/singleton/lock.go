package singleton

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

// HealthCheckTimeout 探测已运行实例的超时
const HealthCheckTimeout = 2 * time.Second

// ErrPortBusy 端口被其他进程占用
var ErrPortBusy = errors.New("port is held by another process")

// CheckAndLock 尝试占用端口
// 端口空闲时返回 listener；已有本服务实例在运行时返回 nil, nil（调用者应退出）
func CheckAndLock(port string) (net.Listener, error) {
	listener, err := net.Listen("tcp", port)
	if err == nil {
		return listener, nil
	}

	if !isAddrInUse(err) {
		return nil, fmt.Errorf("failed to listen on %s: %w", port, err)
	}
	if isInstanceRunning(port) {
		return nil, nil
	}
	return nil, fmt.Errorf("%s: %w", port, ErrPortBusy)
}

// isAddrInUse 是否为端口已被占用错误
func isAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	// Windows: WSAEADDRINUSE
	var errno syscall.Errno
	return errors.As(err, &errno) && errno == 10048
}

// isInstanceRunning 端口上是否是本服务的实例
// /health 在目标库不可用时返回 503，两种状态都带 status 字段
func isInstanceRunning(port string) bool {
	client := &http.Client{Timeout: HealthCheckTimeout}

	resp, err := client.Get(fmt.Sprintf("http://localhost%s/health", port))
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusServiceUnavailable {
		return false
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok" || body.Status == "degraded"
}
