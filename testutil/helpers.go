// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 提供通用的测试辅助函数和断言
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertExecutionPath(t, result, "draft", "review")
//	testutil.AssertEventuallyTrue(t, func() bool { return condition }, 5*time.Second)
// =============================================================================
package testutil

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BaSui01/agentorch/types"
	"github.com/BaSui01/agentorch/workflow"
)

// =============================================================================
// 🎯 上下文辅助
// =============================================================================

// TestContext 返回带超时的测试上下文
func TestContext(t *testing.T) context.Context {
	return TestContextWithTimeout(t, 30*time.Second)
}

// TestContextWithTimeout 返回带自定义超时的测试上下文
func TestContextWithTimeout(t *testing.T, timeout time.Duration) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	t.Cleanup(cancel)
	return ctx
}

// CancelledContext 返回已取消的上下文
func CancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}

// =============================================================================
// 🔍 断言辅助
// =============================================================================

// AssertExecutionPath 断言执行路径依次经过给定节点
func AssertExecutionPath(t *testing.T, result *workflow.ExecutionResult, nodeIDs ...string) {
	t.Helper()
	if result == nil {
		t.Fatal("execution result is nil")
	}
	got := make([]string, len(result.ExecutionPath))
	for i, step := range result.ExecutionPath {
		got[i] = step.NodeID
	}
	if len(got) != len(nodeIDs) {
		t.Errorf("execution path = %v, want %v", got, nodeIDs)
		return
	}
	for i := range got {
		if got[i] != nodeIDs[i] {
			t.Errorf("execution path = %v, want %v", got, nodeIDs)
			return
		}
	}
}

// AssertErrorCode 断言错误携带指定错误码
func AssertErrorCode(t *testing.T, err error, code types.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Errorf("expected error with code %s, got nil", code)
		return
	}
	if got := types.GetErrorCode(err); got != code {
		t.Errorf("error code = %q, want %q (err: %v)", got, code, err)
	}
}

// AssertEventuallyTrue 断言条件最终为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()
	if !WaitFor(condition, timeout) {
		t.Errorf("condition did not become true within %v", timeout)
	}
}

// =============================================================================
// ⏱️ 时间辅助
// =============================================================================

// WaitFor 等待条件满足或超时
func WaitFor(condition func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return condition()
}

// =============================================================================
// 🔧 测试数据辅助
// =============================================================================

// MustJSON 将值转换为 JSON 字符串，失败时 panic
func MustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}

// WriteFile 在临时目录写入文件并返回路径
func WriteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

// WriteDefinition 将工作流定义写入临时文件，扩展名决定编码
func WriteDefinition(t *testing.T, def *workflow.WorkflowDefinition, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := def.SaveToFile(path); err != nil {
		t.Fatalf("save workflow %s: %v", def.ID, err)
	}
	return path
}
