// Package cpu 提供用于设定默认线程池规模的 CPU 数量
package cpu

import "runtime"

// Count 返回当前进程可用的 CPU 数，至少为 1
//
// Linux 上读取调度亲和性掩码（容器/taskset 限制后的实际可用核数），
// 读取失败或其他平台退回 runtime.NumCPU。
func Count() int {
	if n := affinityCount(); n > 0 {
		return n
	}
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return 1
}
