//go:build !linux

package cpu

func affinityCount() int {
	return 0
}
