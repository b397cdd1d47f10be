package usbmon

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

const debugfsRoot = "/sys/kernel/debug/usb/usbmon"

// Status usbmon 内核接口的可用性探测结果
type Status struct {
	ModuleLoaded   bool
	DebugfsMounted bool
	Available      bool
	Buses          []uint16 // 可抓包的总线号，0 为全总线捕获
}

// CheckStatus 探测 usbmon 模块、debugfs 挂载情况以及可枚举的总线
func CheckStatus() (*Status, error) {
	st := &Status{}

	modules, err := os.ReadFile("/proc/modules")
	if err != nil {
		return nil, fmt.Errorf("read /proc/modules: %w", err)
	}
	for _, line := range strings.Split(string(modules), "\n") {
		if strings.HasPrefix(line, "usbmon ") {
			st.ModuleLoaded = true
			break
		}
	}

	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return nil, fmt.Errorf("read /proc/mounts: %w", err)
	}
	for _, line := range strings.Split(string(mounts), "\n") {
		if strings.Contains(line, "debugfs") && strings.Contains(line, "/sys/kernel/debug") {
			st.DebugfsMounted = true
			break
		}
	}

	if _, err := os.Stat(debugfsRoot); err == nil && st.DebugfsMounted {
		st.Available = true
		st.Buses = listBuses(debugfsRoot)
	}
	return st, nil
}

// listBuses 枚举 usbmon 目录下的 "0u"、"1u" … 条目
func listBuses(root string) []uint16 {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var buses []uint16
	for _, e := range entries {
		name := e.Name()
		if len(name) < 2 || !strings.HasSuffix(name, "u") {
			continue
		}
		n, err := strconv.ParseUint(name[:len(name)-1], 10, 16)
		if err != nil {
			continue
		}
		buses = append(buses, uint16(n))
	}
	sort.Slice(buses, func(i, j int) bool { return buses[i] < buses[j] })
	return buses
}

// CapturePath 返回某条总线的捕获端点路径 (u=二进制, t=文本)
func CapturePath(busID uint16, useBinary bool) string {
	suffix := "t"
	if useBinary {
		suffix = "u"
	}
	return fmt.Sprintf("%s/%d%s", debugfsRoot, busID, suffix)
}

// SetupInstructions 平台配置指引，探测失败时提示给用户
func SetupInstructions() string {
	return strings.Join([]string{
		"usbmon kernel interface is not available. To enable it:",
		"  1. Load the usbmon kernel module:  sudo modprobe usbmon",
		"  2. Ensure debugfs is mounted:      sudo mount -t debugfs none /sys/kernel/debug",
		"  3. Run as root or with read access to " + debugfsRoot,
	}, "\n")
}
