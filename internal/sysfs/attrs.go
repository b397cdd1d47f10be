package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Hara602/usbTop/internal/model"
)

const defaultRoot = "/sys/bus/usb/devices"

// NameResolver 按 VID/PID 查厂商和产品名 (usb.ids 数据库)
type NameResolver interface {
	Lookup(vendorID, productID uint16) (vendor, product string, ok bool)
}

// Source 基于 sysfs 的设备属性源，实现 topology.AttrSource。
// sysfs 里没有的厂商/产品名用 NameResolver 兜底。
type Source struct {
	root  string
	names NameResolver // 可为 nil
}

func NewSource(names NameResolver) *Source {
	return &Source{root: defaultRoot, names: names}
}

// NewSourceRoot 自定义 sysfs 根目录，测试用
func NewSourceRoot(root string, names NameResolver) *Source {
	return &Source{root: root, names: names}
}

// BusSpeed 读根集线器的速率属性
func (s *Source) BusSpeed(busID uint16) model.SpeedClass {
	speed := readAttr(filepath.Join(s.root, "usb"+strconv.Itoa(int(busID)), "speed"))
	return model.SpeedFromSysfs(speed)
}

// DevicePatch 采集一个设备的 sysfs 属性，设备目录找不到返回 nil
func (s *Source) DevicePatch(busID uint16, devID uint8) *model.AttrPatch {
	dir := s.findDeviceDir(busID, devID)
	if dir == "" {
		return nil
	}

	p := &model.AttrPatch{BusID: busID, DeviceID: devID}

	if v := readAttr(filepath.Join(dir, "speed")); v != "" {
		speed := model.SpeedFromSysfs(v)
		p.Speed = &speed
	}
	if v, ok := readHex16(filepath.Join(dir, "idVendor")); ok {
		p.VendorID = &v
	}
	if v, ok := readHex16(filepath.Join(dir, "idProduct")); ok {
		p.ProductID = &v
	}
	if v := readAttr(filepath.Join(dir, "manufacturer")); v != "" {
		p.Vendor = &v
	}
	if v := readAttr(filepath.Join(dir, "product")); v != "" {
		p.Product = &v
	}
	if v := readAttr(filepath.Join(dir, "serial")); v != "" {
		p.Serial = &v
	}
	if hint, ok := s.capabilityHint(dir); ok {
		p.Capability = &hint
	}

	// 描述符字符串缺失时查 usb.ids
	if s.names != nil && p.VendorID != nil && p.ProductID != nil &&
		(p.Vendor == nil || p.Product == nil) {
		vendor, product, ok := s.names.Lookup(*p.VendorID, *p.ProductID)
		if ok {
			if p.Vendor == nil && vendor != "" {
				p.Vendor = &vendor
			}
			if p.Product == nil && product != "" {
				p.Product = &product
			}
		}
	}
	return p
}

// capabilityHint 从描述符推测设备最大能力，只是启发式：
// bcdDevice >= 0x0300 的现代设备按 SuperSpeed 算，
// 否则用 bMaxPacketSize0 区分 High/Full/Low。
func (s *Source) capabilityHint(dir string) (model.SpeedClass, bool) {
	if v := readAttr(filepath.Join(dir, "bcdDevice")); v != "" {
		if bcd, err := strconv.ParseUint(v, 16, 16); err == nil && bcd >= 0x0300 {
			return model.SpeedSuper, true
		}
	}
	if v := readAttr(filepath.Join(dir, "bMaxPacketSize0")); v != "" {
		maxPacket, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return model.SpeedUnknown, false
		}
		switch {
		case maxPacket >= 64:
			return model.SpeedHigh, true
		case maxPacket == 8:
			return model.SpeedLow, true
		default:
			return model.SpeedFull, true
		}
	}
	return model.SpeedUnknown, false
}

// findDeviceDir sysfs 设备目录按端口路径命名 (如 "1-1.2")，
// 与 (总线号, 设备号) 没有直接对应关系，用 busnum/devnum 属性匹配
func (s *Source) findDeviceDir(busID uint16, devID uint8) string {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		// "1-1:1.0" 这类是接口目录，跳过
		if strings.Contains(e.Name(), ":") {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		bus, err1 := strconv.ParseUint(readAttr(filepath.Join(dir, "busnum")), 10, 16)
		dev, err2 := strconv.ParseUint(readAttr(filepath.Join(dir, "devnum")), 10, 8)
		if err1 != nil || err2 != nil {
			continue
		}
		if uint16(bus) == busID && uint8(dev) == devID {
			return dir
		}
	}
	return ""
}

// Enumerate 枚举 sysfs 中当前存在的全部 USB 设备，启动时补扫用
func (s *Source) Enumerate() []*model.AttrPatch {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil
	}
	var patches []*model.AttrPatch
	for _, e := range entries {
		if strings.Contains(e.Name(), ":") {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		bus, err1 := strconv.ParseUint(readAttr(filepath.Join(dir, "busnum")), 10, 16)
		dev, err2 := strconv.ParseUint(readAttr(filepath.Join(dir, "devnum")), 10, 8)
		if err1 != nil || err2 != nil {
			continue
		}
		if p := s.DevicePatch(uint16(bus), uint8(dev)); p != nil {
			patches = append(patches, p)
		}
	}
	return patches
}

func readAttr(path string) string {
	b, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}

func readHex16(path string) (uint16, bool) {
	v := readAttr(path)
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(v, 16, 16)
	if err != nil {
		return 0, false
	}
	return uint16(n), true
}
