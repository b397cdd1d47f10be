package topology

import (
	"fmt"
	"time"

	"github.com/Hara602/usbTop/internal/model"
	"github.com/Hara602/usbTop/internal/stats"
)

// DisconnectGrace 设备断开后保留多久再从拓扑中移除
const DisconnectGrace = 5 * time.Second

// IndicatorKind 速率诊断指示的类别
type IndicatorKind int

const (
	IndicatorNormal IndicatorKind = iota
	// IndicatorHighUtilization 利用率超过 80%
	IndicatorHighUtilization
	// IndicatorLimitedByBus 设备能力高于总线速率，被总线限速
	IndicatorLimitedByBus
)

// SpeedIndicator 速率诊断结果。LimitedByBus 时 Capability
// 携带设备本可以达到的速率等级。
type SpeedIndicator struct {
	Kind       IndicatorKind
	Capability model.SpeedClass
}

func (si SpeedIndicator) String() string {
	switch si.Kind {
	case IndicatorHighUtilization:
		return "high utilization"
	case IndicatorLimitedByBus:
		return fmt.Sprintf("limited by bus (capable of %s)", si.Capability)
	default:
		return "normal"
	}
}

// Device 拓扑中的一个 USB 设备，设备号在所属总线内唯一
type Device struct {
	BusID    uint16
	DeviceID uint8

	VendorID  uint16 // 0 表示未知
	ProductID uint16
	Vendor    string
	Product   string
	Serial    string

	Speed      model.SpeedClass // 协商到的速率
	Capability model.SpeedClass // 属性源给出的最大能力估计，Unknown 表示没有

	Stats *stats.Bandwidth

	Disconnected   bool
	DisconnectedAt time.Time
	LastSeen       time.Time
}

func NewDevice(busID uint16, devID uint8, now time.Time) *Device {
	return &Device{
		BusID:    busID,
		DeviceID: devID,
		Stats:    stats.NewBandwidth(),
		LastSeen: now,
	}
}

// Touch 记录一次活动，断开状态的设备重新转为在线
func (d *Device) Touch(now time.Time) {
	d.LastSeen = now
	if d.Disconnected {
		d.Disconnected = false
		d.DisconnectedAt = time.Time{}
	}
}

// MarkDisconnected 幂等：断开时刻只在首次调用时记录
func (d *Device) MarkDisconnected(now time.Time) {
	if !d.Disconnected {
		d.Disconnected = true
		d.DisconnectedAt = now
	}
}

// ShouldEvict 断开超过宽限期的设备可以被清理
func (d *Device) ShouldEvict(now time.Time) bool {
	return d.Disconnected && now.Sub(d.DisconnectedAt) > DisconnectGrace
}

// ApplyPatch 合并属性补丁，nil 字段保持原值。
// 换了身份 (VID/PID/序列号与已知值不同) 说明是重连后的新设备，
// 清掉旧的带宽累计。
func (d *Device) ApplyPatch(p *model.AttrPatch) {
	if d.identityReplaced(p) {
		d.Stats.Reset()
	}
	if p.Speed != nil {
		d.Speed = *p.Speed
	}
	if p.VendorID != nil {
		d.VendorID = *p.VendorID
	}
	if p.ProductID != nil {
		d.ProductID = *p.ProductID
	}
	if p.Vendor != nil {
		d.Vendor = *p.Vendor
	}
	if p.Product != nil {
		d.Product = *p.Product
	}
	if p.Serial != nil {
		d.Serial = *p.Serial
	}
	if p.Capability != nil {
		d.Capability = *p.Capability
	}
}

func (d *Device) identityReplaced(p *model.AttrPatch) bool {
	if p.VendorID != nil && d.VendorID != 0 && *p.VendorID != d.VendorID {
		return true
	}
	if p.ProductID != nil && d.ProductID != 0 && *p.ProductID != d.ProductID {
		return true
	}
	if p.Serial != nil && d.Serial != "" && *p.Serial != d.Serial {
		return true
	}
	return false
}

// MaxCapability 能力估计，属性源没给时退回当前协商速率
func (d *Device) MaxCapability() model.SpeedClass {
	if d.Capability != model.SpeedUnknown {
		return d.Capability
	}
	return d.Speed
}

// BusyPercentage 实际可用带宽口径下的利用率
func (d *Device) BusyPercentage() float64 {
	return d.Stats.Utilization(d.Speed.PracticalBytesPerSecond())
}

// BusyPercentageTheoretical 理论线速口径下的利用率
func (d *Device) BusyPercentageTheoretical() float64 {
	return d.Stats.Utilization(d.Speed.BytesPerSecond())
}

// SpeedMismatch 判断设备是否被总线限速。
// 要求能力同时高于总线速率和自身协商速率，否则设备本来就跑在
// 自己的最大速率上，不算被限。
func (d *Device) SpeedMismatch(busSpeed model.SpeedClass) (model.SpeedClass, bool) {
	capability := d.MaxCapability()
	if capability.Mbps() > busSpeed.Mbps() && capability.Mbps() > d.Speed.Mbps() {
		return capability, true
	}
	return model.SpeedUnknown, false
}

// Indicator 汇总速率诊断：限速 > 高利用率 > 正常
func (d *Device) Indicator(busSpeed model.SpeedClass) SpeedIndicator {
	if capability, ok := d.SpeedMismatch(busSpeed); ok {
		return SpeedIndicator{Kind: IndicatorLimitedByBus, Capability: capability}
	}
	if d.Speed.Mbps() > 0 && d.BusyPercentage() > 80 {
		return SpeedIndicator{Kind: IndicatorHighUtilization}
	}
	return SpeedIndicator{Kind: IndicatorNormal}
}
