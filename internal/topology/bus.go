package topology

import "github.com/Hara602/usbTop/internal/model"

// Mode 总线利用率的计算口径
type Mode int

const (
	ModePractical   Mode = iota // 扣除协议开销
	ModeTheoretical             // 理论线速
)

// Bus 一条 USB 总线及其上的设备
type Bus struct {
	ID      uint16
	Speed   model.SpeedClass
	Devices map[uint8]*Device
}

func NewBus(id uint16) *Bus {
	return &Bus{ID: id, Devices: make(map[uint8]*Device)}
}

// UpdateSpeed 优先采用属性源给出的根集线器速率，
// 否则退回总线上设备的最高速率
func (b *Bus) UpdateSpeed(rootHub model.SpeedClass) {
	if rootHub != model.SpeedUnknown {
		b.Speed = rootHub
		return
	}
	best := model.SpeedUnknown
	for _, d := range b.Devices {
		if d.Speed.Mbps() > best.Mbps() {
			best = d.Speed
		}
	}
	b.Speed = best
}

// TotalBps 总线上所有设备的当前速率之和
func (b *Bus) TotalBps() float64 {
	var total float64
	for _, d := range b.Devices {
		total += d.Stats.CurrentBps
	}
	return total
}

// BusyPercentage 总线利用率，按所选口径计算容量，上限 100
func (b *Bus) BusyPercentage(mode Mode) float64 {
	capacity := b.Speed.PracticalBytesPerSecond()
	if mode == ModeTheoretical {
		capacity = b.Speed.BytesPerSecond()
	}
	if capacity <= 0 {
		return 0
	}
	pct := b.TotalBps() / capacity * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// LimitedDevice 非正常指示的设备条目
type LimitedDevice struct {
	DeviceID  uint8
	Indicator SpeedIndicator
}

// SpeedLimitedDevices 列出所有诊断结果非 Normal 的设备
func (b *Bus) SpeedLimitedDevices() []LimitedDevice {
	var out []LimitedDevice
	for _, d := range b.Devices {
		if ind := d.Indicator(b.Speed); ind.Kind != IndicatorNormal {
			out = append(out, LimitedDevice{DeviceID: d.DeviceID, Indicator: ind})
		}
	}
	return out
}

// LimitedDeviceCount 被总线限速的设备数量
func (b *Bus) LimitedDeviceCount() int {
	n := 0
	for _, d := range b.Devices {
		if _, ok := d.SpeedMismatch(b.Speed); ok {
			n++
		}
	}
	return n
}
