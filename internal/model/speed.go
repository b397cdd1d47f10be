package model

// SpeedClass USB 协商速率等级
type SpeedClass int

const (
	SpeedUnknown SpeedClass = iota
	SpeedLow                // 1.5 Mbps
	SpeedFull               // 12 Mbps
	SpeedHigh               // 480 Mbps
	SpeedSuper              // 5 Gbps
	SpeedSuperPlus          // 10+ Gbps
)

// SpeedFromSysfs 解析 sysfs speed 属性 ("480"、"5000" 等)
func SpeedFromSysfs(s string) SpeedClass {
	switch s {
	case "1.5":
		return SpeedLow
	case "12":
		return SpeedFull
	case "480":
		return SpeedHigh
	case "5000":
		return SpeedSuper
	case "10000", "20000":
		return SpeedSuperPlus
	default:
		return SpeedUnknown
	}
}

func (s SpeedClass) Mbps() float64 {
	switch s {
	case SpeedLow:
		return 1.5
	case SpeedFull:
		return 12
	case SpeedHigh:
		return 480
	case SpeedSuper:
		return 5000
	case SpeedSuperPlus:
		return 10000
	default:
		return 0
	}
}

// BytesPerSecond 理论上限 (线速换算，不含协议开销)
func (s SpeedClass) BytesPerSecond() float64 {
	return s.Mbps() * 1_000_000 / 8
}

// PracticalBytesPerSecond 扣除协议开销后的实际可用上限
func (s SpeedClass) PracticalBytesPerSecond() float64 {
	return s.BytesPerSecond() * s.efficiency()
}

// efficiency 各速率等级的典型协议效率
func (s SpeedClass) efficiency() float64 {
	switch s {
	case SpeedLow:
		return 0.70
	case SpeedFull, SpeedHigh:
		return 0.80
	case SpeedSuper, SpeedSuperPlus:
		return 0.85
	default:
		return 0
	}
}

func (s SpeedClass) String() string {
	switch s {
	case SpeedLow:
		return "1.5 Mbps (Low Speed)"
	case SpeedFull:
		return "12 Mbps (Full Speed)"
	case SpeedHigh:
		return "480 Mbps (High Speed)"
	case SpeedSuper:
		return "5 Gbps (SuperSpeed)"
	case SpeedSuperPlus:
		return "10+ Gbps (SuperSpeed+)"
	default:
		return "Unknown"
	}
}
