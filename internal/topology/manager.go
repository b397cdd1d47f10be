package topology

import (
	"sort"
	"sync"
	"time"

	"github.com/Hara602/usbTop/internal/model"
	"github.com/Hara602/usbTop/internal/stats"
)

// AttrSource 平台相关的属性源 (sysfs 等)。
// 实现可能做文件 I/O，Manager 保证不在持锁状态下调用。
type AttrSource interface {
	// BusSpeed 根集线器的速率，拿不到返回 SpeedUnknown
	BusSpeed(busID uint16) model.SpeedClass
	// DevicePatch 设备属性补丁，设备不存在返回 nil
	DevicePatch(busID uint16, devID uint8) *model.AttrPatch
}

// Manager 总线与设备的拓扑注册表。多条总线的捕获 goroutine
// 并发写入，展示层只读快照，内部用读写锁保护，临界区内不做 I/O。
type Manager struct {
	mu    sync.RWMutex
	buses map[uint16]*Bus
	attrs AttrSource // 可为 nil (纯内存模式，测试用)
}

func NewManager(attrs AttrSource) *Manager {
	return &Manager{
		buses: make(map[uint16]*Bus),
		attrs: attrs,
	}
}

// Record 把一条解码后的传输记录路由到所属设备。
// 首次见到的 (总线, 设备) 自动建档，随后在锁外向属性源要一次补丁。
func (m *Manager) Record(ev *model.TransferEvent) {
	m.mu.Lock()
	bus := m.getOrCreateBus(ev.BusID)
	dev, ok := bus.Devices[ev.DeviceID]
	created := !ok
	if created {
		dev = NewDevice(ev.BusID, ev.DeviceID, ev.Timestamp)
		bus.Devices[ev.DeviceID] = dev
	}
	dev.Touch(ev.Timestamp)
	if n := ev.BandwidthBytes(); n > 0 {
		dev.Stats.Update(ev.Direction, uint64(n), ev.Timestamp)
	}
	m.mu.Unlock()

	if created && m.attrs != nil {
		if p := m.attrs.DevicePatch(ev.BusID, ev.DeviceID); p != nil {
			m.Apply(p)
		}
	}
}

// Apply 应用属性补丁，目标设备不存在时创建，并把它标记为在线
func (m *Manager) Apply(p *model.AttrPatch) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	bus := m.getOrCreateBus(p.BusID)
	dev, ok := bus.Devices[p.DeviceID]
	if !ok {
		dev = NewDevice(p.BusID, p.DeviceID, now)
		bus.Devices[p.DeviceID] = dev
	}
	dev.ApplyPatch(p)
	dev.Touch(now)
}

// MarkDisconnected 标记设备断开，未知设备是空操作
func (m *Manager) MarkDisconnected(busID uint16, devID uint8, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bus, ok := m.buses[busID]; ok {
		if dev, ok := bus.Devices[devID]; ok {
			dev.MarkDisconnected(now)
		}
	}
}

// UpdateBusSpeeds 刷新所有总线的标称速率。
// 属性源查询在锁外完成，结果再短暂加锁写回。
func (m *Manager) UpdateBusSpeeds() {
	m.mu.RLock()
	ids := make([]uint16, 0, len(m.buses))
	for id := range m.buses {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	rootHub := make(map[uint16]model.SpeedClass, len(ids))
	for _, id := range ids {
		if m.attrs != nil {
			rootHub[id] = m.attrs.BusSpeed(id)
		} else {
			rootHub[id] = model.SpeedUnknown
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		if bus, ok := m.buses[id]; ok {
			bus.UpdateSpeed(rootHub[id])
		}
	}
}

// Cleanup 清理断开超过宽限期的设备，空了的总线一并移除
func (m *Manager) Cleanup(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, bus := range m.buses {
		for devID, dev := range bus.Devices {
			if dev.ShouldEvict(now) {
				delete(bus.Devices, devID)
			}
		}
		if len(bus.Devices) == 0 {
			delete(m.buses, id)
		}
	}
}

// getOrCreateBus 调用方必须持有写锁
func (m *Manager) getOrCreateBus(id uint16) *Bus {
	bus, ok := m.buses[id]
	if !ok {
		bus = NewBus(id)
		m.buses[id] = bus
	}
	return bus
}

// DeviceCount 当前所有总线上的设备总数
func (m *Manager) DeviceCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, bus := range m.buses {
		n += len(bus.Devices)
	}
	return n
}

// History 某个设备的合并历史采样，设备不存在返回 nil
func (m *Manager) History(busID uint16, devID uint8, maxPoints int) []stats.HistoryPoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if bus, ok := m.buses[busID]; ok {
		if dev, ok := bus.Devices[devID]; ok {
			return dev.Stats.History(maxPoints)
		}
	}
	return nil
}

// DeviceSnapshot 展示层用的只读设备视图
type DeviceSnapshot struct {
	BusID        uint16
	DeviceID     uint8
	VendorID     uint16
	ProductID    uint16
	Vendor       string
	Product      string
	Serial       string
	Speed        model.SpeedClass
	RxBps        float64
	TxBps        float64
	CurrentBps   float64
	PeakBps      float64
	TotalRx      uint64
	TotalTx      uint64
	Busy         float64
	Indicator    SpeedIndicator
	Disconnected bool
}

// BusSnapshot 展示层用的只读总线视图
type BusSnapshot struct {
	ID              uint16
	Speed           model.SpeedClass
	BusyPractical   float64
	BusyTheoretical float64
	LimitedCount    int
	CurrentBps      float64
	Devices         []DeviceSnapshot
}

// Snapshot 整个拓扑的一致性只读快照，总线和设备均按编号排序。
// 返回的都是拷贝，展示层拿不到内部 map。
func (m *Manager) Snapshot() []BusSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]BusSnapshot, 0, len(m.buses))
	for _, bus := range m.buses {
		bs := BusSnapshot{
			ID:              bus.ID,
			Speed:           bus.Speed,
			BusyPractical:   bus.BusyPercentage(ModePractical),
			BusyTheoretical: bus.BusyPercentage(ModeTheoretical),
			LimitedCount:    bus.LimitedDeviceCount(),
			CurrentBps:      bus.TotalBps(),
			Devices:         make([]DeviceSnapshot, 0, len(bus.Devices)),
		}
		for _, d := range bus.Devices {
			bs.Devices = append(bs.Devices, DeviceSnapshot{
				BusID:        d.BusID,
				DeviceID:     d.DeviceID,
				VendorID:     d.VendorID,
				ProductID:    d.ProductID,
				Vendor:       d.Vendor,
				Product:      d.Product,
				Serial:       d.Serial,
				Speed:        d.Speed,
				RxBps:        d.Stats.RxBps,
				TxBps:        d.Stats.TxBps,
				CurrentBps:   d.Stats.CurrentBps,
				PeakBps:      d.Stats.PeakBps,
				TotalRx:      d.Stats.TotalRx,
				TotalTx:      d.Stats.TotalTx,
				Busy:         d.BusyPercentage(),
				Indicator:    d.Indicator(bus.Speed),
				Disconnected: d.Disconnected,
			})
		}
		sort.Slice(bs.Devices, func(i, j int) bool {
			return bs.Devices[i].DeviceID < bs.Devices[j].DeviceID
		})
		out = append(out, bs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
