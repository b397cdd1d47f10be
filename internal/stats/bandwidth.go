package stats

import (
	"time"

	"github.com/Hara602/usbTop/internal/model"
)

// DefaultWindow 速率计算的滑动时间窗口
const DefaultWindow = 10 * time.Second

type sample struct {
	at    time.Time
	bytes uint64
}

// HistoryPoint 合并后的历史采样点，Age 为距当前的秒数
type HistoryPoint struct {
	Age     float64
	RxBytes float64
	TxBytes float64
}

// Bandwidth 单个实体 (设备或总线) 的滑动窗口带宽累加器。
// 本身不做并发保护，由持有它的拓扑管理器统一加锁。
type Bandwidth struct {
	rx, tx []sample
	window time.Duration

	RxBps      float64
	TxBps      float64
	CurrentBps float64
	PeakBps    float64 // 单调不减
	TotalRx    uint64
	TotalTx    uint64
}

func NewBandwidth() *Bandwidth {
	return &Bandwidth{window: DefaultWindow}
}

// NewBandwidthWindow 自定义窗口长度，测试用
func NewBandwidthWindow(window time.Duration) *Bandwidth {
	return &Bandwidth{window: window}
}

// Update 追加一次传输并重算窗口内速率。
// 开销与窗口内现存采样数成正比。
func (b *Bandwidth) Update(dir model.Direction, n uint64, now time.Time) {
	s := sample{at: now, bytes: n}
	if dir == model.DirIn {
		b.rx = append(b.rx, s)
		b.TotalRx += n
	} else {
		b.tx = append(b.tx, s)
		b.TotalTx += n
	}
	b.evict(now)
	b.recalc()
}

// evict 丢弃窗口之外的采样
func (b *Bandwidth) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	b.rx = trimBefore(b.rx, cutoff)
	b.tx = trimBefore(b.tx, cutoff)
}

func trimBefore(s []sample, cutoff time.Time) []sample {
	i := 0
	for i < len(s) && s[i].at.Before(cutoff) {
		i++
	}
	if i == 0 {
		return s
	}
	return append(s[:0], s[i:]...)
}

func (b *Bandwidth) recalc() {
	windowSecs := b.window.Seconds()
	var rxSum, txSum uint64
	for _, s := range b.rx {
		rxSum += s.bytes
	}
	for _, s := range b.tx {
		txSum += s.bytes
	}
	b.RxBps = float64(rxSum) / windowSecs
	b.TxBps = float64(txSum) / windowSecs
	b.CurrentBps = b.RxBps + b.TxBps
	if b.CurrentBps > b.PeakBps {
		b.PeakBps = b.CurrentBps
	}
}

// Utilization 当前速率占给定容量的百分比，上限 100
func (b *Bandwidth) Utilization(capacityBps float64) float64 {
	if capacityBps <= 0 {
		return 0
	}
	pct := b.CurrentBps / capacityBps * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// History 按时间顺序合并收发两条序列，只保留最近 maxPoints 个点
func (b *Bandwidth) History(maxPoints int) []HistoryPoint {
	now := time.Now()
	merged := make([]HistoryPoint, 0, len(b.rx)+len(b.tx))

	i, j := 0, 0
	for i < len(b.rx) || j < len(b.tx) {
		takeRx := j >= len(b.tx) ||
			(i < len(b.rx) && !b.rx[i].at.After(b.tx[j].at))
		if takeRx {
			merged = append(merged, HistoryPoint{
				Age:     now.Sub(b.rx[i].at).Seconds(),
				RxBytes: float64(b.rx[i].bytes),
			})
			i++
		} else {
			merged = append(merged, HistoryPoint{
				Age:     now.Sub(b.tx[j].at).Seconds(),
				TxBytes: float64(b.tx[j].bytes),
			})
			j++
		}
	}

	if len(merged) > maxPoints {
		merged = merged[len(merged)-maxPoints:]
	}
	return merged
}

// Reset 清空所有累计值，设备身份被替换 (重连后换了描述符) 时使用
func (b *Bandwidth) Reset() {
	b.rx = nil
	b.tx = nil
	b.RxBps = 0
	b.TxBps = 0
	b.CurrentBps = 0
	b.PeakBps = 0
	b.TotalRx = 0
	b.TotalTx = 0
}
