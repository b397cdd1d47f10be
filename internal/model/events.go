package model

import "time"

// EventKind URB 事件类型
type EventKind byte

const (
	Submission EventKind = 'S' // 主机提交请求
	Callback   EventKind = 'C' // 设备完成回调
	ErrorEvent EventKind = 'E' // 错误
)

// Direction 传输方向
type Direction byte

const (
	DirOut Direction = iota // 主机 -> 设备
	DirIn                   // 设备 -> 主机
)

// TransferEvent 一条解码后的 usbmon 抓包记录，解码后不可变
type TransferEvent struct {
	Timestamp time.Time
	Tag       string // URB 标签 (内核地址的十六进制形式)
	Kind      EventKind
	BusID     uint16 // usbmon 二进制格式是 16 位字段，完整保留避免高位总线号碰撞
	DeviceID  uint8
	Endpoint  uint8
	Direction Direction
	Length    uint32
	Status    int32
	Payload   []byte // 可选，文本格式 "=" 之后的数据
}

// IsDataTransfer 只有携带数据的 S/C 记录才计入带宽
func (e *TransferEvent) IsDataTransfer() bool {
	return e.Length > 0 && (e.Kind == Submission || e.Kind == Callback)
}

// BandwidthBytes 该记录对带宽统计的贡献字节数
func (e *TransferEvent) BandwidthBytes() uint32 {
	if e.IsDataTransfer() {
		return e.Length
	}
	return 0
}

// USBEvent 硬件插拔事件 (udev)
type USBEvent struct {
	Action    string // "add", "remove"
	BusID     uint16
	DeviceID  uint8
	Patch     *AttrPatch // add 事件附带的属性补丁
	TimeStamp time.Time
}
