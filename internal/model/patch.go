package model

// AttrPatch 来自属性源 (sysfs/udev) 的设备属性补丁。
// 指针字段为 nil 表示该属性未知，合并时保持设备原值不变。
type AttrPatch struct {
	BusID    uint16
	DeviceID uint8

	Speed      *SpeedClass
	VendorID   *uint16
	ProductID  *uint16
	Vendor     *string
	Product    *string
	Serial     *string
	Capability *SpeedClass // 设备最大能力的启发式估计
}
