package model

import "strconv"

// Metric keys pushed to the presentation layer.
const (
	KeyCPUPercent = "cpu.percent"
	KeyCPUGHz     = "cpu.ghz"

	KeyGPUTemp  = "gpu.temp_c"
	KeyGPUUtil  = "gpu.util"
	KeyGPUFan   = "gpu.fan"
	KeyGPUVRAM  = "gpu.vram"
	KeyGPUClock = "gpu.clock_mhz"
	KeyGPUPower = "gpu.power_w"

	KeyRAM = "ram.percent"

	KeyNetDown = "net.down_mbs"
	KeyNetUp   = "net.up_mbs"

	KeyShutdown = "shutdown"
)

// Peak-counted metrics.
const (
	PeakCPU  = "cpu"
	PeakGPU  = "gpu"
	PeakVRAM = "vram"
	PeakRAM  = "ram"
)

// PeakKey is the emission key carrying a metric's peak count.
func PeakKey(metric string) string { return "peak." + metric }

// DiskBusyKey and friends name per-disk emissions.
func DiskBusyKey(counterKey string) string  { return "disk." + counterKey + ".busy" }
func DiskReadKey(counterKey string) string  { return "disk." + counterKey + ".read_mbs" }
func DiskWriteKey(counterKey string) string { return "disk." + counterKey + ".write_mbs" }

// TopKey names the 1-based top consumer slot.
func TopKey(slot int) string { return "top." + strconv.Itoa(slot) }
