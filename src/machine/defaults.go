package machine

import (
	"runtime"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// Defaults returns a description of the current machine, as best we can tell without asking.
// Anything that can't be determined is left empty.
func Defaults() Descriptor {
	d := Descriptor{Arch: runtime.GOARCH}
	if info, err := host.Info(); err != nil {
		log.Warning("Failed to get host information: %s", err)
	} else {
		d.Machine = info.Hostname
		d.OS = strings.TrimSpace(strings.Join([]string{info.OS, info.Platform, info.PlatformVersion}, " "))
		if info.KernelArch != "" {
			d.Arch = info.KernelArch
		}
	}
	if d.Machine == "" {
		if name, err := hostname(); err == nil {
			d.Machine = name
		}
	}
	if infos, err := cpu.Info(); err != nil {
		log.Warning("Failed to get CPU information: %s", err)
	} else if len(infos) > 0 {
		d.CPU = strings.TrimSpace(infos[0].ModelName)
	}
	if count, err := cpu.Counts(true); err == nil {
		d.NumCPU = count
	}
	if vm, err := mem.VirtualMemory(); err != nil {
		log.Warning("Failed to get memory information: %s", err)
	} else {
		d.RAM = humanize.IBytes(vm.Total)
	}
	return d
}
