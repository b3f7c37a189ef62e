//go:build linux
// +build linux

// control/platform_linux.go
// Author: momentics <momentics@gmail.com>
//
// Host and process probes backed by gopsutil.

package control

import (
	"os"
	"runtime"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// RegisterPlatformProbes adds host and process probes. A probe whose source
// fails reports the error text instead of a value.
func RegisterPlatformProbes(dp *DebugProbes) {
	dp.RegisterProbe("platform.cpus", func() any {
		n, err := cpu.Counts(true)
		if err != nil {
			return runtime.NumCPU()
		}
		return n
	})
	dp.RegisterProbe("platform.memory", func() any {
		vm, err := mem.VirtualMemory()
		if err != nil {
			return err.Error()
		}
		return map[string]any{
			"total":        humanize.Bytes(vm.Total),
			"available":    humanize.Bytes(vm.Available),
			"used_percent": vm.UsedPercent,
		}
	})
	dp.RegisterProbe("platform.load", func() any {
		avg, err := load.Avg()
		if err != nil {
			return err.Error()
		}
		return []float64{avg.Load1, avg.Load5, avg.Load15}
	})
	dp.RegisterProbe("process.fds", func() any {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err.Error()
		}
		n, err := p.NumFDs()
		if err != nil {
			return err.Error()
		}
		return n
	})
	dp.RegisterProbe("process.rss", func() any {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err.Error()
		}
		mi, err := p.MemoryInfo()
		if err != nil {
			return err.Error()
		}
		return humanize.Bytes(mi.RSS)
	})
}
