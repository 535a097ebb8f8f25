package executor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	dErrors "vcgate/pkg/domain-errors"
	"vcgate/pkg/platform/sentinel"
)

// Execute dispatches one operation against the inventory. The simulated
// latency, when configured, respects ctx so deadline behavior matches a
// remote backend.
func (inv *Inventory) Execute(ctx context.Context, operation string, params map[string]any) (any, error) {
	if inv.latency > 0 {
		timer := time.NewTimer(inv.latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inv.mu.Lock()
	defer inv.mu.Unlock()

	switch operation {
	case "list_vms":
		return inv.listVMs(), nil
	case "get_vm_details":
		return inv.getVMDetails(params)
	case "start_vm":
		return inv.startVM(params)
	case "stop_vm":
		return inv.stopVM(params)
	case "restart_vm":
		return inv.restartVM(params)
	case "clone_vm":
		return inv.cloneVM(params)
	case "delete_vm":
		return inv.deleteVM(params)
	case "migrate_vm":
		return inv.migrateVM(params)
	case "list_hosts":
		return inv.listHosts(), nil
	case "get_host_details":
		return inv.getHostDetails(params)
	case "enter_maintenance_mode":
		return inv.enterMaintenance(params)
	case "exit_maintenance_mode":
		return inv.exitMaintenance(params)
	case "reboot_host":
		return inv.rebootHost(params)
	case "get_host_performance":
		return inv.hostPerformance(params)
	case "create_snapshot":
		return inv.createSnapshot(params)
	case "list_snapshots":
		return inv.listSnapshots(params)
	case "revert_snapshot":
		return inv.revertSnapshot(params)
	case "delete_snapshot":
		return inv.deleteSnapshot(params)
	case "delete_all_snapshots":
		return inv.deleteAllSnapshots(params)
	case "get_cluster_resources":
		return inv.clusterResources(), nil
	case "modify_vm_resources":
		return inv.modifyVMResources(params)
	case "get_vm_resource_usage":
		return inv.vmResourceUsage(params)
	case "get_datastore_usage":
		return inv.datastoreUsage(), nil
	default:
		return nil, fmt.Errorf("operation %q: %w", operation, sentinel.ErrRejected)
	}
}

func (inv *Inventory) vm(name string) (*VM, error) {
	vm, ok := inv.vms[name]
	if !ok {
		return nil, fmt.Errorf("vm %q: %w", name, sentinel.ErrNotFound)
	}
	return vm, nil
}

func (inv *Inventory) host(name string) (*Host, error) {
	h, ok := inv.hosts[name]
	if !ok {
		return nil, fmt.Errorf("host %q: %w", name, sentinel.ErrNotFound)
	}
	return h, nil
}

func (inv *Inventory) listVMs() []VM {
	vms := make([]VM, 0, len(inv.vms))
	for _, vm := range inv.vms {
		vms = append(vms, *vm)
	}
	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms
}

func (inv *Inventory) getVMDetails(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"vm":        *vm,
		"snapshots": append([]Snapshot{}, inv.snapshots[name]...),
	}, nil
}

func (inv *Inventory) startVM(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	if vm.PowerState == PoweredOn {
		return map[string]any{"status": "already_running", "vm_name": name}, nil
	}
	vm.PowerState = PoweredOn
	return map[string]any{"status": "started", "vm_name": name}, nil
}

func (inv *Inventory) stopVM(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	force := BoolParam(params, "force", false)
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	if vm.PowerState == PoweredOff {
		return map[string]any{"status": "already_stopped", "vm_name": name}, nil
	}
	method := "guest_shutdown"
	if force {
		method = "hard_power_off"
	}
	vm.PowerState = PoweredOff
	return map[string]any{"status": "stopped", "vm_name": name, "method": method}, nil
}

func (inv *Inventory) restartVM(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	force := BoolParam(params, "force", false)
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	if vm.PowerState != PoweredOn {
		return nil, fmt.Errorf("vm %q is not running: %w", name, sentinel.ErrInvalidState)
	}
	method := "guest_reboot"
	if force {
		method = "hard_reset"
	}
	return map[string]any{"status": "restarted", "vm_name": name, "method": method}, nil
}

func (inv *Inventory) cloneVM(params map[string]any) (any, error) {
	source, err := RequireString(params, "source_vm_name")
	if err != nil {
		return nil, err
	}
	cloneName, err := RequireString(params, "clone_name")
	if err != nil {
		return nil, err
	}
	src, err := inv.vm(source)
	if err != nil {
		return nil, err
	}
	if _, exists := inv.vms[cloneName]; exists {
		return nil, fmt.Errorf("vm %q already exists: %w", cloneName, sentinel.ErrRejected)
	}
	datastore := StringParam(params, "datastore_name")
	if datastore == "" {
		datastore = src.Datastore
	} else if _, ok := inv.datastores[datastore]; !ok {
		return nil, fmt.Errorf("datastore %q: %w", datastore, sentinel.ErrNotFound)
	}

	clone := *src
	clone.Name = cloneName
	clone.UUID = uuid.NewString()
	clone.PowerState = PoweredOff
	clone.Datastore = datastore
	clone.IPAddress = ""
	inv.vms[cloneName] = &clone
	return map[string]any{"status": "cloned", "source": source, "clone_name": cloneName, "datastore": datastore}, nil
}

func (inv *Inventory) deleteVM(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	if vm.PowerState != PoweredOff {
		return nil, fmt.Errorf("vm %q must be powered off before deletion: %w", name, sentinel.ErrInvalidState)
	}
	delete(inv.vms, name)
	delete(inv.snapshots, name)
	return map[string]any{"status": "deleted", "vm_name": name}, nil
}

func (inv *Inventory) migrateVM(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	targetHost := StringParam(params, "target_host")
	targetDatastore := StringParam(params, "target_datastore")
	if targetHost == "" && targetDatastore == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "migrate_vm needs target_host or target_datastore")
	}
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	if targetHost != "" {
		h, err := inv.host(targetHost)
		if err != nil {
			return nil, err
		}
		if h.MaintenanceMode {
			return nil, fmt.Errorf("host %q is in maintenance mode: %w", targetHost, sentinel.ErrInvalidState)
		}
		vm.Host = targetHost
	}
	if targetDatastore != "" {
		if _, ok := inv.datastores[targetDatastore]; !ok {
			return nil, fmt.Errorf("datastore %q: %w", targetDatastore, sentinel.ErrNotFound)
		}
		vm.Datastore = targetDatastore
	}
	return map[string]any{
		"status": "migrated", "vm_name": name,
		"host": vm.Host, "datastore": vm.Datastore,
	}, nil
}

func (inv *Inventory) listHosts() []Host {
	hosts := make([]Host, 0, len(inv.hosts))
	for _, h := range inv.hosts {
		hosts = append(hosts, *h)
	}
	sort.Slice(hosts, func(i, j int) bool { return hosts[i].Name < hosts[j].Name })
	return hosts
}

func (inv *Inventory) getHostDetails(params map[string]any) (any, error) {
	name, err := RequireString(params, "host_name")
	if err != nil {
		return nil, err
	}
	h, err := inv.host(name)
	if err != nil {
		return nil, err
	}
	return *h, nil
}

// taskTimeout reads the optional timeout_seconds bound for a simulated host
// task. The transition itself is instantaneous here, so the bound is checked
// against the configured backend latency: an aggressive timeout against a
// slow backend fails the way a real maintenance task would.
func (inv *Inventory) taskTimeout(params map[string]any) (time.Duration, error) {
	if _, ok := params["timeout_seconds"]; !ok {
		return 0, nil
	}
	secs := IntParam(params, "timeout_seconds", 0)
	if secs <= 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "parameter \"timeout_seconds\" must be positive")
	}
	return time.Duration(secs) * time.Second, nil
}

func (inv *Inventory) enterMaintenance(params map[string]any) (any, error) {
	name, err := RequireString(params, "host_name")
	if err != nil {
		return nil, err
	}
	evacuate := BoolParam(params, "evacuate_powered_off_vms", true)
	timeout, err := inv.taskTimeout(params)
	if err != nil {
		return nil, err
	}
	if timeout > 0 && inv.latency > timeout {
		return nil, fmt.Errorf("host %q maintenance task exceeded %s: %w", name, timeout, sentinel.ErrRejected)
	}
	h, err := inv.host(name)
	if err != nil {
		return nil, err
	}
	if h.MaintenanceMode {
		return map[string]any{"status": "already_in_maintenance", "host_name": name}, nil
	}
	for _, vm := range inv.vms {
		if vm.Host != name {
			continue
		}
		if vm.PowerState == PoweredOn {
			return nil, fmt.Errorf("host %q has running VMs: %w", name, sentinel.ErrInvalidState)
		}
		if evacuate {
			if target := inv.otherActiveHost(name); target != "" {
				vm.Host = target
			}
		}
	}
	h.MaintenanceMode = true
	return map[string]any{"status": "entered_maintenance", "host_name": name}, nil
}

func (inv *Inventory) otherActiveHost(exclude string) string {
	var names []string
	for name, h := range inv.hosts {
		if name != exclude && !h.MaintenanceMode {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return ""
	}
	sort.Strings(names)
	return names[0]
}

func (inv *Inventory) exitMaintenance(params map[string]any) (any, error) {
	name, err := RequireString(params, "host_name")
	if err != nil {
		return nil, err
	}
	timeout, err := inv.taskTimeout(params)
	if err != nil {
		return nil, err
	}
	if timeout > 0 && inv.latency > timeout {
		return nil, fmt.Errorf("host %q maintenance task exceeded %s: %w", name, timeout, sentinel.ErrRejected)
	}
	h, err := inv.host(name)
	if err != nil {
		return nil, err
	}
	if !h.MaintenanceMode {
		return map[string]any{"status": "not_in_maintenance", "host_name": name}, nil
	}
	h.MaintenanceMode = false
	return map[string]any{"status": "exited_maintenance", "host_name": name}, nil
}

func (inv *Inventory) rebootHost(params map[string]any) (any, error) {
	name, err := RequireString(params, "host_name")
	if err != nil {
		return nil, err
	}
	force := BoolParam(params, "force", false)
	h, err := inv.host(name)
	if err != nil {
		return nil, err
	}
	if !h.MaintenanceMode && !force {
		return nil, fmt.Errorf("host %q is not in maintenance mode: %w", name, sentinel.ErrRejected)
	}
	return map[string]any{"status": "rebooting", "host_name": name, "forced": force}, nil
}

func (inv *Inventory) hostPerformance(params map[string]any) (any, error) {
	name, err := RequireString(params, "host_name")
	if err != nil {
		return nil, err
	}
	h, err := inv.host(name)
	if err != nil {
		return nil, err
	}
	var vmCount, usedMemoryMB, usedCPU int
	for _, vm := range inv.vms {
		if vm.Host == name && vm.PowerState == PoweredOn {
			vmCount++
			usedMemoryMB += vm.MemoryMB
			usedCPU += vm.CPUCount
		}
	}
	return map[string]any{
		"host_name":       name,
		"running_vms":     vmCount,
		"cpu_cores":       h.CPUCores,
		"cpu_used_cores":  usedCPU,
		"memory_mb":       h.MemoryMB,
		"memory_used_mb":  usedMemoryMB,
		"memory_usage_pc": percent(usedMemoryMB, h.MemoryMB),
	}, nil
}

func (inv *Inventory) createSnapshot(params map[string]any) (any, error) {
	vmName, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	snapName, err := RequireString(params, "snapshot_name")
	if err != nil {
		return nil, err
	}
	if _, err := inv.vm(vmName); err != nil {
		return nil, err
	}
	for _, s := range inv.snapshots[vmName] {
		if s.Name == snapName {
			return nil, fmt.Errorf("snapshot %q already exists: %w", snapName, sentinel.ErrRejected)
		}
	}
	inv.snapshots[vmName] = append(inv.snapshots[vmName], Snapshot{
		Name:        snapName,
		Description: StringParam(params, "description"),
		CreatedAt:   time.Now(),
		Memory:      BoolParam(params, "memory", false),
		Quiesced:    BoolParam(params, "quiesce", true),
	})
	return map[string]any{"status": "created", "vm_name": vmName, "snapshot_name": snapName}, nil
}

func (inv *Inventory) listSnapshots(params map[string]any) (any, error) {
	vmName, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	if _, err := inv.vm(vmName); err != nil {
		return nil, err
	}
	return append([]Snapshot{}, inv.snapshots[vmName]...), nil
}

func (inv *Inventory) revertSnapshot(params map[string]any) (any, error) {
	vmName, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	snapName, err := RequireString(params, "snapshot_name")
	if err != nil {
		return nil, err
	}
	vm, err := inv.vm(vmName)
	if err != nil {
		return nil, err
	}
	for _, s := range inv.snapshots[vmName] {
		if s.Name == snapName {
			// Memory snapshots resume running; disk-only snapshots leave the
			// VM powered off, matching hypervisor behavior.
			if s.Memory {
				vm.PowerState = PoweredOn
			} else {
				vm.PowerState = PoweredOff
			}
			return map[string]any{"status": "reverted", "vm_name": vmName, "snapshot_name": snapName}, nil
		}
	}
	return nil, fmt.Errorf("snapshot %q: %w", snapName, sentinel.ErrNotFound)
}

func (inv *Inventory) deleteSnapshot(params map[string]any) (any, error) {
	vmName, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	snapName, err := RequireString(params, "snapshot_name")
	if err != nil {
		return nil, err
	}
	if _, err := inv.vm(vmName); err != nil {
		return nil, err
	}
	removeChildren := BoolParam(params, "remove_children", false)
	snaps := inv.snapshots[vmName]
	for i, s := range snaps {
		if s.Name == snapName {
			// Snapshots form a linear chain in creation order, so the
			// children of snapshot i are everything after it.
			removed := 1
			if removeChildren {
				removed = len(snaps) - i
				inv.snapshots[vmName] = snaps[:i:i]
			} else {
				inv.snapshots[vmName] = append(snaps[:i:i], snaps[i+1:]...)
			}
			return map[string]any{
				"status":        "deleted",
				"vm_name":       vmName,
				"snapshot_name": snapName,
				"removed":       removed,
			}, nil
		}
	}
	return nil, fmt.Errorf("snapshot %q: %w", snapName, sentinel.ErrNotFound)
}

func (inv *Inventory) deleteAllSnapshots(params map[string]any) (any, error) {
	vmName, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	if _, err := inv.vm(vmName); err != nil {
		return nil, err
	}
	removed := len(inv.snapshots[vmName])
	delete(inv.snapshots, vmName)
	return map[string]any{"status": "deleted_all", "vm_name": vmName, "removed": removed}, nil
}

func (inv *Inventory) clusterResources() any {
	var totalCores, totalMemoryMB, usedCores, usedMemoryMB, running int
	for _, h := range inv.hosts {
		totalCores += h.CPUCores
		totalMemoryMB += h.MemoryMB
	}
	for _, vm := range inv.vms {
		if vm.PowerState == PoweredOn {
			running++
			usedCores += vm.CPUCount
			usedMemoryMB += vm.MemoryMB
		}
	}
	return map[string]any{
		"hosts":           len(inv.hosts),
		"vms":             len(inv.vms),
		"running_vms":     running,
		"cpu_cores":       totalCores,
		"cpu_used_cores":  usedCores,
		"memory_mb":       totalMemoryMB,
		"memory_used_mb":  usedMemoryMB,
		"memory_usage_pc": percent(usedMemoryMB, totalMemoryMB),
	}
}

func (inv *Inventory) modifyVMResources(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	cpu := IntParam(params, "cpu_count", 0)
	memory := IntParam(params, "memory_mb", 0)
	if cpu <= 0 && memory <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "modify_vm_resources needs cpu_count or memory_mb")
	}
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	if vm.PowerState != PoweredOff {
		return nil, fmt.Errorf("vm %q must be powered off to resize: %w", name, sentinel.ErrInvalidState)
	}
	if cpu > 0 {
		vm.CPUCount = cpu
	}
	if memory > 0 {
		vm.MemoryMB = memory
	}
	return map[string]any{
		"status": "modified", "vm_name": name,
		"cpu_count": vm.CPUCount, "memory_mb": vm.MemoryMB,
	}, nil
}

func (inv *Inventory) vmResourceUsage(params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	vm, err := inv.vm(name)
	if err != nil {
		return nil, err
	}
	// Allocation-derived usage: the simulator has no guest telemetry.
	activeFraction := 0.0
	if vm.PowerState == PoweredOn {
		activeFraction = 0.5
	}
	return map[string]any{
		"vm_name":        name,
		"power_state":    vm.PowerState,
		"cpu_count":      vm.CPUCount,
		"memory_mb":      vm.MemoryMB,
		"cpu_usage_mhz":  int(float64(vm.CPUCount) * 2400 * activeFraction),
		"memory_used_mb": int(float64(vm.MemoryMB) * activeFraction),
	}, nil
}

func (inv *Inventory) datastoreUsage() any {
	stores := make([]map[string]any, 0, len(inv.datastores))
	names := make([]string, 0, len(inv.datastores))
	for name := range inv.datastores {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ds := inv.datastores[name]
		stores = append(stores, map[string]any{
			"name":        ds.Name,
			"type":        ds.Type,
			"capacity_gb": ds.CapacityGB,
			"free_gb":     ds.FreeGB,
			"used_pc":     percent(ds.CapacityGB-ds.FreeGB, ds.CapacityGB),
		})
	}
	return stores
}

func percent(used, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(used) / float64(total) * 100
}
