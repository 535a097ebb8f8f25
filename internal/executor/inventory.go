package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PowerState mirrors the backend's VM power states.
type PowerState string

const (
	PoweredOn  PowerState = "poweredOn"
	PoweredOff PowerState = "poweredOff"
	Suspended  PowerState = "suspended"
)

// VM is one virtual machine in the simulated inventory.
type VM struct {
	Name       string     `json:"name"`
	UUID       string     `json:"uuid"`
	PowerState PowerState `json:"power_state"`
	GuestOS    string     `json:"guest_os"`
	CPUCount   int        `json:"cpu_count"`
	MemoryMB   int        `json:"memory_mb"`
	Host       string     `json:"host"`
	Datastore  string     `json:"datastore"`
	IPAddress  string     `json:"ip_address,omitempty"`
	Annotation string     `json:"annotation,omitempty"`
}

// Host is one hypervisor host.
type Host struct {
	Name            string `json:"name"`
	ConnectionState string `json:"connection_state"`
	MaintenanceMode bool   `json:"maintenance_mode"`
	CPUCores        int    `json:"cpu_cores"`
	CPUThreads      int    `json:"cpu_threads"`
	MemoryMB        int    `json:"memory_mb"`
	Version         string `json:"version"`
	Vendor          string `json:"vendor"`
	Model           string `json:"model"`
}

// Snapshot is one VM snapshot.
type Snapshot struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Memory      bool      `json:"memory"`
	Quiesced    bool      `json:"quiesced"`
}

// Datastore is one storage volume.
type Datastore struct {
	Name       string `json:"name"`
	CapacityGB int    `json:"capacity_gb"`
	FreeGB     int    `json:"free_gb"`
	Type       string `json:"type"`
}

// Inventory is an in-memory infrastructure backend. It implements Executor
// with real state transitions (power states, maintenance mode, snapshot
// trees, resource accounting) so the pipeline can be exercised end to end
// without a hypervisor. All mutations run under one mutex; the simulated
// backend is not the concurrency bottleneck under test.
type Inventory struct {
	mu         sync.Mutex
	vms        map[string]*VM
	hosts      map[string]*Host
	snapshots  map[string][]Snapshot
	datastores map[string]*Datastore

	// latency, when positive, is applied to every call to mimic a remote
	// backend. Tests use it to exercise timeouts.
	latency time.Duration
}

// InventoryOption customizes a new Inventory.
type InventoryOption func(*Inventory)

// WithLatency makes every operation take at least d.
func WithLatency(d time.Duration) InventoryOption {
	return func(inv *Inventory) {
		inv.latency = d
	}
}

// NewInventory creates an empty inventory.
func NewInventory(opts ...InventoryOption) *Inventory {
	inv := &Inventory{
		vms:        make(map[string]*VM),
		hosts:      make(map[string]*Host),
		snapshots:  make(map[string][]Snapshot),
		datastores: make(map[string]*Datastore),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// NewSeededInventory creates an inventory with a small demo topology, used by
// local runs so every tool has something to act on.
func NewSeededInventory(opts ...InventoryOption) *Inventory {
	inv := NewInventory(opts...)
	inv.AddHost(Host{
		Name: "esx-01", ConnectionState: "connected",
		CPUCores: 32, CPUThreads: 64, MemoryMB: 262144,
		Version: "8.0.2", Vendor: "Generic", Model: "R750",
	})
	inv.AddHost(Host{
		Name: "esx-02", ConnectionState: "connected",
		CPUCores: 32, CPUThreads: 64, MemoryMB: 262144,
		Version: "8.0.2", Vendor: "Generic", Model: "R750",
	})
	inv.AddDatastore(Datastore{Name: "datastore-01", CapacityGB: 4096, FreeGB: 2048, Type: "VMFS"})
	inv.AddDatastore(Datastore{Name: "datastore-02", CapacityGB: 8192, FreeGB: 6144, Type: "NFS"})
	inv.AddVM(VM{
		Name: "web-01", PowerState: PoweredOn, GuestOS: "Ubuntu Linux (64-bit)",
		CPUCount: 4, MemoryMB: 8192, Host: "esx-01", Datastore: "datastore-01",
		IPAddress: "10.0.0.11",
	})
	inv.AddVM(VM{
		Name: "db-01", PowerState: PoweredOn, GuestOS: "Ubuntu Linux (64-bit)",
		CPUCount: 8, MemoryMB: 32768, Host: "esx-02", Datastore: "datastore-02",
		IPAddress: "10.0.0.21",
	})
	inv.AddVM(VM{
		Name: "batch-01", PowerState: PoweredOff, GuestOS: "Debian GNU/Linux 12 (64-bit)",
		CPUCount: 2, MemoryMB: 4096, Host: "esx-01", Datastore: "datastore-01",
	})
	return inv
}

// AddVM inserts a VM, assigning a UUID when absent.
func (inv *Inventory) AddVM(vm VM) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if vm.UUID == "" {
		vm.UUID = uuid.NewString()
	}
	inv.vms[vm.Name] = &vm
}

// AddHost inserts a host.
func (inv *Inventory) AddHost(h Host) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.hosts[h.Name] = &h
}

// AddDatastore inserts a datastore.
func (inv *Inventory) AddDatastore(ds Datastore) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.datastores[ds.Name] = &ds
}
