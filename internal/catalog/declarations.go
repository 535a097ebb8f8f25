package catalog

// Default returns the full operation set for the virtual-infrastructure
// backend. includeAI gates the analyzer-backed tools on the Ollama flag.
func Default(includeAI bool) (*Catalog, error) {
	ops := []Operation{
		// VM operations
		{
			Name:        "list_vms",
			Description: "List all virtual machines",
			Category:    CategoryVM,
			Params:      map[string]Param{},
			Cacheable:   true,
		},
		{
			Name:        "get_vm_details",
			Description: "Get detailed information about a VM",
			Category:    CategoryVM,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM", Required: true},
			},
			Cacheable: true,
		},
		{
			Name:        "start_vm",
			Description: "Start a virtual machine",
			Category:    CategoryVM,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM to start", Required: true},
			},
		},
		{
			Name:        "stop_vm",
			Description: "Stop a virtual machine",
			Category:    CategoryVM,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM to stop", Required: true},
				"force":   {Type: "boolean", Description: "Force power off"},
			},
		},
		{
			Name:        "restart_vm",
			Description: "Restart a virtual machine",
			Category:    CategoryVM,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM to restart", Required: true},
				"force":   {Type: "boolean", Description: "Force restart"},
			},
		},
		{
			Name:        "clone_vm",
			Description: "Clone a virtual machine",
			Category:    CategoryVM,
			Params: map[string]Param{
				"source_vm_name": {Type: "string", Description: "Name of the source VM", Required: true},
				"clone_name":     {Type: "string", Description: "Name for the cloned VM", Required: true},
				"datastore_name": {Type: "string", Description: "Target datastore name"},
			},
		},
		{
			Name:        "delete_vm",
			Description: "Delete a virtual machine",
			Category:    CategoryVM,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM to delete", Required: true},
			},
		},
		{
			Name:        "migrate_vm",
			Description: "Migrate a virtual machine",
			Category:    CategoryVM,
			Params: map[string]Param{
				"vm_name":          {Type: "string", Description: "Name of the VM to migrate", Required: true},
				"target_host":      {Type: "string", Description: "Target host name"},
				"target_datastore": {Type: "string", Description: "Target datastore name"},
			},
		},

		// Host operations
		{
			Name:        "list_hosts",
			Description: "List all hypervisor hosts",
			Category:    CategoryHost,
			Params:      map[string]Param{},
			Cacheable:   true,
		},
		{
			Name:        "get_host_details",
			Description: "Get detailed information about a host",
			Category:    CategoryHost,
			Params: map[string]Param{
				"host_name": {Type: "string", Description: "Name of the host", Required: true},
			},
			Cacheable: true,
		},
		{
			Name:        "enter_maintenance_mode",
			Description: "Put host into maintenance mode",
			Category:    CategoryHost,
			Params: map[string]Param{
				"host_name":                {Type: "string", Description: "Name of the host", Required: true},
				"evacuate_powered_off_vms": {Type: "boolean", Description: "Evacuate powered off VMs"},
				"timeout_seconds":          {Type: "integer", Description: "Timeout in seconds"},
			},
		},
		{
			Name:        "exit_maintenance_mode",
			Description: "Exit maintenance mode",
			Category:    CategoryHost,
			Params: map[string]Param{
				"host_name":       {Type: "string", Description: "Name of the host", Required: true},
				"timeout_seconds": {Type: "integer", Description: "Timeout in seconds"},
			},
		},
		{
			Name:        "reboot_host",
			Description: "Reboot a hypervisor host",
			Category:    CategoryHost,
			Params: map[string]Param{
				"host_name": {Type: "string", Description: "Name of the host", Required: true},
				"force":     {Type: "boolean", Description: "Force reboot"},
			},
		},
		{
			Name:        "get_host_performance",
			Description: "Get host performance metrics",
			Category:    CategoryHost,
			Params: map[string]Param{
				"host_name": {Type: "string", Description: "Name of the host", Required: true},
			},
			Cacheable: true,
		},

		// Snapshot operations
		{
			Name:        "create_snapshot",
			Description: "Create a VM snapshot",
			Category:    CategorySnapshot,
			Params: map[string]Param{
				"vm_name":       {Type: "string", Description: "Name of the VM", Required: true},
				"snapshot_name": {Type: "string", Description: "Name for the snapshot", Required: true},
				"description":   {Type: "string", Description: "Snapshot description"},
				"memory":        {Type: "boolean", Description: "Include memory"},
				"quiesce":       {Type: "boolean", Description: "Quiesce filesystem"},
			},
		},
		{
			Name:        "list_snapshots",
			Description: "List VM snapshots",
			Category:    CategorySnapshot,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM", Required: true},
			},
			Cacheable: true,
		},
		{
			Name:        "revert_snapshot",
			Description: "Revert to a snapshot",
			Category:    CategorySnapshot,
			Params: map[string]Param{
				"vm_name":       {Type: "string", Description: "Name of the VM", Required: true},
				"snapshot_name": {Type: "string", Description: "Name of the snapshot", Required: true},
			},
		},
		{
			Name:        "delete_snapshot",
			Description: "Delete a snapshot",
			Category:    CategorySnapshot,
			Params: map[string]Param{
				"vm_name":         {Type: "string", Description: "Name of the VM", Required: true},
				"snapshot_name":   {Type: "string", Description: "Name of the snapshot", Required: true},
				"remove_children": {Type: "boolean", Description: "Remove child snapshots"},
			},
		},
		{
			Name:        "delete_all_snapshots",
			Description: "Delete all snapshots of a VM",
			Category:    CategorySnapshot,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM", Required: true},
			},
		},

		// Resource operations
		{
			Name:        "get_cluster_resources",
			Description: "Get cluster resource summary",
			Category:    CategoryResource,
			Params:      map[string]Param{},
			Cacheable:   true,
		},
		{
			Name:        "modify_vm_resources",
			Description: "Modify VM CPU and memory allocation",
			Category:    CategoryResource,
			Params: map[string]Param{
				"vm_name":   {Type: "string", Description: "Name of the VM", Required: true},
				"cpu_count": {Type: "integer", Description: "Number of CPU cores"},
				"memory_mb": {Type: "integer", Description: "Memory in MB"},
			},
		},
		{
			Name:        "get_vm_resource_usage",
			Description: "Get VM resource usage",
			Category:    CategoryResource,
			Params: map[string]Param{
				"vm_name": {Type: "string", Description: "Name of the VM", Required: true},
			},
			Cacheable: true,
		},
		{
			Name:        "get_datastore_usage",
			Description: "Get datastore usage",
			Category:    CategoryResource,
			Params:      map[string]Param{},
			Cacheable:   true,
		},
	}

	if includeAI {
		ops = append(ops,
			Operation{
				Name:        "analyze_vm_performance",
				Description: "AI analysis of VM performance",
				Category:    CategoryAI,
				Params: map[string]Param{
					"vm_name": {Type: "string", Description: "Name of the VM to analyze", Required: true},
				},
			},
			Operation{
				Name:        "suggest_vm_sizing",
				Description: "AI-powered VM sizing recommendations",
				Category:    CategoryAI,
				Params: map[string]Param{
					"workload_description": {Type: "string", Description: "Description of the workload", Required: true},
					"requirements":         {Type: "object", Description: "Workload requirements"},
				},
			},
			Operation{
				Name:        "troubleshoot_issue",
				Description: "AI troubleshooting assistance",
				Category:    CategoryAI,
				Params: map[string]Param{
					"issue_description": {Type: "string", Description: "Description of the issue", Required: true},
					"vm_name":           {Type: "string", Description: "Affected VM name"},
				},
			},
		)
	}

	return New(ops)
}
