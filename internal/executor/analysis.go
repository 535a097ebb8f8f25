package executor

import (
	"context"
	"fmt"
	"log/slog"
)

// Analyzer produces a natural-language answer for a prompt, optionally
// grounded on structured context data.
type Analyzer interface {
	Analyze(ctx context.Context, prompt string, contextData map[string]any) (string, error)
}

// AnalysisExecutor layers the AI-assisted operations over a base executor.
// The three analysis operations gather live state through the base executor
// and hand it to the analyzer; everything else passes straight through.
type AnalysisExecutor struct {
	base     Executor
	analyzer Analyzer
	logger   *slog.Logger
}

// WithAnalysis wraps base so the analysis operations are served by analyzer.
func WithAnalysis(base Executor, analyzer Analyzer, logger *slog.Logger) *AnalysisExecutor {
	return &AnalysisExecutor{base: base, analyzer: analyzer, logger: logger}
}

func (a *AnalysisExecutor) Execute(ctx context.Context, operation string, params map[string]any) (any, error) {
	switch operation {
	case "analyze_vm_performance":
		return a.analyzeVMPerformance(ctx, params)
	case "suggest_vm_sizing":
		return a.suggestVMSizing(ctx, params)
	case "troubleshoot_issue":
		return a.troubleshootIssue(ctx, params)
	default:
		return a.base.Execute(ctx, operation, params)
	}
}

func (a *AnalysisExecutor) analyzeVMPerformance(ctx context.Context, params map[string]any) (any, error) {
	name, err := RequireString(params, "vm_name")
	if err != nil {
		return nil, err
	}
	details, err := a.vmContext(ctx, name)
	if err != nil {
		return nil, err
	}
	prompt := fmt.Sprintf(
		"Analyze the performance characteristics of virtual machine %q. "+
			"Identify bottlenecks in CPU, memory, and storage, and call out any configuration concerns.",
		name,
	)
	answer, err := a.analyzer.Analyze(ctx, prompt, details)
	if err != nil {
		return nil, err
	}
	return analysisResult{VMName: name, Analysis: answer}, nil
}

func (a *AnalysisExecutor) suggestVMSizing(ctx context.Context, params map[string]any) (any, error) {
	workload, err := RequireString(params, "workload_description")
	if err != nil {
		return nil, err
	}
	contextData := map[string]any{"workload": workload}
	if reqs, ok := params["requirements"].(map[string]any); ok {
		contextData["requirements"] = reqs
	}
	prompt := fmt.Sprintf(
		"Recommend a virtual machine configuration for this workload: %s. "+
			"Give concrete vCPU counts and memory in MB with a short rationale.",
		workload,
	)
	answer, err := a.analyzer.Analyze(ctx, prompt, contextData)
	if err != nil {
		return nil, err
	}
	return sizingResult{Workload: workload, Recommendation: answer}, nil
}

func (a *AnalysisExecutor) troubleshootIssue(ctx context.Context, params map[string]any) (any, error) {
	issue, err := RequireString(params, "issue_description")
	if err != nil {
		return nil, err
	}
	contextData := map[string]any{"issue": issue}
	if name := StringParam(params, "vm_name"); name != "" {
		if details, detailErr := a.vmContext(ctx, name); detailErr == nil {
			contextData["vm"] = details
		} else {
			a.logger.Debug("troubleshoot context lookup failed", "vm_name", name, "error", detailErr)
		}
	}
	prompt := fmt.Sprintf(
		"Troubleshoot the following virtualization issue and propose ordered remediation steps: %s",
		issue,
	)
	answer, err := a.analyzer.Analyze(ctx, prompt, contextData)
	if err != nil {
		return nil, err
	}
	return troubleshootResult{Issue: issue, Guidance: answer}, nil
}

// vmContext fetches current VM details through the base executor so the
// analyzer reasons over live state rather than the caller's claims.
func (a *AnalysisExecutor) vmContext(ctx context.Context, name string) (map[string]any, error) {
	raw, err := a.base.Execute(ctx, "get_vm_details", map[string]any{"vm_name": name})
	if err != nil {
		return nil, err
	}
	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	// The in-memory backend returns typed structs; flatten generically.
	return map[string]any{"vm": raw}, nil
}

type analysisResult struct {
	VMName   string `json:"vm_name"`
	Analysis string `json:"analysis"`
}

type sizingResult struct {
	Workload       string `json:"workload"`
	Recommendation string `json:"recommendation"`
}

type troubleshootResult struct {
	Issue    string `json:"issue"`
	Guidance string `json:"guidance"`
}
