package mapper

import (
	"fmt"

	dlspplugin "github.com/uber/doc-lsp/src/dlsp/entity/dlsp-plugin"
)

// PluginInfoToRuntimePrioritizedMethods maps all PluginInfo from running plugins, into a prioritized list of modules to run per method.
func PluginInfoToRuntimePrioritizedMethods(allPluginInfo []dlspplugin.PluginInfo) (dlspplugin.RuntimePrioritizedMethods, error) {
	result := make(dlspplugin.RuntimePrioritizedMethods)
	methodPriorityBuckets := make(map[string]map[dlspplugin.Priority][]*dlspplugin.Methods)

	for _, pluginInfo := range allPluginInfo {
		if err := pluginInfo.Validate(); err != nil {
			return nil, fmt.Errorf("error validating plugin configuration: %w", err)
		}

		for method, priority := range pluginInfo.Priorities {
			if _, ok := methodPriorityBuckets[method]; !ok {
				methodPriorityBuckets[method] = make(map[dlspplugin.Priority][]*dlspplugin.Methods)
			}
			methodPriorityBuckets[method][priority] = append(methodPriorityBuckets[method][priority], pluginInfo.Methods)
		}
	}

	// Consolidate the buckets into sync and async lists, ordered for execution.
	for method, buckets := range methodPriorityBuckets {
		current := dlspplugin.MethodLists{}
		for priority := dlspplugin.PriorityHigh; priority <= dlspplugin.PriorityAsync; priority++ {
			if priority < dlspplugin.PriorityAsync {
				current.Sync = append(current.Sync, buckets[priority]...)
			} else {
				current.Async = append(current.Async, buckets[priority]...)
			}
		}
		result[method] = current
	}

	return result, nil
}
