package config

// mergeConfigs merges override configuration into base. Scalars are replaced
// when set in override; filter maps and extensions merge per key.
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}

	result.Server = mergeServer(result.Server, override.Server)
	result.Views = mergeViews(result.Views, override.Views)
	result.Devserver = mergeDevserver(result.Devserver, override.Devserver)

	if override.Extensions != nil {
		merged := make(map[string]interface{}, len(result.Extensions)+len(override.Extensions))
		for key, value := range result.Extensions {
			merged[key] = value
		}
		for key, value := range override.Extensions {
			// If both base and override have the same extension key, merge them
			if baseMap, ok := merged[key].(map[string]interface{}); ok {
				if overrideMap, ok := value.(map[string]interface{}); ok {
					mergedMap := make(map[string]interface{}, len(baseMap)+len(overrideMap))
					for k, v := range baseMap {
						mergedMap[k] = v
					}
					for k, v := range overrideMap {
						mergedMap[k] = v
					}
					merged[key] = mergedMap
					continue
				}
			}
			merged[key] = value
		}
		result.Extensions = merged
	}

	return &result
}

func mergeServer(base, override ServerConfig) ServerConfig {
	result := base
	if override.URL != "" {
		result.URL = override.URL
	}
	if override.Token != "" {
		result.Token = override.Token
	}
	if override.Timeout != "" {
		result.Timeout = override.Timeout
	}
	if override.MaxRetries != 0 {
		result.MaxRetries = override.MaxRetries
	}
	return result
}

func mergeViews(base, override ViewsConfig) ViewsConfig {
	result := base
	if override.PollInterval != "" {
		result.PollInterval = override.PollInterval
	}
	if override.RefreshInterval != "" {
		result.RefreshInterval = override.RefreshInterval
	}
	if override.BufferLimit != 0 {
		result.BufferLimit = override.BufferLimit
	}
	if override.Filters != nil {
		filters := make(map[string]map[string][]string, len(base.Filters)+len(override.Filters))
		for collection, set := range base.Filters {
			filters[collection] = set
		}
		// A collection's filter set is replaced as a whole.
		for collection, set := range override.Filters {
			filters[collection] = set
		}
		result.Filters = filters
	}
	return result
}

func mergeDevserver(base, override DevserverConfig) DevserverConfig {
	result := base
	if override.Addr != "" {
		result.Addr = override.Addr
	}
	if override.Token != "" {
		result.Token = override.Token
	}
	if override.Targets != 0 {
		result.Targets = override.Targets
	}
	if override.DiscoveryInterval != "" {
		result.DiscoveryInterval = override.DiscoveryInterval
	}
	if override.RecordingInterval != "" {
		result.RecordingInterval = override.RecordingInterval
	}
	if override.RuleInterval != "" {
		result.RuleInterval = override.RuleInterval
	}
	return result
}
