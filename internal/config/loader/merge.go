package loader

// Loader is a configuration source. Load returns nil, nil when the source
// has nothing to contribute, such as a config file that does not exist.
type Loader interface {
	Load() (map[string]any, error)
}

// DeepMerge recursively merges src into dst. Values in src override values
// in dst; nested maps are merged, everything else is replaced.
func DeepMerge(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for key, srcVal := range src {
		srcMap, srcIsMap := srcVal.(map[string]any)
		dstMap, dstIsMap := dst[key].(map[string]any)
		if srcIsMap && dstIsMap {
			dst[key] = DeepMerge(dstMap, srcMap)
			continue
		}
		dst[key] = srcVal
	}
	return dst
}

// MergeAll loads every source in order and merges them, later sources
// taking precedence. Sources that report nothing are skipped.
func MergeAll(sources ...Loader) (map[string]any, error) {
	merged := make(map[string]any)
	for _, src := range sources {
		m, err := src.Load()
		if err != nil {
			return nil, err
		}
		merged = DeepMerge(merged, m)
	}
	return merged, nil
}

// Static is a Loader over a fixed map, used for defaults and flag overrides.
type Static map[string]any

// Load returns a copy of the map.
func (s Static) Load() (map[string]any, error) {
	return Clone(s), nil
}

// Clone creates a deep copy of a configuration map.
func Clone(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, val := range src {
		dst[key] = cloneValue(val)
	}
	return dst
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return Clone(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}
