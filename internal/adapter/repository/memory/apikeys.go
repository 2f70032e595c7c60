package memory

import "context"

// StaticKeys validates API keys against a fixed set, for deployments
// without a database.
type StaticKeys map[string]struct{}

func NewStaticKeys(keys []string) StaticKeys {
	set := make(StaticKeys, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func (s StaticKeys) IsValid(ctx context.Context, key string) (bool, error) {
	_, ok := s[key]
	return ok, nil
}
