package ledger

import "strings"

type Endpoint struct {
	Address  string
	Priority int
}

// BuildEndpoints returns the ordered dial list. The primary address always
// comes first, followed by the remaining fallbacks in their configured order.
func BuildEndpoints(primary string, fallbacks []string) []Endpoint {
	primary = strings.TrimSpace(primary)
	seen := make(map[string]struct{}, len(fallbacks)+1)
	addrs := make([]string, 0, len(fallbacks)+1)
	if primary != "" {
		addrs = append(addrs, primary)
		seen[primary] = struct{}{}
	}
	for _, addr := range fallbacks {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		addrs = append(addrs, addr)
	}
	endpoints := make([]Endpoint, len(addrs))
	for i, addr := range addrs {
		endpoints[i] = Endpoint{Address: addr, Priority: i}
	}
	return endpoints
}
