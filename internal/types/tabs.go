package types

import (
	"encoding/json"
	"fmt"
)

// TabList is the ordered set of URLs reported by a browser extension.
type TabList []string

// EncodeTabList renders tabs in the peer wire format: a bare JSON array of
// URL strings. A nil list is written as [].
func EncodeTabList(tabs TabList) ([]byte, error) {
	if tabs == nil {
		tabs = TabList{}
	}
	data, err := json.Marshal([]string(tabs))
	if err != nil {
		return nil, fmt.Errorf("encode tab list: %w", err)
	}
	return data, nil
}

// DecodeTabList parses one peer wire payload.
func DecodeTabList(data []byte) (TabList, error) {
	var tabs TabList
	if err := json.Unmarshal(data, &tabs); err != nil {
		return nil, fmt.Errorf("decode tab list: %w", err)
	}
	return tabs, nil
}
