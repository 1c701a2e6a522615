package crud

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// NormalizePage accepts either a bare array of records or an envelope
// ({items|data, total|count, has_more, next_offset, groups}) and returns the
// uniform Page shape.
func NormalizePage(raw []byte) (Page, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Page{}, fmt.Errorf("decode response: %w: empty body", ErrMalformedResponse)
	}

	if trimmed[0] == '[' {
		var items []Record
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return Page{}, fmt.Errorf("decode response: %w: %w", ErrMalformedResponse, err)
		}
		return Page{Items: items}, nil
	}

	var env struct {
		Items      []Record `json:"items"`
		Data       []Record `json:"data"`
		Total      *int     `json:"total"`
		Count      *int     `json:"count"`
		HasMore    *bool    `json:"has_more"`
		NextOffset *int     `json:"next_offset"`
		Groups     []Group  `json:"groups"`
		Meta       *struct {
			Count *int `json:"count"`
			Total *int `json:"total"`
		} `json:"$meta"`
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Page{}, fmt.Errorf("decode response: %w: %w", ErrMalformedResponse, err)
	}

	page := Page{
		Items:      env.Items,
		Total:      env.Total,
		HasMore:    env.HasMore,
		NextOffset: env.NextOffset,
		Groups:     env.Groups,
		Grouped:    env.Groups != nil,
	}
	if page.Items == nil {
		page.Items = env.Data
	}
	if page.Total == nil {
		page.Total = env.Count
	}
	if page.Total == nil && env.Meta != nil {
		page.Total = env.Meta.Total
		if page.Total == nil {
			page.Total = env.Meta.Count
		}
	}
	return page, nil
}
