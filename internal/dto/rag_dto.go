package dto

import "ai-docs-helper/pkg/store"

type QueryRequest struct {
	Question string `json:"question" validate:"required,min=3"`
	Strategy string `json:"strategy" validate:"omitempty,oneof=fast standard comprehensive"`
}

type QueryResponse struct {
	Answer *store.Answer `json:"answer"`
}

type InvalidateCacheRequest struct {
	Pattern string `json:"pattern" validate:"required,min=2"`
}

type InvalidateCacheResponse struct {
	Invalidated int `json:"invalidated"`
}
